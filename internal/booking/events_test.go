package booking

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oakline/roomgate-core/internal/infrastructure/config"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/infrastructure/mqtt"
)

// fakeScheduler records Cancel/Reschedule calls.
type fakeScheduler struct {
	cancelled     []string
	rescheduled   map[string]time.Time
	cancelErr     error
	rescheduleErr error
}

func newFakeScheduler() *fakeScheduler {
	return &fakeScheduler{rescheduled: make(map[string]time.Time)}
}

func (f *fakeScheduler) Cancel(_ context.Context, bookingID string) error {
	f.cancelled = append(f.cancelled, bookingID)
	return f.cancelErr
}

func (f *fakeScheduler) Reschedule(_ context.Context, bookingID string, endTime time.Time) error {
	f.rescheduled[bookingID] = endTime
	return f.rescheduleErr
}

// fakeBus captures subscriptions so tests can feed messages directly.
type fakeBus struct {
	topic   string
	handler mqtt.MessageHandler
}

func (f *fakeBus) Subscribe(topic string, _ byte, handler mqtt.MessageHandler) error {
	f.topic = topic
	f.handler = handler
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func setupConsumer(t *testing.T) (*EventConsumer, *SQLiteRepository, *fakeScheduler, *fakeBus) {
	t.Helper()
	repo := NewSQLiteRepository(setupTestDB(t))
	sched := newFakeScheduler()
	bus := &fakeBus{}
	consumer := NewEventConsumer(repo, sched, bus, testLogger())
	if err := consumer.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return consumer, repo, sched, bus
}

func TestConsumerSubscribesToBookingEvents(t *testing.T) {
	_, _, _, bus := setupConsumer(t)

	if bus.topic != "roomgate/booking/+/event" {
		t.Errorf("subscribed topic = %q, want roomgate/booking/+/event", bus.topic)
	}
	if bus.handler == nil {
		t.Fatal("no handler registered")
	}
}

func TestCancelledEvent(t *testing.T) {
	_, repo, sched, bus := setupConsumer(t)

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID: "bkg-1", RoomID: "room-201", UserID: "user-42",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
	})

	err := bus.handler("roomgate/booking/bkg-1/event", []byte(`{"event":"cancelled"}`))
	if err != nil {
		t.Fatalf("handler error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), "bkg-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
	if len(sched.cancelled) != 1 || sched.cancelled[0] != "bkg-1" {
		t.Errorf("scheduler cancels = %v, want [bkg-1]", sched.cancelled)
	}
}

func TestCancelledEventSchedulerErrorIsNotFatal(t *testing.T) {
	_, repo, sched, bus := setupConsumer(t)
	sched.cancelErr = errors.New("no active task")

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID: "bkg-1", RoomID: "room-201", UserID: "user-42",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
	})

	// The booking must still be cancelled even when no task exists.
	if err := bus.handler("roomgate/booking/bkg-1/event", []byte(`{"event":"cancelled"}`)); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	got, _ := repo.GetByID(context.Background(), "bkg-1")
	if got.Status != StatusCancelled {
		t.Errorf("status = %s, want cancelled", got.Status)
	}
}

func TestModifiedEvent(t *testing.T) {
	_, repo, sched, bus := setupConsumer(t)

	start := time.Date(2026, 3, 10, 14, 0, 0, 0, time.UTC)
	mustCreate(t, repo, &Booking{
		ID: "bkg-1", RoomID: "room-201", UserID: "user-42",
		StartTime: start, EndTime: start.Add(2 * time.Hour),
	})

	newEnd := start.Add(3 * time.Hour)
	payload := []byte(`{"event":"modified","end_time":"` + newEnd.Format(time.RFC3339) + `"}`)

	if err := bus.handler("roomgate/booking/bkg-1/event", payload); err != nil {
		t.Fatalf("handler error = %v", err)
	}

	got, err := repo.GetByID(context.Background(), "bkg-1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if !got.EndTime.Equal(newEnd) {
		t.Errorf("EndTime = %v, want %v", got.EndTime, newEnd)
	}
	if rescheduledTo, ok := sched.rescheduled["bkg-1"]; !ok || !rescheduledTo.Equal(newEnd) {
		t.Errorf("rescheduled = %v, want bkg-1 at %v", sched.rescheduled, newEnd)
	}
}

func TestInvalidEvents(t *testing.T) {
	_, _, _, bus := setupConsumer(t)

	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"malformed topic", "roomgate/other/bkg-1/event", `{"event":"cancelled"}`},
		{"empty booking id", "roomgate/booking//event", `{"event":"cancelled"}`},
		{"bad json", "roomgate/booking/bkg-1/event", `{not json`},
		{"unknown event", "roomgate/booking/bkg-1/event", `{"event":"vanished"}`},
		{"modified without end_time", "roomgate/booking/bkg-1/event", `{"event":"modified"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := bus.handler(tt.topic, []byte(tt.payload))
			if !errors.Is(err, ErrInvalidEvent) {
				t.Errorf("error = %v, want ErrInvalidEvent", err)
			}
		})
	}
}
