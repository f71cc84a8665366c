package relay

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/oakline/roomgate-core/internal/infrastructure/config"
	"github.com/oakline/roomgate-core/internal/infrastructure/logging"
	"github.com/oakline/roomgate-core/internal/infrastructure/mqtt"
)

// fakeBus captures published commands and lets tests inject acks
// through the registered handler.
type fakeBus struct {
	handler    mqtt.MessageHandler
	published  chan publishedMsg
	publishErr error
	// respond, when set, is called for each publish so tests can
	// synthesise relay behaviour.
	respond func(topic string, payload []byte)
}

type publishedMsg struct {
	topic   string
	payload []byte
}

func newFakeBus() *fakeBus {
	return &fakeBus{published: make(chan publishedMsg, 4)}
}

func (f *fakeBus) Publish(topic string, payload []byte, _ byte, _ bool) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published <- publishedMsg{topic: topic, payload: payload}
	if f.respond != nil {
		go f.respond(topic, payload)
	}
	return nil
}

func (f *fakeBus) Subscribe(_ string, _ byte, handler mqtt.MessageHandler) error {
	f.handler = handler
	return nil
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stderr"}, "test")
}

func setup(t *testing.T, ackTimeout time.Duration) (*MQTTController, *fakeBus) {
	t.Helper()
	bus := newFakeBus()
	c := NewMQTTController(bus, ackTimeout, testLogger())
	if err := c.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	return c, bus
}

// ackResponder answers every command on the matching ack topic.
func ackResponder(bus *fakeBus, success bool, errMsg string) func(string, []byte) {
	return func(topic string, payload []byte) {
		var cmd command
		if json.Unmarshal(payload, &cmd) != nil {
			return
		}
		// roomgate/relay/{roomID}/set -> roomgate/relay/{roomID}/ack
		ackTopic := topic[:len(topic)-len("set")] + "ack"
		a := ack{CommandID: cmd.CommandID, Success: success, Error: errMsg}
		b, _ := json.Marshal(a)
		bus.handler(ackTopic, b)
	}
}

func TestSetPowerOff(t *testing.T) {
	c, bus := setup(t, time.Second)
	bus.respond = ackResponder(bus, true, "")

	if err := c.SetPower(context.Background(), "room-201", false); err != nil {
		t.Fatalf("SetPower() error = %v", err)
	}

	msg := <-bus.published
	if msg.topic != "roomgate/relay/room-201/set" {
		t.Errorf("topic = %q, want roomgate/relay/room-201/set", msg.topic)
	}

	var cmd command
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatalf("unmarshalling command: %v", err)
	}
	if cmd.Power != "off" {
		t.Errorf("power = %q, want off", cmd.Power)
	}
	if len(cmd.CommandID) < 4 || cmd.CommandID[:4] != "cmd-" {
		t.Errorf("command_id = %q, want cmd- prefix", cmd.CommandID)
	}
}

func TestSetPowerOn(t *testing.T) {
	c, bus := setup(t, time.Second)
	bus.respond = ackResponder(bus, true, "")

	if err := c.SetPower(context.Background(), "room-201", true); err != nil {
		t.Fatalf("SetPower() error = %v", err)
	}

	msg := <-bus.published
	var cmd command
	if err := json.Unmarshal(msg.payload, &cmd); err != nil {
		t.Fatalf("unmarshalling command: %v", err)
	}
	if cmd.Power != "on" {
		t.Errorf("power = %q, want on", cmd.Power)
	}
}

func TestSetPowerRejected(t *testing.T) {
	c, bus := setup(t, time.Second)
	bus.respond = ackResponder(bus, false, "relay stuck")

	err := c.SetPower(context.Background(), "room-201", false)
	if !errors.Is(err, ErrCommandRejected) {
		t.Fatalf("SetPower() error = %v, want ErrCommandRejected", err)
	}
}

func TestSetPowerAckTimeout(t *testing.T) {
	c, _ := setup(t, 50*time.Millisecond)
	// No responder: the ack never arrives.

	start := time.Now()
	err := c.SetPower(context.Background(), "room-201", false)
	if !errors.Is(err, ErrAckTimeout) {
		t.Fatalf("SetPower() error = %v, want ErrAckTimeout", err)
	}
	if elapsed := time.Since(start); elapsed < 50*time.Millisecond {
		t.Errorf("returned after %v, want at least the ack timeout", elapsed)
	}
}

func TestSetPowerContextCancelled(t *testing.T) {
	c, _ := setup(t, time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := c.SetPower(ctx, "room-201", false)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("SetPower() error = %v, want context.Canceled", err)
	}
}

func TestSetPowerPublishError(t *testing.T) {
	c, bus := setup(t, time.Second)
	bus.publishErr = errors.New("not connected")

	err := c.SetPower(context.Background(), "room-201", false)
	if err == nil {
		t.Fatal("SetPower() error = nil, want publish error")
	}
}

func TestAckCorrelation(t *testing.T) {
	c, bus := setup(t, time.Second)

	// Answer with a wrong command ID first, then the right one.
	bus.respond = func(topic string, payload []byte) {
		var cmd command
		if json.Unmarshal(payload, &cmd) != nil {
			return
		}
		ackTopic := topic[:len(topic)-len("set")] + "ack"

		wrong, _ := json.Marshal(ack{CommandID: "cmd-other", Success: false, Error: "not yours"})
		bus.handler(ackTopic, wrong)

		right, _ := json.Marshal(ack{CommandID: cmd.CommandID, Success: true})
		bus.handler(ackTopic, right)
	}

	if err := c.SetPower(context.Background(), "room-201", false); err != nil {
		t.Fatalf("SetPower() error = %v, wrong-ID ack should be ignored", err)
	}
}

func TestHandleAckInvalidPayload(t *testing.T) {
	_, bus := setup(t, time.Second)

	if err := bus.handler("roomgate/relay/room-201/ack", []byte(`{bad`)); !errors.Is(err, ErrInvalidAck) {
		t.Errorf("handler error = %v, want ErrInvalidAck", err)
	}
	if err := bus.handler("roomgate/relay/room-201/ack", []byte(`{"success":true}`)); !errors.Is(err, ErrInvalidAck) {
		t.Errorf("handler error = %v, want ErrInvalidAck for missing command_id", err)
	}
}

func TestHandleAckUnknownCommandDropped(t *testing.T) {
	_, bus := setup(t, time.Second)

	payload, _ := json.Marshal(ack{CommandID: "cmd-stale", Success: true})
	if err := bus.handler("roomgate/relay/room-201/ack", payload); err != nil {
		t.Errorf("handler error = %v, want nil for unknown command", err)
	}
}
