package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/oakline/roomgate-core/internal/auth"
	"github.com/oakline/roomgate-core/internal/booking"
	"github.com/oakline/roomgate-core/internal/poweroff"
)

// handleListTasks lists power-off tasks.
//
// Without query parameters it returns active (scheduled or executing)
// tasks. ?room_id= narrows to one room; ?status= returns history for a
// single status instead.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	var (
		tasks []poweroff.Task
		err   error
	)

	switch {
	case r.URL.Query().Get("status") != "":
		status := r.URL.Query().Get("status")
		if !validTaskStatus(status) {
			writeBadRequest(w, "unknown task status")
			return
		}
		tasks, err = s.scheduler.ListByStatus(r.Context(), status)
	case r.URL.Query().Get("room_id") != "":
		tasks, err = s.scheduler.ListActiveByRoom(r.Context(), r.URL.Query().Get("room_id"))
	default:
		tasks, err = s.scheduler.ListActive(r.Context())
	}
	if err != nil {
		s.logger.Error("listing power-off tasks", "error", err)
		writeInternalError(w, "failed to list tasks")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"tasks": tasks,
		"count": len(tasks),
	})
}

// handleGetTask returns the most recent power-off task for a booking.
//
// Non-admin callers can only see tasks for their own bookings.
func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")
	claims := claimsFrom(r.Context())

	if claims.Role != auth.RoleAdmin {
		b, err := s.bookings.GetByID(r.Context(), bookingID)
		if err != nil {
			if errors.Is(err, booking.ErrBookingNotFound) {
				writeNotFound(w, "booking not found")
				return
			}
			s.logger.Error("loading booking for task lookup", "booking_id", bookingID, "error", err)
			writeInternalError(w, "failed to load booking")
			return
		}
		if b.UserID != claims.Subject {
			writeForbidden(w, "not your booking")
			return
		}
	}

	task, err := s.scheduler.GetStatus(r.Context(), bookingID)
	if err != nil {
		if errors.Is(err, poweroff.ErrTaskNotFound) {
			writeNotFound(w, "no power-off task for booking")
			return
		}
		s.logger.Error("loading task status", "booking_id", bookingID, "error", err)
		writeInternalError(w, "failed to load task")
		return
	}

	writeJSON(w, http.StatusOK, task)
}

// handleCancelTask withdraws a booking's scheduled power-off task.
func (s *Server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	bookingID := chi.URLParam(r, "bookingID")

	err := s.scheduler.Cancel(r.Context(), bookingID)
	switch {
	case err == nil:
	case errors.Is(err, poweroff.ErrTaskNotFound):
		writeNotFound(w, "no active power-off task for booking")
		return
	case errors.Is(err, poweroff.ErrTaskStateConflict):
		writeConflict(w, "task is executing or already finished")
		return
	default:
		s.logger.Error("cancelling task", "booking_id", bookingID, "error", err)
		writeInternalError(w, "failed to cancel task")
		return
	}

	task, err := s.scheduler.GetStatus(r.Context(), bookingID)
	if err != nil {
		// Cancelled but unreadable; report success without the body.
		writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// validTaskStatus reports whether status names a known task state.
func validTaskStatus(status string) bool {
	switch status {
	case poweroff.StatusScheduled, poweroff.StatusExecuting,
		poweroff.StatusCompleted, poweroff.StatusFailed, poweroff.StatusCancelled:
		return true
	}
	return false
}
