package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/oakline/roomgate-core/internal/access"
)

// doorOpenRequest is the body of POST /access/door-open.
type doorOpenRequest struct {
	RoomID string `json:"room_id"`

	// At optionally overrides the decision time (RFC3339). Used by the
	// upstream platform to validate queued card swipes; defaults to now.
	At string `json:"at,omitempty"`
}

// doorOpenResponse reports the access decision.
type doorOpenResponse struct {
	Granted     bool   `json:"granted"`
	Reason      string `json:"reason,omitempty"`
	BookingID   string `json:"booking_id,omitempty"`
	RoomID      string `json:"room_id"`
	AccessUntil string `json:"access_until,omitempty"`
}

// handleDoorOpen runs the access decision for the authenticated user.
//
// Denials are 403 with a stable reason code; they are expected outcomes,
// not errors.
func (s *Server) handleDoorOpen(w http.ResponseWriter, r *http.Request) {
	var req doorOpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.RoomID == "" {
		writeBadRequest(w, "room_id is required")
		return
	}

	at := time.Now().UTC()
	if req.At != "" {
		parsed, err := time.Parse(time.RFC3339, req.At)
		if err != nil {
			writeBadRequest(w, "at must be RFC3339")
			return
		}
		at = parsed.UTC()
	}

	claims := claimsFrom(r.Context())

	b, err := s.validator.ValidateDoorAccess(r.Context(), claims.Subject, req.RoomID, at)
	if err != nil {
		if access.IsDenial(err) {
			writeJSON(w, http.StatusForbidden, doorOpenResponse{
				Granted: false,
				Reason:  access.DenialReason(err),
				RoomID:  req.RoomID,
			})
			return
		}
		s.logger.Error("door access validation failed",
			"user_id", claims.Subject,
			"room_id", req.RoomID,
			"error", err,
		)
		writeInternalError(w, "access validation failed")
		return
	}

	writeJSON(w, http.StatusOK, doorOpenResponse{
		Granted:     true,
		BookingID:   b.ID,
		RoomID:      b.RoomID,
		AccessUntil: b.EndTime.UTC().Format(time.RFC3339),
	})
}
