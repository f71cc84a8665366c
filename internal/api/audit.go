package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/oakline/roomgate-core/internal/audit"
)

// handleListAudit queries the audit trail with optional filters.
//
// Query parameters: action, actor_id, room_id, booking_id, from, to
// (RFC3339), limit, offset.
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	filter := audit.Filter{
		Action:    q.Get("action"),
		ActorID:   q.Get("actor_id"),
		RoomID:    q.Get("room_id"),
		BookingID: q.Get("booking_id"),
	}

	if v := q.Get("from"); v != "" {
		from, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "from must be RFC3339")
			return
		}
		filter.From = from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(time.RFC3339, v)
		if err != nil {
			writeBadRequest(w, "to must be RFC3339")
			return
		}
		filter.To = to
	}
	if v := q.Get("limit"); v != "" {
		limit, err := strconv.Atoi(v)
		if err != nil || limit < 0 {
			writeBadRequest(w, "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	if v := q.Get("offset"); v != "" {
		offset, err := strconv.Atoi(v)
		if err != nil || offset < 0 {
			writeBadRequest(w, "offset must be a non-negative integer")
			return
		}
		filter.Offset = offset
	}

	result, err := s.audits.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing audit logs", "error", err)
		writeInternalError(w, "failed to list audit logs")
		return
	}

	writeJSON(w, http.StatusOK, result)
}
