package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/auth"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/service"
)

// EventHandler serves the append-only ledger. Every route acts for the
// authenticated caller; a user ID in the body is never trusted.
type EventHandler struct {
	ledger *service.LedgerService
	logger *slog.Logger
}

func NewEventHandler(ledger *service.LedgerService, logger *slog.Logger) *EventHandler {
	return &EventHandler{ledger: ledger, logger: logger}
}

// appendEventRequest keeps eventTime as a string so a malformed timestamp is
// reported as a field error instead of a generic decode failure.
type appendEventRequest struct {
	EventType string `json:"eventType"`
	EventTime string `json:"eventTime"`
}

// HandleAppend records one event for the caller.
//
// HTTP: POST /api/events
// BODY: {"eventType": "clockIn", "eventTime": "2024-03-01T09:00:00-05:00"}
//
// eventTime must carry an explicit UTC offset (RFC 3339). The offset is
// kept and returned on every read.
func (h *EventHandler) HandleAppend(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	var req appendEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	var at time.Time
	if req.EventTime != "" {
		var err error
		if at, err = parseInstant("eventTime", req.EventTime); err != nil {
			writeError(w, r, err)
			return
		}
	}

	e, err := h.ledger.AppendEvent(r.Context(), service.AppendEventInput{
		UserID:    userID,
		EventType: req.EventType,
		EventTime: at,
	})
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// HandleHistory returns the caller's raw events, newest first.
//
// HTTP: GET /api/events?from=2024-03-01T00:00:00Z&to=2024-03-02T00:00:00Z&limit=100
func (h *EventHandler) HandleHistory(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	var f model.EventFilter
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"from", &f.From}, {"to", &f.To}} {
		raw := q.Get(p.name)
		if raw == "" {
			continue
		}
		t, err := parseInstant(p.name, raw)
		if err != nil {
			writeError(w, r, err)
			return
		}
		*p.dst = &t
	}

	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	f.Limit = limit

	events, err := h.ledger.History(r.Context(), userID, f)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, events)
}

// HandleGet returns one of the caller's events.
//
// HTTP: GET /api/events/{id}
func (h *EventHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	e, err := h.ledger.GetEvent(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, e)
}

func parseInstant(field, raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, apperror.ValidationFailed(field,
			fmt.Sprintf("%s must be an RFC 3339 timestamp with a UTC offset, got %q", field, raw))
	}
	return t, nil
}
