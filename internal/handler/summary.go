package handler

import (
	"log/slog"
	"net/http"

	"cloud.google.com/go/civil"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/auth"
	"github.com/sakif/attendance-ledger/internal/service"
	"github.com/sakif/attendance-ledger/internal/temporal"
)

// SummaryHandler serves the derived views: day buckets and reconciled
// daily summaries. A missing zone parameter means the organization zone.
type SummaryHandler struct {
	ledger      *service.LedgerService
	defaultZone string
	logger      *slog.Logger
}

func NewSummaryHandler(ledger *service.LedgerService, defaultZone string, logger *slog.Logger) *SummaryHandler {
	return &SummaryHandler{ledger: ledger, defaultZone: defaultZone, logger: logger}
}

func (h *SummaryHandler) zone(r *http.Request) string {
	if z := r.URL.Query().Get("zone"); z != "" {
		return z
	}
	return h.defaultZone
}

// HandleDaily reconciles one local date for the caller.
//
// HTTP: GET /api/summaries/daily?zone=America/New_York&date=2024-03-01
func (h *SummaryHandler) HandleDaily(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())

	raw := r.URL.Query().Get("date")
	if raw == "" {
		writeError(w, r, apperror.ValidationFailed("date", "date is required"))
		return
	}
	date, err := civil.ParseDate(raw)
	if err != nil {
		writeError(w, r, apperror.ValidationFailed("date", "date must be YYYY-MM-DD"))
		return
	}

	sum, err := h.ledger.DailySummary(r.Context(), userID, h.zone(r), date)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, sum)
}

// HandleBuckets groups the caller's events by local date, one bucket per
// date in [from, to] including empty ones.
//
// HTTP: GET /api/summaries/buckets?zone=UTC&from=2024-03-01&to=2024-03-07
func (h *SummaryHandler) HandleBuckets(w http.ResponseWriter, r *http.Request) {
	userID, _ := auth.UserIDFromContext(r.Context())
	q := r.URL.Query()

	if q.Get("from") == "" {
		writeError(w, r, apperror.ValidationFailed("from", "from is required"))
		return
	}
	rng, err := temporal.ParseDateRange(q.Get("from"), q.Get("to"))
	if err != nil {
		writeError(w, r, err)
		return
	}

	buckets, err := h.ledger.DayBuckets(r.Context(), userID, h.zone(r), rng)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, buckets)
}
