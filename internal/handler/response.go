package handler

// Every error response from the API has the same shape:
//
//	{"error": "not_found", "message": "user not found with id abc", "requestId": "host/abc-000001"}
//
// so clients can parse failures without looking at the status first.

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/sakif/attendance-ledger/internal/apperror"
)

// ErrorResponse is the error envelope returned by all API endpoints.
type ErrorResponse struct {
	Error     string `json:"error"`               // machine-readable code, e.g. "not_found"
	Message   string `json:"message"`             // human-readable description
	Field     string `json:"field,omitempty"`     // offending field for validation errors
	RequestID string `json:"requestId,omitempty"` // chi request id, matches the access log
}

// writeJSON sends data as JSON with the given status. Headers must be set
// before WriteHeader; anything after it is ignored by net/http.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			// Headers are already sent; all we can do is log.
			slog.Error("failed to encode JSON response", slog.String("error", err.Error()))
		}
	}
}

// statusOf maps an error category to an HTTP status and envelope code.
func statusOf(err error) (int, string) {
	switch {
	case errors.Is(err, apperror.ErrValidation):
		return http.StatusBadRequest, "validation_error"
	case errors.Is(err, apperror.ErrUnauthorized):
		return http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, apperror.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, apperror.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, apperror.ErrConflict):
		return http.StatusConflict, "conflict"
	}
	return http.StatusInternalServerError, "internal_error"
}

// writeError maps a domain error to its HTTP status and writes the envelope.
//
// Errors outside the apperror taxonomy become a generic 500: their text may
// contain SQL or file paths and is logged instead of returned.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status, code := statusOf(err)
	resp := ErrorResponse{
		Error:     code,
		RequestID: chimiddleware.GetReqID(r.Context()),
	}

	var appErr *apperror.AppError
	if status != http.StatusInternalServerError && errors.As(err, &appErr) {
		resp.Message = appErr.Message
		resp.Field = appErr.Field
	} else {
		resp.Message = "An internal error occurred"
		slog.Error("request failed",
			slog.String("path", r.URL.Path),
			slog.String("requestId", resp.RequestID),
			slog.String("error", err.Error()),
		)
	}
	writeJSON(w, status, resp)
}

// Unauthorized is the auth.RequireAuth failure writer. The token error is
// reported as a 401 in the standard envelope.
func Unauthorized(w http.ResponseWriter, r *http.Request, err error) {
	writeError(w, r, apperror.Unauthorized(err.Error()))
}

// decodeJSON reads a single JSON object into dst, rejecting unknown fields
// and trailing data.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("body", "invalid JSON body: "+err.Error())
	}
	if dec.More() {
		return apperror.ValidationFailed("body", "request body must contain a single JSON object")
	}
	return nil
}
