// Package handler is the HTTP adapter of the ledger.
//
// Handlers parse the request, call one service method and write the result.
// They hold no business rules: validation, normalization and ownership
// checks live in the service layer, and every failure is rendered by
// writeError from its apperror category.
package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/auth"
	"github.com/sakif/attendance-ledger/internal/service"
)

// UserHandler serves the identity store.
type UserHandler struct {
	identity *service.IdentityService
	logger   *slog.Logger
}

func NewUserHandler(identity *service.IdentityService, logger *slog.Logger) *UserHandler {
	return &UserHandler{identity: identity, logger: logger}
}

// HandleCreate creates an active user.
//
// HTTP: POST /api/users
// BODY: {"name": "Ada", "email": "ada@example.com", "picture": "https://..."}
func (h *UserHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var in service.CreateUserInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.identity.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, u)
}

// HandleList returns active users, newest first.
//
// HTTP: GET /api/users?limit=20&offset=0
func (h *UserHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit")
	if err != nil {
		writeError(w, r, err)
		return
	}
	offset, err := intParam(r, "offset")
	if err != nil {
		writeError(w, r, err)
		return
	}

	users, err := h.identity.List(r.Context(), limit, offset)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, users)
}

// HandleGet returns one active user.
//
// HTTP: GET /api/users/{id}
func (h *UserHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	u, err := h.identity.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleLookup finds the active user owning an email.
//
// HTTP: GET /api/users/lookup?email=ada@example.com
func (h *UserHandler) HandleLookup(w http.ResponseWriter, r *http.Request) {
	u, err := h.identity.LookupActiveByEmail(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// requireSelf writes 403 and returns false unless the caller is user id.
func requireSelf(w http.ResponseWriter, r *http.Request, id, action string) bool {
	if caller, _ := auth.UserIDFromContext(r.Context()); caller != id {
		writeError(w, r, apperror.Forbidden("only the user can "+action+" their own record"))
		return false
	}
	return true
}

// HandleUpdate changes name and/or picture of the caller's own record. An
// empty picture removes it.
//
// HTTP: PATCH /api/users/{id}
// BODY: {"name": "Ada L."}
func (h *UserHandler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !requireSelf(w, r, id, "update") {
		return
	}

	var in service.UpdateProfileInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.identity.UpdateProfile(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandleSoftDelete marks the caller deleted and returns the row, deletedAt
// included. Repeating it returns the same row.
//
// HTTP: DELETE /api/users/{id}
func (h *UserHandler) HandleSoftDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !requireSelf(w, r, id, "delete") {
		return
	}

	u, err := h.identity.SoftDelete(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// HandlePurge hard-deletes a user and all of their events. Only the user
// themself may purge their record.
//
// HTTP: DELETE /api/users/{id}/purge
func (h *UserHandler) HandlePurge(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !requireSelf(w, r, id, "purge") {
		return
	}

	if err := h.identity.HardDelete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated caller's profile.
//
// HTTP: GET /api/me
func (h *UserHandler) HandleMe(w http.ResponseWriter, r *http.Request) {
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, apperror.Unauthorized("not authenticated"))
		return
	}

	u, err := h.identity.Get(r.Context(), userID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// intParam reads an optional non-negative integer query parameter.
func intParam(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0, apperror.ValidationFailed(name, name+" must be a non-negative integer")
	}
	return n, nil
}
