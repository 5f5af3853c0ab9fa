// Package service contains the business logic of the ledger.
//
//	Handler (HTTP)  → parses requests, writes responses
//	Service         → validates, normalizes, orchestrates
//	Repository      → reads/writes the store
//
// Services take repository interfaces, never a concrete store, so the same
// code runs against sqlite, postgres or the in-memory fakes in the tests.
// They return apperror values and know nothing about HTTP.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/repository"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 100
)

// IdentityService owns user records.
type IdentityService struct {
	users  repository.UserRepository
	logger *slog.Logger
	now    func() time.Time
}

func NewIdentityService(users repository.UserRepository, logger *slog.Logger) *IdentityService {
	return &IdentityService{
		users:  users,
		logger: logger,
		now:    time.Now,
	}
}

// CreateUserInput is the request to create a user. Validation runs after
// normalization: names are trimmed, emails trimmed and lower-cased.
type CreateUserInput struct {
	Name    string  `json:"name" validate:"required,min=1,max=100"`
	Email   string  `json:"email" validate:"required,min=3,max=255,email"`
	Picture *string `json:"picture" validate:"omitempty,max=2048,url"`
}

func (in *CreateUserInput) normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = normalizeEmail(in.Email)
	in.Picture = normalizeOptional(in.Picture)
}

// UpdateProfileInput changes name and/or picture. Nil fields are untouched;
// an empty picture removes the stored one.
type UpdateProfileInput struct {
	Name    *string `json:"name" validate:"omitnil,min=1,max=100"`
	Picture *string `json:"picture" validate:"omitnil,max=2048,url"`
}

// ExternalProfile is an identity asserted by a login provider.
type ExternalProfile struct {
	Name    string
	Email   string
	Picture string
}

func normalizeEmail(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func normalizeOptional(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// Create validates and stores a new active user.
//
// There is no "does this email exist?" check here. The store's partial
// unique index is the only authority, and its rejection arrives as
// apperror.ErrConflict.
func (s *IdentityService) Create(ctx context.Context, in CreateUserInput) (*model.User, error) {
	in.normalize()
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	u := &model.User{Name: in.Name, Email: in.Email, Picture: in.Picture}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if !errors.Is(err, apperror.ErrConflict) {
			s.logger.Error("failed to create user", slog.String("error", err.Error()))
		}
		return nil, fmt.Errorf("creating user: %w", err)
	}

	s.logger.Info("user created", slog.String("userID", u.ID))
	return u, nil
}

// Get returns an active user.
func (s *IdentityService) Get(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserByID(ctx, id)
}

// GetIncludingDeleted returns the user row whether or not it is soft-deleted.
func (s *IdentityService) GetIncludingDeleted(ctx context.Context, id string) (*model.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperror.ValidationFailed("id", "user ID is required")
	}
	return s.users.GetUserIncludingDeleted(ctx, id)
}

// LookupActiveByEmail finds the active user for an email, case-insensitively.
func (s *IdentityService) LookupActiveByEmail(ctx context.Context, email string) (*model.User, error) {
	email = normalizeEmail(email)
	if err := validate.Var(email, "required,email"); err != nil {
		return nil, apperror.ValidationFailed("email", "email must be a valid email address")
	}
	return s.users.GetActiveUserByEmail(ctx, email)
}

// List returns active users, newest first. limit is clamped to
// [1, MaxListLimit] and defaults to DefaultListLimit.
func (s *IdentityService) List(ctx context.Context, limit, offset int) ([]model.User, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)
	offset = max(offset, 0)

	users, err := s.users.ListActiveUsers(ctx, repository.ListOptions{Limit: limit, Offset: offset})
	if err != nil {
		s.logger.Error("failed to list users", slog.String("error", err.Error()))
		return nil, fmt.Errorf("listing users: %w", err)
	}
	return users, nil
}

// UpdateProfile changes an active user's name or picture. Email is not
// editable here; uniqueness is only decided at creation.
func (s *IdentityService) UpdateProfile(ctx context.Context, id string, in UpdateProfileInput) (*model.User, error) {
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		in.Name = &name
	}
	if in.Name == nil && in.Picture == nil {
		return nil, apperror.ValidationFailed("name", "nothing to update")
	}
	upd := model.ProfileUpdate{Name: in.Name}
	if in.Picture != nil {
		if pic := strings.TrimSpace(*in.Picture); pic == "" {
			upd.ClearPicture = true
			in.Picture = nil
		} else {
			in.Picture = &pic
			upd.Picture = &pic
		}
	}
	if err := validateStruct(in); err != nil {
		return nil, err
	}

	u, err := s.users.UpdateUserProfile(ctx, id, upd, model.Truncate(s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("updating user %s: %w", id, err)
	}

	s.logger.Info("user profile updated", slog.String("userID", id))
	return u, nil
}

// SoftDelete marks the user deleted. Their events stay, and their email
// becomes available to a new user. Deleting twice is a no-op that returns
// the row with its original deletedAt.
func (s *IdentityService) SoftDelete(ctx context.Context, id string) (*model.User, error) {
	u, err := s.users.SoftDeleteUser(ctx, id, model.Truncate(s.now().UTC()))
	if err != nil {
		return nil, fmt.Errorf("soft-deleting user %s: %w", id, err)
	}
	s.logger.Info("user soft-deleted", slog.String("userID", id))
	return u, nil
}

// HardDelete removes the user and, through the store's cascade, every event
// they own. It is the privileged purge path, not part of normal deletion.
func (s *IdentityService) HardDelete(ctx context.Context, id string) error {
	if err := s.users.HardDeleteUser(ctx, id); err != nil {
		return fmt.Errorf("hard-deleting user %s: %w", id, err)
	}
	s.logger.Warn("user purged with all events", slog.String("userID", id))
	return nil
}

// Provision resolves a provider login to a ledger user: the active user with
// that email, or a new one.
//
// Two first logins for the same email can race. The loser's insert fails
// with a conflict, and re-reading returns the winner's row.
func (s *IdentityService) Provision(ctx context.Context, p ExternalProfile) (*model.User, error) {
	email := normalizeEmail(p.Email)
	if email == "" {
		return nil, apperror.ValidationFailed("email", "login provider did not share an email address")
	}

	u, err := s.LookupActiveByEmail(ctx, email)
	if err == nil {
		return u, nil
	}
	if !errors.Is(err, apperror.ErrNotFound) {
		return nil, fmt.Errorf("provisioning user: %w", err)
	}

	in := CreateUserInput{Name: p.Name, Email: email}
	if in.Name = strings.TrimSpace(in.Name); in.Name == "" {
		in.Name, _, _ = strings.Cut(email, "@")
	}
	if p.Picture != "" {
		pic := p.Picture
		in.Picture = &pic
	}

	u, err = s.Create(ctx, in)
	if errors.Is(err, apperror.ErrConflict) {
		return s.users.GetActiveUserByEmail(ctx, email)
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}
