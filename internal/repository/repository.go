// Package repository defines the storage contracts of the ledger.
//
// Two implementations live in subpackages: sqlite (embedded, used for
// development and tests) and postgres (production). Services depend only on
// these interfaces, never on a concrete store.
package repository

import (
	"context"
	"time"

	"cloud.google.com/go/civil"
	"github.com/sakif/attendance-ledger/internal/model"
)

// ListOptions paginates list queries. Limit 0 means the store default.
type ListOptions struct {
	Limit  int
	Offset int
}

// DefaultListLimit caps a list query when the caller gives no limit.
const DefaultListLimit = 50

// UserRepository stores identities.
//
// Uniqueness of email among active users is the store's job (a partial unique
// index). CreateUser returns apperror.ErrConflict when the index rejects the
// row, so two concurrent creates for the same email can never both succeed.
type UserRepository interface {
	// CreateUser inserts u, filling ID, CreatedAt and UpdatedAt.
	CreateUser(ctx context.Context, u *model.User) error

	// GetUserByID returns an active user; soft-deleted rows are NotFound.
	GetUserByID(ctx context.Context, id string) (*model.User, error)

	// GetUserIncludingDeleted returns the row whether or not it is deleted.
	GetUserIncludingDeleted(ctx context.Context, id string) (*model.User, error)

	// GetActiveUserByEmail returns the active user owning email, if any.
	GetActiveUserByEmail(ctx context.Context, email string) (*model.User, error)

	// ListActiveUsers returns active users, newest first.
	ListActiveUsers(ctx context.Context, opts ListOptions) ([]model.User, error)

	// UpdateUserProfile applies upd to an active user and bumps UpdatedAt.
	UpdateUserProfile(ctx context.Context, id string, upd model.ProfileUpdate, at time.Time) (*model.User, error)

	// SoftDeleteUser stamps DeletedAt. Deleting an already deleted user
	// returns the unchanged row.
	SoftDeleteUser(ctx context.Context, id string, at time.Time) (*model.User, error)

	// HardDeleteUser removes the row. The user's events go with it.
	HardDeleteUser(ctx context.Context, id string) error
}

// EventRepository is the append-only ledger. There is deliberately no
// update or delete method: a correction is a new event.
type EventRepository interface {
	// AppendEvent writes one event. CreatedAt comes from the store.
	// Returns apperror.ErrNotFound when UserID references no user row.
	AppendEvent(ctx context.Context, e model.NewEvent) (*model.AttendanceEvent, error)

	GetEvent(ctx context.Context, id string) (*model.AttendanceEvent, error)

	// ListEventsForUser returns events ordered by EventTime descending,
	// ties broken by RecordedAt, CreatedAt and ID, all descending.
	ListEventsForUser(ctx context.Context, userID string, f model.EventFilter) ([]model.AttendanceEvent, error)

	// ListEventsByOrgDate scans the (user, organization-local date) index
	// for dates in [from, to], in the same order as ListEventsForUser.
	ListEventsByOrgDate(ctx context.Context, userID string, from, to civil.Date) ([]model.AttendanceEvent, error)
}

// Store is a complete backing store.
type Store interface {
	UserRepository
	EventRepository
	Ping(ctx context.Context) error
	Close() error
}
