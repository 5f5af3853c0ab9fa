// Package model defines the data structures used throughout the ledger.
package model

import "time"

// User is an identity that owns attendance events.
//
// Email is unique only among ACTIVE users (DeletedAt == nil). Once a user is
// soft-deleted, a new user with a fresh ID may claim the same email. The
// store enforces this with a partial unique index, never with a
// read-then-write check in Go.
//
// Soft delete keeps the row (and therefore the user's events). Only a hard
// delete removes the row, and the events go with it through the foreign key's
// ON DELETE CASCADE.
type User struct {
	ID        string     `json:"id"`
	Name      string     `json:"name"`
	Email     string     `json:"email"`
	Picture   *string    `json:"picture,omitempty"` // optional avatar URL
	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	DeletedAt *time.Time `json:"deletedAt,omitempty"` // nil = active
}

// Active reports whether the user has not been soft-deleted.
func (u *User) Active() bool {
	return u.DeletedAt == nil
}

// ProfileUpdate carries the mutable profile fields. Nil means "leave as is".
// ClearPicture sets picture to NULL and wins over Picture.
type ProfileUpdate struct {
	Name         *string
	Picture      *string
	ClearPicture bool
}
