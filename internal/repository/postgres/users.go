package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/dbx"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/repository"
)

const userColumns = `id, name, email, picture, created_at, updated_at, deleted_at`

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u         model.User
		picture   sql.NullString
		deletedAt sql.NullTime
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &picture, &u.CreatedAt, &u.UpdatedAt, &deletedAt); err != nil {
		return nil, err
	}
	if picture.Valid {
		u.Picture = &picture.String
	}
	u.CreatedAt = toUTC(u.CreatedAt)
	u.UpdatedAt = toUTC(u.UpdatedAt)
	u.DeletedAt = nullTime(deletedAt)
	return &u, nil
}

// CreateUser inserts u; the timestamps come back from the column defaults.
// ux_users_email_active rejects a second active row with 23505.
func (s *Store) CreateUser(ctx context.Context, u *model.User) error {
	id := uuid.NewString()
	err := s.q.QueryRowContext(ctx,
		`INSERT INTO users (id, name, email, picture)
		 VALUES ($1, $2, $3, $4)
		 RETURNING created_at, updated_at`,
		id, u.Name, u.Email, u.Picture,
	).Scan(&u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		if pgCode(err) == codeUniqueViolation {
			return apperror.Conflict("user", "email "+u.Email)
		}
		return fmt.Errorf("postgres: inserting user: %w", err)
	}
	u.ID = id
	u.CreatedAt = toUTC(u.CreatedAt)
	u.UpdatedAt = toUTC(u.UpdatedAt)
	u.DeletedAt = nil
	return nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, apperror.NotFound("user", id)
	}
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1 AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) GetUserIncludingDeleted(ctx context.Context, id string) (*model.User, error) {
	if !validID(id) {
		return nil, apperror.NotFound("user", id)
	}
	return getAnyUser(ctx, s.q, id)
}

func getAnyUser(ctx context.Context, q dbx.DBTX, id string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: getting user %s: %w", id, err)
	}
	return u, nil
}

func (s *Store) GetActiveUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = $1 AND deleted_at IS NULL`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", "email "+email)
		}
		return nil, fmt.Errorf("postgres: looking up user by email: %w", err)
	}
	return u, nil
}

func (s *Store) ListActiveUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	offset := max(opts.Offset, 0)

	rows, err := s.q.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC
		 LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("postgres: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterating user rows: %w", err)
	}
	return users, nil
}

// UpdateUserProfile is a single UPDATE ... RETURNING; no row means the user
// is unknown or soft-deleted.
func (s *Store) UpdateUserProfile(ctx context.Context, id string, upd model.ProfileUpdate, at time.Time) (*model.User, error) {
	if !validID(id) {
		return nil, apperror.NotFound("user", id)
	}
	u, err := scanUser(s.q.QueryRowContext(ctx,
		`UPDATE users
		 SET name = COALESCE($2, name),
		     picture = CASE WHEN $5 THEN NULL ELSE COALESCE($3, picture) END,
		     updated_at = $4
		 WHERE id = $1 AND deleted_at IS NULL
		 RETURNING `+userColumns,
		id, upd.Name, upd.Picture, at, upd.ClearPicture,
	))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("postgres: updating user %s: %w", id, err)
	}
	return u, nil
}

// SoftDeleteUser stamps deleted_at once and returns the row as stored.
func (s *Store) SoftDeleteUser(ctx context.Context, id string, at time.Time) (*model.User, error) {
	if !validID(id) {
		return nil, apperror.NotFound("user", id)
	}
	var out *model.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET deleted_at = $2, updated_at = $2
			 WHERE id = $1 AND deleted_at IS NULL`,
			id, at,
		); err != nil {
			return fmt.Errorf("postgres: soft-deleting user %s: %w", id, err)
		}
		var err error
		out, err = getAnyUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// HardDeleteUser removes the row; ON DELETE CASCADE removes its events.
func (s *Store) HardDeleteUser(ctx context.Context, id string) error {
	if !validID(id) {
		return apperror.NotFound("user", id)
	}
	res, err := s.q.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("postgres: deleting user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("postgres: deleting user %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
