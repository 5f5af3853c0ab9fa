package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/rs/xid"

	"github.com/sakif/attendance-ledger/internal/apperror"
	"github.com/sakif/attendance-ledger/internal/dbx"
	"github.com/sakif/attendance-ledger/internal/model"
	"github.com/sakif/attendance-ledger/internal/repository"
)

const userColumns = `id, name, email, picture, created_at, updated_at, deleted_at`

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(s rowScanner) (*model.User, error) {
	var (
		u                  model.User
		picture            sql.NullString
		createdAt, updated int64
		deletedAt          sql.NullInt64
	)
	if err := s.Scan(&u.ID, &u.Name, &u.Email, &picture, &createdAt, &updated, &deletedAt); err != nil {
		return nil, err
	}
	if picture.Valid {
		u.Picture = &picture.String
	}
	u.CreatedAt = fromMicros(createdAt)
	u.UpdatedAt = fromMicros(updated)
	u.DeletedAt = fromNullMicros(deletedAt)
	return &u, nil
}

// CreateUser inserts a new active user.
//
// There is NO "SELECT ... WHERE email = ?" before the INSERT. The partial
// unique index ux_users_email_active is the only uniqueness check, so the
// database decides the winner when two requests race for the same email.
func (db *DB) CreateUser(ctx context.Context, u *model.User) error {
	now := model.Truncate(time.Now().UTC())
	u.ID = xid.New().String()
	u.CreatedAt = now
	u.UpdatedAt = now
	u.DeletedAt = nil

	_, err := db.conn.ExecContext(ctx,
		`INSERT INTO users (id, name, email, picture, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		u.ID,
		u.Name,
		u.Email,
		u.Picture,
		toMicros(u.CreatedAt),
		toMicros(u.UpdatedAt),
	)
	if err != nil {
		if isUniqueViolation(err) {
			return apperror.Conflict("user", "email "+u.Email)
		}
		return fmt.Errorf("sqlite: inserting user: %w", err)
	}
	return nil
}

// GetUserByID returns the active user with id.
func (db *DB) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ? AND deleted_at IS NULL`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetUserIncludingDeleted returns the user row regardless of soft delete.
func (db *DB) GetUserIncludingDeleted(ctx context.Context, id string) (*model.User, error) {
	return getAnyUser(ctx, db.conn, id)
}

func getAnyUser(ctx context.Context, q dbx.DBTX, id string) (*model.User, error) {
	u, err := scanUser(q.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", id)
		}
		return nil, fmt.Errorf("sqlite: getting user %s: %w", id, err)
	}
	return u, nil
}

// GetActiveUserByEmail uses the same predicate as the partial unique index,
// so it can match at most one row.
func (db *DB) GetActiveUserByEmail(ctx context.Context, email string) (*model.User, error) {
	u, err := scanUser(db.conn.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ? AND deleted_at IS NULL`, email))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.NotFound("user", "email "+email)
		}
		return nil, fmt.Errorf("sqlite: looking up user by email: %w", err)
	}
	return u, nil
}

// ListActiveUsers returns active users, newest first.
func (db *DB) ListActiveUsers(ctx context.Context, opts repository.ListOptions) ([]model.User, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = repository.DefaultListLimit
	}
	offset := max(opts.Offset, 0)

	rows, err := db.conn.QueryContext(ctx,
		`SELECT `+userColumns+`
		 FROM users
		 WHERE deleted_at IS NULL
		 ORDER BY created_at DESC, id DESC
		 LIMIT ? OFFSET ?`,
		limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("sqlite: listing users: %w", err)
	}
	defer rows.Close()

	users := make([]model.User, 0, limit)
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("sqlite: scanning user row: %w", err)
		}
		users = append(users, *u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlite: iterating user rows: %w", err)
	}
	return users, nil
}

// UpdateUserProfile changes name and/or picture of an active user. The
// update and the re-read share a transaction so the returned row is the one
// this call wrote.
func (db *DB) UpdateUserProfile(ctx context.Context, id string, upd model.ProfileUpdate, at time.Time) (*model.User, error) {
	var out *model.User
	err := dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		// COALESCE keeps the stored value when the argument is NULL.
		res, err := tx.ExecContext(ctx,
			`UPDATE users
			 SET name = COALESCE(?, name),
			     picture = CASE WHEN ? THEN NULL ELSE COALESCE(?, picture) END,
			     updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			upd.Name, upd.ClearPicture, upd.Picture, toMicros(at), id,
		)
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", id, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("sqlite: updating user %s: %w", id, err)
		}
		if n == 0 {
			return apperror.NotFound("user", id)
		}
		out, err = getAnyUser(ctx, tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SoftDeleteUser stamps deleted_at once. A second call finds no active row,
// leaves the first timestamp alone and returns the row as stored.
func (db *DB) SoftDeleteUser(ctx context.Context, id string, at time.Time) (*model.User, error) {
	var out *model.User
	err := dbx.WithTx(ctx, db.conn, nil, func(ctx context.Context, tx dbx.DBTX) error {
		us := toMicros(at)
		if _, err := tx.ExecContext(ctx,
			`UPDATE users SET deleted_at = ?, updated_at = ?
			 WHERE id = ? AND deleted_at IS NULL`,
			us, us, id,
		); err != nil {
			return fmt.Errorf("sqlite: soft-deleting user %s: %w", id, err)
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
func (db *DB) HardDeleteUser(ctx context.Context, id string) error {
	res, err := db.conn.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("sqlite: deleting user %s: %w", id, err)
	}
	if n == 0 {
		return apperror.NotFound("user", id)
	}
	return nil
}
