// Package postgres implements the repository interfaces on PostgreSQL via
// pgx's database/sql driver.
//
// Unlike the sqlite store, the column types carry the semantics natively:
// ids are UUID, instants TIMESTAMPTZ(6), the organization-local date a DATE.
// created_at defaults to clock_timestamp() (the statement's wall clock, not
// the transaction start) so two events in one transaction still differ.
package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/sakif/attendance-ledger/internal/dbx"
	"github.com/sakif/attendance-ledger/internal/repository"
	"github.com/sakif/attendance-ledger/internal/repository/migrations"
)

var _ repository.Store = (*Store)(nil)

// SQLSTATE codes the store translates.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// Store implements repository.Store.
type Store struct {
	db   *sql.DB
	q    dbx.DBTX
	owns bool
}

// Open connects to dsn, verifies the connection and applies migrations.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: opening database: %w", err)
	}
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: pinging database: %w", err)
	}

	if _, err := migrations.Up(ctx, db, migrations.Postgres); err != nil {
		db.Close()
		return nil, fmt.Errorf("postgres: running migrations: %w", err)
	}

	s := New(db)
	s.owns = true
	return s, nil
}

// New wraps an existing, already migrated pool. Close is then a no-op; the
// caller owns db.
func New(db *sql.DB) *Store {
	return &Store{db: db, q: db}
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *Store) Close() error {
	if !s.owns {
		return nil
	}
	return s.db.Close()
}

// validID reports whether id can be a row key. A malformed id can never
// match, and sending it would make Postgres fail with 22P02 instead.
func validID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func toUTC(t time.Time) time.Time {
	return t.UTC()
}

func nullTime(n sql.NullTime) *time.Time {
	if !n.Valid {
		return nil
	}
	t := n.Time.UTC()
	return &t
}

func withOffset(t time.Time, offsetSeconds int) time.Time {
	if offsetSeconds == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", offsetSeconds))
}

type rowScanner interface {
	Scan(dest ...any) error
}
