// Package sqlite implements the repository interfaces on an embedded SQLite
// database (modernc.org/sqlite, pure Go, no CGo).
//
// STORAGE CONVENTIONS:
//   - Every timestamp is an INTEGER of unix microseconds in UTC. Ordering and
//     range scans are integer comparisons, and no driver-specific DATETIME
//     parsing is involved.
//   - event_time also keeps the UTC offset it was submitted with
//     (event_offset, in seconds) so a re-read renders the same wall clock.
//   - org_local_date is an ISO "YYYY-MM-DD" string; those sort correctly as
//     text.
//   - attendance_events.created_at defaults to now_us(), a Go function
//     registered with the driver. SQLite's own 'now' stops at milliseconds.
//
// Schema changes live in internal/repository/migrations and are applied by
// goose when the store opens.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/sakif/attendance-ledger/internal/repository"
	"github.com/sakif/attendance-ledger/internal/repository/migrations"
)

// compile-time check that *DB is a complete store
var _ repository.Store = (*DB)(nil)

// lastMicros is the last value handed out by now_us.
var lastMicros atomic.Int64

// nowMicros returns the wall clock in unix microseconds, strictly increasing
// within the process so two writes never share a created_at.
func nowMicros() int64 {
	for {
		prev := lastMicros.Load()
		now := time.Now().UnixMicro()
		if now <= prev {
			now = prev + 1
		}
		if lastMicros.CompareAndSwap(prev, now) {
			return now
		}
	}
}

func init() {
	// Registered functions reach every connection opened afterwards, so this
	// must run before the first sql.Open.
	msqlite.MustRegisterScalarFunction("now_us", 0, func(*msqlite.FunctionContext, []driver.Value) (driver.Value, error) {
		return nowMicros(), nil
	})
}

// DB wraps a sql.DB connection pool and implements repository.Store.
type DB struct {
	conn *sql.DB
}

// PRAGMAS IN THE DSN:
// A PRAGMA executed with conn.Exec only reaches whichever pooled connection
// happened to run it. Passing them as _pragma parameters makes the driver
// apply them to EVERY connection it opens, which matters for foreign_keys:
// without it the cascade on hard delete silently does nothing.
const pragmas = "_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"

func dsn(path string) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return path + sep + pragmas
}

// New opens (or creates) the database at path and applies migrations.
//
// path examples:
//   - "data/ledger.db" → file-based database (persistent)
//   - ":memory:"       → in-memory database, lost on Close
func New(ctx context.Context, path string) (*DB, error) {
	conn, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}

	// Every connection to ":memory:" is a separate, empty database.
	// Pin the pool to one connection so all queries see the same schema.
	if strings.HasPrefix(path, ":memory:") {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := migrations.Up(ctx, conn, migrations.SQLite); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return &DB{conn: conn}, nil
}

// Ping verifies the database is reachable. Used by the health check.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// === time encoding ===

func toMicros(t time.Time) int64 {
	return t.UnixMicro()
}

func fromMicros(us int64) time.Time {
	return time.UnixMicro(us).UTC()
}

func nullMicros(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMicros(*t), Valid: true}
}

func fromNullMicros(n sql.NullInt64) *time.Time {
	if !n.Valid {
		return nil
	}
	t := fromMicros(n.Int64)
	return &t
}

// withOffset renders an instant in the fixed offset it was submitted with.
func withOffset(us int64, offsetSeconds int) time.Time {
	t := time.UnixMicro(us)
	if offsetSeconds == 0 {
		return t.UTC()
	}
	return t.In(time.FixedZone("", offsetSeconds))
}

// === error translation ===

// constraintKind reports which constraint rejected a statement, or 0.
//
// modernc reports extended result codes (SQLITE_CONSTRAINT_UNIQUE = 2067,
// SQLITE_CONSTRAINT_FOREIGNKEY = 787). The message check covers a driver
// built without extended codes, where only the primary code 19 is set.
func constraintKind(err error) int {
	var se *msqlite.Error
	if !errors.As(err, &se) {
		return 0
	}
	switch code := se.Code(); code {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY,
		sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT_TRIGGER:
		return code
	default:
		if code&0xff != sqlite3.SQLITE_CONSTRAINT {
			return 0
		}
	}
	msg := se.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return sqlite3.SQLITE_CONSTRAINT_UNIQUE
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
	}
	return sqlite3.SQLITE_CONSTRAINT
}

func isUniqueViolation(err error) bool {
	k := constraintKind(err)
	return k == sqlite3.SQLITE_CONSTRAINT_UNIQUE || k == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
}

func isForeignKeyViolation(err error) bool {
	return constraintKind(err) == sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY
}
