// Package migrations embeds the schema for both store dialects and applies
// it with goose.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"io/fs"

	"github.com/pressly/goose/v3"
)

//go:embed sqlite/*.sql
var sqliteFS embed.FS

//go:embed postgres/*.sql
var postgresFS embed.FS

// Dialect selects which embedded migration set to apply.
type Dialect string

const (
	SQLite   Dialect = "sqlite"
	Postgres Dialect = "postgres"
)

// Files returns the migration directory for d, rooted at the .sql files.
func Files(d Dialect) (fs.FS, error) {
	switch d {
	case SQLite:
		return fs.Sub(sqliteFS, "sqlite")
	case Postgres:
		return fs.Sub(postgresFS, "postgres")
	}
	return nil, fmt.Errorf("migrations: unknown dialect %q", d)
}

// newProvider is a seam for tests.
var newProvider = func(d Dialect, db *sql.DB, fsys fs.FS) (migrator, error) {
	gd := goose.DialectSQLite3
	if d == Postgres {
		gd = goose.DialectPostgres
	}
	return goose.NewProvider(gd, db, fsys)
}

type migrator interface {
	Up(ctx context.Context) ([]*goose.MigrationResult, error)
}

// Up applies every pending migration for d. It uses a goose Provider rather
// than the package-level goose functions, so two stores can migrate
// concurrently (tests do).
func Up(ctx context.Context, db *sql.DB, d Dialect) (int, error) {
	fsys, err := Files(d)
	if err != nil {
		return 0, err
	}

	p, err := newProvider(d, db, fsys)
	if err != nil {
		return 0, fmt.Errorf("migrations: creating goose provider: %w", err)
	}

	results, err := p.Up(ctx)
	if err != nil {
		return 0, fmt.Errorf("migrations: applying %s migrations: %w", d, err)
	}
	return len(results), nil
}
