package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	orderbus "github.com/goliatone/go-orderbus"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"

	rootPath   = "data/sql/migrations"
	sqlitePath = "sqlite"
)

// RegisterFunc receives the migration tree for the selected dialect, rooted
// at the directory holding its *.up.sql files.
type RegisterFunc func(ctx context.Context, fsys fs.FS) error

// DialectForDriver maps a database/sql driver name to a migration dialect.
func DialectForDriver(driver string) (string, error) {
	switch strings.TrimSpace(strings.ToLower(driver)) {
	case "sqlite", "sqlite3":
		return DialectSQLite, nil
	case "postgres", "pgx":
		return DialectPostgres, nil
	default:
		return "", fmt.Errorf("migrations: no migrations for driver %q", driver)
	}
}

// Filesystem returns the migrations for dialect from root, or from the
// embedded tree when root is nil. Postgres files sit at the top of
// data/sql/migrations and SQLite variants under its sqlite directory.
func Filesystem(root fs.FS, dialect string) (fs.FS, error) {
	if root == nil {
		root = orderbus.GetMigrationsFS()
	}
	dir := rootPath
	switch dialect {
	case DialectPostgres:
	case DialectSQLite:
		dir = rootPath + "/" + sqlitePath
	default:
		return nil, fmt.Errorf("migrations: unknown dialect %q", dialect)
	}

	sub, err := fs.Sub(root, dir)
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve %s: %w", dir, err)
	}
	matches, err := fs.Glob(sub, "*.up.sql")
	if err != nil {
		return nil, fmt.Errorf("migrations: glob %s: %w", dir, err)
	}
	if len(matches) == 0 {
		return nil, fmt.Errorf("migrations: %s has no *.up.sql files", dir)
	}
	return sub, nil
}

// Register hands the embedded migrations for driver to registerFn and
// returns the dialect it selected.
func Register(ctx context.Context, driver string, registerFn RegisterFunc) (string, error) {
	if registerFn == nil {
		return "", fmt.Errorf("migrations: register function is required")
	}
	dialect, err := DialectForDriver(driver)
	if err != nil {
		return "", err
	}
	fsys, err := Filesystem(nil, dialect)
	if err != nil {
		return "", err
	}
	if err := registerFn(ctx, fsys); err != nil {
		return "", fmt.Errorf("migrations: register %s: %w", dialect, err)
	}
	return dialect, nil
}
