// Package migrations exposes the embedded payhooks schema per SQL dialect.
package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"strings"

	payhooks "github.com/goliatone/go-payhooks"
)

const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
)

const schemaRoot = "data/sql/migrations"

// Source is the schema for one dialect. Postgres files live at the schema
// root and sqlite overrides under a sqlite/ subdirectory.
type Source struct {
	Dialect string
	Path    string
	FS      fs.FS
}

// RegisterFunc hands a dialect's schema to a migration runner, usually
// persistence.Client.RegisterSQLMigrations.
type RegisterFunc func(ctx context.Context, src Source) error

// Sources resolves both dialects from root, or from the embedded schema when
// root is nil. Every source must contain at least one *.up.sql file.
func Sources(root fs.FS) ([]Source, error) {
	if root == nil {
		root = payhooks.GetMigrationsFS()
	}
	base, basePath, err := schemaBase(root)
	if err != nil {
		return nil, err
	}
	sqliteFS, err := fs.Sub(base, "sqlite")
	if err != nil {
		return nil, fmt.Errorf("migrations: resolve sqlite schema: %w", err)
	}

	sources := []Source{
		{Dialect: DialectPostgres, Path: basePath, FS: base},
		{Dialect: DialectSQLite, Path: path.Join(basePath, "sqlite"), FS: sqliteFS},
	}
	for _, src := range sources {
		ups, err := fs.Glob(src.FS, "*.up.sql")
		if err != nil {
			return nil, fmt.Errorf("migrations: list %s schema: %w", src.Dialect, err)
		}
		if len(ups) == 0 {
			return nil, fmt.Errorf("migrations: %s schema at %q has no *.up.sql files", src.Dialect, src.Path)
		}
	}
	return sources, nil
}

// SourceFor returns the embedded schema for dialect.
func SourceFor(dialect string) (Source, error) {
	dialect = normalizeDialect(dialect)
	sources, err := Sources(nil)
	if err != nil {
		return Source{}, err
	}
	for _, src := range sources {
		if src.Dialect == dialect {
			return src, nil
		}
	}
	return Source{}, fmt.Errorf("migrations: unsupported dialect %q", dialect)
}

// Register passes the schema for dialect to registerFn.
func Register(ctx context.Context, dialect string, registerFn RegisterFunc) (Source, error) {
	if registerFn == nil {
		return Source{}, fmt.Errorf("migrations: register function is required")
	}
	src, err := SourceFor(dialect)
	if err != nil {
		return Source{}, err
	}
	if err := registerFn(ctx, src); err != nil {
		return src, fmt.Errorf("migrations: register %s schema: %w", src.Dialect, err)
	}
	return src, nil
}

func schemaBase(root fs.FS) (fs.FS, string, error) {
	if _, err := fs.Stat(root, schemaRoot); err == nil {
		sub, err := fs.Sub(root, schemaRoot)
		if err != nil {
			return nil, "", fmt.Errorf("migrations: open %s: %w", schemaRoot, err)
		}
		return sub, schemaRoot, nil
	}
	// Accept a root that already points at the schema directory.
	if ups, err := fs.Glob(root, "*.up.sql"); err == nil && len(ups) > 0 {
		return root, ".", nil
	}
	return nil, "", fmt.Errorf("migrations: %s not found", schemaRoot)
}

func normalizeDialect(dialect string) string {
	switch d := strings.ToLower(strings.TrimSpace(dialect)); d {
	case "postgresql", "pg":
		return DialectPostgres
	case "sqlite3":
		return DialectSQLite
	default:
		return d
	}
}
