package main

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-payhooks/core"
	payhookmigrations "github.com/goliatone/go-payhooks/migrations"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"
)

type databaseConfig struct {
	core.DatabaseConfig
	driverName string
}

func (c databaseConfig) GetDebug() bool                { return c.Debug }
func (c databaseConfig) GetDriver() string             { return c.driverName }
func (c databaseConfig) GetServer() string             { return c.DSN }
func (c databaseConfig) GetPingTimeout() time.Duration { return 5 * time.Second }
func (c databaseConfig) GetOtelIdentifier() string     { return "payhooks" }

// openDatabase connects and migrates the configured database. An empty or
// "none" driver returns nil, leaving the runtime on in-memory stores.
func openDatabase(ctx context.Context, cfg core.DatabaseConfig) (*persistence.Client, error) {
	var (
		driverName string
		dialect    schema.Dialect
		target     string
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", "none":
		return nil, nil
	case "sqlite", "sqlite3":
		driverName, dialect, target = "sqlite3", sqlitedialect.New(), payhookmigrations.DialectSQLite
	case "postgres", "postgresql":
		driverName, dialect, target = "postgres", pgdialect.New(), payhookmigrations.DialectPostgres
	default:
		return nil, fmt.Errorf("database: unsupported driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driverName, cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("database: open %s: %w", driverName, err)
	}
	if driverName == "sqlite3" {
		sqlDB.SetMaxOpenConns(1)
	}
	client, err := persistence.New(databaseConfig{DatabaseConfig: cfg, driverName: driverName}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("database: connect: %w", err)
	}

	_, err = payhookmigrations.Register(ctx, target, func(_ context.Context, src payhookmigrations.Source) error {
		client.RegisterSQLMigrations(src.FS)
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("database: register migrations: %w", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("database: migrate: %w", err)
	}
	return client, nil
}
