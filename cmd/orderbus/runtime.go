package main

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	persistence "github.com/goliatone/go-persistence-bun"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/schema"

	orderbus "github.com/goliatone/go-orderbus"
	"github.com/goliatone/go-orderbus/core"
	"github.com/goliatone/go-orderbus/migrations"
	"github.com/goliatone/go-orderbus/pubsub"
	"github.com/goliatone/go-orderbus/telemetry"
)

type runtime struct {
	cfg      core.Config
	logger   *telemetry.Logger
	shutdown telemetry.ShutdownFunc
}

// bootstrap loads config (defaults < file/env < flags) and installs the
// logger and tracer shared by every subcommand.
func bootstrap(ctx context.Context, opts *rootOptions, overrides core.Config) (*runtime, error) {
	overrides.Environment = strings.TrimSpace(opts.environment)
	overrides.LogLevel = strings.TrimSpace(opts.logLevel)

	cfg, err := orderbus.LoadConfig(ctx, opts.configFile, overrides)
	if err != nil {
		return nil, err
	}

	logger := telemetry.NewLogger(os.Stderr, cfg.LogLevel)
	shutdown, err := telemetry.SetupTracer(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &runtime{cfg: cfg, logger: logger, shutdown: shutdown}, nil
}

func (r *runtime) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := r.shutdown(ctx); err != nil {
		r.logger.Warn("telemetry shutdown failed", "error", err)
	}
}

type persistenceConfig struct {
	db      core.DatabaseConfig
	service string
}

func (c persistenceConfig) GetDebug() bool { return c.db.Debug }

func (c persistenceConfig) GetDriver() string { return c.db.Driver }

func (c persistenceConfig) GetServer() string { return c.db.DSN }

func (c persistenceConfig) GetPingTimeout() time.Duration { return c.db.PingTimeout }

func (c persistenceConfig) GetOtelIdentifier() string { return c.service }

// openDatabase connects with the configured driver and registers the
// embedded migrations for its dialect. Migrations run when migrate is set.
func openDatabase(ctx context.Context, cfg core.Config, migrate bool) (*persistence.Client, error) {
	var dialect schema.Dialect
	switch cfg.Database.Driver {
	case core.DriverPostgres:
		dialect = pgdialect.New()
	case core.DriverSQLite:
		dialect = sqlitedialect.New()
	default:
		return nil, fmt.Errorf("orderbus: unsupported database driver %q", cfg.Database.Driver)
	}

	sqlDB, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("orderbus: open database: %w", err)
	}
	if cfg.Database.Driver == core.DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	client, err := persistence.New(persistenceConfig{db: cfg.Database, service: cfg.ServiceName}, sqlDB, dialect)
	if err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("orderbus: persistence client: %w", err)
	}

	_, err = migrations.Register(ctx, cfg.Database.Driver, func(_ context.Context, fsys fs.FS) error {
		client.RegisterSQLMigrations(fsys)
		return nil
	})
	if err != nil {
		_ = client.Close()
		return nil, err
	}

	if migrate {
		if err := client.Migrate(ctx); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("orderbus: migrate: %w", err)
		}
	}
	return client, nil
}

func openPubSub(ctx context.Context, cfg core.Config) (*gpubsub.Client, error) {
	if err := cfg.PubSub.ValidatePublisher(); err != nil {
		return nil, err
	}
	return pubsub.NewClient(ctx, cfg.PubSub)
}
