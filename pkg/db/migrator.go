package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/dmitrymomot/kiln/pkg/logger"
)

// DefaultMigrationsTable records applied migrations when no table is configured.
const DefaultMigrationsTable = "schema_migrations"

// goose keeps its dialect, base FS and table name in package state.
var gooseMu sync.Mutex

// Migrate applies every pending goose migration found at the root of
// migrations, recording them in table.
//
// Example:
//
//	//go:embed migrations/*.sql
//	var migrations embed.FS
//
//	sub, _ := fs.Sub(migrations, "migrations")
//	err := db.Migrate(ctx, pool, sub, db.DefaultMigrationsTable, log)
func Migrate(ctx context.Context, pool *pgxpool.Pool, migrations fs.FS, table string, log *slog.Logger) error {
	if pool == nil {
		return errors.Join(ErrApplyMigrations, ErrNilPool)
	}
	if migrations == nil {
		return errors.Join(ErrApplyMigrations, ErrNoMigrations)
	}
	if table == "" {
		table = DefaultMigrationsTable
	}
	if log == nil {
		log = logger.NewNope()
	}

	// Shares the pool's connections; closing it would close the pool.
	sqlDB := stdlib.OpenDBFromPool(pool)

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(&gooseLogger{log})
	goose.SetTableName(table)

	if err := goose.SetDialect("postgres"); err != nil {
		return errors.Join(ErrSetDialect, err)
	}
	if err := goose.UpContext(ctx, sqlDB, "."); err != nil {
		return errors.Join(ErrApplyMigrations, err)
	}
	return nil
}

// MigrateHook returns a startup hook that runs Migrate before any listener
// is bound.
//
// Example:
//
//	app.Run(kiln.StartupHook(db.MigrateHook(pool, os.DirFS("migrations"), "", log)))
func MigrateHook(pool *pgxpool.Pool, migrations fs.FS, table string, log *slog.Logger) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return Migrate(ctx, pool, migrations, table, log)
	}
}

type gooseLogger struct {
	log *slog.Logger
}

func (g *gooseLogger) Printf(format string, args ...any) {
	g.log.Info(fmt.Sprintf(format, args...))
}

// Fatalf only logs; goose returns the error to UpContext's caller.
func (g *gooseLogger) Fatalf(format string, args ...any) {
	g.log.Error(fmt.Sprintf(format, args...))
}
