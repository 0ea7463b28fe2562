// Package db opens PostgreSQL connection pools with pgx and adapts them to
// the kiln lifecycle.
//
// # Usage
//
//	cfg := db.DefaultConfig()
//	cfg.ConnectionString = os.Getenv("DATABASE_CONN_URL")
//
//	pool, err := db.Connect(ctx, cfg, db.WithLogger(log))
//	if err != nil {
//	    return err
//	}
//
//	app := kiln.New(
//	    kiln.WithHealthChecks(kiln.WithReadinessCheck("postgres", db.Healthcheck(pool))),
//	)
//	err = app.Run(
//	    kiln.StartupHook(db.MigrateHook(pool, os.DirFS("migrations"), "", log)),
//	    kiln.ShutdownHook(db.Shutdown(pool)),
//	)
//
// # Migrations
//
// Migrate applies pending goose migrations from any fs.FS, an embed.FS or
// an os.DirFS. MigrateHook wraps it as a startup hook so the schema is
// current before the first listener is bound.
//
// # Errors
//
//   - [ErrFailedToParseDBConfig]: invalid connection string
//   - [ErrFailedToOpenDBConnection]: no connection after all attempts
//   - [ErrHealthcheckFailed]: ping failed
//   - [ErrSetDialect]: goose rejected the postgres dialect
//   - [ErrApplyMigrations]: a migration failed or no source was given
package db
