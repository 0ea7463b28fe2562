// Package logger builds the structured loggers used across kiln.
//
// Everything logs through log/slog. This package adds three things on top:
//
//   - [ContextExtractor] functions that pull request-scoped values (request
//     IDs, job names) out of a context.Context on every log call;
//   - a configurable factory ([New]) that selects level and output format;
//   - optional Sentry forwarding of warnings and errors.
//
// # Basic Usage
//
//	log := logger.New(logger.Config{Level: "debug", Format: "text"},
//	    middlewares.RequestIDExtractor(),
//	)
//	log.InfoContext(ctx, "request processed", slog.Int("status", 200))
//
// Components default to [NewNope] when no logger is configured, so logging
// is always safe to call.
//
// # Sentry
//
// When Config.SentryDSN is set, records at warn level and above are also sent
// to Sentry; errors become Sentry issues. Initialization failures fall back to
// stdout-only logging.
package logger
