package db

import "time"

// Config holds PostgreSQL pool parameters.
type Config struct {
	// ConnectionString is a postgres:// URL or a key=value DSN.
	ConnectionString string `yaml:"url"`

	// Migrations is a directory of goose migrations applied at startup.
	// Empty skips migrations.
	Migrations string `yaml:"migrations"`

	// MigrationsTable records applied migrations.
	MigrationsTable string `yaml:"migrations_table"`

	// HealthCheckPeriod is how often idle connections are checked.
	HealthCheckPeriod time.Duration `yaml:"healthcheck_period"`

	// MaxConnIdleTime closes connections idle longer than this.
	MaxConnIdleTime time.Duration `yaml:"max_conn_idle_time"`

	// MaxConnLifetime recycles connections older than this.
	MaxConnLifetime time.Duration `yaml:"max_conn_lifetime"`

	// RetryInterval is the base startup backoff; attempt i waits i*RetryInterval.
	RetryInterval time.Duration `yaml:"retry_interval"`

	// RetryAttempts is the number of startup connection attempts.
	RetryAttempts int `yaml:"retry_attempts"`

	MaxOpenConns int32 `yaml:"max_open_conns"`
	MinConns     int32 `yaml:"min_conns"`
}

// DefaultConfig returns the pool defaults. ConnectionString is left empty.
func DefaultConfig() Config {
	return Config{
		HealthCheckPeriod: time.Minute,
		MaxConnIdleTime:   10 * time.Minute,
		MaxConnLifetime:   30 * time.Minute,
		MigrationsTable:   DefaultMigrationsTable,
		RetryAttempts:     3,
		RetryInterval:     5 * time.Second,
		MaxOpenConns:      10,
		MinConns:          5,
	}
}
