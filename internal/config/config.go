// Package config loads the kiln binary configuration from YAML.
//
// Example configuration:
//
//	addr: ":8080"
//	data_dir: data
//	shutdown_timeout: 30s
//
//	log:
//	  level: info
//	  format: json
//
//	acme:
//	  addr: ":443"
//	  email: ops@example.com
//	  domains: [example.com]
//
//	redirect:
//	  addr: ":80"
//	  https_port: 443
//
//	database:
//	  url: postgres://kiln@localhost/kiln
//	  migrations: migrations
//
//	tasks:
//	  heartbeat: 1m
//	  prune: "0 3 * * *"
//	  retention: 168h
//
// KILN_ADDR, KILN_DATA_DIR, SENTRY_DSN, DATABASE_CONN_URL and REDIS_URL
// override the matching file values.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dmitrymomot/kiln/pkg/db"
	"github.com/dmitrymomot/kiln/pkg/logger"
	"github.com/dmitrymomot/kiln/pkg/schedule"
	"github.com/dmitrymomot/kiln/pkg/server"
)

// Environment variables that override file values.
const (
	EnvAddr        = "KILN_ADDR"
	EnvDataDir     = "KILN_DATA_DIR"
	EnvSentryDSN   = "SENTRY_DSN"
	EnvDatabaseURL = "DATABASE_CONN_URL"
	EnvRedisURL    = "REDIS_URL"
)

var (
	// ErrRead is returned when the config file cannot be read.
	ErrRead = errors.New("config: failed to read file")

	// ErrParse is returned when the config file is not valid YAML.
	ErrParse = errors.New("config: failed to parse yaml")

	// ErrInvalid is returned when a value fails validation.
	ErrInvalid = errors.New("config: invalid value")
)

// LookupFunc resolves an environment variable. os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// Config is the root configuration of the kiln binary.
type Config struct {
	Log      logger.Config   `yaml:"log"`
	TLS      *TLSConfig      `yaml:"tls"`
	ACME     *ACMEConfig     `yaml:"acme"`
	Redirect *RedirectConfig `yaml:"redirect"`
	Redis    RedisConfig     `yaml:"redis"`
	Metrics  MetricsConfig   `yaml:"metrics"`
	Tasks    TasksConfig     `yaml:"tasks"`
	Database db.Config       `yaml:"database"`

	// Addr is the plain HTTP listener. Empty disables it when another
	// listener is configured.
	Addr string `yaml:"addr"`

	// DataDir holds the embedded store and the ACME certificate cache.
	DataDir string `yaml:"data_dir"`

	// StatsPath serves task run statistics. Empty disables the route.
	StatsPath string `yaml:"stats_path"`

	// ShutdownTimeout bounds the shutdown hooks.
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TLSConfig is an HTTPS listener with certificate files from disk.
type TLSConfig struct {
	Addr     string `yaml:"addr"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// ACMEConfig is an HTTPS listener with certificates issued automatically.
type ACMEConfig struct {
	Addr         string        `yaml:"addr"`
	Email        string        `yaml:"email"`
	CacheDir     string        `yaml:"cache_dir"`
	DirectoryURL string        `yaml:"directory_url"`
	Domains      []string      `yaml:"domains"`
	RenewBefore  time.Duration `yaml:"renew_before"`
}

// RedirectConfig is a plain listener that redirects to HTTPS.
type RedirectConfig struct {
	Addr      string `yaml:"addr"`
	HTTPSPort int    `yaml:"https_port"`
}

// RedisConfig enables the Redis client when URL is set.
type RedisConfig struct {
	URL         string        `yaml:"url"`
	PoolSize    int           `yaml:"pool_size"`
	SaveTimeout time.Duration `yaml:"save_timeout"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Path    string `yaml:"path"`
	Enabled bool   `yaml:"enabled"`
}

// TasksConfig controls the built-in background tasks.
type TasksConfig struct {
	// Heartbeat logs scheduler state every interval. Zero disables it.
	Heartbeat time.Duration `yaml:"heartbeat"`

	// Prune is the cron expression for removing old task records.
	// Empty disables pruning.
	Prune string `yaml:"prune"`

	// Retention is how long finished task records are kept.
	Retention time.Duration `yaml:"retention"`
}

// Default returns the configuration used for values the file omits.
func Default() Config {
	return Config{
		Addr:            ":8080",
		DataDir:         "data",
		StatsPath:       "/jobs/stats",
		ShutdownTimeout: 30 * time.Second,
		Log: logger.Config{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
		Tasks: TasksConfig{
			Heartbeat: time.Minute,
			Prune:     "0 3 * * *",
			Retention: 7 * 24 * time.Hour,
		},
		Database: db.DefaultConfig(),
	}
}

// Load reads the file at path, applies environment overrides from the
// process environment and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Join(ErrRead, err)
	}
	return Parse(data, os.LookupEnv)
}

// Parse decodes data over Default, applies overrides resolved by env and
// validates the result. A nil env skips the overrides.
func Parse(data []byte, env LookupFunc) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Join(ErrParse, err)
	}
	if env != nil {
		cfg.applyEnv(env)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv(env LookupFunc) {
	set := func(key string, dst *string) {
		if v, ok := env(key); ok && v != "" {
			*dst = v
		}
	}
	set(EnvAddr, &c.Addr)
	set(EnvDataDir, &c.DataDir)
	set(EnvSentryDSN, &c.Log.SentryDSN)
	set(EnvDatabaseURL, &c.Database.ConnectionString)
	set(EnvRedisURL, &c.Redis.URL)
}

// Validate checks every listener, the task schedule and the connection
// URLs. All problems are reported together.
func (c *Config) Validate() error {
	var errs []error
	for _, l := range c.Listeners() {
		if err := l.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if len(c.Listeners()) == 0 {
		errs = append(errs, fmt.Errorf("%w: no listener configured", ErrInvalid))
	}

	if strings.TrimSpace(c.DataDir) == "" {
		errs = append(errs, fmt.Errorf("%w: data_dir is required", ErrInvalid))
	}
	if c.ShutdownTimeout < 0 {
		errs = append(errs, fmt.Errorf("%w: shutdown_timeout cannot be negative", ErrInvalid))
	}
	if c.Tasks.Heartbeat < 0 {
		errs = append(errs, fmt.Errorf("%w: tasks.heartbeat cannot be negative", ErrInvalid))
	}
	if c.Tasks.Prune != "" {
		if _, err := schedule.Cron(c.Tasks.Prune); err != nil {
			errs = append(errs, fmt.Errorf("tasks.prune: %w", err))
		}
		if c.Tasks.Retention <= 0 {
			errs = append(errs, fmt.Errorf("%w: tasks.retention must be positive when pruning", ErrInvalid))
		}
	}
	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		errs = append(errs, fmt.Errorf("%w: metrics.path must start with /", ErrInvalid))
	}
	if c.StatsPath != "" && !strings.HasPrefix(c.StatsPath, "/") {
		errs = append(errs, fmt.Errorf("%w: stats_path must start with /", ErrInvalid))
	}
	if dir := c.Database.Migrations; dir != "" {
		if c.Database.ConnectionString == "" {
			errs = append(errs, fmt.Errorf("%w: database.migrations requires database.url", ErrInvalid))
		} else if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
			errs = append(errs, fmt.Errorf("%w: database.migrations %q is not a directory", ErrInvalid, dir))
		}
	}
	if u := c.Redis.URL; u != "" && !strings.HasPrefix(u, "redis://") && !strings.HasPrefix(u, "rediss://") {
		errs = append(errs, fmt.Errorf("%w: redis.url must use redis:// or rediss://", ErrInvalid))
	}

	return errors.Join(errs...)
}

// Listeners returns the configured listeners in bind order.
func (c *Config) Listeners() []server.Listener {
	var ls []server.Listener
	if c.Addr != "" {
		ls = append(ls, server.Plain(c.Addr))
	}
	if c.TLS != nil {
		ls = append(ls, server.TLS(c.TLS.Addr, c.TLS.CertFile, c.TLS.KeyFile))
	}
	if c.ACME != nil {
		cacheDir := c.ACME.CacheDir
		if cacheDir == "" {
			cacheDir = filepath.Join(c.DataDir, "certs")
		}
		ls = append(ls, server.ACME(c.ACME.Addr, server.ACMEConfig{
			Email:        c.ACME.Email,
			CacheDir:     cacheDir,
			DirectoryURL: c.ACME.DirectoryURL,
			Domains:      c.ACME.Domains,
			RenewBefore:  c.ACME.RenewBefore,
		}))
	}
	if c.Redirect != nil {
		ls = append(ls, server.Redirect(c.Redirect.Addr, c.Redirect.HTTPSPort))
	}
	return ls
}

// StorePath is the embedded store file inside DataDir.
func (c *Config) StorePath() string {
	return filepath.Join(c.DataDir, "kiln.db")
}
