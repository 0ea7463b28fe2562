package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/kiln/internal/config"
	"github.com/dmitrymomot/kiln/pkg/db"
	"github.com/dmitrymomot/kiln/pkg/schedule"
	"github.com/dmitrymomot/kiln/pkg/server"
)

func env(vars map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		v, ok := vars[key]
		return v, ok
	}
}

func TestParse_Defaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.Parse([]byte("{}"), nil)
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, 30*time.Second, cfg.ShutdownTimeout)
	assert.True(t, cfg.Metrics.Enabled)
	assert.Equal(t, "/metrics", cfg.Metrics.Path)
	assert.Equal(t, time.Minute, cfg.Tasks.Heartbeat)
	assert.Equal(t, filepath.Join("data", "kiln.db"), cfg.StorePath())
	assert.Equal(t, []server.Listener{server.Plain(":8080")}, cfg.Listeners())
}

func TestParse_FullFile(t *testing.T) {
	t.Parallel()

	data := []byte(`
addr: ""
data_dir: /var/lib/kiln
shutdown_timeout: 10s
stats_path: /admin/jobs
log:
  level: debug
  format: text
tls:
  addr: ":8443"
  cert_file: cert.pem
  key_file: key.pem
acme:
  addr: ":443"
  email: ops@example.com
  domains: [example.com, www.example.com]
  renew_before: 720h
redirect:
  addr: ":80"
  https_port: 443
database:
  url: postgres://kiln@localhost/kiln
  max_open_conns: 4
redis:
  url: redis://localhost:6379/0
  pool_size: 20
tasks:
  heartbeat: 30s
  prune: "*/5 * * * *"
  retention: 24h
`)

	cfg, err := config.Parse(data, nil)
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/kiln", cfg.DataDir)
	assert.Equal(t, 10*time.Second, cfg.ShutdownTimeout)
	assert.Equal(t, "/admin/jobs", cfg.StatsPath)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Equal(t, "postgres://kiln@localhost/kiln", cfg.Database.ConnectionString)
	assert.Equal(t, int32(4), cfg.Database.MaxOpenConns)
	assert.Equal(t, 3, cfg.Database.RetryAttempts, "unset database fields keep their defaults")
	assert.Equal(t, 20, cfg.Redis.PoolSize)
	assert.Equal(t, 30*time.Second, cfg.Tasks.Heartbeat)
	assert.Equal(t, 24*time.Hour, cfg.Tasks.Retention)

	ls := cfg.Listeners()
	require.Len(t, ls, 3)
	assert.Equal(t, server.TLS(":8443", "cert.pem", "key.pem"), ls[0])
	assert.Equal(t, server.KindACME, ls[1].Kind)
	require.NotNil(t, ls[1].ACME)
	assert.Equal(t, []string{"example.com", "www.example.com"}, ls[1].ACME.Domains)
	assert.Equal(t, filepath.Join("/var/lib/kiln", "certs"), ls[1].ACME.CacheDir)
	assert.Equal(t, 720*time.Hour, ls[1].ACME.RenewBefore)
	assert.Equal(t, server.Redirect(":80", 443), ls[2])
}

func TestParse_Migrations(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	cfg, err := config.Parse([]byte(`
database:
  url: postgres://kiln@localhost/kiln
  migrations: `+dir+`
`), nil)
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.Database.Migrations)
	assert.Equal(t, db.DefaultMigrationsTable, cfg.Database.MigrationsTable)
}

func TestParse_EnvOverrides(t *testing.T) {
	t.Parallel()

	data := []byte(`
addr: ":9000"
data_dir: data
redis:
  url: redis://file:6379
`)
	cfg, err := config.Parse(data, env(map[string]string{
		config.EnvAddr:        "127.0.0.1:7000",
		config.EnvDataDir:     "/srv/kiln",
		config.EnvSentryDSN:   "https://key@sentry.example.com/1",
		config.EnvDatabaseURL: "postgres://env@db/kiln",
		config.EnvRedisURL:    "",
	}))
	require.NoError(t, err)

	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
	assert.Equal(t, "/srv/kiln", cfg.DataDir)
	assert.Equal(t, "https://key@sentry.example.com/1", cfg.Log.SentryDSN)
	assert.Equal(t, "postgres://env@db/kiln", cfg.Database.ConnectionString)
	assert.Equal(t, "redis://file:6379", cfg.Redis.URL, "empty variables do not override")
}

func TestParse_Invalid(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		data    string
		env     map[string]string
		wantErr error
	}{
		{
			name:    "malformed yaml",
			data:    "addr: [",
			wantErr: config.ErrParse,
		},
		{
			name:    "bad address",
			data:    `addr: "localhost"`,
			wantErr: server.ErrInvalidAddress,
		},
		{
			name:    "bad address from env",
			data:    "{}",
			env:     map[string]string{config.EnvAddr: "8080"},
			wantErr: server.ErrInvalidAddress,
		},
		{
			name:    "no listeners",
			data:    `addr: ""`,
			wantErr: config.ErrInvalid,
		},
		{
			name:    "tls without key",
			data:    "tls:\n  addr: \":8443\"\n  cert_file: cert.pem\n",
			wantErr: server.ErrInvalidTLS,
		},
		{
			name:    "acme without domains",
			data:    "acme:\n  addr: \":443\"\n",
			wantErr: server.ErrInvalidACME,
		},
		{
			name:    "unparsable prune schedule",
			data:    "tasks:\n  prune: every night\n",
			wantErr: schedule.ErrInvalidPeriod,
		},
		{
			name:    "prune without retention",
			data:    "tasks:\n  retention: 0s\n",
			wantErr: config.ErrInvalid,
		},
		{
			name:    "negative heartbeat",
			data:    "tasks:\n  heartbeat: -1s\n",
			wantErr: config.ErrInvalid,
		},
		{
			name:    "relative metrics path",
			data:    "metrics:\n  path: metrics\n",
			wantErr: config.ErrInvalid,
		},
		{
			name:    "redis scheme",
			data:    "redis:\n  url: http://localhost:6379\n",
			wantErr: config.ErrInvalid,
		},
		{
			name:    "migrations without database",
			data:    "database:\n  migrations: /tmp\n",
			wantErr: config.ErrInvalid,
		},
		{
			name:    "missing migrations dir",
			data:    "database:\n  url: postgres://kiln@localhost/kiln\n  migrations: /nonexistent/kiln/migrations\n",
			wantErr: config.ErrInvalid,
		},
		{
			name:    "empty data dir",
			data:    `data_dir: " "`,
			wantErr: config.ErrInvalid,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.Parse([]byte(tt.data), env(tt.env))
			require.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestParse_ReportsAllProblems(t *testing.T) {
	t.Parallel()

	_, err := config.Parse([]byte("addr: nope\ntasks:\n  prune: bogus\n"), nil)
	require.ErrorIs(t, err, server.ErrInvalidAddress)
	require.ErrorIs(t, err, schedule.ErrInvalidPeriod)
}

func TestLoad(t *testing.T) {
	t.Parallel()

	_, err := config.Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.ErrorIs(t, err, config.ErrRead)

	path := filepath.Join(t.TempDir(), "kiln.yaml")
	require.NoError(t, os.WriteFile(path, []byte("shutdown_timeout: 5s\n"), 0o600))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
}
