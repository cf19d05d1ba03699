package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "goharvest", cfg.App.Name)
	assert.Equal(t, 8070, cfg.Server.Port)
	assert.Equal(t, ":8070", cfg.Server.Address)
	assert.Equal(t, 60*time.Second, cfg.Pool.BaseCooldown)
	assert.Equal(t, 3600*time.Second, cfg.Pool.MaxCooldown)
	assert.Equal(t, 50, cfg.Session.MinHealthThreshold)
	assert.Equal(t, 24*time.Hour, cfg.Session.RefreshWindow)
	assert.Equal(t, 600*time.Second, cfg.Scheduler.StalenessThreshold)
	assert.Equal(t, 3, cfg.Executor.MaxRetries)
	assert.Equal(t, 300*time.Second, cfg.Executor.MaxExecutionTime)
	assert.Equal(t, "memory", cfg.Store.Backend)
	assert.False(t, cfg.Elasticsearch.Enabled)

	assert.Equal(t, 3, cfg.Scheduler.Importance["company"])
	assert.Equal(t, 2, cfg.Scheduler.Importance["profile"])
	assert.Equal(t, 1, cfg.Scheduler.Importance["job"])
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	content := `
server:
  port: 9090
pool:
  resource_file: /etc/goharvest/endpoints.txt
  base_cooldown: 30s
  max_cooldown: 10m
executor:
  workers: 8
store:
  backend: redis
  redis:
    addr: redis:6379
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, ":9090", cfg.Server.Address)
	assert.Equal(t, "/etc/goharvest/endpoints.txt", cfg.Pool.ResourceFile)
	assert.Equal(t, 30*time.Second, cfg.Pool.BaseCooldown)
	assert.Equal(t, 10*time.Minute, cfg.Pool.MaxCooldown)
	assert.Equal(t, 8, cfg.Executor.Workers)
	assert.Equal(t, "redis", cfg.Store.Backend)
	assert.Equal(t, "redis:6379", cfg.Store.Redis.Addr)

	// Untouched sections keep defaults.
	assert.Equal(t, 3, cfg.Executor.MaxRetries)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "bad port",
			mutate:  func(c *Config) { c.Server.Port = 0 },
			wantErr: "server port",
		},
		{
			name:    "cooldown inversion",
			mutate:  func(c *Config) { c.Pool.MaxCooldown = c.Pool.BaseCooldown / 2 },
			wantErr: "max cooldown",
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "postgres" },
			wantErr: "store backend",
		},
		{
			name: "es enabled without addresses",
			mutate: func(c *Config) {
				c.Elasticsearch.Enabled = true
				c.Elasticsearch.Addresses = nil
			},
			wantErr: "elasticsearch",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load("")
			require.NoError(t, err)
			tt.mutate(cfg)
			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
