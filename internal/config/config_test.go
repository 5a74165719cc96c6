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
	t.Setenv("STORAGE_DRIVER", "memory")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, StorageMemory, cfg.StorageDriver)
	assert.Equal(t, int64(10<<20), cfg.MaxUploadBytes)
	assert.Equal(t, "20-M", cfg.RateLimit.Rate)
	assert.Equal(t, 60*time.Second, cfg.AI.Timeout)
	assert.False(t, cfg.AI.Enabled())
	assert.Equal(t, []byte("default_super_secret_key"), cfg.Secret())
}

func TestLoadDotenv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(path, []byte("PORT=9090\nOPENAI_API_KEY=sk-test\n"), 0o600))
	t.Setenv("PORT", "")
	os.Unsetenv("PORT")
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")

	cfg, err := Load(path, filepath.Join(dir, "missing.env"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.True(t, cfg.AI.Enabled())
}

func TestValidate(t *testing.T) {
	base := func() Config {
		return Config{
			StorageDriver:  StoragePostgres,
			LogFormat:      "json",
			MaxUploadBytes: 1,
			AI:             AIOptions{Timeout: time.Second},
			RateLimit:      RateLimitOptions{Enabled: true, Rate: "5-S"},
			Metrics:        MetricsOptions{Enabled: true, Path: "/metrics"},
		}
	}

	c := base()
	assert.NoError(t, c.Validate())

	c = base()
	c.StorageDriver = "sqlite"
	assert.Error(t, c.Validate())

	c = base()
	c.GinMode = "release"
	assert.ErrorContains(t, c.Validate(), "JWT_SECRET")
	c.JWTSecret = "s3cret"
	assert.NoError(t, c.Validate())

	c = base()
	c.Metrics.Path = "metrics"
	assert.Error(t, c.Validate())

	c = base()
	c.LogFormat = "xml"
	assert.Error(t, c.Validate())
}

func TestDSN(t *testing.T) {
	o := DatabaseOptions{Host: "db", Port: "5432", User: "app", Password: "p@ss", Name: "procurement", SSLMode: "disable"}
	assert.Equal(t, "postgres://app:p%40ss@db:5432/procurement?sslmode=disable", o.DSN())
}
