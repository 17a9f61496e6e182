package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_DefaultsAndEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("CSM_SECURITY__JWT_SECRET", "test-secret")
	t.Setenv("CSM_BEHAVIOR__TOP_K", "3")
	t.Setenv("CSM_BEHAVIOR__COMMON_THRESHOLD", "0.2")
	t.Setenv("CSM_BEHAVIOR__CALCULATION_TIMEOUT", "2s")
	t.Setenv("CSM_LOG_LEVEL", "debug")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "test-secret", cfg.Security.JWTSecret)
	assert.Equal(t, 3, cfg.Behavior.TopK)
	assert.Equal(t, 0.2, cfg.Behavior.CommonThreshold)
	assert.Equal(t, 2*time.Second, cfg.Behavior.CalculationTimeout)
	assert.Equal(t, 3, cfg.Behavior.MinSamples)
	assert.Equal(t, 90*24*time.Hour, cfg.Behavior.Lookback())

	policy := cfg.Behavior.Policy()
	assert.Equal(t, 3, policy.TopK)
	assert.Equal(t, 0.2, policy.CommonThreshold)
}

func TestLoad_File(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
environment: production
security:
  auth_enabled: false
notification:
  transport: smtp
  smtp:
    host: mail.clinic.example.com
behavior:
  min_samples: 10
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "smtp", cfg.Notification.Transport)
	assert.Equal(t, 587, cfg.Notification.SMTP.Port)
	assert.Equal(t, 10, cfg.Behavior.MinSamples)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"missing jwt secret", func(c *Config) { c.Security.JWTSecret = "" }},
		{"bad threshold", func(c *Config) { c.Behavior.CommonThreshold = 0 }},
		{"bad transport", func(c *Config) { c.Notification.Transport = "pigeon" }},
		{"smtp without host", func(c *Config) { c.Notification.Transport = "smtp" }},
		{"archive without bucket", func(c *Config) { c.Archive.Enabled = true }},
		{"unknown timezone", func(c *Config) { c.Behavior.DefaultTimezone = "Mars/Olympus" }},
		{"no workers", func(c *Config) { c.Behavior.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Defaults()
			cfg.Security.JWTSecret = "secret"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := Defaults()
	cfg.Security.JWTSecret = "secret"
	assert.NoError(t, cfg.Validate())
}
