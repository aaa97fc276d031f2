package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	cfg.Database.User = "pcraft"
	return cfg
}

func TestApplyDefaults(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)

	assert.Equal(t, DefaultServerPort, cfg.Server.Port)
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultRedisAddr, cfg.Redis.Addr)
	assert.Equal(t, []string{DefaultKafkaBroker}, cfg.Kafka.Brokers)
	assert.Equal(t, DefaultLogLevel, cfg.Log.Level)
	assert.Equal(t, DefaultSolverMaxIterations, cfg.Engine.SolverMaxIterations)
	assert.Equal(t, DefaultCRAcceptThreshold, cfg.Engine.CRAcceptThreshold)
	assert.Equal(t, DefaultCRCeiling, cfg.Engine.CRCeiling)
	assert.Equal(t, "fixed", cfg.Engine.MissingValuePolicy)
	assert.Equal(t, DefaultBreakerThreshold, cfg.Enhancement.BreakerThreshold)
	assert.Equal(t, DefaultTierTimeout, cfg.Enhancement.TierTimeout)
	assert.Equal(t, DefaultRequiredApprovals, cfg.Engine.RequiredApprovals)
	assert.Equal(t, DefaultRunRetention, cfg.Engine.RunRetention)
	assert.Equal(t, DefaultItemStoreURL, cfg.ItemStore.BaseURL)
	assert.Equal(t, DefaultItemStoreTimeout, cfg.ItemStore.Timeout)
}

func TestApplyDefaults_ExplicitValuesWin(t *testing.T) {
	cfg := &Config{}
	cfg.Server.Port = 9999
	cfg.Engine.CRCeiling = 0.2
	ApplyDefaults(cfg)

	assert.Equal(t, 9999, cfg.Server.Port)
	assert.Equal(t, 0.2, cfg.Engine.CRCeiling)
}

func TestApplyDefaults_NilSafe(t *testing.T) {
	assert.NotPanics(t, func() { ApplyDefaults(nil) })
}

func TestValidate_Valid(t *testing.T) {
	require.NoError(t, validConfig().Validate())
}

func TestValidate_Failures(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"bad server port", func(c *Config) { c.Server.Port = 0 }},
		{"bad server mode", func(c *Config) { c.Server.Mode = "prod" }},
		{"missing db host", func(c *Config) { c.Database.Host = "" }},
		{"missing db user", func(c *Config) { c.Database.User = "" }},
		{"missing redis addr", func(c *Config) { c.Redis.Addr = "" }},
		{"no kafka brokers", func(c *Config) { c.Kafka.Brokers = nil }},
		{"bad log level", func(c *Config) { c.Log.Level = "verbose" }},
		{"zero solver iterations", func(c *Config) { c.Engine.SolverMaxIterations = -1 }},
		{"threshold above ceiling", func(c *Config) {
			c.Engine.CRAcceptThreshold = 0.2
			c.Engine.CRCeiling = 0.15
		}},
		{"bad missing policy", func(c *Config) { c.Engine.MissingValuePolicy = "zero" }},
		{"missing default out of range", func(c *Config) { c.Engine.MissingDefault = 1.5 }},
		{"zero required approvals", func(c *Config) { c.Engine.RequiredApprovals = -1 }},
		{"negative run retention", func(c *Config) { c.Engine.RunRetention = -1 }},
		{"missing item store url", func(c *Config) { c.ItemStore.BaseURL = "" }},
		{"enhancement enabled without timeout", func(c *Config) {
			c.Enhancement.Enabled = true
			c.Enhancement.TierTimeout = 0
		}},
		{"negative enhancement run budget", func(c *Config) {
			c.Enhancement.Enabled = true
			c.Enhancement.RunBudget = -time.Second
		}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg := validConfig()
			tc.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestLoad_FromYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9090
  mode: release
database:
  user: pcraft
  password: secret
engine:
  cr_ceiling: 0.15
  cr_accept_threshold: 0.10
  parallelism: 16
enhancement:
  enabled: true
  advisor_base_url: http://advisor.local
`
	require.NoError(t, os.WriteFile(path, []byte(yaml), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, "release", cfg.Server.Mode)
	assert.Equal(t, 16, cfg.Engine.Parallelism)
	assert.True(t, cfg.Enhancement.Enabled)
	// Defaults fill the rest.
	assert.Equal(t, DefaultDBHost, cfg.Database.Host)
	assert.Equal(t, DefaultTierTimeout, cfg.Enhancement.TierTimeout)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	assert.Error(t, err)
}

func TestLoad_InvalidConfigRejected(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  mode: bogus\ndatabase:\n  user: pcraft\n"), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("PCRAFT_DATABASE_USER", "envuser")
	t.Setenv("PCRAFT_SERVER_PORT", "8181")

	cfg, err := LoadFromEnv()
	require.NoError(t, err)

	assert.Equal(t, "envuser", cfg.Database.User)
	assert.Equal(t, 8181, cfg.Server.Port)
}

func TestMustLoad_PanicsOnError(t *testing.T) {
	assert.Panics(t, func() { MustLoad("/nonexistent/config.yaml") })
}

func TestDefaultDurations(t *testing.T) {
	cfg := &Config{}
	ApplyDefaults(cfg)
	assert.Equal(t, time.Hour, cfg.Engine.CacheTTL)
	assert.Equal(t, time.Hour, cfg.Redis.DefaultTTL)
}
