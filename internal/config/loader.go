package config

import (
	"fmt"
	"strings"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// envPrefix is the environment variable prefix used by all engine settings.
const envPrefix = "PCRAFT"

// newViper builds a pre-configured Viper instance: YAML file type, PCRAFT_
// env prefix, automatic env binding, and a key replacer that maps "." → "_"
// so that nested keys like "database.host" resolve to "PCRAFT_DATABASE_HOST".
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(envPrefix)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	bindKnownKeys(v)
	return v
}

// bindKnownKeys registers every configuration key with viper.  AutomaticEnv
// alone does not surface env-only keys to Unmarshal; binding them explicitly
// makes PCRAFT_* overrides work even when the key is absent from the YAML
// file (or when no file is used at all).
func bindKnownKeys(v *viper.Viper) {
	keys := []string{
		"server.port", "server.mode", "server.read_timeout", "server.write_timeout",
		"server.max_body_size", "server.shutdown_timeout",
		"database.host", "database.port", "database.user", "database.password",
		"database.db_name", "database.ssl_mode", "database.max_conns",
		"database.max_idle_conns", "database.conn_max_lifetime",
		"database.conn_max_idle_time", "database.migration_path",
		"redis.addr", "redis.password", "redis.db", "redis.pool_size",
		"redis.min_idle_conns", "redis.dial_timeout", "redis.read_timeout",
		"redis.write_timeout", "redis.default_ttl", "redis.key_prefix",
		"kafka.brokers", "kafka.group_id", "kafka.auto_offset_reset",
		"kafka.producer_retries", "kafka.batch_size",
		"worker.concurrency", "worker.queue_depth", "worker.heartbeat_interval",
		"worker.max_retries", "worker.retry_backoff",
		"log.level", "log.format", "log.output_paths", "log.error_output_paths",
		"engine.solver_max_iterations", "engine.solver_tolerance",
		"engine.cr_accept_threshold", "engine.cr_ceiling",
		"engine.missing_value_policy", "engine.missing_default",
		"engine.confidence_floor", "engine.parallelism", "engine.cache_ttl",
		"engine.sensitivity_top_k", "engine.required_approvals",
		"engine.run_retention",
		"item_store.base_url", "item_store.api_key", "item_store.timeout",
		"enhancement.enabled", "enhancement.advisor_base_url",
		"enhancement.advisor_api_key", "enhancement.advisor_model",
		"enhancement.tier_timeout", "enhancement.breaker_threshold",
		"enhancement.breaker_cooldown", "enhancement.confidence_floor",
		"enhancement.run_budget",
	}
	for _, k := range keys {
		_ = v.BindEnv(k)
	}
}

// Load reads the YAML file at configPath, merges PCRAFT_* environment
// variable overrides, applies defaults for unset fields, and validates the
// result.
func Load(configPath string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("config: failed to read config file %q: %w", configPath, err)
	}

	return unmarshalAndFinalize(v)
}

// LoadFromEnv builds a Config entirely from PCRAFT_* environment variables
// with no config file, the preferred strategy for containerised deployments.
//
// Naming convention: PCRAFT_<SECTION>_<FIELD>, e.g. PCRAFT_DATABASE_HOST,
// PCRAFT_ENGINE_CR_CEILING.
func LoadFromEnv() (*Config, error) {
	v := newViper()
	return unmarshalAndFinalize(v)
}

func unmarshalAndFinalize(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("config: failed to unmarshal configuration: %w", err)
	}

	ApplyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// Watch monitors configPath for changes and invokes onChange with the newly
// parsed Config whenever the file is modified.  Intended for hot-reloading
// non-critical settings such as log level and the enhancement run budget;
// callers
// apply only the safe subset of changes at runtime.
//
// Watch is non-blocking; viper manages the background goroutine.  If the
// changed file fails to parse or validate, onChange is not called.
func Watch(configPath string, onChange func(*Config)) {
	v := newViper()
	v.SetConfigFile(configPath)

	// Callers should Load first; errors on the initial read are ignored here.
	_ = v.ReadInConfig()

	v.WatchConfig()
	v.OnConfigChange(func(_ fsnotify.Event) {
		cfg, err := unmarshalAndFinalize(v)
		if err != nil {
			return
		}
		onChange(cfg)
	})
}

// MustLoad wraps Load and panics on any error.  For use in main() where a
// config-load failure is always fatal.
func MustLoad(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}
