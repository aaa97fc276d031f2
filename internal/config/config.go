// Package config defines all configuration structures for the PriorityCraft
// decision engine.  No I/O or parsing logic lives here — only plain data
// types and validation.
package config

import (
	"fmt"
	"time"

	"github.com/turtacn/PriorityCraft/internal/infrastructure/monitoring/logging"
)

// ─────────────────────────────────────────────────────────────────────────────
// Sub-configuration structs
// ─────────────────────────────────────────────────────────────────────────────

// ServerConfig holds HTTP server tunables.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"` // "debug" | "release" | "test"
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	MaxBodySize     int64         `mapstructure:"max_body_size"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"db_name"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	MigrationPath   string        `mapstructure:"migration_path"`
}

// RedisConfig holds Redis connection parameters for the score cache and the
// run lock.
type RedisConfig struct {
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	MinIdleConns int           `mapstructure:"min_idle_conns"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	DefaultTTL   time.Duration `mapstructure:"default_ttl"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
}

// KafkaConfig holds Kafka producer/consumer parameters for the audit and
// run-lifecycle event streams.
type KafkaConfig struct {
	Brokers         []string `mapstructure:"brokers"`
	GroupID         string   `mapstructure:"group_id"`
	AutoOffsetReset string   `mapstructure:"auto_offset_reset"` // "earliest" | "latest"
	ProducerRetries int      `mapstructure:"producer_retries"`
	BatchSize       int      `mapstructure:"batch_size"`
}

// WorkerConfig holds background-worker execution parameters.
type WorkerConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	QueueDepth        int           `mapstructure:"queue_depth"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxRetries        int           `mapstructure:"max_retries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
}

// EngineConfig holds the weight-solver and scoring tunables.
type EngineConfig struct {
	// SolverMaxIterations bounds the power-iteration loop before the
	// column-average fallback kicks in.
	SolverMaxIterations int `mapstructure:"solver_max_iterations"`

	// SolverTolerance is the convergence threshold on successive weight
	// vectors (L∞ norm).
	SolverTolerance float64 `mapstructure:"solver_tolerance"`

	// CRAcceptThreshold: CR at or below this value is accepted cleanly.
	CRAcceptThreshold float64 `mapstructure:"cr_accept_threshold"`

	// CRCeiling: CR above this value is rejected outright.  Values between
	// the threshold and the ceiling are accepted with a review flag.
	CRCeiling float64 `mapstructure:"cr_ceiling"`

	// MissingValuePolicy selects how absent item attributes are scored:
	// "fixed" (use MissingDefault) or "mean" (per-criterion mean of present
	// values).
	MissingValuePolicy string `mapstructure:"missing_value_policy"`

	// MissingDefault is the normalized value substituted under the "fixed"
	// policy.
	MissingDefault float64 `mapstructure:"missing_default"`

	// ConfidenceFloor is the minimum confidence a Score Record can carry
	// regardless of how many attributes were missing.
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`

	// Parallelism bounds concurrent item scoring inside a run.
	Parallelism int `mapstructure:"parallelism"`

	// CacheTTL is the time-to-live for cached batch results.
	CacheTTL time.Duration `mapstructure:"cache_ttl"`

	// SensitivityTopK is how many top-ranked items sensitivity analysis
	// holds stable when probing weight perturbations.
	SensitivityTopK int `mapstructure:"sensitivity_top_k"`

	// RequiredApprovals is how many distinct stakeholders must sign a
	// weight vector before it becomes active.
	RequiredApprovals int `mapstructure:"required_approvals"`

	// RunRetention is how many finished calculation runs stay queryable
	// in memory before the oldest are evicted.
	RunRetention int `mapstructure:"run_retention"`
}

// ItemStoreConfig holds the external work-item system's endpoint.
type ItemStoreConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// EnhancementConfig holds fallback-chain parameters: the external advisor
// endpoint, per-tier timeouts, circuit-breaker thresholds, and the per-run
// time budget.
type EnhancementConfig struct {
	Enabled bool `mapstructure:"enabled"`

	// AdvisorBaseURL is the HTTP endpoint of the external LLM scoring
	// service; empty disables the advisor tier.
	AdvisorBaseURL string `mapstructure:"advisor_base_url"`
	AdvisorAPIKey  string `mapstructure:"advisor_api_key"`
	AdvisorModel   string `mapstructure:"advisor_model"`

	// TierTimeout is the per-call deadline applied to every tier.
	TierTimeout time.Duration `mapstructure:"tier_timeout"`

	// BreakerThreshold is the consecutive-failure count that opens a tier's
	// circuit breaker.
	BreakerThreshold int `mapstructure:"breaker_threshold"`

	// BreakerCooldown is how long an open breaker waits before probing.
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`

	// ConfidenceFloor rejects tier results whose self-reported confidence
	// falls below it.
	ConfidenceFloor float64 `mapstructure:"confidence_floor"`

	// RunBudget caps the wall-clock time one run may spend in the
	// enhancement phase.  Once it elapses, every remaining item keeps its
	// baseline score.  0 means no cap.
	RunBudget time.Duration `mapstructure:"run_budget"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Root Config
// ─────────────────────────────────────────────────────────────────────────────

// Config is the root configuration structure for the engine.  Every
// infrastructure component and application service reads its settings from
// the relevant sub-struct.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Kafka       KafkaConfig       `mapstructure:"kafka"`
	Worker      WorkerConfig      `mapstructure:"worker"`
	ItemStore   ItemStoreConfig   `mapstructure:"item_store"`
	Log         logging.LogConfig `mapstructure:"log"`
	Engine      EngineConfig      `mapstructure:"engine"`
	Enhancement EnhancementConfig `mapstructure:"enhancement"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Validation
// ─────────────────────────────────────────────────────────────────────────────

// Validate performs semantic validation of the fully-populated Config.
// It returns the first error encountered; callers should treat any error as
// fatal and refuse to start the application.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("config: server.port %d is out of range [1, 65535]", c.Server.Port)
	}
	switch c.Server.Mode {
	case "debug", "release", "test":
	default:
		return fmt.Errorf("config: server.mode %q is invalid; expected debug|release|test", c.Server.Mode)
	}

	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.User == "" {
		return fmt.Errorf("config: database.user is required")
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxConns < 1 {
		return fmt.Errorf("config: database.max_conns must be >= 1, got %d", c.Database.MaxConns)
	}

	if c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if len(c.Kafka.Brokers) == 0 {
		return fmt.Errorf("config: kafka.brokers must contain at least one broker address")
	}
	if c.Kafka.GroupID == "" {
		return fmt.Errorf("config: kafka.group_id is required")
	}

	if c.Worker.Concurrency < 1 {
		return fmt.Errorf("config: worker.concurrency must be >= 1, got %d", c.Worker.Concurrency)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	if c.Engine.SolverMaxIterations < 1 {
		return fmt.Errorf("config: engine.solver_max_iterations must be >= 1, got %d", c.Engine.SolverMaxIterations)
	}
	if c.Engine.SolverTolerance <= 0 {
		return fmt.Errorf("config: engine.solver_tolerance must be > 0, got %g", c.Engine.SolverTolerance)
	}
	if c.Engine.CRAcceptThreshold <= 0 || c.Engine.CRAcceptThreshold > c.Engine.CRCeiling {
		return fmt.Errorf("config: engine.cr_accept_threshold %g must be positive and <= cr_ceiling %g",
			c.Engine.CRAcceptThreshold, c.Engine.CRCeiling)
	}
	switch c.Engine.MissingValuePolicy {
	case "fixed", "mean":
	default:
		return fmt.Errorf("config: engine.missing_value_policy %q is invalid; expected fixed|mean",
			c.Engine.MissingValuePolicy)
	}
	if c.Engine.MissingDefault < 0 || c.Engine.MissingDefault > 1 {
		return fmt.Errorf("config: engine.missing_default %g is out of range [0, 1]", c.Engine.MissingDefault)
	}
	if c.Engine.ConfidenceFloor < 0 || c.Engine.ConfidenceFloor > 1 {
		return fmt.Errorf("config: engine.confidence_floor %g is out of range [0, 1]", c.Engine.ConfidenceFloor)
	}
	if c.Engine.Parallelism < 1 {
		return fmt.Errorf("config: engine.parallelism must be >= 1, got %d", c.Engine.Parallelism)
	}
	if c.Engine.RequiredApprovals < 1 {
		return fmt.Errorf("config: engine.required_approvals must be >= 1, got %d", c.Engine.RequiredApprovals)
	}
	if c.Engine.RunRetention < 1 {
		return fmt.Errorf("config: engine.run_retention must be >= 1, got %d", c.Engine.RunRetention)
	}

	if c.ItemStore.BaseURL == "" {
		return fmt.Errorf("config: item_store.base_url is required")
	}

	if c.Enhancement.Enabled {
		if c.Enhancement.TierTimeout <= 0 {
			return fmt.Errorf("config: enhancement.tier_timeout must be > 0 when enhancement is enabled")
		}
		if c.Enhancement.BreakerThreshold < 1 {
			return fmt.Errorf("config: enhancement.breaker_threshold must be >= 1, got %d",
				c.Enhancement.BreakerThreshold)
		}
		if c.Enhancement.ConfidenceFloor < 0 || c.Enhancement.ConfidenceFloor > 1 {
			return fmt.Errorf("config: enhancement.confidence_floor %g is out of range [0, 1]",
				c.Enhancement.ConfidenceFloor)
		}
		if c.Enhancement.RunBudget < 0 {
			return fmt.Errorf("config: enhancement.run_budget must be >= 0, got %s",
				c.Enhancement.RunBudget)
		}
	}

	return nil
}
