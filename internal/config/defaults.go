package config

import "time"

// Default value constants.
const (
	DefaultServerPort = 8080
	DefaultServerMode = "debug"

	DefaultDBHost     = "localhost"
	DefaultDBPort     = 5432
	DefaultDBName     = "prioritycraft"
	DefaultDBMaxConns = 25

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "pcraft:"

	DefaultKafkaBroker  = "localhost:9092"
	DefaultKafkaGroupID = "prioritycraft-workers"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"

	DefaultWorkerConcurrency = 4

	DefaultSolverMaxIterations = 100
	DefaultSolverTolerance     = 1e-9
	DefaultCRAcceptThreshold   = 0.10
	DefaultCRCeiling           = 0.15
	DefaultMissingValuePolicy  = "fixed"
	DefaultMissingDefault      = 0.5
	DefaultConfidenceFloor     = 0.1
	DefaultEngineParallelism   = 8
	DefaultSensitivityTopK     = 10
	DefaultRequiredApprovals   = 1
	DefaultRunRetention        = 100

	DefaultItemStoreURL     = "http://localhost:9090"
	DefaultItemStoreTimeout = 30 * time.Second

	DefaultTierTimeout      = 10 * time.Second
	DefaultBreakerThreshold = 5
	DefaultBreakerCooldown  = 30 * time.Second
	DefaultEnhConfFloor     = 0.5
)

// ApplyDefaults fills every zero-value field in cfg with the engine default.
// Fields already set by the caller are left unchanged so that explicit
// configuration always wins.  It must run after unmarshalling and before
// Validate so defaulted fields are never seen as missing.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// ── Server ────────────────────────────────────────────────────────────────
	if cfg.Server.Port == 0 {
		cfg.Server.Port = DefaultServerPort
	}
	if cfg.Server.Mode == "" {
		cfg.Server.Mode = DefaultServerMode
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 15 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 30 * time.Second
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = 10 * time.Second
	}

	// ── Database ──────────────────────────────────────────────────────────────
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.MaxConns == 0 {
		cfg.Database.MaxConns = DefaultDBMaxConns
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MigrationPath == "" {
		cfg.Database.MigrationPath = "migrations"
	}

	// ── Redis ─────────────────────────────────────────────────────────────────
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.DefaultTTL == 0 {
		cfg.Redis.DefaultTTL = time.Hour
	}

	// ── Kafka ─────────────────────────────────────────────────────────────────
	if len(cfg.Kafka.Brokers) == 0 {
		cfg.Kafka.Brokers = []string{DefaultKafkaBroker}
	}
	if cfg.Kafka.GroupID == "" {
		cfg.Kafka.GroupID = DefaultKafkaGroupID
	}
	if cfg.Kafka.AutoOffsetReset == "" {
		cfg.Kafka.AutoOffsetReset = "earliest"
	}

	// ── Worker ────────────────────────────────────────────────────────────────
	if cfg.Worker.Concurrency == 0 {
		cfg.Worker.Concurrency = DefaultWorkerConcurrency
	}
	if cfg.Worker.MaxRetries == 0 {
		cfg.Worker.MaxRetries = 3
	}
	if cfg.Worker.RetryBackoff == 0 {
		cfg.Worker.RetryBackoff = 2 * time.Second
	}

	// ── Log ───────────────────────────────────────────────────────────────────
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}

	// ── Engine ────────────────────────────────────────────────────────────────
	if cfg.Engine.SolverMaxIterations == 0 {
		cfg.Engine.SolverMaxIterations = DefaultSolverMaxIterations
	}
	if cfg.Engine.SolverTolerance == 0 {
		cfg.Engine.SolverTolerance = DefaultSolverTolerance
	}
	if cfg.Engine.CRAcceptThreshold == 0 {
		cfg.Engine.CRAcceptThreshold = DefaultCRAcceptThreshold
	}
	if cfg.Engine.CRCeiling == 0 {
		cfg.Engine.CRCeiling = DefaultCRCeiling
	}
	if cfg.Engine.MissingValuePolicy == "" {
		cfg.Engine.MissingValuePolicy = DefaultMissingValuePolicy
	}
	if cfg.Engine.MissingDefault == 0 {
		cfg.Engine.MissingDefault = DefaultMissingDefault
	}
	if cfg.Engine.ConfidenceFloor == 0 {
		cfg.Engine.ConfidenceFloor = DefaultConfidenceFloor
	}
	if cfg.Engine.Parallelism == 0 {
		cfg.Engine.Parallelism = DefaultEngineParallelism
	}
	if cfg.Engine.CacheTTL == 0 {
		cfg.Engine.CacheTTL = time.Hour
	}
	if cfg.Engine.SensitivityTopK == 0 {
		cfg.Engine.SensitivityTopK = DefaultSensitivityTopK
	}
	if cfg.Engine.RequiredApprovals == 0 {
		cfg.Engine.RequiredApprovals = DefaultRequiredApprovals
	}
	if cfg.Engine.RunRetention == 0 {
		cfg.Engine.RunRetention = DefaultRunRetention
	}

	// ── Item store ────────────────────────────────────────────────────────────
	if cfg.ItemStore.BaseURL == "" {
		cfg.ItemStore.BaseURL = DefaultItemStoreURL
	}
	if cfg.ItemStore.Timeout == 0 {
		cfg.ItemStore.Timeout = DefaultItemStoreTimeout
	}

	// ── Enhancement ───────────────────────────────────────────────────────────
	if cfg.Enhancement.TierTimeout == 0 {
		cfg.Enhancement.TierTimeout = DefaultTierTimeout
	}
	if cfg.Enhancement.BreakerThreshold == 0 {
		cfg.Enhancement.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.Enhancement.BreakerCooldown == 0 {
		cfg.Enhancement.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.Enhancement.ConfidenceFloor == 0 {
		cfg.Enhancement.ConfidenceFloor = DefaultEnhConfFloor
	}
}
