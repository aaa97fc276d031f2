// Package logging defines the structured logging contract for PriorityCraft
// and its zap-backed implementation.  Components depend on the Logger
// interface only; go.uber.org/zap is not imported outside this package.
//
// Startup order in cmd/*/main.go: load config, build the logger from
// cfg.Log, call SetDefault, then construct everything else with the logger
// injected.
package logging

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Field is a typed key-value pair attached to a log entry.  A concrete
// struct instead of variadic interface{} keeps call sites explicit and lets
// the zap implementation avoid reflection for the common types.
type Field struct {
	Key   string
	Value interface{}
}

// String constructs a Field with a string value.
func String(key, val string) Field { return Field{Key: key, Value: val} }

// Int constructs a Field with an int value.
func Int(key string, val int) Field { return Field{Key: key, Value: val} }

// Int64 constructs a Field with an int64 value.
func Int64(key string, val int64) Field { return Field{Key: key, Value: val} }

// Float64 constructs a Field with a float64 value.
func Float64(key string, val float64) Field { return Field{Key: key, Value: val} }

// Bool constructs a Field with a bool value.
func Bool(key string, val bool) Field { return Field{Key: key, Value: val} }

// Duration constructs a Field with a time.Duration value.
func Duration(key string, val time.Duration) Field { return Field{Key: key, Value: val} }

// Strings constructs a Field with a string-slice value.
func Strings(key string, val []string) Field { return Field{Key: key, Value: val} }

// Err captures an error under the canonical key "error"; nil becomes "<nil>".
func Err(err error) Field {
	if err == nil {
		return Field{Key: "error", Value: "<nil>"}
	}
	return Field{Key: "error", Value: err.Error()}
}

// Any constructs a Field with an arbitrary value.  Prefer the typed
// constructors; this one falls back to zap.Any.
func Any(key string, val interface{}) Field { return Field{Key: key, Value: val} }

// Logger is the engine-wide structured logging contract.  Implementations
// must be safe for concurrent use.  Components receive a Logger via
// constructor injection so tests can pass NewNopLogger().
type Logger interface {
	// Debug logs high-frequency diagnostic detail, disabled in production
	// by raising the level to info.
	Debug(msg string, fields ...Field)

	// Info logs routine operational events.
	Info(msg string, fields ...Field)

	// Warn logs recoverable abnormal conditions, for example a degraded
	// enhancement tier or a data-quality warning during scoring.
	Warn(msg string, fields ...Field)

	// Error logs failures scoped to a single request or run.
	Error(msg string, fields ...Field)

	// Fatal logs the message and exits the process.  Startup failures only.
	Fatal(msg string, fields ...Field)

	// With returns a child Logger carrying the supplied fields on every
	// subsequent entry.  The parent is not mutated.
	With(fields ...Field) Logger

	// Named returns a child Logger with name appended to the parent's name
	// ("engine" → "engine.orchestrator").
	Named(name string) Logger
}

// LogConfig carries the parameters needed to build a Logger.  Populated from
// the "log" section of the application configuration.
type LogConfig struct {
	// Level is the minimum severity emitted: "debug", "info", "warn",
	// "error".  Unrecognised or empty values default to "info".
	Level string `yaml:"level" json:"level" mapstructure:"level"`

	// Format is "json" for aggregation pipelines or "console" for local
	// development.  Defaults to "json".
	Format string `yaml:"format" json:"format" mapstructure:"format"`

	// OutputPaths lists sinks for log entries; "stdout"/"stderr" are
	// special values.  Defaults to ["stdout"].
	OutputPaths []string `yaml:"output_paths" json:"output_paths" mapstructure:"output_paths"`

	// ErrorOutputPaths lists sinks for zap's own errors.  Defaults to
	// ["stderr"].
	ErrorOutputPaths []string `yaml:"error_output_paths" json:"error_output_paths" mapstructure:"error_output_paths"`
}

// ─────────────────────────────────────────────────────────────────────────────
// zap-backed implementation
// ─────────────────────────────────────────────────────────────────────────────

type zapLogger struct {
	z *zap.Logger
}

func toZapFields(fields []Field) []zap.Field {
	out := make([]zap.Field, 0, len(fields))
	for _, f := range fields {
		switch v := f.Value.(type) {
		case string:
			out = append(out, zap.String(f.Key, v))
		case int:
			out = append(out, zap.Int(f.Key, v))
		case int64:
			out = append(out, zap.Int64(f.Key, v))
		case float64:
			out = append(out, zap.Float64(f.Key, v))
		case bool:
			out = append(out, zap.Bool(f.Key, v))
		case time.Duration:
			out = append(out, zap.Duration(f.Key, v))
		case []string:
			out = append(out, zap.Strings(f.Key, v))
		case error:
			out = append(out, zap.NamedError(f.Key, v))
		default:
			out = append(out, zap.Any(f.Key, v))
		}
	}
	return out
}

func (l *zapLogger) Debug(msg string, fields ...Field) { l.z.Debug(msg, toZapFields(fields)...) }
func (l *zapLogger) Info(msg string, fields ...Field)  { l.z.Info(msg, toZapFields(fields)...) }
func (l *zapLogger) Warn(msg string, fields ...Field)  { l.z.Warn(msg, toZapFields(fields)...) }
func (l *zapLogger) Error(msg string, fields ...Field) { l.z.Error(msg, toZapFields(fields)...) }
func (l *zapLogger) Fatal(msg string, fields ...Field) { l.z.Fatal(msg, toZapFields(fields)...) }

func (l *zapLogger) With(fields ...Field) Logger {
	return &zapLogger{z: l.z.With(toZapFields(fields)...)}
}

func (l *zapLogger) Named(name string) Logger {
	return &zapLogger{z: l.z.Named(name)}
}

func parseLevel(s string) zapcore.Level {
	switch s {
	case "debug", "DEBUG":
		return zapcore.DebugLevel
	case "warn", "WARN":
		return zapcore.WarnLevel
	case "error", "ERROR":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}

// NewLogger builds a zap-backed Logger from cfg, applying the documented
// defaults for unset fields.  It returns an error when zap cannot open an
// output path.
func NewLogger(cfg LogConfig) (Logger, error) {
	if len(cfg.OutputPaths) == 0 {
		cfg.OutputPaths = []string{"stdout"}
	}
	if len(cfg.ErrorOutputPaths) == 0 {
		cfg.ErrorOutputPaths = []string{"stderr"}
	}

	var encCfg zapcore.EncoderConfig
	encoding := "json"
	if cfg.Format == "console" {
		encCfg = zap.NewDevelopmentEncoderConfig()
		encoding = "console"
	} else {
		encCfg = zap.NewProductionEncoderConfig()
	}
	encCfg.TimeKey = "ts"
	encCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	zapCfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(parseLevel(cfg.Level)),
		Development:      cfg.Format == "console",
		Encoding:         encoding,
		EncoderConfig:    encCfg,
		OutputPaths:      cfg.OutputPaths,
		ErrorOutputPaths: cfg.ErrorOutputPaths,
	}

	z, err := zapCfg.Build(zap.AddCallerSkip(1))
	if err != nil {
		return nil, fmt.Errorf("logging: failed to build zap logger: %w", err)
	}
	return &zapLogger{z: z}, nil
}

// NewLoggerFromCore wraps an existing zapcore.Core.  Used by tests that
// assert on observed log entries.
func NewLoggerFromCore(core zapcore.Core) Logger {
	return &zapLogger{z: zap.New(core, zap.AddCallerSkip(1))}
}

// ─────────────────────────────────────────────────────────────────────────────
// no-op implementation and process default
// ─────────────────────────────────────────────────────────────────────────────

type nopLogger struct{}

func (nopLogger) Debug(_ string, _ ...Field) {}
func (nopLogger) Info(_ string, _ ...Field)  {}
func (nopLogger) Warn(_ string, _ ...Field)  {}
func (nopLogger) Error(_ string, _ ...Field) {}
func (nopLogger) Fatal(_ string, _ ...Field) {}
func (n nopLogger) With(_ ...Field) Logger   { return n }
func (n nopLogger) Named(_ string) Logger    { return n }

// NewNopLogger returns a Logger that discards everything.  For tests and
// benchmarks.
func NewNopLogger() Logger { return nopLogger{} }

var (
	defaultMu     sync.RWMutex
	defaultLogger Logger = nopLogger{}
)

// SetDefault replaces the process-wide default Logger.  Call once during
// startup before spawning goroutines that use Default().
func SetDefault(l Logger) {
	if l == nil {
		return
	}
	defaultMu.Lock()
	defaultLogger = l
	defaultMu.Unlock()
}

// Default returns the process-wide default Logger.  Constructor injection is
// preferred; Default exists for call sites that cannot receive one.
func Default() Logger {
	defaultMu.RLock()
	l := defaultLogger
	defaultMu.RUnlock()
	return l
}
