package logger

import (
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logger settings
type Config struct {
	Level       string
	ServiceName string
	Development bool
}

// Logger wraps zap.Logger so callers depend on this package only
type Logger struct {
	*zap.Logger
}

var (
	global = &Logger{Logger: zap.NewNop()}
	mu     sync.RWMutex
)

// Init builds the global logger. Until Init is called Get returns a no-op logger.
func Init(cfg *Config) error {
	if cfg == nil {
		cfg = &Config{Level: "info"}
	}

	var zapCfg zap.Config
	if cfg.Development {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	} else {
		zapCfg = zap.NewProductionConfig()
		zapCfg.EncoderConfig.TimeKey = "timestamp"
		zapCfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	}
	zapCfg.Level = zap.NewAtomicLevelAt(parseLevel(cfg.Level))

	z, err := zapCfg.Build()
	if err != nil {
		return err
	}
	if cfg.ServiceName != "" {
		z = z.With(zap.String("service", cfg.ServiceName))
	}

	mu.Lock()
	global = &Logger{Logger: z}
	mu.Unlock()
	return nil
}

// Get returns the global logger
func Get() *Logger {
	mu.RLock()
	defer mu.RUnlock()
	return global
}

// Sync flushes buffered entries
func Sync() {
	_ = Get().Logger.Sync()
}

// Named returns a child logger tagged with component
func (l *Logger) Named(component string) *Logger {
	return &Logger{Logger: l.Logger.With(zap.String("component", component))}
}

// parseLevel accepts zap level names and the app environment names used in config.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug", "development":
		return zapcore.DebugLevel
	case "warn", "warning":
		return zapcore.WarnLevel
	case "error":
		return zapcore.ErrorLevel
	default:
		return zapcore.InfoLevel
	}
}
