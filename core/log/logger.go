// Package log builds the zap logger used across flystream and sanitizes user data
// before it reaches the logs.
package log

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ebogdum/flystream/config"
)

// New builds a production JSON logger or a development console logger
func New(logCfg config.LogConfig) (*zap.Logger, error) {
	var cfg zap.Config

	if logCfg.Format == "json" {
		cfg = zap.NewProductionConfig()
	} else {
		cfg = zap.NewDevelopmentConfig()
	}

	cfg.Level = zap.NewAtomicLevelAt(ParseLevel(logCfg.Level))
	SetMode(ParseMode(logCfg.Redact))

	return cfg.Build()
}

// ParseLevel maps a config level name to a zap level, defaulting to info
func ParseLevel(level string) zapcore.Level {
	switch level {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Path returns a zap field holding a sanitized path
func Path(key, path string) zap.Field {
	return zap.String(key, SanitizePath(path))
}
