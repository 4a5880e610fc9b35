// Package logging собирает zap-логгер приложения.
package logging

import (
	"fmt"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	gormlogger "gorm.io/gorm/logger"
)

// New возвращает production-логгер. level: debug|info|warn|error.
func New(level string, development bool) (*zap.Logger, error) {
	var cfg zap.Config
	if development {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	lvl, err := zapcore.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := cfg.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return logger, nil
}

// GormLevel подбирает уровень логирования gorm под уровень zap.
func GormLevel(l *zap.Logger) gormlogger.LogLevel {
	switch {
	case l.Core().Enabled(zapcore.DebugLevel):
		return gormlogger.Info
	case l.Core().Enabled(zapcore.WarnLevel):
		return gormlogger.Warn
	default:
		return gormlogger.Error
	}
}
