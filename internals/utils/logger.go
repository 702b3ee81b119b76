package utils

import (
	"fmt"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	Logger *zap.Logger
	mu     sync.Mutex
)

// InitLogger builds the process logger. format "json" selects the production
// encoder; anything else gets the console encoder.
func InitLogger(level, format string) error {
	var config zap.Config

	if format == "json" {
		config = zap.NewProductionConfig()
	} else {
		config = zap.NewDevelopmentConfig()
	}

	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	config.Level = zap.NewAtomicLevelAt(lvl)

	logger, err := config.Build()
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}

	mu.Lock()
	Logger = logger
	mu.Unlock()
	return nil
}

func GetLogger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()
	if Logger == nil {
		// Fallback logger
		Logger, _ = zap.NewProduction()
	}
	return Logger
}

// Component returns a child logger tagged with the component name.
func Component(name string) *zap.Logger {
	return GetLogger().Named(name)
}
