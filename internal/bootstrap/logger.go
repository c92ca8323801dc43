package bootstrap

import (
	"log/slog"
	"os"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/pkg/logger"
)

// SetupLogger installs the process logger described by cfg.
func SetupLogger(cfg *config.Config, process string) *slog.Logger {
	level := logger.ParseLevel(cfg.Observability.LogLevel)
	if cfg.App.Debug {
		level = slog.LevelDebug
	}
	return logger.Setup(logger.Options{
		Output:    os.Stdout,
		Level:     level,
		Format:    logger.ParseFormat(cfg.Observability.LogFormat),
		AddSource: cfg.IsDevelopment(),
	}).With(
		"app", cfg.App.Name,
		"process", process,
		"version", cfg.App.Version,
	)
}
