// Package bootstrap builds the infrastructure shared by the bot, the worker
// and levelctl from a loaded config.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/infrastructure/persistence/postgres"
	"github.com/alem-hub/levelup/internal/infrastructure/persistence/sqlite"
	"github.com/alem-hub/levelup/pkg/logger"
	"github.com/alem-hub/levelup/pkg/retry"
)

// Storage is the opened backend behind the leveling ports.
type Storage struct {
	Driver   string
	Ranks    leveling.RankStore
	Settings leveling.SettingsRepository
	Audit    leveling.AuditLog

	migrate func(ctx context.Context) error
	status  func(ctx context.Context) ([]postgres.Migration, error)
	close   func() error
}

// Ping checks the backend.
func (s *Storage) Ping(ctx context.Context) error {
	return s.Ranks.Ping(ctx)
}

// Migrate applies pending schema changes.
func (s *Storage) Migrate(ctx context.Context) error {
	return s.migrate(ctx)
}

// MigrationStatus lists the known migrations. The sqlite backend has no
// versioned migrations and returns nil.
func (s *Storage) MigrationStatus(ctx context.Context) ([]postgres.Migration, error) {
	if s.status == nil {
		return nil, nil
	}
	return s.status(ctx)
}

// Close releases the connection.
func (s *Storage) Close() error {
	return s.close()
}

// OpenStorage connects to the configured driver. The postgres connect is
// retried to ride out a database that starts after the bot.
func OpenStorage(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Storage, error) {
	if log == nil {
		log = slog.Default()
	}
	log = log.With(logger.Component("storage"), "driver", cfg.Driver)

	switch cfg.Driver {
	case config.DriverPostgres:
		return openPostgres(ctx, cfg, log)
	case config.DriverSQLite:
		return openSQLite(cfg, log)
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

func openPostgres(ctx context.Context, cfg config.DatabaseConfig, log *slog.Logger) (*Storage, error) {
	opts := postgres.PoolOptions{
		MaxConns:        int32(cfg.MaxOpenConns),
		MinConns:        int32(cfg.MinOpenConns),
		MaxConnLifetime: cfg.ConnMaxLifetime,
		MaxConnIdleTime: cfg.ConnMaxIdleTime,
	}

	// A fresh database container needs seconds, not milliseconds.
	retrier := retry.StorageRetrier(
		retry.WithMaxAttempts(6),
		retry.WithInitialDelay(500*time.Millisecond),
		retry.WithMaxDelay(10*time.Second),
		retry.WithOnRetry(func(attempt int, err error, delay time.Duration) {
			log.Warn("database connect failed, retrying", "attempt", attempt, "delay", delay, logger.Err(err))
		}),
	)
	var conn *postgres.Connection
	err := retrier.Do(ctx, func(ctx context.Context) error {
		c, err := postgres.NewConnectionFromURL(ctx, cfg.URL, opts)
		if err != nil {
			return retry.Retryable(err)
		}
		conn = c
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}

	migrator := postgres.NewMigrator(conn)
	s := &Storage{
		Driver:   config.DriverPostgres,
		Ranks:    postgres.NewRankStore(conn),
		Settings: postgres.NewSettingsRepository(conn),
		Audit:    postgres.NewAuditRepository(conn),
		migrate:  migrator.Migrate,
		status:   migrator.Status,
		close: func() error {
			conn.Close()
			return nil
		},
	}

	if cfg.AutoMigrate {
		if err := s.Migrate(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
	}
	log.Info("storage ready")
	return s, nil
}

func openSQLite(cfg config.DatabaseConfig, log *slog.Logger) (*Storage, error) {
	store, err := sqlite.Open(cfg.SQLitePath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	log.Info("storage ready", "path", cfg.SQLitePath)
	return &Storage{
		Driver:   config.DriverSQLite,
		Ranks:    store,
		Settings: store,
		Audit:    store,
		migrate:  store.Migrate,
		close:    store.Close,
	}, nil
}
