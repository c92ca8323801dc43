// Package main - точка входа для фоновых процессов (Worker) LevelUp.
//
// Worker выполняет периодические задачи:
// - Пересчёт сохранённых уровней из сохранённого XP
// - Пересборка кэша лидерборда в Redis
//
// Несколько воркеров могут работать одновременно: пересчёт пишет только
// условными обновлениями, пересборку кэша выполняет держатель блокировки.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/bootstrap"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/internal/infrastructure/messaging"
	"github.com/alem-hub/levelup/internal/infrastructure/metrics"
	httpserver "github.com/alem-hub/levelup/internal/interface/http"
	"github.com/alem-hub/levelup/internal/interface/http/handlers"
	"github.com/alem-hub/levelup/pkg/keylock"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// ─────────────────────────────────────────────────────────────────────────
	// 1. КОНФИГУРАЦИЯ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cfg.Discord.GuildID == 0 {
		return errors.New("DISCORD_GUILD_ID is required")
	}

	log := bootstrap.SetupLogger(cfg, "worker")
	guildID := leveling.Snowflake(cfg.Discord.GuildID)
	log.Info("starting levelup worker",
		"env", cfg.App.Environment,
		"guild_id", guildID.String(),
		"recalc_interval", cfg.Scheduler.RecalculateInterval.String(),
		"leaderboard_interval", cfg.Scheduler.RebuildLeaderboardInterval.String(),
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ И КЭШ
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := bootstrap.OpenStorage(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer storage.Close()

	cache := bootstrap.OpenRedisOptional(cfg.Redis, guildID, log)
	if cache != nil {
		defer cache.Close()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS
	// В воркере нет реактора: события только журналируются.
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.AsyncMode = false
	busConfig.Logger = log
	busConfig.Observer = metrics.EventBusObserver{}
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer bus.Close()

	if err := bus.Subscribe(shared.EventLevelsRecalculated, func(e shared.Event) error {
		if done, ok := e.(leveling.LevelsRecalculatedEvent); ok {
			log.Info("levels recalculated",
				"run_id", done.AggregateID(),
				"scanned", done.Scanned,
				"updated", done.Updated,
				"skipped", done.Skipped,
			)
		}
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe levels recalculated: %w", err)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 4. ЗАДАЧИ
	// ─────────────────────────────────────────────────────────────────────────
	maintenance, err := bootstrap.NewMaintenance(cfg, storage, cache, bus, keylock.New[leveling.Snowflake](), log)
	if err != nil {
		return err
	}
	for _, job := range maintenance.Scheduler.ListJobs() {
		log.Info("job registered", "job", job.Name, "schedule", job.Schedule)
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 5. HTTP: HEALTH И METRICS
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("storage", handlers.NewPingCheck(storage))
	health.AddCheck("scheduler", func(context.Context) error {
		if !maintenance.Scheduler.IsRunning() {
			return errors.New("scheduler is not running")
		}
		return nil
	})
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache.Cache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.Observability.HTTPAddr
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled
	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		HealthChecker:  health,
		MetricsHandler: promhttp.Handler(),
		ReadAPIEnabled: func() bool { return false },
		Logger:         log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	if err := maintenance.Scheduler.Start(ctx); err != nil {
		return fmt.Errorf("failed to start scheduler: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.App.ShutdownTimeout)
	})

	log.Info("levelup worker is running")
	runErr := g.Wait()

	log.Info("stopping scheduler...")
	_ = maintenance.Scheduler.Stop()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("worker stopped")
	return nil
}
