// Package main - точка входа Discord-бота LevelUp.
//
// Процесс держит gateway-сессию, начисляет XP за сообщения и голосовые
// каналы, реагирует на повышение уровня (роли, сообщения) и отдаёт
// health/metrics/read API по HTTP. Фоновые задачи по желанию запускаются
// прямо здесь (SCHEDULER_ENABLED), обычно их выполняет cmd/worker.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/application/command"
	"github.com/alem-hub/levelup/internal/application/eventhandler"
	"github.com/alem-hub/levelup/internal/application/query"
	"github.com/alem-hub/levelup/internal/bootstrap"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/internal/infrastructure/messaging"
	"github.com/alem-hub/levelup/internal/infrastructure/metrics"
	platform "github.com/alem-hub/levelup/internal/infrastructure/platform/discord"
	gateway "github.com/alem-hub/levelup/internal/interface/discord"
	httpserver "github.com/alem-hub/levelup/internal/interface/http"
	"github.com/alem-hub/levelup/internal/interface/http/handlers"
	"github.com/alem-hub/levelup/pkg/keylock"
	"github.com/alem-hub/levelup/pkg/logger"
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
	// 1. КОНФИГУРАЦИЯ И ЛОГИРОВАНИЕ
	// ─────────────────────────────────────────────────────────────────────────
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.ValidateBot(); err != nil {
		return fmt.Errorf("invalid bot config: %w", err)
	}

	log := bootstrap.SetupLogger(cfg, "bot")
	guildID := leveling.Snowflake(cfg.Discord.GuildID)
	log.Info("starting levelup bot",
		"env", cfg.App.Environment,
		"guild_id", guildID.String(),
		"driver", cfg.Database.Driver,
	)

	// ─────────────────────────────────────────────────────────────────────────
	// 2. ХРАНИЛИЩЕ И КЭШ
	// ─────────────────────────────────────────────────────────────────────────
	storage, err := bootstrap.OpenStorage(ctx, cfg.Database, log)
	if err != nil {
		return err
	}
	defer func() {
		log.Info("closing storage...")
		_ = storage.Close()
	}()

	var cache *bootstrap.Redis
	if cfg.Features.Enabled(config.FeatureLeaderboardCache) {
		cache = bootstrap.OpenRedisOptional(cfg.Redis, guildID, log)
	}
	if cache != nil {
		defer cache.Close()
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 3. EVENT BUS
	// ─────────────────────────────────────────────────────────────────────────
	busConfig := messaging.DefaultInMemoryEventBusConfig()
	busConfig.Logger = log
	busConfig.Observer = metrics.EventBusObserver{}
	bus := messaging.NewInMemoryEventBus(busConfig)
	defer bus.Close()

	// ─────────────────────────────────────────────────────────────────────────
	// 4. DISCORD-СЕССИЯ И ПЛАТФОРМА
	// ─────────────────────────────────────────────────────────────────────────
	session, err := discordgo.New("Bot " + cfg.Discord.Token)
	if err != nil {
		return fmt.Errorf("failed to create discord session: %w", err)
	}
	// BeforeUpdate on GuildMemberUpdate needs cached members.
	session.StateEnabled = true
	session.State.TrackMembers = true

	discord := platform.NewSessionClient(session, platform.Config{
		GuildID:   guildID,
		RateLimit: cfg.Discord.RateLimit,
		Burst:     cfg.Discord.RateLimitBurst,
	}, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 5. APPLICATION LAYER
	// ─────────────────────────────────────────────────────────────────────────
	settings := query.NewSettingsProvider(storage.Settings, guildID, cfg.Leveling.SettingsTTL, log)
	locks := keylock.New[leveling.Snowflake]()

	awards := command.NewAwardXPHandler(storage.Ranks, settings, discord, bus, command.AwardXPConfig{
		Cooldown:       cfg.Leveling.Cooldown,
		StorageTimeout: cfg.Leveling.StorageTimeout,
		Locks:          locks,
		Logger:         log,
		Metrics:        metrics.Recorder{},
	})

	var leaderboardCache query.LeaderboardCache
	if cache != nil {
		leaderboardCache = cache.Leaderboard
	}
	limits := query.LeaderboardLimits{
		Default: cfg.Leveling.LeaderboardDefaultLimit,
		Max:     cfg.Leveling.LeaderboardMaxLimit,
	}
	leaderboardQuery := query.NewGetLeaderboardHandler(storage.Ranks, leaderboardCache, limits, log)
	rankQuery := query.NewGetUserRankHandler(storage.Ranks, leaderboardCache, log)

	// ─────────────────────────────────────────────────────────────────────────
	// 6. ПОДПИСКИ НА СОБЫТИЯ
	// ─────────────────────────────────────────────────────────────────────────
	if err := subscribe(cfg, bus, storage, settings, discord, cache, log); err != nil {
		return err
	}

	// ─────────────────────────────────────────────────────────────────────────
	// 7. GATEWAY
	// ─────────────────────────────────────────────────────────────────────────
	bot := gateway.NewBot(gateway.BotConfig{
		GuildID:      guildID,
		VoiceTick:    cfg.Leveling.VoiceTick,
		VoiceEnabled: func() bool { return cfg.Features.Enabled(config.FeatureVoiceXP) },
		Logger:       log,
	}, awards, bus)
	bot.Register(session)

	if err := session.Open(); err != nil {
		return fmt.Errorf("failed to open discord gateway: %w", err)
	}
	log.Info("discord gateway connected")

	// ─────────────────────────────────────────────────────────────────────────
	// 8. HTTP: HEALTH, METRICS, READ API
	// ─────────────────────────────────────────────────────────────────────────
	health := handlers.NewCompositeHealthChecker(cfg.App.Version)
	health.AddCheck("storage", handlers.NewPingCheck(storage))
	if cache != nil {
		health.AddOptionalCheck("redis", handlers.NewPingCheck(cache.Cache))
	}

	httpConfig := httpserver.DefaultConfig()
	httpConfig.Addr = cfg.Observability.HTTPAddr
	httpConfig.EnableMetrics = cfg.Observability.MetricsEnabled
	server := httpserver.NewServer(httpConfig, httpserver.Dependencies{
		Leaderboard:    leaderboardQuery,
		Rank:           rankQuery,
		HealthChecker:  health,
		MetricsHandler: promhttp.Handler(),
		ReadAPIEnabled: func() bool { return cfg.Features.Enabled(config.FeatureReadAPI) },
		Logger:         log,
	})

	// ─────────────────────────────────────────────────────────────────────────
	// 9. ЗАПУСК
	// ─────────────────────────────────────────────────────────────────────────
	var maintenance *bootstrap.Maintenance
	if cfg.Scheduler.Enabled {
		maintenance, err = bootstrap.NewMaintenance(cfg, storage, cache, bus, locks, log)
		if err != nil {
			return err
		}
		if err := maintenance.Scheduler.Start(ctx); err != nil {
			return fmt.Errorf("failed to start scheduler: %w", err)
		}
		log.Info("in-process scheduler started")
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return server.Run(gctx, cfg.App.ShutdownTimeout)
	})
	g.Go(func() error {
		return bot.RunVoiceTicker(gctx)
	})

	log.Info("levelup bot is running", "http_addr", cfg.Observability.HTTPAddr)
	runErr := g.Wait()

	// ─────────────────────────────────────────────────────────────────────────
	// 10. GRACEFUL SHUTDOWN
	// Сначала перестаём принимать события, затем дожидаемся начислений,
	// затем обработчиков реактора.
	// ─────────────────────────────────────────────────────────────────────────
	log.Info("starting graceful shutdown...", "timeout", cfg.App.ShutdownTimeout.String())
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.App.ShutdownTimeout)
	defer cancel()

	bot.Unregister()
	if maintenance != nil {
		_ = maintenance.Scheduler.Stop()
	}
	if err := session.Close(); err != nil {
		log.Warn("failed to close discord session", logger.Err(err))
	}
	if err := awards.Wait(shutdownCtx); err != nil {
		log.Warn("in-flight awards did not finish", logger.Err(err))
	}
	if err := bus.Drain(shutdownCtx); err != nil {
		log.Warn("queued reactor handlers did not finish", logger.Err(err))
	}
	_ = bus.Close()

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	log.Info("shutdown completed")
	return nil
}

// subscribe attaches the progression reactor and the cache updater to bus.
func subscribe(
	cfg *config.Config,
	bus *messaging.InMemoryEventBus,
	storage *bootstrap.Storage,
	settings *query.SettingsProvider,
	discord leveling.Platform,
	cache *bootstrap.Redis,
	log *slog.Logger,
) error {
	guildID := leveling.Snowflake(cfg.Discord.GuildID)
	// Role grants and lookups share the Discord budget; give them room.
	reactorTimeout := 4 * cfg.Discord.RequestTimeout

	levelUp := eventhandler.NewOnLevelUpHandler(settings, discord,
		func() bool { return cfg.Features.Enabled(config.FeatureLevelUpNotifications) },
		reactorTimeout, log)
	if err := bus.Subscribe(shared.EventLevelUp, levelUp.EventHandler()); err != nil {
		return fmt.Errorf("subscribe level up: %w", err)
	}

	verified := eventhandler.NewOnMemberVerifiedHandler(storage.Ranks, settings, discord, guildID, reactorTimeout, log)
	restore := verified.EventHandler()
	if err := bus.Subscribe(shared.EventMemberVerified, func(e shared.Event) error {
		if !cfg.Features.Enabled(config.FeatureRestoreRoles) {
			return nil
		}
		return restore(e)
	}); err != nil {
		return fmt.Errorf("subscribe member verified: %w", err)
	}

	if cache != nil {
		updater := eventhandler.NewOnXPChangedHandler(cache.Leaderboard, log).EventHandler()
		for _, t := range []shared.EventType{shared.EventXPAwarded, shared.EventXPMoved} {
			if err := bus.Subscribe(t, updater); err != nil {
				return fmt.Errorf("subscribe %s: %w", t, err)
			}
		}
	}

	// Recalculation stamps the settings row; drop the cached snapshot.
	if err := bus.Subscribe(shared.EventLevelsRecalculated, func(shared.Event) error {
		settings.Invalidate()
		return nil
	}); err != nil {
		return fmt.Errorf("subscribe levels recalculated: %w", err)
	}

	return nil
}
