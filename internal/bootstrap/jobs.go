package bootstrap

import (
	"fmt"
	"log/slog"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/application/command"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/internal/infrastructure/metrics"
	"github.com/alem-hub/levelup/internal/infrastructure/scheduler"
	"github.com/alem-hub/levelup/internal/infrastructure/scheduler/jobs"
	"github.com/alem-hub/levelup/pkg/keylock"
)

// Maintenance holds the two maintenance commands and the scheduler running them.
type Maintenance struct {
	Scheduler   *scheduler.Scheduler
	Recalculate *command.RecalculateLevelsHandler
	Rebuild     *command.RebuildLeaderboardHandler
}

// NewMaintenance builds the recalculation handler, the leaderboard rebuild
// (only with Redis) and a scheduler with both registered. locks must be the
// set shared with the award handler when both run in one process.
func NewMaintenance(
	cfg *config.Config,
	storage *Storage,
	cache *Redis,
	publisher shared.EventPublisher,
	locks *keylock.Locker[leveling.Snowflake],
	log *slog.Logger,
) (*Maintenance, error) {
	schedConfig := scheduler.DefaultSchedulerConfig()
	schedConfig.Logger = log
	schedConfig.Observer = metrics.Recorder{}
	if cfg.Scheduler.JobTimeout > 0 {
		schedConfig.JobTimeout = cfg.Scheduler.JobTimeout
	}

	m := &Maintenance{
		Recalculate: command.NewRecalculateLevelsHandler(storage.Ranks, storage.Settings, publisher, command.RecalculateLevelsConfig{
			GuildID:        leveling.Snowflake(cfg.Discord.GuildID),
			BatchSize:      cfg.Leveling.RecalcBatchSize,
			StorageTimeout: cfg.Leveling.StorageTimeout,
			Locks:          locks,
			Logger:         log,
			Metrics:        metrics.Recorder{},
		}),
		Scheduler: scheduler.NewScheduler(schedConfig),
	}

	if err := m.Scheduler.Register(
		jobs.NewRecalculateLevelsJob(m.Recalculate),
		scheduler.NewIntervalSchedule(cfg.Scheduler.RecalculateInterval),
	); err != nil {
		return nil, fmt.Errorf("register %s: %w", jobs.NameRecalculateLevels, err)
	}

	if cache != nil {
		m.Rebuild = command.NewRebuildLeaderboardHandler(storage.Ranks, cache.Leaderboard, cache.Cache, log)
		schedule := scheduler.NewIntervalSchedule(cfg.Scheduler.RebuildLeaderboardInterval)
		schedule.RunAtStart = true
		if err := m.Scheduler.Register(jobs.NewRebuildLeaderboardJob(m.Rebuild), schedule); err != nil {
			return nil, fmt.Errorf("register %s: %w", jobs.NameRebuildLeaderboard, err)
		}
	}

	return m, nil
}
