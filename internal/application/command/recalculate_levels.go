package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/keylock"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// RECALCULATE LEVELS COMMAND
// Rewrites stored levels from stored XP. XP is never written here: the level
// update is conditional on the XP read a moment before, so a concurrent award
// always wins.
// ══════════════════════════════════════════════════════════════════════════════

// RecalcMetrics observes recalculation runs.
type RecalcMetrics interface {
	RecordRecalculation(updated, skipped int, err error)
}

type nopRecalcMetrics struct{}

func (nopRecalcMetrics) RecordRecalculation(int, int, error) {}

// RecalculateLevelsResult summarizes one run.
type RecalculateLevelsResult struct {
	RunID    string
	Scanned  int
	Updated  int
	Skipped  int
	Duration time.Duration
}

// RecalculateLevelsConfig contains configuration for the handler.
type RecalculateLevelsConfig struct {
	GuildID        leveling.Snowflake
	BatchSize      int
	StorageTimeout time.Duration

	// Locks must be the set used by the award handler.
	Locks *keylock.Locker[leveling.Snowflake]

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics RecalcMetrics
}

// RecalculateLevelsHandler runs single-user and full recalculations.
type RecalculateLevelsHandler struct {
	store     leveling.RankStore
	settings  leveling.SettingsRepository
	publisher shared.EventPublisher

	guildID        leveling.Snowflake
	batchSize      int
	storageTimeout time.Duration
	locks          *keylock.Locker[leveling.Snowflake]
	now            func() time.Time
	logger         *slog.Logger
	metrics        RecalcMetrics
}

// NewRecalculateLevelsHandler creates a new RecalculateLevelsHandler.
func NewRecalculateLevelsHandler(
	store leveling.RankStore,
	settings leveling.SettingsRepository,
	publisher shared.EventPublisher,
	config RecalculateLevelsConfig,
) *RecalculateLevelsHandler {
	if config.BatchSize <= 0 {
		config.BatchSize = 500
	}
	if config.StorageTimeout <= 0 {
		config.StorageTimeout = 5 * time.Second
	}
	if config.Locks == nil {
		config.Locks = keylock.New[leveling.Snowflake]()
	}
	if config.Now == nil {
		config.Now = time.Now
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.Metrics == nil {
		config.Metrics = nopRecalcMetrics{}
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	return &RecalculateLevelsHandler{
		store:          store,
		settings:       settings,
		publisher:      publisher,
		guildID:        config.GuildID,
		batchSize:      config.BatchSize,
		storageTimeout: config.StorageTimeout,
		locks:          config.Locks,
		now:            config.Now,
		logger:         config.Logger.With(logger.Component("recalculate_levels")),
		metrics:        config.Metrics,
	}
}

// RecalculateLevel fixes the stored level of one user. It reports whether
// the row changed.
func (h *RecalculateLevelsHandler) RecalculateLevel(ctx context.Context, userID leveling.Snowflake) (bool, error) {
	if userID.IsZero() {
		return false, shared.NewDomainError("leveling", "recalculate_level", shared.ErrInvalidInput, "user_id is required")
	}

	unlock := h.locks.Lock(userID)
	defer unlock()

	sctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	rec, err := h.store.GetRecord(sctx, userID)
	cancel()
	if err != nil {
		return false, fmt.Errorf("recalculate_level: %w", err)
	}
	if rec.LevelConsistent() {
		return false, nil
	}
	return h.setLevel(ctx, rec)
}

// setLevel expects the user lock to be held.
func (h *RecalculateLevelsHandler) setLevel(ctx context.Context, rec leveling.UserLevelRecord) (bool, error) {
	sctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()

	level := leveling.LevelAtXp(rec.CurrentXP)
	ok, err := h.store.SetLevel(sctx, rec.UserID, rec.CurrentXP, level)
	if err != nil {
		return false, fmt.Errorf("set level: %w", err)
	}
	if ok {
		h.logger.Debug("level corrected",
			logger.UserID(rec.UserID),
			"from", rec.CurrentLevel,
			logger.Level(level),
		)
	}
	return ok, nil
}

// Handle recalculates every stored record and stamps the guild settings row.
func (h *RecalculateLevelsHandler) Handle(ctx context.Context) (*RecalculateLevelsResult, error) {
	start := time.Now()
	res := &RecalculateLevelsResult{RunID: uuid.NewString()}
	log := h.logger.With("run_id", res.RunID)

	err := h.run(ctx, res)
	res.Duration = time.Since(start)
	h.metrics.RecordRecalculation(res.Updated, res.Skipped, err)
	if err != nil {
		log.Error("recalculation aborted",
			"scanned", res.Scanned,
			"updated", res.Updated,
			logger.Err(err),
		)
		return res, err
	}

	sctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	if err := h.settings.MarkRecalculated(sctx, h.guildID, h.now()); err != nil {
		log.Warn("failed to stamp recalculation time", logger.Err(err))
	}
	cancel()

	if err := h.publisher.Publish(leveling.NewLevelsRecalculatedEvent(res.RunID, res.Scanned, res.Updated, res.Skipped)); err != nil {
		log.Warn("failed to publish recalculation event", logger.Err(err))
	}

	log.Info("recalculation finished",
		"scanned", res.Scanned,
		"updated", res.Updated,
		"skipped", res.Skipped,
		logger.Latency(res.Duration),
	)
	return res, nil
}

func (h *RecalculateLevelsHandler) run(ctx context.Context, res *RecalculateLevelsResult) error {
	var after leveling.Snowflake
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		sctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
		batch, err := h.store.ListRecords(sctx, after, h.batchSize)
		cancel()
		if err != nil {
			return fmt.Errorf("list records after %s: %w", after, err)
		}
		if len(batch) == 0 {
			return nil
		}

		for _, rec := range batch {
			res.Scanned++
			if rec.LevelConsistent() {
				continue
			}
			ok, err := h.lockedSetLevel(ctx, rec)
			if err != nil {
				if errors.Is(err, context.Canceled) {
					return err
				}
				h.logger.Warn("level correction failed", logger.UserID(rec.UserID), logger.Err(err))
				res.Skipped++
				continue
			}
			if ok {
				res.Updated++
			} else {
				res.Skipped++
			}
		}

		after = batch[len(batch)-1].UserID
		if len(batch) < h.batchSize {
			return nil
		}
	}
}

func (h *RecalculateLevelsHandler) lockedSetLevel(ctx context.Context, rec leveling.UserLevelRecord) (bool, error) {
	unlock := h.locks.Lock(rec.UserID)
	defer unlock()
	return h.setLevel(ctx, rec)
}
