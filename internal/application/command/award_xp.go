// Package command contains write operations (CQRS - Commands).
package command

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/keylock"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// AWARD XP COMMAND
// Turns one unit of activity (a chat message, a voice tick) into XP. Checks the
// toggle and the cooldown, applies the role multipliers and writes the new
// total conditionally. A level increase is published as LevelUpEvent.
// ══════════════════════════════════════════════════════════════════════════════

// AwardOutcome is the terminal state of one award attempt.
type AwardOutcome string

const (
	AwardGranted     AwardOutcome = "granted"
	AwardDisabled    AwardOutcome = "disabled"
	AwardCoolingDown AwardOutcome = "cooling_down"
	AwardRaceLost    AwardOutcome = "race_lost"
)

// maxAwardAttempts bounds the read-compute-write loop.
const maxAwardAttempts = 2

// AwardXPCommand asks for BaseXP of Activity to be credited to UserID.
type AwardXPCommand struct {
	UserID   leveling.Snowflake
	BaseXP   int
	Activity leveling.ActivityType
}

// Validate validates the command.
func (c AwardXPCommand) Validate() error {
	if c.UserID.IsZero() {
		return errors.New("user_id is required")
	}
	if c.BaseXP < 0 {
		return fmt.Errorf("base_xp must not be negative, got %d", c.BaseXP)
	}
	if !c.Activity.Valid() {
		return fmt.Errorf("unknown activity %q", c.Activity)
	}
	return nil
}

// AwardXPResult describes what the attempt did.
type AwardXPResult struct {
	Outcome       AwardOutcome
	Granted       int
	Multiplier    float64
	PreviousXP    int
	NewXP         int
	PreviousLevel int
	NewLevel      int
	LeveledUp     bool
}

// SettingsSource yields the guild settings snapshot.
type SettingsSource interface {
	Snapshot(ctx context.Context) (leveling.SettingsSnapshot, error)
}

// RoleSource lists the roles a member holds.
type RoleSource interface {
	RolesHeld(ctx context.Context, userID leveling.Snowflake) ([]leveling.Snowflake, error)
}

// AwardMetrics observes award attempts.
type AwardMetrics interface {
	RecordAward(activity, outcome string, xp int, d time.Duration)
	RecordLevelUp()
}

type nopAwardMetrics struct{}

func (nopAwardMetrics) RecordAward(string, string, int, time.Duration) {}
func (nopAwardMetrics) RecordLevelUp()                                 {}

// ══════════════════════════════════════════════════════════════════════════════
// HANDLER
// ══════════════════════════════════════════════════════════════════════════════

// AwardXPConfig contains configuration for the handler.
type AwardXPConfig struct {
	// Cooldown between two grants of the same activity to one user.
	Cooldown time.Duration

	// StorageTimeout bounds every single storage call.
	StorageTimeout time.Duration

	// Locks serializes work per user. Share it with the recalculation and
	// transfer handlers. nil creates a private set.
	Locks *keylock.Locker[leveling.Snowflake]

	Now     func() time.Time
	Logger  *slog.Logger
	Metrics AwardMetrics
}

// DefaultAwardXPConfig returns default configuration.
func DefaultAwardXPConfig() AwardXPConfig {
	return AwardXPConfig{
		Cooldown:       leveling.DefaultCooldown,
		StorageTimeout: 5 * time.Second,
	}
}

// AwardXPHandler handles AwardXPCommand.
type AwardXPHandler struct {
	store     leveling.RankStore
	settings  SettingsSource
	roles     RoleSource
	publisher shared.EventPublisher

	cooldown       time.Duration
	storageTimeout time.Duration
	locks          *keylock.Locker[leveling.Snowflake]
	now            func() time.Time
	logger         *slog.Logger
	metrics        AwardMetrics

	inflight sync.WaitGroup
}

// NewAwardXPHandler creates a new AwardXPHandler. roles may be nil, in which
// case only the base multiplier applies.
func NewAwardXPHandler(
	store leveling.RankStore,
	settings SettingsSource,
	roles RoleSource,
	publisher shared.EventPublisher,
	config AwardXPConfig,
) *AwardXPHandler {
	defaults := DefaultAwardXPConfig()
	if config.Cooldown <= 0 {
		config.Cooldown = defaults.Cooldown
	}
	if config.StorageTimeout <= 0 {
		config.StorageTimeout = defaults.StorageTimeout
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
		config.Metrics = nopAwardMetrics{}
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}

	return &AwardXPHandler{
		store:          store,
		settings:       settings,
		roles:          roles,
		publisher:      publisher,
		cooldown:       config.Cooldown,
		storageTimeout: config.StorageTimeout,
		locks:          config.Locks,
		now:            config.Now,
		logger:         config.Logger.With(logger.Component("award_xp")),
		metrics:        config.Metrics,
	}
}

// Locks returns the per-user lock set.
func (h *AwardXPHandler) Locks() *keylock.Locker[leveling.Snowflake] {
	return h.locks
}

// Handle executes the award synchronously. Disabled, CoolingDown and RaceLost
// are outcomes, not errors.
func (h *AwardXPHandler) Handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	start := time.Now()
	res, err := h.handle(ctx, cmd)

	outcome := "error"
	granted := 0
	if err == nil {
		outcome = string(res.Outcome)
		granted = res.Granted
	}
	h.metrics.RecordAward(string(cmd.Activity), outcome, granted, time.Since(start))
	return res, err
}

func (h *AwardXPHandler) handle(ctx context.Context, cmd AwardXPCommand) (*AwardXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, shared.WrapError("leveling", "award_xp", shared.ErrInvalidInput, "validation failed", err)
	}

	var snap leveling.SettingsSnapshot
	if err := h.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		snap, err = h.settings.Snapshot(ctx)
		return err
	}); err != nil {
		return nil, fmt.Errorf("award_xp: %w", err)
	}
	if !snap.IsActivityEnabled(cmd.Activity) {
		return &AwardXPResult{Outcome: AwardDisabled}, nil
	}

	if err := h.withTimeout(ctx, func(ctx context.Context) error {
		return h.store.EnsureUser(ctx, cmd.UserID)
	}); err != nil {
		return nil, fmt.Errorf("award_xp: ensure user: %w", err)
	}

	unlock := h.locks.Lock(cmd.UserID)
	defer unlock()

	multiplier, resolved := 0.0, false
	for attempt := 1; attempt <= maxAwardAttempts; attempt++ {
		var rec leveling.UserLevelRecord
		if err := h.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			rec, err = h.store.GetRecord(ctx, cmd.UserID)
			return err
		}); err != nil {
			return nil, fmt.Errorf("award_xp: read record: %w", err)
		}

		now := h.now()
		if rec.CoolingDown(cmd.Activity, now, h.cooldown) {
			return &AwardXPResult{
				Outcome:       AwardCoolingDown,
				PreviousXP:    rec.CurrentXP,
				NewXP:         rec.CurrentXP,
				PreviousLevel: rec.CurrentLevel,
				NewLevel:      rec.CurrentLevel,
			}, nil
		}

		if !resolved {
			multiplier = h.effectiveMultiplier(ctx, snap, cmd)
			resolved = true
		}
		xp := leveling.XPToGive(multiplier, cmd.BaseXP)
		newXP := rec.CurrentXP + xp
		newLevel := leveling.LevelAtXp(newXP)

		var applied bool
		if err := h.withTimeout(ctx, func(ctx context.Context) error {
			var err error
			applied, err = h.store.ApplyAward(ctx, leveling.AwardUpdate{
				UserID:           cmd.UserID,
				Activity:         cmd.Activity,
				ExpectedXP:       rec.CurrentXP,
				ExpectedRewardAt: rec.LastRewardAt(cmd.Activity),
				NewXP:            newXP,
				NewLevel:         newLevel,
				RewardAt:         now,
				Cooldown:         h.cooldown,
			})
			return err
		}); err != nil {
			return nil, fmt.Errorf("award_xp: apply: %w", err)
		}
		if !applied {
			h.logger.Debug("award condition lost", logger.UserID(cmd.UserID), "attempt", attempt)
			continue
		}

		res := &AwardXPResult{
			Outcome:       AwardGranted,
			Granted:       xp,
			Multiplier:    multiplier,
			PreviousXP:    rec.CurrentXP,
			NewXP:         newXP,
			PreviousLevel: rec.CurrentLevel,
			NewLevel:      newLevel,
			LeveledUp:     newLevel > rec.CurrentLevel,
		}
		h.publish(cmd, res)
		return res, nil
	}

	h.logger.Warn("award dropped after repeated conflicts",
		logger.UserID(cmd.UserID),
		logger.Activity(cmd.Activity),
	)
	return &AwardXPResult{Outcome: AwardRaceLost}, nil
}

func (h *AwardXPHandler) effectiveMultiplier(ctx context.Context, snap leveling.SettingsSnapshot, cmd AwardXPCommand) float64 {
	base := snap.MultiplierFor(cmd.Activity)
	if h.roles == nil || len(snap.Overrides) == 0 {
		return base
	}
	// Runs under the user lock, so it gets the same bound as storage.
	var held []leveling.Snowflake
	err := h.withTimeout(ctx, func(ctx context.Context) error {
		var err error
		held, err = h.roles.RolesHeld(ctx, cmd.UserID)
		return err
	})
	if err != nil {
		h.logger.Warn("role lookup failed, using base multiplier",
			logger.UserID(cmd.UserID),
			logger.Err(err),
		)
		return base
	}
	return leveling.EffectiveMultiplier(base, snap.Overrides, held)
}

func (h *AwardXPHandler) publish(cmd AwardXPCommand, res *AwardXPResult) {
	if err := h.publisher.Publish(leveling.NewXPAwardedEvent(cmd.UserID, res.Granted, res.NewXP, res.NewLevel, cmd.Activity)); err != nil {
		h.logger.Warn("failed to publish xp awarded", logger.UserID(cmd.UserID), logger.Err(err))
	}
	if !res.LeveledUp {
		return
	}
	h.metrics.RecordLevelUp()
	h.logger.Info("level up",
		logger.UserID(cmd.UserID),
		logger.Level(res.NewLevel),
		logger.XP(res.NewXP),
	)
	if err := h.publisher.Publish(leveling.NewLevelUpEvent(cmd.UserID, res.PreviousLevel, res.NewLevel, res.NewXP, cmd.Activity)); err != nil {
		h.logger.Error("failed to publish level up", logger.UserID(cmd.UserID), logger.Err(err))
	}
}

func (h *AwardXPHandler) withTimeout(ctx context.Context, fn func(context.Context) error) error {
	ctx, cancel := context.WithTimeout(ctx, h.storageTimeout)
	defer cancel()
	return fn(ctx)
}

// ─────────────────────────────────────────────────────────────────────────────
// Fire-and-forget entry point
// ─────────────────────────────────────────────────────────────────────────────

// Dispatch runs the award on its own goroutine and returns immediately.
// Failures are logged; nothing is reported back to the caller.
func (h *AwardXPHandler) Dispatch(cmd AwardXPCommand) {
	h.inflight.Add(1)
	go func() {
		defer h.inflight.Done()
		defer func() {
			if r := recover(); r != nil {
				h.logger.Error("award panicked",
					logger.UserID(cmd.UserID),
					"panic", r,
					"stack", string(debug.Stack()),
				)
			}
		}()

		if _, err := h.Handle(context.Background(), cmd); err != nil {
			h.logger.Error("award failed",
				logger.UserID(cmd.UserID),
				logger.Activity(cmd.Activity),
				logger.Err(err),
			)
		}
	}()
}

// Wait blocks until every dispatched award finished or ctx is done.
func (h *AwardXPHandler) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		h.inflight.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
