// Package query contains read operations (CQRS - Queries).
package query

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// SETTINGS PROVIDER
// Читает настройки гильдии, таблицу наград и множители ролей одним снимком.
// Снимок кэшируется на TTL; одновременные промахи схлопываются в одну загрузку.
// ══════════════════════════════════════════════════════════════════════════════

// DefaultSettingsTTL is used when the provider is built with ttl <= 0.
const DefaultSettingsTTL = 30 * time.Second

// SettingsProvider serves settings snapshots for one guild.
type SettingsProvider struct {
	repo    leveling.SettingsRepository
	guildID leveling.Snowflake
	ttl     time.Duration
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.RWMutex
	cached *leveling.SettingsSnapshot
	loaded time.Time
	gen    uint64 // bumped by Invalidate

	group singleflight.Group
}

// NewSettingsProvider creates a SettingsProvider.
func NewSettingsProvider(repo leveling.SettingsRepository, guildID leveling.Snowflake, ttl time.Duration, logger *slog.Logger) *SettingsProvider {
	if ttl <= 0 {
		ttl = DefaultSettingsTTL
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &SettingsProvider{
		repo:    repo,
		guildID: guildID,
		ttl:     ttl,
		now:     time.Now,
		logger:  logger.With("component", "settings_provider"),
	}
}

// GuildID returns the guild the provider reads.
func (p *SettingsProvider) GuildID() leveling.Snowflake {
	return p.guildID
}

// Snapshot returns the cached snapshot or loads a fresh one. A missing
// settings row is not an error: the snapshot then carries the fallbacks and
// Configured is false. When a reload fails and an older snapshot exists, the
// older one is served and the failure logged.
func (p *SettingsProvider) Snapshot(ctx context.Context) (leveling.SettingsSnapshot, error) {
	p.mu.RLock()
	if p.cached != nil && p.now().Sub(p.loaded) < p.ttl {
		snap := *p.cached
		p.mu.RUnlock()
		return snap, nil
	}
	gen := p.gen
	p.mu.RUnlock()

	// Keyed by generation: a caller arriving after Invalidate must not join
	// a load that started before it.
	v, err, _ := p.group.Do("snapshot:"+strconv.FormatUint(gen, 10), func() (any, error) {
		return p.load(ctx, gen)
	})
	if err != nil {
		p.mu.RLock()
		stale := p.cached
		p.mu.RUnlock()
		if stale != nil {
			p.logger.Warn("settings reload failed, serving stale snapshot",
				"error", err,
				"age", p.now().Sub(stale.LoadedAt),
			)
			return *stale, nil
		}
		return leveling.SettingsSnapshot{}, err
	}
	return v.(leveling.SettingsSnapshot), nil
}

// load reads a fresh snapshot and caches it unless Invalidate ran since gen
// was taken. The caller still gets what was read.
func (p *SettingsProvider) load(ctx context.Context, gen uint64) (leveling.SettingsSnapshot, error) {
	settings, found, err := p.repo.GetSettings(ctx, p.guildID)
	if err != nil {
		return leveling.SettingsSnapshot{}, fmt.Errorf("load settings: %w", err)
	}
	if !found {
		p.logger.Debug("no settings row, using defaults", "guild_id", p.guildID.String())
	}

	rewards, err := p.repo.ListRewards(ctx)
	if err != nil {
		return leveling.SettingsSnapshot{}, fmt.Errorf("load rewards: %w", err)
	}
	overrides, err := p.repo.ListMultiplierOverrides(ctx)
	if err != nil {
		return leveling.SettingsSnapshot{}, fmt.Errorf("load multiplier overrides: %w", err)
	}

	now := p.now()
	snap := leveling.NewSettingsSnapshot(settings, found, rewards, overrides, now)

	p.mu.Lock()
	if p.gen == gen {
		p.cached = &snap
		p.loaded = now
	}
	p.mu.Unlock()

	return snap, nil
}

// Invalidate forces the next Snapshot call to reload.
func (p *SettingsProvider) Invalidate() {
	p.mu.Lock()
	p.cached = nil
	p.gen++
	p.mu.Unlock()
}

// ─────────────────────────────────────────────────────────────────────────────
// Accessors
// ─────────────────────────────────────────────────────────────────────────────

// IsActivityEnabled reports the toggle for activity.
func (p *SettingsProvider) IsActivityEnabled(ctx context.Context, activity leveling.ActivityType) (bool, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return false, err
	}
	return snap.IsActivityEnabled(activity), nil
}

// MultiplierFor returns the base multiplier of activity.
func (p *SettingsProvider) MultiplierFor(ctx context.Context, activity leveling.ActivityType) (float64, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.MultiplierFor(activity), nil
}

// LevelUpMessageTemplate returns the plain level-up template.
func (p *SettingsProvider) LevelUpMessageTemplate(ctx context.Context) (string, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.Settings.LevelUpMessage, nil
}

// LevelUpRewardMessageTemplate returns the template used when a role is granted.
func (p *SettingsProvider) LevelUpRewardMessageTemplate(ctx context.Context) (string, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return "", err
	}
	return snap.Settings.LevelUpRewardMessage, nil
}

// NotificationChannel returns the level-up channel; 0 means none configured.
func (p *SettingsProvider) NotificationChannel(ctx context.Context) (leveling.Snowflake, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Settings.LevelUpChannelID, nil
}

// RewardTable returns the rewards by level ascending.
func (p *SettingsProvider) RewardTable(ctx context.Context) ([]leveling.LevelReward, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Rewards, nil
}

// MultiplierOverrides returns the role overrides.
func (p *SettingsProvider) MultiplierOverrides(ctx context.Context) ([]leveling.MultiplierOverride, error) {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Overrides, nil
}
