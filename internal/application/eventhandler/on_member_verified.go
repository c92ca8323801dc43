package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON MEMBER VERIFIED HANDLER
// Участник принял правила сервера: возвращаем все роли-награды за уровни,
// которых он уже достиг.
// ═══════════════════════════════════════════════════════════════════════════

// OnMemberVerifiedHandler обрабатывает MemberVerifiedEvent.
type OnMemberVerifiedHandler struct {
	store    leveling.RankStore
	settings SettingsSource
	platform leveling.Platform
	guildID  leveling.Snowflake
	timeout  time.Duration
	logger   *slog.Logger
}

// NewOnMemberVerifiedHandler создаёт обработчик для гильдии guildID.
func NewOnMemberVerifiedHandler(
	store leveling.RankStore,
	settings SettingsSource,
	platform leveling.Platform,
	guildID leveling.Snowflake,
	timeout time.Duration,
	log *slog.Logger,
) *OnMemberVerifiedHandler {
	if log == nil {
		log = slog.Default()
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OnMemberVerifiedHandler{
		store:    store,
		settings: settings,
		platform: platform,
		guildID:  guildID,
		timeout:  timeout,
		logger:   log.With("handler", "on_member_verified"),
	}
}

// EventHandler adapts Handle to the bus signature.
func (h *OnMemberVerifiedHandler) EventHandler() shared.EventHandler {
	return func(event shared.Event) error {
		e, ok := event.(leveling.MemberVerifiedEvent)
		if !ok {
			h.logger.Warn("received non-MemberVerifiedEvent", "event_type", event.EventType())
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		_, err := h.Handle(ctx, e)
		return err
	}
}

// Handle grants every reward up to the stored level, lowest first, and
// returns the roles granted. A failed grant does not stop the others.
func (h *OnMemberVerifiedHandler) Handle(ctx context.Context, e leveling.MemberVerifiedEvent) ([]leveling.Snowflake, error) {
	if e.GuildID != h.guildID {
		h.logger.Debug("ignoring verification in foreign guild", "guild_id", e.GuildID.String())
		return nil, nil
	}

	if err := h.store.EnsureUser(ctx, e.UserID); err != nil {
		return nil, fmt.Errorf("on_member_verified: %w", err)
	}
	rec, err := h.store.GetRecord(ctx, e.UserID)
	if err != nil {
		return nil, fmt.Errorf("on_member_verified: %w", err)
	}
	snap, err := h.settings.Snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("on_member_verified: %w", err)
	}

	log := h.logger.With(logger.UserID(e.UserID), logger.Level(rec.CurrentLevel))
	var granted []leveling.Snowflake
	var errs []error
	for _, r := range snap.RewardsUpTo(rec.CurrentLevel) {
		if err := h.platform.GrantRole(ctx, e.UserID, r.RoleID); err != nil {
			log.Error("failed to restore reward role", logger.RoleID(r.RoleID), "reward_level", r.Level, logger.Err(err))
			errs = append(errs, err)
			continue
		}
		granted = append(granted, r.RoleID)
	}

	if len(granted) > 0 {
		log.Info("reward roles restored", "count", len(granted))
	}
	return granted, errors.Join(errs...)
}
