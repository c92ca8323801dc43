// Package eventhandler содержит обработчики доменных событий.
// Обработчики - реактивная часть системы: они выдают роли за уровни,
// пишут поздравления в канал и поддерживают кеш лидерборда.
package eventhandler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ═══════════════════════════════════════════════════════════════════════════
// ON LEVEL UP HANDLER
// Реакция на повышение уровня:
// - за новый уровень назначена роль → выдаём роль и пишем наградное сообщение;
// - иначе пишем обычное поздравление.
// Выдача роли и отправка сообщения независимы: ошибка одной не отменяет другую.
// ═══════════════════════════════════════════════════════════════════════════

// SettingsSource yields the guild settings snapshot.
type SettingsSource interface {
	Snapshot(ctx context.Context) (leveling.SettingsSnapshot, error)
}

// OnLevelUpHandler обрабатывает LevelUpEvent.
type OnLevelUpHandler struct {
	settings SettingsSource
	platform leveling.Platform

	// notify gates the announcement; the role grant always happens.
	notify  func() bool
	timeout time.Duration
	logger  *slog.Logger
}

// NewOnLevelUpHandler создаёт обработчик. notify may be nil.
func NewOnLevelUpHandler(settings SettingsSource, platform leveling.Platform, notify func() bool, timeout time.Duration, log *slog.Logger) *OnLevelUpHandler {
	if log == nil {
		log = slog.Default()
	}
	if notify == nil {
		notify = func() bool { return true }
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &OnLevelUpHandler{
		settings: settings,
		platform: platform,
		notify:   notify,
		timeout:  timeout,
		logger:   log.With("handler", "on_level_up"),
	}
}

// EventHandler adapts Handle to the bus signature.
func (h *OnLevelUpHandler) EventHandler() shared.EventHandler {
	return func(event shared.Event) error {
		e, ok := event.(leveling.LevelUpEvent)
		if !ok {
			h.logger.Warn("received non-LevelUpEvent", "event_type", event.EventType())
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		return h.Handle(ctx, e)
	}
}

// Handle выдаёт награду и отправляет уведомление. Все ошибки платформы
// собираются и возвращаются вместе.
func (h *OnLevelUpHandler) Handle(ctx context.Context, e leveling.LevelUpEvent) error {
	snap, err := h.settings.Snapshot(ctx)
	if err != nil {
		return fmt.Errorf("on_level_up: %w", err)
	}

	log := h.logger.With(logger.UserID(e.UserID), logger.Level(e.NewLevel))
	var errs []error

	reward, hasReward := snap.RewardAt(e.NewLevel)
	tmpl := snap.Settings.LevelUpMessage
	if hasReward {
		tmpl = snap.Settings.LevelUpRewardMessage
		if err := h.platform.GrantRole(ctx, e.UserID, reward.RoleID); err != nil {
			log.Error("failed to grant reward role", logger.RoleID(reward.RoleID), logger.Err(err))
			errs = append(errs, err)
		} else {
			log.Info("reward role granted", logger.RoleID(reward.RoleID))
		}
	}

	if !h.notify() {
		return errors.Join(errs...)
	}

	channel := snap.Settings.LevelUpChannelID
	if channel.IsZero() {
		log.Debug("no level-up channel configured, skipping announcement")
		return errors.Join(errs...)
	}

	vars := leveling.TemplateVars{
		UserMention: h.platform.Mention(e.UserID),
		Level:       e.NewLevel,
	}
	// Имена запрашиваем только если шаблон их использует.
	if strings.Contains(tmpl, "{username}") {
		name, err := h.platform.DisplayName(ctx, e.UserID)
		if err != nil {
			log.Warn("display name lookup failed", logger.Err(err))
			name = vars.UserMention
		}
		vars.Username = name
	}
	if hasReward && strings.Contains(tmpl, "{rolename}") {
		name, err := h.platform.RoleName(ctx, reward.RoleID)
		if err != nil {
			log.Warn("role name lookup failed", logger.RoleID(reward.RoleID), logger.Err(err))
			name = reward.RoleID.String()
		}
		vars.RoleName = name
	}

	if err := h.platform.SendMessage(ctx, channel, leveling.FormatTemplate(tmpl, vars)); err != nil {
		log.Error("failed to send level-up message", logger.ChannelID(channel), logger.Err(err))
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
