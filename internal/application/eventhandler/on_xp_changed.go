package eventhandler

import (
	"context"
	"log/slog"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// LeaderboardUpdater keeps a cached ranking in step with committed writes.
type LeaderboardUpdater interface {
	UpdateEntry(ctx context.Context, e leveling.LeaderboardEntry) error
	Invalidate(ctx context.Context) error
}

// OnXPChangedHandler переносит изменения XP в кеш лидерборда.
type OnXPChangedHandler struct {
	cache   LeaderboardUpdater
	timeout time.Duration
	logger  *slog.Logger
}

// NewOnXPChangedHandler создаёт обработчик.
func NewOnXPChangedHandler(cache LeaderboardUpdater, log *slog.Logger) *OnXPChangedHandler {
	if log == nil {
		log = slog.Default()
	}
	return &OnXPChangedHandler{
		cache:   cache,
		timeout: 2 * time.Second,
		logger:  log.With("handler", "on_xp_changed"),
	}
}

// EventHandler handles XPAwardedEvent and XPTransferredEvent. A transfer
// carries no totals, so it drops the cache and the next read rebuilds it.
func (h *OnXPChangedHandler) EventHandler() shared.EventHandler {
	return func(event shared.Event) error {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()

		switch e := event.(type) {
		case leveling.XPAwardedEvent:
			return h.cache.UpdateEntry(ctx, leveling.LeaderboardEntry{UserID: e.UserID, XP: e.NewXP, Level: e.NewLevel})
		case leveling.XPTransferredEvent:
			h.logger.Debug("transfer invalidates leaderboard cache", "from", e.From.String(), "to", e.To.String())
			return h.cache.Invalidate(ctx)
		}
		return nil
	}
}
