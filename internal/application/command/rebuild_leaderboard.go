package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// REBUILD LEADERBOARD COMMAND
// Replaces the cached ranking with a full read of the store. Several workers
// may run the job; an optional distributed lock lets only one of them do it.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardRebuilder is the cache side of the rebuild.
type LeaderboardRebuilder interface {
	RebuildFromSnapshot(ctx context.Context, entries []leveling.LeaderboardEntry) error
	MergeEntries(ctx context.Context, entries []leveling.LeaderboardEntry) error
}

// JobLock is a best-effort cross-process mutex.
type JobLock interface {
	TryLock(ctx context.Context, name, token string, ttl time.Duration) (release func(context.Context) error, ok bool, err error)
}

// RebuildLeaderboardResult summarizes one rebuild.
type RebuildLeaderboardResult struct {
	Entries int
	Skipped bool
}

// RebuildLeaderboardHandler rebuilds the leaderboard cache.
type RebuildLeaderboardHandler struct {
	store  leveling.RankStore
	cache  LeaderboardRebuilder
	lock   JobLock
	ttl    time.Duration
	logger *slog.Logger
}

// NewRebuildLeaderboardHandler creates the handler. lock may be nil.
func NewRebuildLeaderboardHandler(store leveling.RankStore, cache LeaderboardRebuilder, lock JobLock, log *slog.Logger) *RebuildLeaderboardHandler {
	if log == nil {
		log = slog.Default()
	}
	return &RebuildLeaderboardHandler{
		store:  store,
		cache:  cache,
		lock:   lock,
		ttl:    2 * time.Minute,
		logger: log.With(logger.Component("rebuild_leaderboard")),
	}
}

// Handle runs the rebuild. Skipped is set when another process holds the lock.
func (h *RebuildLeaderboardHandler) Handle(ctx context.Context) (*RebuildLeaderboardResult, error) {
	if h.lock != nil {
		release, ok, err := h.lock.TryLock(ctx, "rebuild_leaderboard", uuid.NewString(), h.ttl)
		if err != nil {
			return nil, fmt.Errorf("rebuild_leaderboard: lock: %w", err)
		}
		if !ok {
			h.logger.Debug("rebuild already running elsewhere")
			return &RebuildLeaderboardResult{Skipped: true}, nil
		}
		defer func() {
			if err := release(context.WithoutCancel(ctx)); err != nil {
				h.logger.Warn("failed to release rebuild lock", logger.Err(err))
			}
		}()
	}

	entries, err := h.store.Leaderboard(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("rebuild_leaderboard: read store: %w", err)
	}
	if err := h.cache.RebuildFromSnapshot(ctx, entries); err != nil {
		return nil, fmt.Errorf("rebuild_leaderboard: %w", err)
	}

	// Updates that landed between the read and the rebuild were wiped with
	// the old set; a second read puts them back without lowering newer ones.
	fresh, err := h.store.Leaderboard(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("rebuild_leaderboard: re-read store: %w", err)
	}
	if err := h.cache.MergeEntries(ctx, fresh); err != nil {
		return nil, fmt.Errorf("rebuild_leaderboard: merge: %w", err)
	}
	entries = fresh

	h.logger.Info("leaderboard cache rebuilt", "entries", len(entries))
	return &RebuildLeaderboardResult{Entries: len(entries)}, nil
}
