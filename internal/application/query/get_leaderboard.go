package query

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET LEADERBOARD QUERY
// Топ участников по XP. Сначала кэш Redis; при холодном кэше читаем базу
// целиком и заново заполняем кэш.
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache is the optional ranked view in front of the store.
// ok=false means the cache is cold and the store must answer.
type LeaderboardCache interface {
	GetTop(ctx context.Context, limit int) (entries []leveling.LeaderboardEntry, ok bool, err error)
	GetRank(ctx context.Context, userID leveling.Snowflake) (rank int, found, ok bool, err error)
	RebuildFromSnapshot(ctx context.Context, entries []leveling.LeaderboardEntry) error
	MergeEntries(ctx context.Context, entries []leveling.LeaderboardEntry) error
}

// GetLeaderboardQuery asks for the top Limit entries; 0 uses the default.
type GetLeaderboardQuery struct {
	Limit int
}

// GetLeaderboardResult is the ranked page.
type GetLeaderboardResult struct {
	Entries   leveling.Leaderboard `json:"entries"`
	FromCache bool                 `json:"from_cache"`
}

// LeaderboardLimits bounds the page size.
type LeaderboardLimits struct {
	Default int
	Max     int
}

// GetLeaderboardHandler serves GetLeaderboardQuery.
type GetLeaderboardHandler struct {
	store  leveling.RankStore
	cache  LeaderboardCache
	limits LeaderboardLimits
	logger *slog.Logger
}

// NewGetLeaderboardHandler creates the handler. cache may be nil.
func NewGetLeaderboardHandler(store leveling.RankStore, cache LeaderboardCache, limits LeaderboardLimits, logger *slog.Logger) *GetLeaderboardHandler {
	if limits.Default <= 0 {
		limits.Default = 10
	}
	if limits.Max <= 0 {
		limits.Max = 100
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &GetLeaderboardHandler{
		store:  store,
		cache:  cache,
		limits: limits,
		logger: logger.With("component", "get_leaderboard"),
	}
}

func (h *GetLeaderboardHandler) clamp(limit int) int {
	if limit <= 0 {
		return h.limits.Default
	}
	if limit > h.limits.Max {
		return h.limits.Max
	}
	return limit
}

// Handle returns the leaderboard. An empty store yields the single
// placeholder entry.
func (h *GetLeaderboardHandler) Handle(ctx context.Context, q GetLeaderboardQuery) (*GetLeaderboardResult, error) {
	limit := h.clamp(q.Limit)

	if h.cache != nil {
		entries, ok, err := h.cache.GetTop(ctx, limit)
		switch {
		case err != nil:
			h.logger.Warn("leaderboard cache read failed", "error", err)
		case ok:
			return &GetLeaderboardResult{Entries: leveling.NewLeaderboard(entries), FromCache: true}, nil
		default:
			return h.loadAndWarm(ctx, limit)
		}
	}

	entries, err := h.store.Leaderboard(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	return &GetLeaderboardResult{Entries: leveling.NewLeaderboard(entries)}, nil
}

// loadAndWarm rebuilds the cold cache from the store. Awards committed while
// the board was cold skipped the cache, so the store is read a second time
// after the rebuild and merged in.
func (h *GetLeaderboardHandler) loadAndWarm(ctx context.Context, limit int) (*GetLeaderboardResult, error) {
	all, err := h.store.Leaderboard(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("get_leaderboard: %w", err)
	}
	if err := h.cache.RebuildFromSnapshot(ctx, all); err != nil {
		h.logger.Warn("leaderboard cache rebuild failed", "error", err)
		return &GetLeaderboardResult{Entries: leveling.NewLeaderboard(all).Top(limit)}, nil
	}

	fresh, err := h.store.Leaderboard(ctx, 0)
	if err != nil {
		h.logger.Warn("leaderboard re-read failed", "error", err)
		return &GetLeaderboardResult{Entries: leveling.NewLeaderboard(all).Top(limit)}, nil
	}
	if err := h.cache.MergeEntries(ctx, fresh); err != nil {
		h.logger.Warn("leaderboard cache merge failed", "error", err)
	}
	return &GetLeaderboardResult{Entries: leveling.NewLeaderboard(fresh).Top(limit)}, nil
}
