package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// GET USER RANK QUERY
// Позиция пользователя, его XP, уровень и прогресс до следующего уровня.
// ══════════════════════════════════════════════════════════════════════════════

// GetUserRankQuery identifies the user.
type GetUserRankQuery struct {
	UserID leveling.Snowflake
}

// Validate checks the query.
func (q GetUserRankQuery) Validate() error {
	if q.UserID.IsZero() {
		return errors.New("user_id is required")
	}
	return nil
}

// UserRankDTO is the rank card. Rank is 0 and Found false for users that
// never earned XP.
type UserRankDTO struct {
	UserID     leveling.Snowflake `json:"user_id,string"`
	Rank       int                `json:"rank"`
	Found      bool               `json:"found"`
	XP         int                `json:"xp"`
	Level      int                `json:"level"`
	XPToNext   int                `json:"xp_to_next"`
	LevelMinXP int                `json:"level_min_xp"`
	LevelMaxXP int                `json:"level_max_xp"`
	FromCache  bool               `json:"from_cache"`
}

// GetUserRankHandler serves GetUserRankQuery.
type GetUserRankHandler struct {
	store  leveling.RankStore
	cache  LeaderboardCache
	logger *slog.Logger
}

// NewGetUserRankHandler creates the handler. cache may be nil.
func NewGetUserRankHandler(store leveling.RankStore, cache LeaderboardCache, logger *slog.Logger) *GetUserRankHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &GetUserRankHandler{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "get_user_rank"),
	}
}

// Handle returns the rank card of q.UserID.
func (h *GetUserRankHandler) Handle(ctx context.Context, q GetUserRankQuery) (*UserRankDTO, error) {
	if err := q.Validate(); err != nil {
		return nil, fmt.Errorf("get_user_rank: %w", err)
	}

	rec, err := h.store.GetRecord(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_user_rank: %w", err)
	}

	progress := leveling.ProgressAt(rec.CurrentXP)
	dto := &UserRankDTO{
		UserID:     q.UserID,
		XP:         rec.CurrentXP,
		Level:      rec.CurrentLevel,
		XPToNext:   progress.XPToNext,
		LevelMinXP: progress.LevelMinXP,
		LevelMaxXP: progress.LevelMaxXP,
	}

	if h.cache != nil {
		rank, found, ok, err := h.cache.GetRank(ctx, q.UserID)
		if err != nil {
			h.logger.Warn("leaderboard cache rank read failed", "error", err)
		} else if ok {
			if found {
				dto.Rank, dto.Found = rank, true
			}
			dto.FromCache = true
			return dto, nil
		}
	}

	rank, found, err := h.store.RankOf(ctx, q.UserID)
	if err != nil {
		return nil, fmt.Errorf("get_user_rank: %w", err)
	}
	if found {
		dto.Rank, dto.Found = rank, true
	}
	return dto, nil
}
