package redis

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

// ══════════════════════════════════════════════════════════════════════════════
// LEADERBOARD CACHE
// ══════════════════════════════════════════════════════════════════════════════

// LeaderboardCache keeps the guild's ranked view in Redis.
//
// Layout:
//   - Sorted set "leaderboard:xp:{guild}" maps padded user id -> -XP
//   - String "leaderboard:meta:{guild}" marks a complete rebuild
//
// Scores are negated so ZRANGE yields XP descending while equal scores fall
// back to ascending member order. Members are zero-padded to 20 digits, which
// makes that member order the numeric user id order.
type LeaderboardCache struct {
	cache   *Cache
	guildID leveling.Snowflake
	ttl     time.Duration
}

const (
	keyLeaderboardXP   = PrefixLeaderboard + "xp:"
	keyLeaderboardMeta = PrefixLeaderboard + "meta:"

	// TTLLeaderboardCache bounds how long a board survives without a rebuild.
	TTLLeaderboardCache = 30 * time.Minute
)

// LeaderboardMeta describes the last full rebuild.
type LeaderboardMeta struct {
	RebuiltAt time.Time `json:"rebuilt_at"`
	Entries   int       `json:"entries"`
}

// NewLeaderboardCache creates a LeaderboardCache for guildID. ttl <= 0 uses
// TTLLeaderboardCache.
func NewLeaderboardCache(cache *Cache, guildID leveling.Snowflake, ttl time.Duration) *LeaderboardCache {
	if ttl <= 0 {
		ttl = TTLLeaderboardCache
	}
	return &LeaderboardCache{cache: cache, guildID: guildID, ttl: ttl}
}

func (l *LeaderboardCache) xpKey() string   { return keyLeaderboardXP + l.guildID.String() }
func (l *LeaderboardCache) metaKey() string { return keyLeaderboardMeta + l.guildID.String() }

func member(userID leveling.Snowflake) string {
	return fmt.Sprintf("%020d", uint64(userID))
}

func parseMember(m string) (leveling.Snowflake, error) {
	return leveling.ParseSnowflake(trimZeros(m))
}

func trimZeros(s string) string {
	i := 0
	for i < len(s)-1 && s[i] == '0' {
		i++
	}
	return s[i:]
}

// ══════════════════════════════════════════════════════════════════════════════
// WRITE OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// UpdateEntry writes one user's XP. It is a no-op while the board is cold so
// a partial set never looks complete.
//
// Awards only raise XP, so an entry is never lowered here: updates delivered
// out of order keep the highest value. Transfers, which lower XP, invalidate
// the board instead.
func (l *LeaderboardCache) UpdateEntry(ctx context.Context, e leveling.LeaderboardEntry) error {
	return l.MergeEntries(ctx, []leveling.LeaderboardEntry{e})
}

// MergeEntries applies entries to a warm board, keeping for each user the
// higher of the cached and the given XP. Scores are negated, so ZADD LT is
// "keep the higher XP"; members not on the board are added.
func (l *LeaderboardCache) MergeEntries(ctx context.Context, entries []leveling.LeaderboardEntry) error {
	if len(entries) == 0 {
		return nil
	}
	warm, err := l.Warm(ctx)
	if err != nil || !warm {
		return err
	}
	return l.cache.Client().ZAddArgs(ctx, l.xpKey(), redis.ZAddArgs{
		LT:      true,
		Members: toZ(entries),
	}).Err()
}

func toZ(entries []leveling.LeaderboardEntry) []redis.Z {
	zs := make([]redis.Z, 0, len(entries))
	for _, e := range entries {
		zs = append(zs, redis.Z{Score: -float64(e.XP), Member: member(e.UserID)})
	}
	return zs
}

// RebuildFromSnapshot replaces the board with entries in one transaction.
// Awards committed after the snapshot was read may be missing; callers
// re-read the store and MergeEntries once the board is warm.
func (l *LeaderboardCache) RebuildFromSnapshot(ctx context.Context, entries []leveling.LeaderboardEntry) error {
	pipe := l.cache.Client().TxPipeline()
	pipe.Del(ctx, l.xpKey())

	if len(entries) > 0 {
		pipe.ZAdd(ctx, l.xpKey(), toZ(entries)...)
		pipe.Expire(ctx, l.xpKey(), l.ttl)
	}

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("rebuild leaderboard: %w", err)
	}

	meta := LeaderboardMeta{RebuiltAt: time.Now().UTC(), Entries: len(entries)}
	return l.cache.Set(ctx, l.metaKey(), meta, l.ttl)
}

// Invalidate drops the board; reads fall back to storage until the next
// rebuild.
func (l *LeaderboardCache) Invalidate(ctx context.Context) error {
	return l.cache.Delete(ctx, l.xpKey(), l.metaKey())
}

// ══════════════════════════════════════════════════════════════════════════════
// READ OPERATIONS
// ══════════════════════════════════════════════════════════════════════════════

// Warm reports whether a complete rebuild is present.
func (l *LeaderboardCache) Warm(ctx context.Context) (bool, error) {
	var meta LeaderboardMeta
	err := l.cache.Get(ctx, l.metaKey(), &meta)
	if errors.Is(err, ErrCacheMiss) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Meta returns the last rebuild marker.
func (l *LeaderboardCache) Meta(ctx context.Context) (LeaderboardMeta, error) {
	var meta LeaderboardMeta
	err := l.cache.Get(ctx, l.metaKey(), &meta)
	return meta, err
}

// GetTop returns up to limit entries in leaderboard order (limit <= 0: all).
// ok is false when the board is cold.
func (l *LeaderboardCache) GetTop(ctx context.Context, limit int) (entries []leveling.LeaderboardEntry, ok bool, err error) {
	warm, err := l.Warm(ctx)
	if err != nil || !warm {
		return nil, false, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = int64(limit - 1)
	}
	zs, err := l.cache.Client().ZRangeWithScores(ctx, l.xpKey(), 0, stop).Result()
	if err != nil {
		return nil, false, err
	}

	entries = make([]leveling.LeaderboardEntry, 0, len(zs))
	for _, z := range zs {
		m, _ := z.Member.(string)
		id, err := parseMember(m)
		if err != nil {
			return nil, false, fmt.Errorf("bad leaderboard member %q: %w", m, err)
		}
		xp := int(-z.Score)
		entries = append(entries, leveling.LeaderboardEntry{UserID: id, XP: xp, Level: leveling.LevelAtXp(xp)})
	}
	return entries, true, nil
}

// GetRank returns the 1-based rank of userID. ok is false when the board is
// cold; found is false when the user has no entry.
func (l *LeaderboardCache) GetRank(ctx context.Context, userID leveling.Snowflake) (rank int, found, ok bool, err error) {
	warm, err := l.Warm(ctx)
	if err != nil || !warm {
		return 0, false, false, err
	}

	r, err := l.cache.Client().ZRank(ctx, l.xpKey(), member(userID)).Result()
	if errors.Is(err, redis.Nil) {
		return 0, false, true, nil
	}
	if err != nil {
		return 0, false, false, err
	}
	return int(r) + 1, true, true, nil
}
