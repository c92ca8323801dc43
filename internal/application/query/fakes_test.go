package query

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

var errDown = shared.Storage("test", errors.New("connection refused"))

type fakeSettingsRepo struct {
	settings  *leveling.LevelingSettings
	rewards   []leveling.LevelReward
	overrides []leveling.MultiplierOverride
	fail      atomic.Bool
	loads     atomic.Int32
	delay     time.Duration

	// When set, GetSettings reads its row, signals entered and waits on
	// release before returning it.
	entered chan struct{}
	release chan struct{}
}

func (f *fakeSettingsRepo) GetSettings(_ context.Context, guildID leveling.Snowflake) (leveling.LevelingSettings, bool, error) {
	n := f.loads.Add(1)
	settings, found := leveling.DefaultSettings(guildID), false
	if f.settings != nil {
		settings, found = *f.settings, true
	}
	if f.entered != nil && n == 1 {
		f.entered <- struct{}{}
		<-f.release
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	if f.fail.Load() {
		return leveling.LevelingSettings{}, false, errDown
	}
	return settings, found, nil
}

func (f *fakeSettingsRepo) ListRewards(context.Context) ([]leveling.LevelReward, error) {
	return f.rewards, nil
}

func (f *fakeSettingsRepo) ListMultiplierOverrides(context.Context) ([]leveling.MultiplierOverride, error) {
	return f.overrides, nil
}

func (f *fakeSettingsRepo) MarkRecalculated(context.Context, leveling.Snowflake, time.Time) error {
	return nil
}

// fakeRankStore implements the read side of leveling.RankStore.
type fakeRankStore struct {
	leveling.RankStore

	mu      sync.Mutex
	records map[leveling.Snowflake]leveling.UserLevelRecord
	reads   int

	// afterLeaderboard runs outside the lock after the n-th Leaderboard read.
	afterLeaderboard func(n int)
}

func (s *fakeRankStore) put(id leveling.Snowflake, xp int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[id] = leveling.UserLevelRecord{UserID: id, CurrentXP: xp, CurrentLevel: leveling.LevelAtXp(xp)}
}

func newFakeRankStore(xp map[leveling.Snowflake]int) *fakeRankStore {
	s := &fakeRankStore{records: make(map[leveling.Snowflake]leveling.UserLevelRecord)}
	for id, v := range xp {
		s.records[id] = leveling.UserLevelRecord{UserID: id, CurrentXP: v, CurrentLevel: leveling.LevelAtXp(v)}
	}
	return s
}

func (s *fakeRankStore) GetRecord(_ context.Context, id leveling.Snowflake) (leveling.UserLevelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return leveling.ZeroRecord(id), nil
}

func (s *fakeRankStore) ordered() []leveling.LeaderboardEntry {
	out := make([]leveling.LeaderboardEntry, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, leveling.LeaderboardEntry{UserID: r.UserID, XP: r.CurrentXP, Level: r.CurrentLevel})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].XP != out[j].XP {
			return out[i].XP > out[j].XP
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

func (s *fakeRankStore) Leaderboard(_ context.Context, limit int) ([]leveling.LeaderboardEntry, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	out := s.ordered()
	s.mu.Unlock()

	if s.afterLeaderboard != nil {
		s.afterLeaderboard(n)
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *fakeRankStore) RankOf(_ context.Context, id leveling.Snowflake) (int, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reads++
	for i, e := range s.ordered() {
		if e.UserID == id {
			return i + 1, true, nil
		}
	}
	return 0, false, nil
}

type fakeCache struct {
	warm    bool
	entries []leveling.LeaderboardEntry
	err     error
	rebuilt int
	merged  int
}

func (c *fakeCache) GetTop(_ context.Context, limit int) ([]leveling.LeaderboardEntry, bool, error) {
	if c.err != nil || !c.warm {
		return nil, false, c.err
	}
	out := c.entries
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, true, nil
}

func (c *fakeCache) GetRank(_ context.Context, id leveling.Snowflake) (int, bool, bool, error) {
	if c.err != nil || !c.warm {
		return 0, false, false, c.err
	}
	for i, e := range c.entries {
		if e.UserID == id {
			return i + 1, true, true, nil
		}
	}
	return 0, false, true, nil
}

func (c *fakeCache) RebuildFromSnapshot(_ context.Context, entries []leveling.LeaderboardEntry) error {
	c.rebuilt++
	c.entries = entries
	c.warm = true
	return nil
}

// MergeEntries keeps the higher XP per user, like the Redis board.
func (c *fakeCache) MergeEntries(_ context.Context, entries []leveling.LeaderboardEntry) error {
	if !c.warm {
		return nil
	}
	c.merged++
	byID := make(map[leveling.Snowflake]leveling.LeaderboardEntry, len(c.entries))
	for _, e := range c.entries {
		byID[e.UserID] = e
	}
	for _, e := range entries {
		if cur, ok := byID[e.UserID]; !ok || e.XP > cur.XP {
			byID[e.UserID] = e
		}
	}
	merged := make([]leveling.LeaderboardEntry, 0, len(byID))
	for _, e := range byID {
		merged = append(merged, e)
	}
	c.entries = leveling.NewLeaderboard(merged)
	return nil
}
