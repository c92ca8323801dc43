package command

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// memStore is a RankStore whose conditional writes mirror the SQL ones.
type memStore struct {
	mu      sync.Mutex
	records map[leveling.Snowflake]leveling.UserLevelRecord

	// beforeApply runs before every ApplyAward, outside the store mutex.
	beforeApply func(u leveling.AwardUpdate)
	applyCalls  int
	xpWrites    int
	failGet     error
}

func newMemStore() *memStore {
	return &memStore{records: make(map[leveling.Snowflake]leveling.UserLevelRecord)}
}

func (s *memStore) put(r leveling.UserLevelRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[r.UserID] = r
}

func (s *memStore) get(id leveling.Snowflake) leveling.UserLevelRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.records[id]
}

func (s *memStore) GetRecord(_ context.Context, id leveling.Snowflake) (leveling.UserLevelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failGet != nil {
		return leveling.UserLevelRecord{}, s.failGet
	}
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return leveling.ZeroRecord(id), nil
}

func (s *memStore) EnsureUser(_ context.Context, id leveling.Snowflake) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		s.records[id] = leveling.ZeroRecord(id)
	}
	return nil
}

func (s *memStore) ApplyAward(_ context.Context, u leveling.AwardUpdate) (bool, error) {
	if s.beforeApply != nil {
		s.beforeApply(u)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.applyCalls++

	r, ok := s.records[u.UserID]
	if !ok || r.CurrentXP != u.ExpectedXP {
		return false, nil
	}
	last := r.LastRewardAt(u.Activity)
	if leveling.UnixOrZero(last) != leveling.UnixOrZero(u.ExpectedRewardAt) {
		return false, nil
	}
	if !last.IsZero() && u.RewardAt.Unix()-last.Unix() < int64(u.Cooldown/time.Second) {
		return false, nil
	}

	r.CurrentXP = u.NewXP
	r.CurrentLevel = u.NewLevel
	if u.Activity == leveling.ActivityVoice {
		r.LastVoiceRewardAt = u.RewardAt
	} else {
		r.LastTextRewardAt = u.RewardAt
	}
	s.records[u.UserID] = r
	s.xpWrites++
	return true, nil
}

func (s *memStore) SetLevel(_ context.Context, id leveling.Snowflake, expectedXP, level int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.records[id]
	if !ok || r.CurrentXP != expectedXP {
		return false, nil
	}
	r.CurrentLevel = level
	s.records[id] = r
	return true, nil
}

func (s *memStore) sorted() []leveling.UserLevelRecord {
	out := make([]leveling.UserLevelRecord, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}

func (s *memStore) ListRecords(_ context.Context, after leveling.Snowflake, limit int) ([]leveling.UserLevelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []leveling.UserLevelRecord
	for _, r := range s.sorted() {
		if r.UserID <= after {
			continue
		}
		out = append(out, r)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *memStore) Leaderboard(_ context.Context, limit int) ([]leveling.LeaderboardEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.sorted()
	sort.SliceStable(recs, func(i, j int) bool { return recs[i].CurrentXP > recs[j].CurrentXP })
	out := make([]leveling.LeaderboardEntry, 0, len(recs))
	for _, r := range recs {
		out = append(out, leveling.LeaderboardEntry{UserID: r.UserID, XP: r.CurrentXP, Level: r.CurrentLevel})
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, nil
}

func (s *memStore) RankOf(ctx context.Context, id leveling.Snowflake) (int, bool, error) {
	all, _ := s.Leaderboard(ctx, 0)
	rank := leveling.NewLeaderboard(all).RankOf(id)
	return rank, rank > 0, nil
}

func (s *memStore) TransferXP(_ context.Context, from, to leveling.Snowflake, amount int) (leveling.UserLevelRecord, leveling.UserLevelRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	src, ok := s.records[from]
	if !ok || src.CurrentXP < amount {
		return leveling.UserLevelRecord{}, leveling.UserLevelRecord{},
			shared.NewDomainError("leveling", "transfer_xp", shared.ErrValueOutOfRange, "insufficient xp")
	}
	dst, ok := s.records[to]
	if !ok {
		dst = leveling.ZeroRecord(to)
	}
	src.CurrentXP -= amount
	src.CurrentLevel = leveling.LevelAtXp(src.CurrentXP)
	dst.CurrentXP += amount
	dst.CurrentLevel = leveling.LevelAtXp(dst.CurrentXP)
	s.records[from], s.records[to] = src, dst
	return src, dst, nil
}

func (s *memStore) Ping(context.Context) error { return nil }

type staticSettings struct {
	snap leveling.SettingsSnapshot
	err  error
}

func (s staticSettings) Snapshot(context.Context) (leveling.SettingsSnapshot, error) {
	return s.snap, s.err
}

func enabledSnapshot(overrides ...leveling.MultiplierOverride) leveling.SettingsSnapshot {
	settings := leveling.DefaultSettings(1)
	settings.TextActive = true
	settings.VoiceActive = true
	return leveling.NewSettingsSnapshot(settings, true, nil, overrides, time.Now())
}

type fakeRoles struct {
	held []leveling.Snowflake
	err  error
}

func (f fakeRoles) RolesHeld(context.Context, leveling.Snowflake) ([]leveling.Snowflake, error) {
	return f.held, f.err
}

// stuckRoles never answers until its context ends.
type stuckRoles struct{}

func (stuckRoles) RolesHeld(ctx context.Context, _ leveling.Snowflake) ([]leveling.Snowflake, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []shared.Event
}

func (p *recordingPublisher) Publish(e shared.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return nil
}

func (p *recordingPublisher) ofType(t shared.EventType) []shared.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []shared.Event
	for _, e := range p.events {
		if e.EventType() == t {
			out = append(out, e)
		}
	}
	return out
}

type memSettingsRepo struct {
	marked time.Time
}

func (r *memSettingsRepo) GetSettings(_ context.Context, id leveling.Snowflake) (leveling.LevelingSettings, bool, error) {
	return leveling.DefaultSettings(id), false, nil
}
func (r *memSettingsRepo) ListRewards(context.Context) ([]leveling.LevelReward, error) { return nil, nil }
func (r *memSettingsRepo) ListMultiplierOverrides(context.Context) ([]leveling.MultiplierOverride, error) {
	return nil, nil
}
func (r *memSettingsRepo) MarkRecalculated(_ context.Context, _ leveling.Snowflake, at time.Time) error {
	r.marked = at
	return nil
}

type memAudit struct {
	transfers []leveling.XPTransferLog
	bans      []leveling.BanLog
	err       error
}

func (a *memAudit) LogXPTransfer(_ context.Context, e leveling.XPTransferLog) error {
	a.transfers = append(a.transfers, e)
	return a.err
}

func (a *memAudit) LogBan(_ context.Context, e leveling.BanLog) error {
	a.bans = append(a.bans, e)
	return a.err
}

var errBoom = errors.New("boom")
