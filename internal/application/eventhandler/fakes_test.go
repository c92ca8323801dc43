package eventhandler

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

type grant struct {
	User leveling.Snowflake
	Role leveling.Snowflake
}

type sent struct {
	Channel leveling.Snowflake
	Content string
}

type fakePlatform struct {
	mu          sync.Mutex
	grants      []grant
	messages    []sent
	nameLookups int
	grantErr    map[leveling.Snowflake]error
	sendErr     error
}

func (p *fakePlatform) GrantRole(_ context.Context, user, role leveling.Snowflake) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err := p.grantErr[role]; err != nil {
		return err
	}
	p.grants = append(p.grants, grant{user, role})
	return nil
}

func (p *fakePlatform) SendMessage(_ context.Context, ch leveling.Snowflake, content string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.sendErr != nil {
		return p.sendErr
	}
	p.messages = append(p.messages, sent{ch, content})
	return nil
}

func (p *fakePlatform) RolesHeld(context.Context, leveling.Snowflake) ([]leveling.Snowflake, error) {
	return nil, nil
}

func (p *fakePlatform) RoleName(_ context.Context, role leveling.Snowflake) (string, error) {
	p.mu.Lock()
	p.nameLookups++
	p.mu.Unlock()
	return fmt.Sprintf("Role%d", role), nil
}

func (p *fakePlatform) DisplayName(_ context.Context, user leveling.Snowflake) (string, error) {
	p.mu.Lock()
	p.nameLookups++
	p.mu.Unlock()
	return fmt.Sprintf("user%d", user), nil
}

func (p *fakePlatform) Mention(user leveling.Snowflake) string {
	return "<@" + user.String() + ">"
}

type staticSettings struct {
	snap leveling.SettingsSnapshot
}

func (s staticSettings) Snapshot(context.Context) (leveling.SettingsSnapshot, error) {
	return s.snap, nil
}

func snapshot(channel leveling.Snowflake, rewards ...leveling.LevelReward) leveling.SettingsSnapshot {
	s := leveling.DefaultSettings(1)
	s.LevelUpChannelID = channel
	return leveling.NewSettingsSnapshot(s, true, rewards, nil, time.Now())
}

// recordStore serves fixed records; only the calls the handlers make.
type recordStore struct {
	leveling.RankStore
	records map[leveling.Snowflake]leveling.UserLevelRecord
	ensured []leveling.Snowflake
}

func (s *recordStore) EnsureUser(_ context.Context, id leveling.Snowflake) error {
	s.ensured = append(s.ensured, id)
	return nil
}

func (s *recordStore) GetRecord(_ context.Context, id leveling.Snowflake) (leveling.UserLevelRecord, error) {
	if r, ok := s.records[id]; ok {
		return r, nil
	}
	return leveling.ZeroRecord(id), nil
}
