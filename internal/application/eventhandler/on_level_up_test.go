package eventhandler

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

func TestOnLevelUp_RewardLevel(t *testing.T) {
	p := &fakePlatform{}
	snap := snapshot(55, leveling.LevelReward{Level: 5, RoleID: 500}, leveling.LevelReward{Level: 10, RoleID: 1000})
	h := NewOnLevelUpHandler(staticSettings{snap}, p, nil, 0, nil)

	err := h.Handle(context.Background(), leveling.NewLevelUpEvent(7, 4, 5, 800, leveling.ActivityText))
	require.NoError(t, err)

	require.Len(t, p.grants, 1)
	assert.Equal(t, grant{7, 500}, p.grants[0])
	require.Len(t, p.messages, 1)
	assert.Equal(t, leveling.Snowflake(55), p.messages[0].Channel)
	assert.Equal(t, "Congratulations user7! You just advanced to level 5 and received Role500!", p.messages[0].Content)
}

func TestOnLevelUp_PlainLevel(t *testing.T) {
	p := &fakePlatform{}
	h := NewOnLevelUpHandler(staticSettings{snapshot(55, leveling.LevelReward{Level: 5, RoleID: 500})}, p, nil, 0, nil)

	require.NoError(t, h.Handle(context.Background(), leveling.NewLevelUpEvent(7, 5, 6, 1200, leveling.ActivityText)))
	assert.Empty(t, p.grants)
	require.Len(t, p.messages, 1)
	assert.Equal(t, "Congratulations <@7>! You just advanced to level 6!", p.messages[0].Content)
	assert.Zero(t, p.nameLookups, "plain template needs no lookups")
}

func TestOnLevelUp_NoChannelStillGrants(t *testing.T) {
	p := &fakePlatform{}
	h := NewOnLevelUpHandler(staticSettings{snapshot(0, leveling.LevelReward{Level: 5, RoleID: 500})}, p, nil, 0, nil)

	require.NoError(t, h.Handle(context.Background(), leveling.NewLevelUpEvent(7, 4, 5, 800, "")))
	assert.Len(t, p.grants, 1)
	assert.Empty(t, p.messages)
}

func TestOnLevelUp_NotificationsDisabled(t *testing.T) {
	p := &fakePlatform{}
	h := NewOnLevelUpHandler(staticSettings{snapshot(55)}, p, func() bool { return false }, 0, nil)

	require.NoError(t, h.Handle(context.Background(), leveling.NewLevelUpEvent(7, 4, 5, 800, "")))
	assert.Empty(t, p.messages)
}

func TestOnLevelUp_GrantFailureStillAnnounces(t *testing.T) {
	p := &fakePlatform{grantErr: map[leveling.Snowflake]error{500: shared.Platform("grant_role", errors.New("403"))}}
	h := NewOnLevelUpHandler(staticSettings{snapshot(55, leveling.LevelReward{Level: 5, RoleID: 500})}, p, nil, 0, nil)

	err := h.Handle(context.Background(), leveling.NewLevelUpEvent(7, 4, 5, 800, ""))
	assert.ErrorIs(t, err, shared.ErrPlatformActionFailed)
	assert.Len(t, p.messages, 1)
}

func TestOnLevelUp_EventHandlerIgnoresOtherEvents(t *testing.T) {
	p := &fakePlatform{}
	h := NewOnLevelUpHandler(staticSettings{snapshot(55)}, p, nil, 0, nil)

	require.NoError(t, h.EventHandler()(leveling.NewMemberVerifiedEvent(1, 7)))
	require.NoError(t, h.EventHandler()(leveling.NewLevelUpEvent(7, 0, 1, 100, "")))
	assert.Len(t, p.messages, 1)
}
