package eventhandler

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

type fakeUpdater struct {
	updates     []leveling.LeaderboardEntry
	invalidated int
}

func (f *fakeUpdater) UpdateEntry(_ context.Context, e leveling.LeaderboardEntry) error {
	f.updates = append(f.updates, e)
	return nil
}

func (f *fakeUpdater) Invalidate(context.Context) error {
	f.invalidated++
	return nil
}

func TestOnXPChanged(t *testing.T) {
	u := &fakeUpdater{}
	handle := NewOnXPChangedHandler(u, nil).EventHandler()

	require.NoError(t, handle(leveling.NewXPAwardedEvent(7, 20, 120, 1, leveling.ActivityText)))
	require.Len(t, u.updates, 1)
	assert.Equal(t, leveling.LeaderboardEntry{UserID: 7, XP: 120, Level: 1}, u.updates[0])

	require.NoError(t, handle(leveling.NewXPTransferredEvent(1, 2, 3, 50)))
	assert.Equal(t, 1, u.invalidated)

	require.NoError(t, handle(leveling.NewMemberVerifiedEvent(1, 7)))
	assert.Len(t, u.updates, 1)
}
