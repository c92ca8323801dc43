package discord

import (
	"sort"
	"sync"

	"github.com/alem-hub/levelup/internal/domain/leveling"
)

// Participant is one member connected to a voice channel.
type Participant struct {
	ChannelID string
	Deafened  bool
}

// VoiceTracker holds the guild's voice participants between ticks.
type VoiceTracker struct {
	mu    sync.RWMutex
	users map[leveling.Snowflake]Participant
}

// NewVoiceTracker returns an empty tracker.
func NewVoiceTracker() *VoiceTracker {
	return &VoiceTracker{users: make(map[leveling.Snowflake]Participant)}
}

// Join records or updates userID's voice state.
func (t *VoiceTracker) Join(userID leveling.Snowflake, p Participant) {
	t.mu.Lock()
	t.users[userID] = p
	t.mu.Unlock()
}

// Leave forgets userID.
func (t *VoiceTracker) Leave(userID leveling.Snowflake) {
	t.mu.Lock()
	delete(t.users, userID)
	t.mu.Unlock()
}

// Reset forgets everyone.
func (t *VoiceTracker) Reset() {
	t.mu.Lock()
	t.users = make(map[leveling.Snowflake]Participant)
	t.mu.Unlock()
}

// Len returns the number of tracked participants.
func (t *VoiceTracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.users)
}

// Eligible returns every participant that is not deafened, by user id.
func (t *VoiceTracker) Eligible() []leveling.Snowflake {
	t.mu.RLock()
	out := make([]leveling.Snowflake, 0, len(t.users))
	for id, p := range t.users {
		if !p.Deafened {
			out = append(out, id)
		}
	}
	t.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
