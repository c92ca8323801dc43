package leveling

import (
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// LevelUpEvent is published after an XP write raised a user's level.
type LevelUpEvent struct {
	shared.BaseEvent
	UserID        Snowflake    `json:"user_id,string"`
	PreviousLevel int          `json:"previous_level"`
	NewLevel      int          `json:"new_level"`
	XP            int          `json:"xp"`
	Activity      ActivityType `json:"activity,omitempty"`
}

// Payload implements shared.Event.
func (e LevelUpEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":        e.UserID.String(),
		"previous_level": e.PreviousLevel,
		"new_level":      e.NewLevel,
		"xp":             e.XP,
		"activity":       string(e.Activity),
	}
}

// NewLevelUpEvent creates a LevelUpEvent.
func NewLevelUpEvent(userID Snowflake, prev, next, xp int, activity ActivityType) LevelUpEvent {
	return LevelUpEvent{
		BaseEvent:     shared.NewBaseEvent(shared.EventLevelUp, userID.String()),
		UserID:        userID,
		PreviousLevel: prev,
		NewLevel:      next,
		XP:            xp,
		Activity:      activity,
	}
}

// XPAwardedEvent is published for every committed grant.
type XPAwardedEvent struct {
	shared.BaseEvent
	UserID   Snowflake    `json:"user_id,string"`
	Amount   int          `json:"amount"`
	NewXP    int          `json:"new_xp"`
	NewLevel int          `json:"new_level"`
	Activity ActivityType `json:"activity"`
}

// Payload implements shared.Event.
func (e XPAwardedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":   e.UserID.String(),
		"amount":    e.Amount,
		"new_xp":    e.NewXP,
		"new_level": e.NewLevel,
		"activity":  string(e.Activity),
	}
}

// NewXPAwardedEvent creates an XPAwardedEvent.
func NewXPAwardedEvent(userID Snowflake, amount, newXP, newLevel int, activity ActivityType) XPAwardedEvent {
	return XPAwardedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventXPAwarded, userID.String()),
		UserID:    userID,
		Amount:    amount,
		NewXP:     newXP,
		NewLevel:  newLevel,
		Activity:  activity,
	}
}

// MemberVerifiedEvent marks a member leaving the pending (rules not yet
// accepted) state.
type MemberVerifiedEvent struct {
	shared.BaseEvent
	UserID  Snowflake `json:"user_id,string"`
	GuildID Snowflake `json:"guild_id,string"`
}

// Payload implements shared.Event.
func (e MemberVerifiedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"user_id":  e.UserID.String(),
		"guild_id": e.GuildID.String(),
	}
}

// NewMemberVerifiedEvent creates a MemberVerifiedEvent.
func NewMemberVerifiedEvent(guildID, userID Snowflake) MemberVerifiedEvent {
	return MemberVerifiedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventMemberVerified, userID.String()),
		UserID:    userID,
		GuildID:   guildID,
	}
}

// XPTransferredEvent is published after an administrative XP move.
type XPTransferredEvent struct {
	shared.BaseEvent
	From     Snowflake `json:"from,string"`
	To       Snowflake `json:"to,string"`
	Executor Snowflake `json:"executor,string"`
	Amount   int       `json:"amount"`
}

// Payload implements shared.Event.
func (e XPTransferredEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"from":     e.From.String(),
		"to":       e.To.String(),
		"executor": e.Executor.String(),
		"amount":   e.Amount,
	}
}

// NewXPTransferredEvent creates an XPTransferredEvent.
func NewXPTransferredEvent(from, to, executor Snowflake, amount int) XPTransferredEvent {
	return XPTransferredEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventXPMoved, from.String()),
		From:      from,
		To:        to,
		Executor:  executor,
		Amount:    amount,
	}
}

// LevelsRecalculatedEvent is published when a full recalculation finishes.
type LevelsRecalculatedEvent struct {
	shared.BaseEvent
	Scanned int `json:"scanned"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Payload implements shared.Event.
func (e LevelsRecalculatedEvent) Payload() map[string]interface{} {
	return map[string]interface{}{
		"scanned": e.Scanned,
		"updated": e.Updated,
		"skipped": e.Skipped,
	}
}

// NewLevelsRecalculatedEvent creates a LevelsRecalculatedEvent for run runID.
func NewLevelsRecalculatedEvent(runID string, scanned, updated, skipped int) LevelsRecalculatedEvent {
	return LevelsRecalculatedEvent{
		BaseEvent: shared.NewBaseEvent(shared.EventLevelsRecalculated, runID),
		Scanned:   scanned,
		Updated:   updated,
		Skipped:   skipped,
	}
}
