package leveling

import (
	"sort"
	"time"
)

// Default message templates used when the guild never configured its own.
const (
	DefaultLevelUpMessage       = "Congratulations {user}! You just advanced to level {level}!"
	DefaultLevelUpRewardMessage = "Congratulations {username}! You just advanced to level {level} and received {rolename}!"
)

// LevelingSettings is the guild-wide configuration row.
type LevelingSettings struct {
	GuildID              Snowflake
	TextActive           bool
	VoiceActive          bool
	TextMultiplier       float64
	VoiceMultiplier      float64
	LevelUpMessage       string
	LevelUpRewardMessage string
	LevelUpChannelID     Snowflake
	LastRecalcAt         time.Time
}

// DefaultSettings returns the values every accessor falls back to when the
// guild has no settings row: both activities disabled, neutral multipliers,
// English templates, no channel.
func DefaultSettings(guildID Snowflake) LevelingSettings {
	return LevelingSettings{
		GuildID:              guildID,
		TextMultiplier:       1.0,
		VoiceMultiplier:      1.0,
		LevelUpMessage:       DefaultLevelUpMessage,
		LevelUpRewardMessage: DefaultLevelUpRewardMessage,
	}
}

// LevelReward maps a level to the role granted on reaching it.
type LevelReward struct {
	Level  int
	RoleID Snowflake
}

// MultiplierOverride scales XP gain for members holding RoleID.
type MultiplierOverride struct {
	RoleID     Snowflake
	Multiplier float64
}

// SettingsSnapshot is one consistent read of everything the award and
// progression paths consult.
type SettingsSnapshot struct {
	Settings  LevelingSettings
	Rewards   []LevelReward
	Overrides []MultiplierOverride

	// Configured is false when no settings row existed and Settings holds
	// the fallbacks.
	Configured bool
	LoadedAt   time.Time
}

// NewSettingsSnapshot normalizes the tables: rewards ascending by level with
// one entry per level (first wins), empty strings replaced by defaults.
func NewSettingsSnapshot(s LevelingSettings, configured bool, rewards []LevelReward, overrides []MultiplierOverride, loadedAt time.Time) SettingsSnapshot {
	if s.LevelUpMessage == "" {
		s.LevelUpMessage = DefaultLevelUpMessage
	}
	if s.LevelUpRewardMessage == "" {
		s.LevelUpRewardMessage = DefaultLevelUpRewardMessage
	}

	sorted := make([]LevelReward, 0, len(rewards))
	seen := make(map[int]struct{}, len(rewards))
	for _, r := range rewards {
		if _, dup := seen[r.Level]; dup {
			continue
		}
		seen[r.Level] = struct{}{}
		sorted = append(sorted, r)
	}
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Level < sorted[j].Level })

	ov := make([]MultiplierOverride, len(overrides))
	copy(ov, overrides)

	return SettingsSnapshot{
		Settings:   s,
		Rewards:    sorted,
		Overrides:  ov,
		Configured: configured,
		LoadedAt:   loadedAt,
	}
}

// IsActivityEnabled reports the toggle for activity.
func (s SettingsSnapshot) IsActivityEnabled(activity ActivityType) bool {
	switch activity {
	case ActivityText:
		return s.Settings.TextActive
	case ActivityVoice:
		return s.Settings.VoiceActive
	}
	return false
}

// MultiplierFor returns the base multiplier of activity; 1.0 for unknown types.
func (s SettingsSnapshot) MultiplierFor(activity ActivityType) float64 {
	switch activity {
	case ActivityText:
		return s.Settings.TextMultiplier
	case ActivityVoice:
		return s.Settings.VoiceMultiplier
	}
	return 1.0
}

// RewardAt returns the reward configured for exactly level.
func (s SettingsSnapshot) RewardAt(level int) (LevelReward, bool) {
	i := sort.Search(len(s.Rewards), func(i int) bool { return s.Rewards[i].Level >= level })
	if i < len(s.Rewards) && s.Rewards[i].Level == level {
		return s.Rewards[i], true
	}
	return LevelReward{}, false
}

// RewardsUpTo returns every reward with Level <= level, ascending.
func (s SettingsSnapshot) RewardsUpTo(level int) []LevelReward {
	i := sort.Search(len(s.Rewards), func(i int) bool { return s.Rewards[i].Level > level })
	out := make([]LevelReward, i)
	copy(out, s.Rewards[:i])
	return out
}
