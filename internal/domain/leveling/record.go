package leveling

import (
	"strconv"
	"time"
)

// Snowflake is a Discord identity (user, role, channel or guild).
type Snowflake uint64

// ParseSnowflake parses the decimal string form discordgo hands out.
func ParseSnowflake(s string) (Snowflake, error) {
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, err
	}
	return Snowflake(v), nil
}

// String returns the decimal form.
func (s Snowflake) String() string {
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero reports an unset identity.
func (s Snowflake) IsZero() bool {
	return s == 0
}

// UserLevelRecord is the persisted progress of one user.
type UserLevelRecord struct {
	UserID            Snowflake
	CurrentXP         int
	CurrentLevel      int
	LastTextRewardAt  time.Time
	LastVoiceRewardAt time.Time
}

// ZeroRecord is the implicit state of a user without a row.
func ZeroRecord(userID Snowflake) UserLevelRecord {
	return UserLevelRecord{UserID: userID}
}

// LastRewardAt returns the cooldown stamp for activity.
func (r UserLevelRecord) LastRewardAt(activity ActivityType) time.Time {
	if activity == ActivityVoice {
		return r.LastVoiceRewardAt
	}
	return r.LastTextRewardAt
}

// CoolingDown reports whether a grant for activity at now falls inside the
// cooldown window. A never-rewarded user is never cooling down.
func (r UserLevelRecord) CoolingDown(activity ActivityType, now time.Time, cooldown time.Duration) bool {
	last := r.LastRewardAt(activity)
	if last.IsZero() {
		return false
	}
	return now.Unix()-last.Unix() < int64(cooldown/time.Second)
}

// LevelConsistent reports whether the stored level matches the stored XP.
func (r UserLevelRecord) LevelConsistent() bool {
	return r.CurrentLevel == LevelAtXp(r.CurrentXP)
}

// AwardUpdate is a conditional write produced by the award pipeline. The store
// applies it only if the row still carries ExpectedXP and ExpectedRewardAt for
// Activity and that stamp is at least Cooldown older than RewardAt.
type AwardUpdate struct {
	UserID           Snowflake
	Activity         ActivityType
	ExpectedXP       int
	ExpectedRewardAt time.Time
	NewXP            int
	NewLevel         int
	RewardAt         time.Time
	Cooldown         time.Duration
}

// UnixOrZero converts t to unix seconds, mapping the zero time to 0.
func UnixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// TimeFromUnix is the inverse of UnixOrZero.
func TimeFromUnix(sec int64) time.Time {
	if sec <= 0 {
		return time.Time{}
	}
	return time.Unix(sec, 0).UTC()
}
