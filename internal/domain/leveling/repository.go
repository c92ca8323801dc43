package leveling

import (
	"context"
	"time"
)

// RankStore is the per-user record contract. Implementations must make
// ApplyAward and SetLevel single conditional statements.
type RankStore interface {
	// GetRecord returns the stored record or ZeroRecord when absent.
	GetRecord(ctx context.Context, userID Snowflake) (UserLevelRecord, error)

	// EnsureUser inserts a zero row if none exists.
	EnsureUser(ctx context.Context, userID Snowflake) error

	// ApplyAward performs the conditional write. false means the row moved
	// since it was read (or the cooldown has not elapsed) and nothing changed.
	ApplyAward(ctx context.Context, u AwardUpdate) (bool, error)

	// SetLevel writes level only while current_xp still equals expectedXP.
	SetLevel(ctx context.Context, userID Snowflake, expectedXP, level int) (bool, error)

	// ListRecords scans records with user id > after, ascending, at most limit.
	ListRecords(ctx context.Context, after Snowflake, limit int) ([]UserLevelRecord, error)

	// Leaderboard returns up to limit entries (limit <= 0: all) in
	// leaderboard order.
	Leaderboard(ctx context.Context, limit int) ([]LeaderboardEntry, error)

	// RankOf returns the 1-based leaderboard position of userID.
	RankOf(ctx context.Context, userID Snowflake) (rank int, found bool, err error)

	// TransferXP moves amount XP from one user to another in one transaction
	// and rewrites both levels. Returns both records after the move.
	TransferXP(ctx context.Context, from, to Snowflake, amount int) (UserLevelRecord, UserLevelRecord, error)

	Ping(ctx context.Context) error
}

// SettingsRepository reads the guild configuration tables.
type SettingsRepository interface {
	// GetSettings returns the settings row for guildID; found is false when
	// the guild has none.
	GetSettings(ctx context.Context, guildID Snowflake) (s LevelingSettings, found bool, err error)

	// ListRewards returns the reward table ordered by level ascending.
	ListRewards(ctx context.Context) ([]LevelReward, error)

	ListMultiplierOverrides(ctx context.Context) ([]MultiplierOverride, error)

	// MarkRecalculated stamps lastrecalc on the guild row.
	MarkRecalculated(ctx context.Context, guildID Snowflake, at time.Time) error
}

// XPTransferLog is one audit row for an administrative XP move.
type XPTransferLog struct {
	SourceUserID      Snowflake
	DestinationUserID Snowflake
	ExecutorID        Snowflake
	Amount            int
	Timestamp         time.Time
}

// BanLog is one audit row for a guild ban.
type BanLog struct {
	UserID     Snowflake
	ExecutorID Snowflake
	Reason     string
	Timestamp  time.Time
}

// DefaultBanReason is stored when a moderator gave none.
const DefaultBanReason = "Kein Grund angegeben"

// AuditLog is the insert-only moderation log.
type AuditLog interface {
	LogXPTransfer(ctx context.Context, entry XPTransferLog) error
	LogBan(ctx context.Context, entry BanLog) error
}

// Platform is the outbound half of the chat platform.
type Platform interface {
	GrantRole(ctx context.Context, userID, roleID Snowflake) error
	SendMessage(ctx context.Context, channelID Snowflake, content string) error
	RolesHeld(ctx context.Context, userID Snowflake) ([]Snowflake, error)
	RoleName(ctx context.Context, roleID Snowflake) (string, error)
	DisplayName(ctx context.Context, userID Snowflake) (string, error)
	Mention(userID Snowflake) string
}
