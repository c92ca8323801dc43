package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

type settingsRow struct {
	TextActive     bool    `db:"text_active"`
	VoiceActive    bool    `db:"vc_active"`
	TextMulti      float64 `db:"text_multi"`
	VoiceMulti     float64 `db:"vc_multi"`
	Message        string  `db:"levelupmessage"`
	RewardMessage  string  `db:"levelupmessagereward"`
	ChannelID      int64   `db:"levelupchannelid"`
	LastRecalcUnix int64   `db:"lastrecalc"`
}

type rewardRow struct {
	Level  int   `db:"level"`
	RoleID int64 `db:"roleid"`
}

type overrideRow struct {
	RoleID     int64   `db:"roleid"`
	Multiplier float64 `db:"multiplicator"`
}

// GetSettings loads the guild row. found is false when the guild has none.
func (s *Store) GetSettings(ctx context.Context, guildID leveling.Snowflake) (leveling.LevelingSettings, bool, error) {
	var row settingsRow
	err := s.db.GetContext(ctx, &row, `
		SELECT text_active, vc_active, text_multi, vc_multi,
		       levelupmessage, levelupmessagereward, levelupchannelid, lastrecalc
		FROM levelingsettings WHERE guildid = ?`, int64(guildID))
	if errors.Is(err, sql.ErrNoRows) {
		return leveling.DefaultSettings(guildID), false, nil
	}
	if err != nil {
		return leveling.LevelingSettings{}, false, shared.Storage("GetSettings", err)
	}

	return leveling.LevelingSettings{
		GuildID:              guildID,
		TextActive:           row.TextActive,
		VoiceActive:          row.VoiceActive,
		TextMultiplier:       row.TextMulti,
		VoiceMultiplier:      row.VoiceMulti,
		LevelUpMessage:       row.Message,
		LevelUpRewardMessage: row.RewardMessage,
		LevelUpChannelID:     leveling.Snowflake(row.ChannelID),
		LastRecalcAt:         leveling.TimeFromUnix(row.LastRecalcUnix),
	}, true, nil
}

// ListRewards returns the reward table by level ascending.
func (s *Store) ListRewards(ctx context.Context) ([]leveling.LevelReward, error) {
	var rows []rewardRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT level, roleid FROM level_rewards ORDER BY level ASC`); err != nil {
		return nil, shared.Storage("ListRewards", err)
	}
	out := make([]leveling.LevelReward, len(rows))
	for i, r := range rows {
		out[i] = leveling.LevelReward{Level: r.Level, RoleID: leveling.Snowflake(r.RoleID)}
	}
	return out, nil
}

// ListMultiplierOverrides returns every role override.
func (s *Store) ListMultiplierOverrides(ctx context.Context) ([]leveling.MultiplierOverride, error) {
	var rows []overrideRow
	if err := s.db.SelectContext(ctx, &rows, `SELECT roleid, multiplicator FROM level_multiplicatoroverrideroles`); err != nil {
		return nil, shared.Storage("ListMultiplierOverrides", err)
	}
	out := make([]leveling.MultiplierOverride, len(rows))
	for i, r := range rows {
		out[i] = leveling.MultiplierOverride{RoleID: leveling.Snowflake(r.RoleID), Multiplier: r.Multiplier}
	}
	return out, nil
}

// MarkRecalculated stamps lastrecalc on an existing guild row.
func (s *Store) MarkRecalculated(ctx context.Context, guildID leveling.Snowflake, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE levelingsettings SET lastrecalc = ? WHERE guildid = ?`,
		leveling.UnixOrZero(at), int64(guildID))
	return shared.Storage("MarkRecalculated", err)
}
