package postgres

import (
	"context"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// SettingsRepository reads levelingsettings, level_rewards and
// level_multiplicatoroverrideroles.
type SettingsRepository struct {
	conn *Connection
}

// NewSettingsRepository creates a SettingsRepository.
func NewSettingsRepository(conn *Connection) *SettingsRepository {
	return &SettingsRepository{conn: conn}
}

var _ leveling.SettingsRepository = (*SettingsRepository)(nil)

// GetSettings loads the guild row. found is false when the guild has none.
func (r *SettingsRepository) GetSettings(ctx context.Context, guildID leveling.Snowflake) (leveling.LevelingSettings, bool, error) {
	var (
		s                 leveling.LevelingSettings
		textMulti, vcMult float32
		channelID         int64
		lastRecalc        int64
	)
	err := r.conn.QueryRow(ctx, `
		SELECT text_active, vc_active, text_multi, vc_multi,
		       levelupmessage, levelupmessagereward, levelupchannelid, lastrecalc
		FROM levelingsettings
		WHERE guildid = $1
	`, int64(guildID)).Scan(
		&s.TextActive,
		&s.VoiceActive,
		&textMulti,
		&vcMult,
		&s.LevelUpMessage,
		&s.LevelUpRewardMessage,
		&channelID,
		&lastRecalc,
	)
	if IsNoRows(err) {
		return leveling.DefaultSettings(guildID), false, nil
	}
	if err != nil {
		return leveling.LevelingSettings{}, false, shared.Storage("GetSettings", err)
	}

	s.GuildID = guildID
	s.TextMultiplier = float64(textMulti)
	s.VoiceMultiplier = float64(vcMult)
	s.LevelUpChannelID = leveling.Snowflake(channelID)
	s.LastRecalcAt = leveling.TimeFromUnix(lastRecalc)
	return s, true, nil
}

// ListRewards returns the reward table by level ascending.
func (r *SettingsRepository) ListRewards(ctx context.Context) ([]leveling.LevelReward, error) {
	rows, err := r.conn.Query(ctx, `SELECT level, roleid FROM level_rewards ORDER BY level ASC`)
	if err != nil {
		return nil, shared.Storage("ListRewards", err)
	}
	defer rows.Close()

	var out []leveling.LevelReward
	for rows.Next() {
		var level int
		var roleID int64
		if err := rows.Scan(&level, &roleID); err != nil {
			return nil, shared.Storage("ListRewards", err)
		}
		out = append(out, leveling.LevelReward{Level: level, RoleID: leveling.Snowflake(roleID)})
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("ListRewards", err)
	}
	return out, nil
}

// ListMultiplierOverrides returns every role override.
func (r *SettingsRepository) ListMultiplierOverrides(ctx context.Context) ([]leveling.MultiplierOverride, error) {
	rows, err := r.conn.Query(ctx, `SELECT roleid, multiplicator FROM level_multiplicatoroverrideroles`)
	if err != nil {
		return nil, shared.Storage("ListMultiplierOverrides", err)
	}
	defer rows.Close()

	var out []leveling.MultiplierOverride
	for rows.Next() {
		var roleID int64
		var m float32
		if err := rows.Scan(&roleID, &m); err != nil {
			return nil, shared.Storage("ListMultiplierOverrides", err)
		}
		out = append(out, leveling.MultiplierOverride{RoleID: leveling.Snowflake(roleID), Multiplier: float64(m)})
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("ListMultiplierOverrides", err)
	}
	return out, nil
}

// MarkRecalculated stamps lastrecalc. A guild without a settings row is left
// alone so the stamp never conjures a configured guild.
func (r *SettingsRepository) MarkRecalculated(ctx context.Context, guildID leveling.Snowflake, at time.Time) error {
	_, err := r.conn.Exec(ctx, `
		UPDATE levelingsettings SET lastrecalc = $2 WHERE guildid = $1
	`, int64(guildID), leveling.UnixOrZero(at))
	return shared.Storage("MarkRecalculated", err)
}
