package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

type recordRow struct {
	UserID       int64 `db:"userid"`
	CurrentXP    int   `db:"current_xp"`
	CurrentLevel int   `db:"current_level"`
	LastText     int64 `db:"last_text_reward"`
	LastVoice    int64 `db:"last_vc_reward"`
}

func (r recordRow) toDomain() leveling.UserLevelRecord {
	return leveling.UserLevelRecord{
		UserID:            leveling.Snowflake(r.UserID),
		CurrentXP:         r.CurrentXP,
		CurrentLevel:      r.CurrentLevel,
		LastTextRewardAt:  leveling.TimeFromUnix(r.LastText),
		LastVoiceRewardAt: leveling.TimeFromUnix(r.LastVoice),
	}
}

type entryRow struct {
	UserID int64 `db:"userid"`
	XP     int   `db:"current_xp"`
	Level  int   `db:"current_level"`
}

const selectRecord = `SELECT userid, current_xp, current_level, last_text_reward, last_vc_reward FROM levelingdata`

const (
	applyTextAward = `UPDATE levelingdata
		SET current_xp = :new_xp, current_level = :new_level, last_text_reward = :reward_at
		WHERE userid = :userid
		  AND current_xp = :expected_xp
		  AND last_text_reward = :expected_at
		  AND (last_text_reward = 0 OR :reward_at - last_text_reward >= :cooldown)`

	applyVoiceAward = `UPDATE levelingdata
		SET current_xp = :new_xp, current_level = :new_level, last_vc_reward = :reward_at
		WHERE userid = :userid
		  AND current_xp = :expected_xp
		  AND last_vc_reward = :expected_at
		  AND (last_vc_reward = 0 OR :reward_at - last_vc_reward >= :cooldown)`
)

// GetRecord returns the stored row or the zero record.
func (s *Store) GetRecord(ctx context.Context, userID leveling.Snowflake) (leveling.UserLevelRecord, error) {
	var row recordRow
	err := s.db.GetContext(ctx, &row, selectRecord+` WHERE userid = ?`, int64(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return leveling.ZeroRecord(userID), nil
	}
	if err != nil {
		return leveling.UserLevelRecord{}, shared.Storage("GetRecord", err)
	}
	return row.toDomain(), nil
}

// EnsureUser inserts a zero row when none exists.
func (s *Store) EnsureUser(ctx context.Context, userID leveling.Snowflake) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO levelingdata (userid, current_xp, current_level) VALUES (?, 0, 0)`,
		int64(userID))
	return shared.Storage("EnsureUser", err)
}

// ApplyAward runs the conditional update; false means zero rows matched.
func (s *Store) ApplyAward(ctx context.Context, u leveling.AwardUpdate) (bool, error) {
	query := applyTextAward
	if u.Activity == leveling.ActivityVoice {
		query = applyVoiceAward
	}

	res, err := s.db.NamedExecContext(ctx, query, map[string]any{
		"userid":      int64(u.UserID),
		"new_xp":      u.NewXP,
		"new_level":   u.NewLevel,
		"reward_at":   leveling.UnixOrZero(u.RewardAt),
		"expected_xp": u.ExpectedXP,
		"expected_at": leveling.UnixOrZero(u.ExpectedRewardAt),
		"cooldown":    int64(u.Cooldown.Seconds()),
	})
	if err != nil {
		return false, shared.Storage("ApplyAward", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, shared.Storage("ApplyAward", err)
	}
	return n == 1, nil
}

// SetLevel writes level only while current_xp is still expectedXP.
func (s *Store) SetLevel(ctx context.Context, userID leveling.Snowflake, expectedXP, level int) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE levelingdata SET current_level = ? WHERE userid = ? AND current_xp = ?`,
		level, int64(userID), expectedXP)
	if err != nil {
		return false, shared.Storage("SetLevel", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, shared.Storage("SetLevel", err)
	}
	return n == 1, nil
}

// ListRecords pages through the table by user id.
func (s *Store) ListRecords(ctx context.Context, after leveling.Snowflake, limit int) ([]leveling.UserLevelRecord, error) {
	var rows []recordRow
	err := s.db.SelectContext(ctx, &rows,
		selectRecord+` WHERE userid > ? ORDER BY userid ASC LIMIT ?`, int64(after), limit)
	if err != nil {
		return nil, shared.Storage("ListRecords", err)
	}
	out := make([]leveling.UserLevelRecord, len(rows))
	for i, r := range rows {
		out[i] = r.toDomain()
	}
	return out, nil
}

// Leaderboard returns entries by xp desc, user id asc. limit <= 0 means all.
func (s *Store) Leaderboard(ctx context.Context, limit int) ([]leveling.LeaderboardEntry, error) {
	query := `SELECT userid, current_xp, current_level FROM levelingdata ORDER BY current_xp DESC, userid ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	var rows []entryRow
	if err := s.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, shared.Storage("Leaderboard", err)
	}
	out := make([]leveling.LeaderboardEntry, len(rows))
	for i, r := range rows {
		out[i] = leveling.LeaderboardEntry{UserID: leveling.Snowflake(r.UserID), XP: r.XP, Level: r.Level}
	}
	return out, nil
}

// RankOf counts the rows ahead of userID in leaderboard order.
func (s *Store) RankOf(ctx context.Context, userID leveling.Snowflake) (int, bool, error) {
	var rank int
	err := s.db.GetContext(ctx, &rank, `
		WITH me AS (SELECT userid, current_xp FROM levelingdata WHERE userid = ?)
		SELECT 1 + (
			SELECT COUNT(*) FROM levelingdata l
			WHERE l.current_xp > me.current_xp
			   OR (l.current_xp = me.current_xp AND l.userid < me.userid)
		) FROM me`, int64(userID))
	if errors.Is(err, sql.ErrNoRows) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, shared.Storage("RankOf", err)
	}
	return rank, true, nil
}

// TransferXP moves amount from one user to the other in one transaction.
func (s *Store) TransferXP(ctx context.Context, from, to leveling.Snowflake, amount int) (leveling.UserLevelRecord, leveling.UserLevelRecord, error) {
	var zero leveling.UserLevelRecord
	if amount <= 0 || from == to {
		return zero, zero, shared.NewDomainError("rank_store", "TransferXP", shared.ErrInvalidInput, "amount must be positive and users distinct")
	}

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return zero, zero, shared.Storage("TransferXP", err)
	}
	defer tx.Rollback()

	for _, id := range []leveling.Snowflake{from, to} {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO levelingdata (userid, current_xp, current_level) VALUES (?, 0, 0)`, int64(id)); err != nil {
			return zero, zero, shared.Storage("TransferXP", err)
		}
	}

	var srcRow, dstRow recordRow
	if err := tx.GetContext(ctx, &srcRow, selectRecord+` WHERE userid = ?`, int64(from)); err != nil {
		return zero, zero, shared.Storage("TransferXP", err)
	}
	if err := tx.GetContext(ctx, &dstRow, selectRecord+` WHERE userid = ?`, int64(to)); err != nil {
		return zero, zero, shared.Storage("TransferXP", err)
	}

	src, dst := srcRow.toDomain(), dstRow.toDomain()
	if src.CurrentXP < amount {
		return zero, zero, shared.NewDomainError("rank_store", "TransferXP", shared.ErrValueOutOfRange,
			fmt.Sprintf("source has %d xp, cannot move %d", src.CurrentXP, amount))
	}

	src.CurrentXP -= amount
	src.CurrentLevel = leveling.LevelAtXp(src.CurrentXP)
	dst.CurrentXP += amount
	dst.CurrentLevel = leveling.LevelAtXp(dst.CurrentXP)

	for _, r := range []leveling.UserLevelRecord{src, dst} {
		if _, err := tx.ExecContext(ctx,
			`UPDATE levelingdata SET current_xp = ?, current_level = ? WHERE userid = ?`,
			r.CurrentXP, r.CurrentLevel, int64(r.UserID)); err != nil {
			return zero, zero, shared.Storage("TransferXP", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return zero, zero, shared.Storage("TransferXP", err)
	}
	return src, dst, nil
}
