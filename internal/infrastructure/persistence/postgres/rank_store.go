package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// RANK STORE
// ══════════════════════════════════════════════════════════════════════════════

// RankStore implements leveling.RankStore on the levelingdata table.
type RankStore struct {
	conn *Connection
}

// NewRankStore creates a RankStore.
func NewRankStore(conn *Connection) *RankStore {
	return &RankStore{conn: conn}
}

var _ leveling.RankStore = (*RankStore)(nil)

const selectRecord = `
	SELECT userid, current_xp, current_level, last_text_reward, last_vc_reward
	FROM levelingdata`

// The stamp column differs per activity; both statements compare the row
// against the snapshot the award was computed from and enforce the cooldown
// in the same statement.
const (
	applyTextAward = `
		UPDATE levelingdata
		SET current_xp = $2, current_level = $3, last_text_reward = $4
		WHERE userid = $1
		  AND current_xp = $5
		  AND last_text_reward = $6
		  AND (last_text_reward = 0 OR $4 - last_text_reward >= $7)`

	applyVoiceAward = `
		UPDATE levelingdata
		SET current_xp = $2, current_level = $3, last_vc_reward = $4
		WHERE userid = $1
		  AND current_xp = $5
		  AND last_vc_reward = $6
		  AND (last_vc_reward = 0 OR $4 - last_vc_reward >= $7)`
)

// GetRecord returns the stored row or the zero record.
func (s *RankStore) GetRecord(ctx context.Context, userID leveling.Snowflake) (leveling.UserLevelRecord, error) {
	rec, err := scanRecord(s.conn.QueryRow(ctx, selectRecord+` WHERE userid = $1`, int64(userID)))
	if IsNoRows(err) {
		return leveling.ZeroRecord(userID), nil
	}
	if err != nil {
		return leveling.UserLevelRecord{}, shared.Storage("GetRecord", err)
	}
	return rec, nil
}

// EnsureUser inserts a zero row when none exists.
func (s *RankStore) EnsureUser(ctx context.Context, userID leveling.Snowflake) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO levelingdata (userid, current_xp, current_level)
		VALUES ($1, 0, 0)
		ON CONFLICT (userid) DO NOTHING
	`, int64(userID))
	return shared.Storage("EnsureUser", err)
}

// ApplyAward runs the conditional update; false means zero rows matched.
func (s *RankStore) ApplyAward(ctx context.Context, u leveling.AwardUpdate) (bool, error) {
	query := applyTextAward
	if u.Activity == leveling.ActivityVoice {
		query = applyVoiceAward
	}

	tag, err := s.conn.Exec(ctx, query,
		int64(u.UserID),
		u.NewXP,
		u.NewLevel,
		leveling.UnixOrZero(u.RewardAt),
		u.ExpectedXP,
		leveling.UnixOrZero(u.ExpectedRewardAt),
		int64(u.Cooldown.Seconds()),
	)
	if err != nil {
		return false, shared.Storage("ApplyAward", err)
	}
	return tag.RowsAffected() == 1, nil
}

// SetLevel writes level only while current_xp is still expectedXP.
func (s *RankStore) SetLevel(ctx context.Context, userID leveling.Snowflake, expectedXP, level int) (bool, error) {
	tag, err := s.conn.Exec(ctx, `
		UPDATE levelingdata SET current_level = $3
		WHERE userid = $1 AND current_xp = $2
	`, int64(userID), expectedXP, level)
	if err != nil {
		return false, shared.Storage("SetLevel", err)
	}
	return tag.RowsAffected() == 1, nil
}

// ListRecords pages through the table by user id.
func (s *RankStore) ListRecords(ctx context.Context, after leveling.Snowflake, limit int) ([]leveling.UserLevelRecord, error) {
	rows, err := s.conn.Query(ctx, selectRecord+`
		WHERE userid > $1
		ORDER BY userid ASC
		LIMIT $2
	`, int64(after), limit)
	if err != nil {
		return nil, shared.Storage("ListRecords", err)
	}
	defer rows.Close()

	var out []leveling.UserLevelRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, shared.Storage("ListRecords", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("ListRecords", err)
	}
	return out, nil
}

// Leaderboard returns entries by xp desc, user id asc. limit <= 0 means all.
func (s *RankStore) Leaderboard(ctx context.Context, limit int) ([]leveling.LeaderboardEntry, error) {
	query := `
		SELECT userid, current_xp, current_level
		FROM levelingdata
		ORDER BY current_xp DESC, userid ASC`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}

	rows, err := s.conn.Query(ctx, query, args...)
	if err != nil {
		return nil, shared.Storage("Leaderboard", err)
	}
	defer rows.Close()

	var out []leveling.LeaderboardEntry
	for rows.Next() {
		var id int64
		var e leveling.LeaderboardEntry
		if err := rows.Scan(&id, &e.XP, &e.Level); err != nil {
			return nil, shared.Storage("Leaderboard", err)
		}
		e.UserID = leveling.Snowflake(id)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, shared.Storage("Leaderboard", err)
	}
	return out, nil
}

// RankOf counts the rows ahead of userID in leaderboard order.
func (s *RankStore) RankOf(ctx context.Context, userID leveling.Snowflake) (int, bool, error) {
	var rank int
	err := s.conn.QueryRow(ctx, `
		WITH me AS (
			SELECT userid, current_xp FROM levelingdata WHERE userid = $1
		)
		SELECT 1 + (
			SELECT COUNT(*) FROM levelingdata l
			WHERE l.current_xp > me.current_xp
			   OR (l.current_xp = me.current_xp AND l.userid < me.userid)
		)
		FROM me
	`, int64(userID)).Scan(&rank)
	if IsNoRows(err) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, shared.Storage("RankOf", err)
	}
	return rank, true, nil
}

// TransferXP moves amount from one user to the other inside a transaction.
// Rows are locked in user id order so two opposite transfers cannot deadlock.
func (s *RankStore) TransferXP(ctx context.Context, from, to leveling.Snowflake, amount int) (leveling.UserLevelRecord, leveling.UserLevelRecord, error) {
	if amount <= 0 || from == to {
		return leveling.UserLevelRecord{}, leveling.UserLevelRecord{},
			shared.NewDomainError("rank_store", "TransferXP", shared.ErrInvalidInput, "amount must be positive and users distinct")
	}

	var src, dst leveling.UserLevelRecord
	err := s.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
			INSERT INTO levelingdata (userid, current_xp, current_level)
			VALUES ($1, 0, 0), ($2, 0, 0)
			ON CONFLICT (userid) DO NOTHING
		`, int64(from), int64(to)); err != nil {
			return err
		}

		rows, err := tx.Query(ctx, selectRecord+`
			WHERE userid IN ($1, $2)
			ORDER BY userid
			FOR UPDATE
		`, int64(from), int64(to))
		if err != nil {
			return err
		}
		locked := make(map[leveling.Snowflake]leveling.UserLevelRecord, 2)
		for rows.Next() {
			rec, err := scanRecord(rows)
			if err != nil {
				rows.Close()
				return err
			}
			locked[rec.UserID] = rec
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return err
		}

		src, dst = locked[from], locked[to]
		if src.CurrentXP < amount {
			return shared.NewDomainError("rank_store", "TransferXP", shared.ErrValueOutOfRange,
				fmt.Sprintf("source has %d xp, cannot move %d", src.CurrentXP, amount))
		}

		src.CurrentXP -= amount
		src.CurrentLevel = leveling.LevelAtXp(src.CurrentXP)
		dst.CurrentXP += amount
		dst.CurrentLevel = leveling.LevelAtXp(dst.CurrentXP)

		batch := &pgx.Batch{}
		for _, r := range []leveling.UserLevelRecord{src, dst} {
			batch.Queue(`UPDATE levelingdata SET current_xp = $2, current_level = $3 WHERE userid = $1`,
				int64(r.UserID), r.CurrentXP, r.CurrentLevel)
		}
		br := tx.SendBatch(ctx, batch)
		defer br.Close()
		for i := 0; i < 2; i++ {
			if _, err := br.Exec(); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		var de *shared.DomainError
		if errors.As(err, &de) {
			return leveling.UserLevelRecord{}, leveling.UserLevelRecord{}, err
		}
		if IsCheckViolation(err) {
			return leveling.UserLevelRecord{}, leveling.UserLevelRecord{},
				shared.NewDomainError("rank_store", "TransferXP", shared.ErrValueOutOfRange, "transfer would make xp negative")
		}
		return leveling.UserLevelRecord{}, leveling.UserLevelRecord{}, shared.Storage("TransferXP", err)
	}
	return src, dst, nil
}

// Ping checks the pool.
func (s *RankStore) Ping(ctx context.Context) error {
	return shared.Storage("Ping", s.conn.Ping(ctx))
}

func scanRecord(row pgx.Row) (leveling.UserLevelRecord, error) {
	var id, lastText, lastVoice int64
	var rec leveling.UserLevelRecord
	if err := row.Scan(&id, &rec.CurrentXP, &rec.CurrentLevel, &lastText, &lastVoice); err != nil {
		return leveling.UserLevelRecord{}, err
	}
	rec.UserID = leveling.Snowflake(id)
	rec.LastTextRewardAt = leveling.TimeFromUnix(lastText)
	rec.LastVoiceRewardAt = leveling.TimeFromUnix(lastVoice)
	return rec, nil
}
