package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
)

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATOR
// ══════════════════════════════════════════════════════════════════════════════

// Migration is one versioned schema step.
type Migration struct {
	Version   int
	Name      string
	UpSQL     string
	DownSQL   string
	AppliedAt time.Time
	IsApplied bool
}

// Migrator applies the embedded migrations and records them in
// schema_migrations.
type Migrator struct {
	conn       *Connection
	migrations []Migration
	tableName  string
}

// NewMigrator creates a migrator over GetMigrations.
func NewMigrator(conn *Connection) *Migrator {
	return &Migrator{
		conn:       conn,
		migrations: GetMigrations(),
		tableName:  "schema_migrations",
	}
}

// EnsureMigrationTable creates the tracking table if it doesn't exist.
func (m *Migrator) EnsureMigrationTable(ctx context.Context) error {
	query := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW()
		)
	`, m.tableName)

	if _, err := m.conn.Exec(ctx, query); err != nil {
		return fmt.Errorf("failed to create migrations table: %w", err)
	}
	return nil
}

// GetAppliedMigrations returns version -> applied_at.
func (m *Migrator) GetAppliedMigrations(ctx context.Context) (map[int]time.Time, error) {
	rows, err := m.conn.Query(ctx, fmt.Sprintf("SELECT version, applied_at FROM %s ORDER BY version", m.tableName))
	if err != nil {
		return nil, fmt.Errorf("failed to query applied migrations: %w", err)
	}
	defer rows.Close()

	applied := make(map[int]time.Time)
	for rows.Next() {
		var version int
		var appliedAt time.Time
		if err := rows.Scan(&version, &appliedAt); err != nil {
			return nil, fmt.Errorf("failed to scan migration row: %w", err)
		}
		applied[version] = appliedAt
	}
	return applied, rows.Err()
}

// Migrate applies all pending migrations, each in its own transaction.
func (m *Migrator) Migrate(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	for _, mig := range m.migrations {
		if _, ok := applied[mig.Version]; ok {
			continue
		}
		if mig.UpSQL == "" {
			return fmt.Errorf("%w: missing up SQL for migration %d", ErrMigrationFailed, mig.Version)
		}

		err := m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
			if _, err := tx.Exec(ctx, mig.UpSQL); err != nil {
				return fmt.Errorf("failed to execute migration %d: %w", mig.Version, err)
			}
			_, err := tx.Exec(ctx,
				fmt.Sprintf("INSERT INTO %s (version, name) VALUES ($1, $2)", m.tableName),
				mig.Version, mig.Name)
			return err
		})
		if err != nil {
			return fmt.Errorf("%w: version %d: %v", ErrMigrationFailed, mig.Version, err)
		}
	}
	return nil
}

// Rollback reverts the last applied migration.
func (m *Migrator) Rollback(ctx context.Context) error {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return err
	}

	var last int
	for v := range applied {
		if v > last {
			last = v
		}
	}
	if last == 0 {
		return nil
	}

	var migration *Migration
	for i := range m.migrations {
		if m.migrations[i].Version == last {
			migration = &m.migrations[i]
			break
		}
	}
	if migration == nil || migration.DownSQL == "" {
		return fmt.Errorf("%w: missing down SQL for migration %d", ErrMigrationFailed, last)
	}

	return m.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, migration.DownSQL); err != nil {
			return fmt.Errorf("failed to rollback migration %d: %w", last, err)
		}
		_, err := tx.Exec(ctx, fmt.Sprintf("DELETE FROM %s WHERE version = $1", m.tableName), last)
		return err
	})
}

// Status lists every embedded migration with its applied state.
func (m *Migrator) Status(ctx context.Context) ([]Migration, error) {
	if err := m.EnsureMigrationTable(ctx); err != nil {
		return nil, err
	}

	applied, err := m.GetAppliedMigrations(ctx)
	if err != nil {
		return nil, err
	}

	result := make([]Migration, len(m.migrations))
	copy(result, m.migrations)
	for i := range result {
		if at, ok := applied[result[i].Version]; ok {
			result[i].IsApplied = true
			result[i].AppliedAt = at
		}
	}
	return result, nil
}

// GetMigrations returns all embedded migrations in order.
func GetMigrations() []Migration {
	return []Migration{
		{Version: 1, Name: "create_leveling", UpSQL: migration001Up, DownSQL: migration001Down},
		{Version: 2, Name: "create_audit_logs", UpSQL: migration002Up, DownSQL: migration002Down},
	}
}

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 001: LEVELING TABLES
// ══════════════════════════════════════════════════════════════════════════════

// Reward stamps and lastrecalc are unix seconds; 0 means never.
const migration001Up = `
CREATE TABLE IF NOT EXISTS levelingdata (
    userid BIGINT PRIMARY KEY,
    current_xp INTEGER NOT NULL DEFAULT 0 CHECK (current_xp >= 0),
    current_level INTEGER NOT NULL DEFAULT 0 CHECK (current_level >= 0),
    last_text_reward BIGINT NOT NULL DEFAULT 0,
    last_vc_reward BIGINT NOT NULL DEFAULT 0
);

-- Leaderboard order: xp desc, user id asc
CREATE INDEX IF NOT EXISTS idx_levelingdata_rank
    ON levelingdata (current_xp DESC, userid ASC);

CREATE TABLE IF NOT EXISTS levelingsettings (
    guildid BIGINT PRIMARY KEY,
    text_active BOOLEAN NOT NULL DEFAULT FALSE,
    vc_active BOOLEAN NOT NULL DEFAULT FALSE,
    text_multi REAL NOT NULL DEFAULT 1.0,
    vc_multi REAL NOT NULL DEFAULT 1.0,
    levelupmessage TEXT NOT NULL DEFAULT '',
    levelupmessagereward TEXT NOT NULL DEFAULT '',
    levelupchannelid BIGINT NOT NULL DEFAULT 0,
    lastrecalc BIGINT NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS level_rewards (
    level INTEGER PRIMARY KEY CHECK (level > 0),
    roleid BIGINT NOT NULL
);

CREATE TABLE IF NOT EXISTS level_multiplicatoroverrideroles (
    roleid BIGINT PRIMARY KEY,
    multiplicator REAL NOT NULL DEFAULT 1.0
);
`

const migration001Down = `
DROP TABLE IF EXISTS level_multiplicatoroverrideroles;
DROP TABLE IF EXISTS level_rewards;
DROP TABLE IF EXISTS levelingsettings;
DROP TABLE IF EXISTS levelingdata;
`

// ══════════════════════════════════════════════════════════════════════════════
// MIGRATION 002: AUDIT LOGS
// ══════════════════════════════════════════════════════════════════════════════

const migration002Up = `
CREATE TABLE IF NOT EXISTS xptransferlogs (
    id BIGSERIAL PRIMARY KEY,
    sourceuserid BIGINT NOT NULL,
    destinationuserid BIGINT NOT NULL,
    executorid BIGINT NOT NULL,
    amount INTEGER NOT NULL,
    timestamp BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_xptransferlogs_source ON xptransferlogs (sourceuserid);

CREATE TABLE IF NOT EXISTS banlogs (
    id BIGSERIAL PRIMARY KEY,
    userid BIGINT NOT NULL,
    executorid BIGINT NOT NULL,
    reason TEXT NOT NULL,
    timestamp BIGINT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_banlogs_user ON banlogs (userid);
`

const migration002Down = `
DROP TABLE IF EXISTS banlogs;
DROP TABLE IF EXISTS xptransferlogs;
`
