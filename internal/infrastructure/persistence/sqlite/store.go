// Package sqlite is the embedded storage backend for single-process
// deployments and tests. It implements the same contracts as the postgres
// package on top of sqlx and go-sqlite3.
package sqlite

import (
	"context"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// MemoryPath opens a private in-memory database.
const MemoryPath = ":memory:"

// Store implements leveling.RankStore, leveling.SettingsRepository and
// leveling.AuditLog on one SQLite database.
type Store struct {
	db *sqlx.DB
}

var (
	_ leveling.RankStore          = (*Store)(nil)
	_ leveling.SettingsRepository = (*Store)(nil)
	_ leveling.AuditLog           = (*Store)(nil)
)

// Open connects to path, creates the schema and returns the store.
// SQLite allows one writer at a time, so the pool is pinned to a single
// connection; for :memory: this also keeps every query on the same database.
func Open(path string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	db.SetMaxOpenConns(1)

	s := &Store{db: db}
	if err := s.Migrate(context.Background()); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string) string {
	if path == MemoryPath || strings.HasPrefix(path, "file:") {
		return path
	}
	return path + "?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
}

// Migrate creates missing tables. Statements are idempotent.
func (s *Store) Migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Ping checks the database.
func (s *Store) Ping(ctx context.Context) error {
	return shared.Storage("Ping", s.db.PingContext(ctx))
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS levelingdata (
		userid INTEGER PRIMARY KEY,
		current_xp INTEGER NOT NULL DEFAULT 0 CHECK (current_xp >= 0),
		current_level INTEGER NOT NULL DEFAULT 0 CHECK (current_level >= 0),
		last_text_reward INTEGER NOT NULL DEFAULT 0,
		last_vc_reward INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS idx_levelingdata_rank ON levelingdata (current_xp DESC, userid ASC)`,
	`CREATE TABLE IF NOT EXISTS levelingsettings (
		guildid INTEGER PRIMARY KEY,
		text_active INTEGER NOT NULL DEFAULT 0,
		vc_active INTEGER NOT NULL DEFAULT 0,
		text_multi REAL NOT NULL DEFAULT 1.0,
		vc_multi REAL NOT NULL DEFAULT 1.0,
		levelupmessage TEXT NOT NULL DEFAULT '',
		levelupmessagereward TEXT NOT NULL DEFAULT '',
		levelupchannelid INTEGER NOT NULL DEFAULT 0,
		lastrecalc INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE TABLE IF NOT EXISTS level_rewards (
		level INTEGER PRIMARY KEY CHECK (level > 0),
		roleid INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS level_multiplicatoroverrideroles (
		roleid INTEGER PRIMARY KEY,
		multiplicator REAL NOT NULL DEFAULT 1.0
	)`,
	`CREATE TABLE IF NOT EXISTS xptransferlogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		sourceuserid INTEGER NOT NULL,
		destinationuserid INTEGER NOT NULL,
		executorid INTEGER NOT NULL,
		amount INTEGER NOT NULL,
		timestamp INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS banlogs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		userid INTEGER NOT NULL,
		executorid INTEGER NOT NULL,
		reason TEXT NOT NULL,
		timestamp INTEGER NOT NULL
	)`,
}
