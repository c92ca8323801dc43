package sqlite

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// LogXPTransfer inserts one transfer row. A zero timestamp means now.
func (s *Store) LogXPTransfer(ctx context.Context, e leveling.XPTransferLog) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO xptransferlogs (sourceuserid, destinationuserid, executorid, amount, timestamp)
		VALUES (:src, :dst, :executor, :amount, :ts)`, map[string]any{
		"src":      int64(e.SourceUserID),
		"dst":      int64(e.DestinationUserID),
		"executor": int64(e.ExecutorID),
		"amount":   e.Amount,
		"ts":       e.Timestamp.Unix(),
	})
	return shared.Storage("LogXPTransfer", err)
}

// LogBan inserts one ban row; an empty reason stores DefaultBanReason.
func (s *Store) LogBan(ctx context.Context, e leveling.BanLog) error {
	if strings.TrimSpace(e.Reason) == "" {
		e.Reason = leveling.DefaultBanReason
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO banlogs (userid, executorid, reason, timestamp) VALUES (?, ?, ?, ?)`,
		int64(e.UserID), int64(e.ExecutorID), e.Reason, e.Timestamp.Unix())
	return shared.Storage("LogBan", err)
}
