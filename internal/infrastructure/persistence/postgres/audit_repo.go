package postgres

import (
	"context"
	"strings"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// AuditRepository writes xptransferlogs and banlogs.
type AuditRepository struct {
	conn *Connection
}

// NewAuditRepository creates an AuditRepository.
func NewAuditRepository(conn *Connection) *AuditRepository {
	return &AuditRepository{conn: conn}
}

var _ leveling.AuditLog = (*AuditRepository)(nil)

// LogXPTransfer inserts one transfer row. A zero timestamp means now.
func (r *AuditRepository) LogXPTransfer(ctx context.Context, e leveling.XPTransferLog) error {
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO xptransferlogs (sourceuserid, destinationuserid, executorid, amount, timestamp)
		VALUES ($1, $2, $3, $4, $5)
	`, int64(e.SourceUserID), int64(e.DestinationUserID), int64(e.ExecutorID), e.Amount, e.Timestamp.Unix())
	return shared.Storage("LogXPTransfer", err)
}

// LogBan inserts one ban row; an empty reason stores DefaultBanReason.
func (r *AuditRepository) LogBan(ctx context.Context, e leveling.BanLog) error {
	if strings.TrimSpace(e.Reason) == "" {
		e.Reason = leveling.DefaultBanReason
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	_, err := r.conn.Exec(ctx, `
		INSERT INTO banlogs (userid, executorid, reason, timestamp)
		VALUES ($1, $2, $3, $4)
	`, int64(e.UserID), int64(e.ExecutorID), e.Reason, e.Timestamp.Unix())
	return shared.Storage("LogBan", err)
}
