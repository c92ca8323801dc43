package command

import (
	"context"
	"fmt"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

// LogBanCommand records a moderator ban in the audit log.
type LogBanCommand struct {
	UserID     leveling.Snowflake
	ExecutorID leveling.Snowflake
	Reason     string
	Timestamp  time.Time
}

// LogBanHandler handles LogBanCommand.
type LogBanHandler struct {
	audit leveling.AuditLog
}

// NewLogBanHandler creates a new LogBanHandler.
func NewLogBanHandler(audit leveling.AuditLog) *LogBanHandler {
	return &LogBanHandler{audit: audit}
}

// Handle writes the row. An empty reason is stored as the default reason.
func (h *LogBanHandler) Handle(ctx context.Context, cmd LogBanCommand) error {
	if cmd.UserID.IsZero() {
		return shared.NewDomainError("leveling", "log_ban", shared.ErrInvalidInput, "user_id is required")
	}
	if cmd.Timestamp.IsZero() {
		cmd.Timestamp = time.Now()
	}
	if cmd.Reason == "" {
		cmd.Reason = leveling.DefaultBanReason
	}
	if err := h.audit.LogBan(ctx, leveling.BanLog{
		UserID:     cmd.UserID,
		ExecutorID: cmd.ExecutorID,
		Reason:     cmd.Reason,
		Timestamp:  cmd.Timestamp,
	}); err != nil {
		return fmt.Errorf("log_ban: %w", err)
	}
	return nil
}
