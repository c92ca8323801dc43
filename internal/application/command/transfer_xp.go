package command

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/keylock"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// TRANSFER XP COMMAND
// Moderator action: moves XP from one member to another, rewrites both
// levels and leaves an audit row.
// ══════════════════════════════════════════════════════════════════════════════

// TransferXPCommand moves Amount XP from From to To on behalf of Executor.
type TransferXPCommand struct {
	From     leveling.Snowflake
	To       leveling.Snowflake
	Executor leveling.Snowflake
	Amount   int
}

// Validate validates the command.
func (c TransferXPCommand) Validate() error {
	if c.From.IsZero() || c.To.IsZero() {
		return shared.NewDomainError("leveling", "transfer_xp", shared.ErrInvalidInput, "source and destination are required")
	}
	if c.From == c.To {
		return shared.NewDomainError("leveling", "transfer_xp", shared.ErrInvalidInput, "source and destination must differ")
	}
	if c.Amount <= 0 {
		return shared.NewDomainError("leveling", "transfer_xp", shared.ErrValueOutOfRange, "amount must be positive")
	}
	return nil
}

// TransferXPResult holds both records after the move.
type TransferXPResult struct {
	From leveling.UserLevelRecord
	To   leveling.UserLevelRecord
}

// TransferXPHandler handles TransferXPCommand.
type TransferXPHandler struct {
	store     leveling.RankStore
	audit     leveling.AuditLog
	publisher shared.EventPublisher
	locks     *keylock.Locker[leveling.Snowflake]
	timeout   time.Duration
	now       func() time.Time
	logger    *slog.Logger
}

// NewTransferXPHandler creates a new TransferXPHandler. locks must be the set
// used by the award handler.
func NewTransferXPHandler(
	store leveling.RankStore,
	audit leveling.AuditLog,
	publisher shared.EventPublisher,
	locks *keylock.Locker[leveling.Snowflake],
	timeout time.Duration,
	log *slog.Logger,
) *TransferXPHandler {
	if locks == nil {
		locks = keylock.New[leveling.Snowflake]()
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &TransferXPHandler{
		store:     store,
		audit:     audit,
		publisher: publisher,
		locks:     locks,
		timeout:   timeout,
		now:       time.Now,
		logger:    log.With(logger.Component("transfer_xp")),
	}
}

// Handle executes the transfer.
func (h *TransferXPHandler) Handle(ctx context.Context, cmd TransferXPCommand) (*TransferXPResult, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	// Fixed order so two opposite transfers cannot deadlock.
	first, second := cmd.From, cmd.To
	if second < first {
		first, second = second, first
	}
	unlockFirst := h.locks.Lock(first)
	defer unlockFirst()
	unlockSecond := h.locks.Lock(second)
	defer unlockSecond()

	sctx, cancel := context.WithTimeout(ctx, h.timeout)
	before, err := h.store.GetRecord(sctx, cmd.To)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("transfer_xp: read destination: %w", err)
	}
	from, to, err := h.store.TransferXP(sctx, cmd.From, cmd.To, cmd.Amount)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("transfer_xp: %w", err)
	}

	actx, cancel := context.WithTimeout(ctx, h.timeout)
	if err := h.audit.LogXPTransfer(actx, leveling.XPTransferLog{
		SourceUserID:      cmd.From,
		DestinationUserID: cmd.To,
		ExecutorID:        cmd.Executor,
		Amount:            cmd.Amount,
		Timestamp:         h.now(),
	}); err != nil {
		h.logger.Error("failed to write transfer audit row", logger.Err(err))
	}
	cancel()

	h.logger.Info("xp transferred",
		"from", cmd.From.String(),
		"to", cmd.To.String(),
		"executor", cmd.Executor.String(),
		logger.XP(cmd.Amount),
	)

	if err := h.publisher.Publish(leveling.NewXPTransferredEvent(cmd.From, cmd.To, cmd.Executor, cmd.Amount)); err != nil {
		h.logger.Warn("failed to publish transfer", logger.Err(err))
	}
	if to.CurrentLevel > before.CurrentLevel {
		if err := h.publisher.Publish(leveling.NewLevelUpEvent(cmd.To, before.CurrentLevel, to.CurrentLevel, to.CurrentXP, "")); err != nil {
			h.logger.Error("failed to publish level up", logger.UserID(cmd.To), logger.Err(err))
		}
	}

	return &TransferXPResult{From: from, To: to}, nil
}
