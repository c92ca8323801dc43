// Package jobs adapts the maintenance commands to the scheduler.Job interface.
package jobs

import (
	"context"

	"github.com/alem-hub/levelup/internal/application/command"
)

// Job names, also used as metric labels.
const (
	NameRecalculateLevels  = "recalculate_levels"
	NameRebuildLeaderboard = "rebuild_leaderboard"
)

// RecalculateLevelsJob rewrites every stored level from stored XP.
type RecalculateLevelsJob struct {
	handler *command.RecalculateLevelsHandler
}

// NewRecalculateLevelsJob creates the job.
func NewRecalculateLevelsJob(h *command.RecalculateLevelsHandler) *RecalculateLevelsJob {
	return &RecalculateLevelsJob{handler: h}
}

func (j *RecalculateLevelsJob) Name() string { return NameRecalculateLevels }

func (j *RecalculateLevelsJob) Description() string {
	return "Recompute stored levels from stored XP"
}

func (j *RecalculateLevelsJob) Run(ctx context.Context) error {
	_, err := j.handler.Handle(ctx)
	return err
}

// RebuildLeaderboardJob refills the Redis leaderboard from the store.
type RebuildLeaderboardJob struct {
	handler *command.RebuildLeaderboardHandler
}

// NewRebuildLeaderboardJob creates the job.
func NewRebuildLeaderboardJob(h *command.RebuildLeaderboardHandler) *RebuildLeaderboardJob {
	return &RebuildLeaderboardJob{handler: h}
}

func (j *RebuildLeaderboardJob) Name() string { return NameRebuildLeaderboard }

func (j *RebuildLeaderboardJob) Description() string {
	return "Rebuild the leaderboard cache from the database"
}

func (j *RebuildLeaderboardJob) Run(ctx context.Context) error {
	_, err := j.handler.Handle(ctx)
	return err
}
