package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/alem-hub/levelup/config"
	"github.com/alem-hub/levelup/internal/application/command"
	"github.com/alem-hub/levelup/internal/application/eventhandler"
	"github.com/alem-hub/levelup/internal/application/query"
	"github.com/alem-hub/levelup/internal/bootstrap"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/internal/infrastructure/messaging"
	"github.com/alem-hub/levelup/pkg/keylock"
)

// env is what the storage-backed commands run against.
type env struct {
	cfg     *config.Config
	storage *bootstrap.Storage
	cache   *bootstrap.Redis
	bus     *messaging.InMemoryEventBus
	log     *slog.Logger

	// release frees storage and cache; nil when the opener owns them.
	release func()
}

func (e *env) close() {
	if e.bus != nil {
		_ = e.bus.Close()
	}
	if e.release != nil {
		e.release()
	}
}

func (e *env) guildID() leveling.Snowflake {
	return leveling.Snowflake(e.cfg.Discord.GuildID)
}

// opener builds the env. Tests replace it with an in-memory store.
type opener func(ctx context.Context) (*env, error)

func defaultOpener(ctx context.Context) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := bootstrap.SetupLogger(cfg, "levelctl")
	storage, err := bootstrap.OpenStorage(ctx, cfg.Database, log)
	if err != nil {
		return nil, err
	}
	e := &env{cfg: cfg, storage: storage, log: log}
	if cfg.Features.Enabled(config.FeatureLeaderboardCache) {
		e.cache = bootstrap.OpenRedisOptional(cfg.Redis, e.guildID(), log)
	}
	e.release = func() {
		if e.cache != nil {
			_ = e.cache.Close()
		}
		_ = storage.Close()
	}
	return e, nil
}

// withEnv opens the env around run.
func withEnv(open opener, run func(cmd *cobra.Command, args []string, e *env) error) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		e, err := open(cmd.Context())
		if err != nil {
			return err
		}
		defer e.close()
		return run(cmd, args, e)
	}
}

func newRootCmd(open opener) *cobra.Command {
	root := &cobra.Command{
		Use:           "levelctl",
		Short:         "Operate the LevelUp leveling engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(open),
		newCurveCmd(),
		newRankCmd(open),
		newLeaderboardCmd(open),
		newRecalcCmd(open),
		newTransferCmd(open),
		newBanLogCmd(open),
	)
	return root
}

// ─────────────────────────────────────────────────────────────────────────────
// migrate
// ─────────────────────────────────────────────────────────────────────────────

func newMigrateCmd(open opener) *cobra.Command {
	var status bool
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			ctx := cmd.Context()
			if !status {
				if err := e.storage.Migrate(ctx); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "schema up to date (%s)\n", e.storage.Driver)
			}
			migrations, err := e.storage.MigrationStatus(ctx)
			if err != nil {
				return err
			}
			if len(migrations) == 0 {
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED")
			for _, m := range migrations {
				applied := "-"
				if m.IsApplied {
					applied = m.AppliedAt.UTC().Format("2006-01-02 15:04:05")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", m.Version, m.Name, applied)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().BoolVar(&status, "status", false, "only list migrations")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// curve
// ─────────────────────────────────────────────────────────────────────────────

func newCurveCmd() *cobra.Command {
	var xp int
	cmd := &cobra.Command{
		Use:   "curve [level]",
		Short: "Show XP thresholds of a level, or the level of an XP total with --xp",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			if cmd.Flags().Changed("xp") {
				if xp < 0 {
					return fmt.Errorf("--xp must not be negative")
				}
				printProgress(out, leveling.ProgressAt(xp))
				return nil
			}
			if len(args) != 1 {
				return fmt.Errorf("level or --xp is required")
			}
			level, err := strconv.Atoi(args[0])
			if err != nil || level < 0 {
				return fmt.Errorf("level must be a non-negative integer")
			}
			minXP, maxXP := leveling.MinAndMaxXpForThisLevel(level)
			w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "level\t%d\n", level)
			fmt.Fprintf(w, "xp_for_level\t%d\n", leveling.XpForLevel(level))
			fmt.Fprintf(w, "xp_for_next_level\t%d\n", leveling.XpForLevel(level+1))
			fmt.Fprintf(w, "range\t%d..%d\n", minXP, maxXP)
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&xp, "xp", 0, "look up the level reached with this much XP")
	return cmd
}

func printProgress(out io.Writer, p leveling.Progress) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "xp\t%d\n", p.XP)
	fmt.Fprintf(w, "level\t%d\n", p.Level)
	fmt.Fprintf(w, "xp_to_next\t%d\n", p.XPToNext)
	fmt.Fprintf(w, "range\t%d..%d\n", p.LevelMinXP, p.LevelMaxXP)
	_ = w.Flush()
}

// ─────────────────────────────────────────────────────────────────────────────
// rank / leaderboard
// ─────────────────────────────────────────────────────────────────────────────

func (e *env) leaderboardCache() query.LeaderboardCache {
	if e.cache == nil {
		return nil
	}
	return e.cache.Leaderboard
}

func newRankCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "rank <user>",
		Short: "Show the rank card of a user",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			h := query.NewGetUserRankHandler(e.storage.Ranks, e.leaderboardCache(), e.log)
			dto, err := h.Handle(cmd.Context(), query.GetUserRankQuery{UserID: userID})
			if err != nil {
				return err
			}
			rank := "unranked"
			if dto.Found {
				rank = "#" + strconv.Itoa(dto.Rank)
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "user\t%s\n", dto.UserID)
			fmt.Fprintf(w, "rank\t%s\n", rank)
			fmt.Fprintf(w, "xp\t%d\n", dto.XP)
			fmt.Fprintf(w, "level\t%d\n", dto.Level)
			fmt.Fprintf(w, "xp_to_next\t%d\n", dto.XPToNext)
			return w.Flush()
		}),
	}
}

func newLeaderboardCmd(open opener) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print the top of the leaderboard",
		Args:  cobra.NoArgs,
		RunE: withEnv(open, func(cmd *cobra.Command, _ []string, e *env) error {
			h := query.NewGetLeaderboardHandler(e.storage.Ranks, e.leaderboardCache(), query.LeaderboardLimits{
				Default: e.cfg.Leveling.LeaderboardDefaultLimit,
				Max:     e.cfg.Leveling.LeaderboardMaxLimit,
			}, e.log)
			res, err := h.Handle(cmd.Context(), query.GetLeaderboardQuery{Limit: limit})
			if err != nil {
				return err
			}
			if res.Entries.IsPlaceholder() {
				fmt.Fprintln(cmd.OutOrStdout(), "leaderboard is empty")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "RANK\tUSER\tLEVEL\tXP")
			for i, entry := range res.Entries {
				fmt.Fprintf(w, "%d\t%s\t%d\t%d\n", i+1, entry.UserID, entry.Level, entry.XP)
			}
			return w.Flush()
		}),
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "number of entries (0 uses the configured default)")
	return cmd
}

// ─────────────────────────────────────────────────────────────────────────────
// recalc
// ─────────────────────────────────────────────────────────────────────────────

func newRecalcCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "recalc [user]",
		Short: "Rewrite stored levels from stored XP, for one user or everyone",
		Args:  cobra.MaximumNArgs(1),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			h := command.NewRecalculateLevelsHandler(e.storage.Ranks, e.storage.Settings, nil, command.RecalculateLevelsConfig{
				GuildID:        e.guildID(),
				BatchSize:      e.cfg.Leveling.RecalcBatchSize,
				StorageTimeout: e.cfg.Leveling.StorageTimeout,
				Logger:         e.log,
			})
			out := cmd.OutOrStdout()

			if len(args) == 1 {
				userID, err := parseID("user", args[0])
				if err != nil {
					return err
				}
				changed, err := h.RecalculateLevel(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if changed {
					fmt.Fprintf(out, "level of %s corrected\n", userID)
				} else {
					fmt.Fprintf(out, "level of %s already consistent\n", userID)
				}
				return nil
			}

			res, err := h.Handle(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "run %s: scanned %d, updated %d, skipped %d in %s\n",
				res.RunID, res.Scanned, res.Updated, res.Skipped, res.Duration.Round(time.Millisecond))
			return nil
		}),
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// transfer / ban-log
// ─────────────────────────────────────────────────────────────────────────────

func newTransferCmd(open opener) *cobra.Command {
	var executor string
	cmd := &cobra.Command{
		Use:   "transfer <from> <to> <amount>",
		Short: "Move XP between two users and record it in the audit log",
		Args:  cobra.ExactArgs(3),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			from, err := parseID("from", args[0])
			if err != nil {
				return err
			}
			to, err := parseID("to", args[1])
			if err != nil {
				return err
			}
			amount, err := strconv.Atoi(args[2])
			if err != nil {
				return fmt.Errorf("amount must be an integer")
			}
			executorID, err := parseID("executor", executor)
			if err != nil {
				return err
			}

			publisher, err := e.transferPublisher()
			if err != nil {
				return err
			}
			h := command.NewTransferXPHandler(e.storage.Ranks, e.storage.Audit, publisher,
				keylock.New[leveling.Snowflake](), e.cfg.Leveling.StorageTimeout, e.log)
			res, err := h.Handle(cmd.Context(), command.TransferXPCommand{
				From:     from,
				To:       to,
				Executor: executorID,
				Amount:   amount,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "moved %d XP: %s now %d XP (level %d), %s now %d XP (level %d)\n",
				amount,
				res.From.UserID, res.From.CurrentXP, res.From.CurrentLevel,
				res.To.UserID, res.To.CurrentXP, res.To.CurrentLevel)
			return nil
		}),
	}
	cmd.Flags().StringVar(&executor, "executor", "", "Discord id of the moderator performing the transfer (required)")
	_ = cmd.MarkFlagRequired("executor")
	return cmd
}

// transferPublisher invalidates the Redis leaderboard after a transfer. The
// role and message side of a level-up belongs to the bot and is not run here.
func (e *env) transferPublisher() (shared.EventPublisher, error) {
	if e.cache == nil {
		return shared.NopPublisher{}, nil
	}
	bus := messaging.NewInMemoryEventBus(messaging.InMemoryEventBusConfig{Logger: e.log})
	e.bus = bus
	updater := eventhandler.NewOnXPChangedHandler(e.cache.Leaderboard, e.log)
	if err := bus.Subscribe(shared.EventXPMoved, updater.EventHandler()); err != nil {
		return nil, err
	}
	return bus, nil
}

func newBanLogCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "ban-log <user> <executor> [reason...]",
		Short: "Record a ban in the audit log",
		Args:  cobra.MinimumNArgs(2),
		RunE: withEnv(open, func(cmd *cobra.Command, args []string, e *env) error {
			userID, err := parseID("user", args[0])
			if err != nil {
				return err
			}
			executorID, err := parseID("executor", args[1])
			if err != nil {
				return err
			}
			reason := strings.Join(args[2:], " ")
			if err := command.NewLogBanHandler(e.storage.Audit).Handle(cmd.Context(), command.LogBanCommand{
				UserID:     userID,
				ExecutorID: executorID,
				Reason:     reason,
			}); err != nil {
				return err
			}
			if reason == "" {
				reason = leveling.DefaultBanReason
			}
			fmt.Fprintf(cmd.OutOrStdout(), "ban of %s by %s logged: %s\n", userID, executorID, reason)
			return nil
		}),
	}
}

func parseID(name, raw string) (leveling.Snowflake, error) {
	id, err := leveling.ParseSnowflake(strings.TrimSpace(raw))
	if err != nil || id.IsZero() {
		return 0, fmt.Errorf("%s must be a Discord snowflake, got %q", name, raw)
	}
	return id, nil
}
