// Package discord wires gateway events into the leveling pipeline: chat
// messages and voice presence become awards, rule acceptance becomes a
// MemberVerifiedEvent.
package discord

import (
	"context"
	"log/slog"
	"runtime/debug"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/alem-hub/levelup/internal/application/command"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// BOT CONFIGURATION
// ══════════════════════════════════════════════════════════════════════════════

// AwardDispatcher starts an award without waiting for it.
type AwardDispatcher interface {
	Dispatch(cmd command.AwardXPCommand)
}

// BotConfig contains configuration for the gateway adapter.
type BotConfig struct {
	// GuildID is the only guild whose events are processed.
	GuildID leveling.Snowflake

	// VoiceTick is the interval between two voice award rounds.
	VoiceTick time.Duration

	// VoiceEnabled gates the voice tick. nil means always on.
	VoiceEnabled func() bool

	// BaseXP draws the base amount per activity. nil uses leveling.BaseXP.
	BaseXP func(leveling.ActivityType) int

	Logger *slog.Logger
}

// ══════════════════════════════════════════════════════════════════════════════
// BOT
// ══════════════════════════════════════════════════════════════════════════════

// Bot receives gateway events. It never blocks a gateway goroutine on storage.
type Bot struct {
	config    BotConfig
	awards    AwardDispatcher
	publisher shared.EventPublisher
	voice     *VoiceTracker
	logger    *slog.Logger

	handlersMu sync.Mutex
	removers   []func()
}

// NewBot creates a Bot.
func NewBot(config BotConfig, awards AwardDispatcher, publisher shared.EventPublisher) *Bot {
	if config.Logger == nil {
		config.Logger = slog.Default()
	}
	if config.VoiceTick <= 0 {
		config.VoiceTick = time.Minute
	}
	if config.VoiceEnabled == nil {
		config.VoiceEnabled = func() bool { return true }
	}
	if config.BaseXP == nil {
		config.BaseXP = func(a leveling.ActivityType) int { return leveling.BaseXP(a, nil) }
	}
	if publisher == nil {
		publisher = shared.NopPublisher{}
	}
	return &Bot{
		config:    config,
		awards:    awards,
		publisher: publisher,
		voice:     NewVoiceTracker(),
		logger:    config.Logger.With(logger.Component("discord_gateway")),
	}
}

// Voice exposes the tracked voice participants.
func (b *Bot) Voice() *VoiceTracker {
	return b.voice
}

// Register attaches the handlers to s and declares the intents they need.
// Call before s.Open.
func (b *Bot) Register(s *discordgo.Session) {
	s.Identify.Intents |= discordgo.IntentsGuilds |
		discordgo.IntentsGuildMessages |
		discordgo.IntentsGuildVoiceStates |
		discordgo.IntentsGuildMembers

	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	b.removers = append(b.removers,
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.MessageCreate) {
			defer b.recover("message_create")
			b.HandleMessageCreate(e)
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.VoiceStateUpdate) {
			defer b.recover("voice_state_update")
			b.HandleVoiceStateUpdate(e)
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildCreate) {
			defer b.recover("guild_create")
			b.HandleGuildCreate(e)
		}),
		s.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildMemberUpdate) {
			defer b.recover("guild_member_update")
			b.HandleGuildMemberUpdate(e)
		}),
	)
}

// Unregister detaches every handler added by Register.
func (b *Bot) Unregister() {
	b.handlersMu.Lock()
	defer b.handlersMu.Unlock()
	for _, remove := range b.removers {
		remove()
	}
	b.removers = nil
}

// RunVoiceTicker awards voice XP every VoiceTick until ctx is done.
func (b *Bot) RunVoiceTicker(ctx context.Context) error {
	ticker := time.NewTicker(b.config.VoiceTick)
	defer ticker.Stop()

	b.logger.Info("voice ticker started", "interval", b.config.VoiceTick)
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("voice ticker stopped")
			return nil
		case <-ticker.C:
			b.VoiceTick()
		}
	}
}

// VoiceTick dispatches one voice award per eligible participant and returns
// how many were dispatched.
func (b *Bot) VoiceTick() int {
	if !b.config.VoiceEnabled() {
		return 0
	}
	eligible := b.voice.Eligible()
	for _, userID := range eligible {
		b.awards.Dispatch(command.AwardXPCommand{
			UserID:   userID,
			BaseXP:   b.config.BaseXP(leveling.ActivityVoice),
			Activity: leveling.ActivityVoice,
		})
	}
	if len(eligible) > 0 {
		b.logger.Debug("voice tick", "participants", len(eligible))
	}
	return len(eligible)
}

func (b *Bot) recover(handler string) {
	if r := recover(); r != nil {
		b.logger.Error("gateway handler panicked",
			"handler", handler,
			"panic", r,
			"stack", string(debug.Stack()),
		)
	}
}
