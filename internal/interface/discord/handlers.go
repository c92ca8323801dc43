package discord

import (
	"github.com/bwmarrin/discordgo"

	"github.com/alem-hub/levelup/internal/application/command"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/pkg/logger"
)

func (b *Bot) inGuild(guildID string) bool {
	id, err := leveling.ParseSnowflake(guildID)
	return err == nil && id == b.config.GuildID
}

// HandleMessageCreate turns a guild chat message into a text award.
func (b *Bot) HandleMessageCreate(m *discordgo.MessageCreate) {
	if m == nil || m.Message == nil || m.Author == nil || m.Author.Bot {
		return
	}
	if !b.inGuild(m.GuildID) {
		return
	}
	userID, err := leveling.ParseSnowflake(m.Author.ID)
	if err != nil {
		b.logger.Warn("malformed author id", "author_id", m.Author.ID, logger.Err(err))
		return
	}
	b.awards.Dispatch(command.AwardXPCommand{
		UserID:   userID,
		BaseXP:   b.config.BaseXP(leveling.ActivityText),
		Activity: leveling.ActivityText,
	})
}

// HandleVoiceStateUpdate keeps the voice tracker current.
func (b *Bot) HandleVoiceStateUpdate(v *discordgo.VoiceStateUpdate) {
	if v == nil || v.VoiceState == nil || !b.inGuild(v.GuildID) {
		return
	}
	b.trackVoiceState(v.VoiceState)
}

// HandleGuildCreate seeds the voice tracker with everyone already connected
// when the session (re)starts.
func (b *Bot) HandleGuildCreate(g *discordgo.GuildCreate) {
	if g == nil || g.Guild == nil || !b.inGuild(g.ID) {
		return
	}
	bots := make(map[string]bool, len(g.Members))
	for _, m := range g.Members {
		if m.User != nil && m.User.Bot {
			bots[m.User.ID] = true
		}
	}
	b.voice.Reset()
	for _, vs := range g.VoiceStates {
		if bots[vs.UserID] {
			continue
		}
		b.trackVoiceState(vs)
	}
	b.logger.Info("voice participants seeded", "count", b.voice.Len())
}

func (b *Bot) trackVoiceState(vs *discordgo.VoiceState) {
	userID, err := leveling.ParseSnowflake(vs.UserID)
	if err != nil {
		return
	}
	if vs.ChannelID == "" {
		b.voice.Leave(userID)
		return
	}
	if vs.Member != nil && vs.Member.User != nil && vs.Member.User.Bot {
		return
	}
	b.voice.Join(userID, Participant{
		ChannelID: vs.ChannelID,
		Deafened:  vs.Deaf || vs.SelfDeaf,
	})
}

// HandleGuildMemberUpdate publishes MemberVerifiedEvent when a member leaves
// the pending state. The previous state comes from the session state cache;
// without it the transition cannot be detected.
func (b *Bot) HandleGuildMemberUpdate(u *discordgo.GuildMemberUpdate) {
	if u == nil || u.Member == nil || u.User == nil || !b.inGuild(u.GuildID) {
		return
	}
	if u.BeforeUpdate == nil {
		b.logger.Debug("member update without cached previous state", "user_id", u.User.ID)
		return
	}
	if !u.BeforeUpdate.Pending || u.Pending {
		return
	}
	userID, err := leveling.ParseSnowflake(u.User.ID)
	if err != nil {
		return
	}
	if err := b.publisher.Publish(leveling.NewMemberVerifiedEvent(b.config.GuildID, userID)); err != nil {
		b.logger.Error("failed to publish member verified", logger.UserID(userID), logger.Err(err))
		return
	}
	b.logger.Info("member accepted the rules", logger.UserID(userID))
}
