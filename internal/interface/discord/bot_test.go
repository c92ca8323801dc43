package discord

import (
	"sync"
	"testing"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/application/command"
	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
)

type captureDispatcher struct {
	mu   sync.Mutex
	cmds []command.AwardXPCommand
}

func (d *captureDispatcher) Dispatch(cmd command.AwardXPCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cmds = append(d.cmds, cmd)
}

type capturePublisher struct {
	events []shared.Event
}

func (p *capturePublisher) Publish(e shared.Event) error {
	p.events = append(p.events, e)
	return nil
}

func newTestBot(voiceOn bool) (*Bot, *captureDispatcher, *capturePublisher) {
	d := &captureDispatcher{}
	p := &capturePublisher{}
	b := NewBot(BotConfig{
		GuildID:      42,
		VoiceEnabled: func() bool { return voiceOn },
		BaseXP:       func(a leveling.ActivityType) int { return map[leveling.ActivityType]int{"text": 20, "voice": 4}[a] },
	}, d, p)
	return b, d, p
}

func message(guild, author string, bot bool) *discordgo.MessageCreate {
	return &discordgo.MessageCreate{Message: &discordgo.Message{
		GuildID: guild,
		Author:  &discordgo.User{ID: author, Bot: bot},
	}}
}

func TestHandleMessageCreate(t *testing.T) {
	b, d, _ := newTestBot(true)

	b.HandleMessageCreate(message("42", "7", false))
	b.HandleMessageCreate(message("42", "8", true))
	b.HandleMessageCreate(message("99", "9", false))
	b.HandleMessageCreate(message("", "10", false))
	b.HandleMessageCreate(&discordgo.MessageCreate{Message: &discordgo.Message{GuildID: "42"}})

	require.Len(t, d.cmds, 1)
	assert.Equal(t, command.AwardXPCommand{UserID: 7, BaseXP: 20, Activity: leveling.ActivityText}, d.cmds[0])
}

func voice(guild, user, channel string, deaf bool) *discordgo.VoiceStateUpdate {
	return &discordgo.VoiceStateUpdate{VoiceState: &discordgo.VoiceState{
		GuildID:   guild,
		UserID:    user,
		ChannelID: channel,
		SelfDeaf:  deaf,
	}}
}

func TestVoiceTick(t *testing.T) {
	b, d, _ := newTestBot(true)

	b.HandleVoiceStateUpdate(voice("42", "1", "500", false))
	b.HandleVoiceStateUpdate(voice("42", "2", "500", true))
	b.HandleVoiceStateUpdate(voice("42", "3", "501", false))
	b.HandleVoiceStateUpdate(voice("99", "4", "600", false))
	b.HandleVoiceStateUpdate(voice("42", "3", "", false))

	assert.Equal(t, 2, b.Voice().Len())
	assert.Equal(t, 1, b.VoiceTick())
	require.Len(t, d.cmds, 1)
	assert.Equal(t, command.AwardXPCommand{UserID: 1, BaseXP: 4, Activity: leveling.ActivityVoice}, d.cmds[0])

	b.HandleVoiceStateUpdate(voice("42", "2", "500", false))
	assert.Equal(t, 2, b.VoiceTick())
}

func TestVoiceTick_Disabled(t *testing.T) {
	b, d, _ := newTestBot(false)
	b.HandleVoiceStateUpdate(voice("42", "1", "500", false))

	assert.Zero(t, b.VoiceTick())
	assert.Empty(t, d.cmds)
}

func TestVoiceStateIgnoresBots(t *testing.T) {
	b, _, _ := newTestBot(true)
	v := voice("42", "1", "500", false)
	v.Member = &discordgo.Member{User: &discordgo.User{ID: "1", Bot: true}}
	b.HandleVoiceStateUpdate(v)
	assert.Zero(t, b.Voice().Len())
}

func TestHandleGuildCreateSeedsVoice(t *testing.T) {
	b, _, _ := newTestBot(true)
	b.HandleVoiceStateUpdate(voice("42", "9", "500", false))

	b.HandleGuildCreate(&discordgo.GuildCreate{Guild: &discordgo.Guild{
		ID: "42",
		Members: []*discordgo.Member{
			{User: &discordgo.User{ID: "2", Bot: true}},
		},
		VoiceStates: []*discordgo.VoiceState{
			{UserID: "1", ChannelID: "500"},
			{UserID: "2", ChannelID: "500"},
		},
	}})

	assert.Equal(t, []leveling.Snowflake{1}, b.Voice().Eligible())
}

func TestHandleGuildMemberUpdate(t *testing.T) {
	b, _, p := newTestBot(true)
	update := func(guild string, before *discordgo.Member, pending bool) *discordgo.GuildMemberUpdate {
		return &discordgo.GuildMemberUpdate{
			Member:       &discordgo.Member{GuildID: guild, User: &discordgo.User{ID: "7"}, Pending: pending},
			BeforeUpdate: before,
		}
	}

	b.HandleGuildMemberUpdate(update("42", &discordgo.Member{Pending: true}, false))
	b.HandleGuildMemberUpdate(update("42", &discordgo.Member{Pending: false}, false))
	b.HandleGuildMemberUpdate(update("42", &discordgo.Member{Pending: true}, true))
	b.HandleGuildMemberUpdate(update("42", nil, false))
	b.HandleGuildMemberUpdate(update("99", &discordgo.Member{Pending: true}, false))

	require.Len(t, p.events, 1)
	e := p.events[0].(leveling.MemberVerifiedEvent)
	assert.Equal(t, leveling.Snowflake(7), e.UserID)
	assert.Equal(t, leveling.Snowflake(42), e.GuildID)
}
