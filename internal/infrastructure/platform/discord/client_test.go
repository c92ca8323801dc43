package discord

import (
	"context"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/pkg/retry"
)

type fakeAPI struct {
	mu       sync.Mutex
	grants   [][3]string
	sent     []string
	grantErr []error
	member   *discordgo.Member
	roles    []*discordgo.Role
}

func (f *fakeAPI) GuildMemberRoleAdd(guildID, userID, roleID string, _ ...discordgo.RequestOption) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.grants = append(f.grants, [3]string{guildID, userID, roleID})
	if len(f.grantErr) > 0 {
		err := f.grantErr[0]
		f.grantErr = f.grantErr[1:]
		return err
	}
	return nil
}

func (f *fakeAPI) ChannelMessageSend(channelID, content string, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, channelID+":"+content)
	return &discordgo.Message{}, nil
}

func (f *fakeAPI) GuildMember(_, _ string, _ ...discordgo.RequestOption) (*discordgo.Member, error) {
	if f.member == nil {
		return nil, restError(http.StatusNotFound)
	}
	return f.member, nil
}

func (f *fakeAPI) GuildRoles(string, ...discordgo.RequestOption) ([]*discordgo.Role, error) {
	return f.roles, nil
}

func restError(code int) error {
	return &discordgo.RESTError{Response: &http.Response{StatusCode: code}}
}

func newTestClient(api API) *Client {
	c := NewClient(api, nil, Config{GuildID: 99, RateLimit: 1000, Burst: 100}, nil)
	c.retrier = retry.New(retry.WithInitialDelay(time.Millisecond), retry.WithRetryIf(isTransient))
	return c
}

func TestClient_GrantRoleRetriesTransient(t *testing.T) {
	api := &fakeAPI{grantErr: []error{restError(http.StatusBadGateway), restError(http.StatusTooManyRequests)}}
	c := newTestClient(api)

	require.NoError(t, c.GrantRole(context.Background(), 1, 2))
	assert.Len(t, api.grants, 3)
	assert.Equal(t, [3]string{"99", "1", "2"}, api.grants[2])
}

func TestClient_GrantRoleForbiddenIsNotRetried(t *testing.T) {
	api := &fakeAPI{grantErr: []error{restError(http.StatusForbidden)}}
	c := newTestClient(api)

	err := c.GrantRole(context.Background(), 1, 2)
	assert.ErrorIs(t, err, shared.ErrPlatformActionFailed)
	assert.Len(t, api.grants, 1)
}

func TestClient_MemberLookups(t *testing.T) {
	api := &fakeAPI{
		member: &discordgo.Member{
			User:  &discordgo.User{ID: "1", Username: "ada", GlobalName: "Ada L."},
			Roles: []string{"10", "bogus", "20"},
		},
		roles: []*discordgo.Role{{ID: "10", Name: "Regular"}},
	}
	c := newTestClient(api)
	ctx := context.Background()

	roles, err := c.RolesHeld(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []leveling.Snowflake{10, 20}, roles)

	name, err := c.DisplayName(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Ada L.", name)

	role, err := c.RoleName(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, "Regular", role)

	_, err = c.RoleName(ctx, 11)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	assert.Equal(t, "<@1>", c.Mention(1))
}

func TestClient_UnknownMemberFails(t *testing.T) {
	c := newTestClient(&fakeAPI{})
	_, err := c.RolesHeld(context.Background(), 1)
	assert.ErrorIs(t, err, shared.ErrPlatformActionFailed)
}

func TestDisplayNamePreference(t *testing.T) {
	assert.Equal(t, "nick", displayName(&discordgo.Member{Nick: "nick", User: &discordgo.User{Username: "u"}}))
	assert.Equal(t, "u", displayName(&discordgo.Member{User: &discordgo.User{Username: "u"}}))
	assert.Equal(t, "", displayName(&discordgo.Member{}))
}

func TestIsTransient(t *testing.T) {
	assert.True(t, isTransient(restError(500)))
	assert.True(t, isTransient(restError(429)))
	assert.False(t, isTransient(restError(403)))
	assert.False(t, isTransient(context.Canceled))
	assert.False(t, isTransient(nil))
}
