// Package discord adapts a discordgo session to leveling.Platform.
package discord

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/bwmarrin/discordgo"
	"golang.org/x/time/rate"

	"github.com/alem-hub/levelup/internal/domain/leveling"
	"github.com/alem-hub/levelup/internal/domain/shared"
	"github.com/alem-hub/levelup/internal/infrastructure/metrics"
	"github.com/alem-hub/levelup/pkg/circuitbreaker"
	"github.com/alem-hub/levelup/pkg/retry"
)

// API is the subset of *discordgo.Session the client calls.
type API interface {
	GuildMemberRoleAdd(guildID, userID, roleID string, options ...discordgo.RequestOption) error
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
	GuildMember(guildID, userID string, options ...discordgo.RequestOption) (*discordgo.Member, error)
	GuildRoles(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Role, error)
}

// Config tunes the outbound budget.
type Config struct {
	GuildID leveling.Snowflake

	// RateLimit is requests per second across all calls; Burst the bucket size.
	RateLimit float64
	Burst     int
}

// Client implements leveling.Platform for one guild.
type Client struct {
	api     API
	state   *discordgo.State
	guildID string
	limiter *rate.Limiter
	breaker *circuitbreaker.CircuitBreaker
	retrier *retry.Retrier
	logger  *slog.Logger
}

var _ leveling.Platform = (*Client)(nil)

// NewClient creates a Client. state may be nil; lookups then always hit REST.
func NewClient(api API, state *discordgo.State, cfg Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = 5
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	logger = logger.With("component", "discord_platform")

	return &Client{
		api:     api,
		state:   state,
		guildID: cfg.GuildID.String(),
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		breaker: circuitbreaker.DiscordAPIBreaker(isTransient, func(name string, from, to circuitbreaker.State) {
			logger.Warn("circuit breaker state changed", "breaker", name, "from", from.String(), "to", to.String())
		}),
		retrier: retry.DiscordRetrier(retry.WithRetryIf(isTransient)),
		logger: logger,
	}
}

// NewSessionClient wires a live session and its state cache.
func NewSessionClient(s *discordgo.Session, cfg Config, logger *slog.Logger) *Client {
	return NewClient(s, s.State, cfg, logger)
}

// isTransient reports errors worth retrying: rate limits, 5xx and transport
// failures. Other REST errors (403 missing access, 404 unknown member) are not.
func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) {
		if restErr.Response == nil {
			return true
		}
		code := restErr.Response.StatusCode
		return code == http.StatusTooManyRequests || code >= 500
	}
	return true
}

// do runs call under the limiter, breaker and retrier, mapping every failure
// to PlatformActionFailed.
func (c *Client) do(ctx context.Context, op string, call func(ctx context.Context) error) error {
	err := c.retrier.Do(ctx, func(ctx context.Context) error {
		if err := c.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		return c.breaker.Execute(ctx, call)
	})
	if err != nil {
		metrics.RecordPlatformFailure(op, err)
		return shared.Platform(op, err)
	}
	return nil
}

// GrantRole adds roleID to userID.
func (c *Client) GrantRole(ctx context.Context, userID, roleID leveling.Snowflake) error {
	return c.do(ctx, "GrantRole", func(ctx context.Context) error {
		return c.api.GuildMemberRoleAdd(c.guildID, userID.String(), roleID.String(), discordgo.WithContext(ctx))
	})
}

// SendMessage posts content to channelID.
func (c *Client) SendMessage(ctx context.Context, channelID leveling.Snowflake, content string) error {
	return c.do(ctx, "SendMessage", func(ctx context.Context) error {
		_, err := c.api.ChannelMessageSend(channelID.String(), content, discordgo.WithContext(ctx))
		return err
	})
}

// RolesHeld returns the member's role ids.
func (c *Client) RolesHeld(ctx context.Context, userID leveling.Snowflake) ([]leveling.Snowflake, error) {
	m, err := c.member(ctx, "RolesHeld", userID)
	if err != nil {
		return nil, err
	}
	roles := make([]leveling.Snowflake, 0, len(m.Roles))
	for _, r := range m.Roles {
		id, err := leveling.ParseSnowflake(r)
		if err != nil {
			c.logger.Warn("skipping malformed role id", "role", r, "error", err)
			continue
		}
		roles = append(roles, id)
	}
	return roles, nil
}

// DisplayName returns the guild nickname, global name or username, in that
// order of preference.
func (c *Client) DisplayName(ctx context.Context, userID leveling.Snowflake) (string, error) {
	m, err := c.member(ctx, "DisplayName", userID)
	if err != nil {
		return "", err
	}
	return displayName(m), nil
}

func displayName(m *discordgo.Member) string {
	if m.Nick != "" {
		return m.Nick
	}
	if m.User == nil {
		return ""
	}
	if m.User.GlobalName != "" {
		return m.User.GlobalName
	}
	return m.User.Username
}

// RoleName returns the role's name.
func (c *Client) RoleName(ctx context.Context, roleID leveling.Snowflake) (string, error) {
	if c.state != nil {
		if r, err := c.state.Role(c.guildID, roleID.String()); err == nil {
			return r.Name, nil
		}
	}

	var roles []*discordgo.Role
	err := c.do(ctx, "RoleName", func(ctx context.Context) error {
		var err error
		roles, err = c.api.GuildRoles(c.guildID, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return "", err
	}
	for _, r := range roles {
		if r.ID == roleID.String() {
			return r.Name, nil
		}
	}
	return "", shared.WrapError("platform", "RoleName", shared.ErrPlatformActionFailed, "role not found", shared.ErrNotFound)
}

// Mention formats a user mention.
func (c *Client) Mention(userID leveling.Snowflake) string {
	return "<@" + userID.String() + ">"
}

func (c *Client) member(ctx context.Context, op string, userID leveling.Snowflake) (*discordgo.Member, error) {
	if c.state != nil {
		if m, err := c.state.Member(c.guildID, userID.String()); err == nil {
			return m, nil
		}
	}

	var m *discordgo.Member
	err := c.do(ctx, op, func(ctx context.Context) error {
		var err error
		m, err = c.api.GuildMember(c.guildID, userID.String(), discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return nil, err
	}
	return m, nil
}
