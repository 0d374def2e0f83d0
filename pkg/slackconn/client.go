// Copyright 2024-2026 Aiku AI

// Package slackconn implements portal.Backend for a Slack workspace. The
// realtime stream runs over RTM with the connection (bot) token; history,
// posting and lookups use the Web API with the action (user OAuth) token.
package slackconn

import (
	"context"
	"fmt"
	"strings"

	"github.com/nlopes/slack"
	"github.com/rs/zerolog"

	"github.com/aiku/slackportal/pkg/portal"
)

const (
	historyPageSize = 200
	channelPageSize = 1000
)

// Options configures a Client.
type Options struct {
	ConnectionToken string
	ActionToken     string
	// APIURL overrides the Web API base URL, with trailing slash.
	APIURL string
}

// Client is a Slack backend.
type Client struct {
	api    *slack.Client
	rtmAPI *slack.Client
	selfID string
	log    zerolog.Logger
}

var _ portal.Backend = (*Client)(nil)

// New creates a client and verifies the action token.
func New(ctx context.Context, opts Options, log zerolog.Logger) (*Client, error) {
	var clientOpts []slack.Option
	if opts.APIURL != "" {
		clientOpts = append(clientOpts, slack.OptionAPIURL(opts.APIURL))
	}
	c := &Client{
		api:    slack.New(opts.ActionToken, clientOpts...),
		rtmAPI: slack.New(opts.ConnectionToken, clientOpts...),
		log:    log.With().Str("component", "slack_client").Logger(),
	}

	auth, err := c.api.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify action token: %w", err)
	}
	// The action token usually belongs to a human, so the mirror identity is
	// the bot user behind the connection token.
	bot, err := c.rtmAPI.AuthTestContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to verify connection token: %w", err)
	}
	c.selfID = bot.UserID
	c.log.Info().
		Str("user_id", auth.UserID).
		Str("user", auth.User).
		Str("bot_user_id", bot.UserID).
		Str("team", auth.Team).
		Msg("Authenticated")
	return c, nil
}

func (c *Client) SelfID() string {
	return c.selfID
}

// Subscribe starts an RTM connection and translates its events until ctx
// is done or the credentials are rejected.
func (c *Client) Subscribe(ctx context.Context) (<-chan portal.Event, error) {
	rtm := c.rtmAPI.NewRTM()
	go rtm.ManageConnection()

	out := make(chan portal.Event, 64)
	go func() {
		defer close(out)
		defer func() {
			if err := rtm.Disconnect(); err != nil {
				c.log.Debug().Err(err).Msg("RTM disconnect")
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-rtm.IncomingEvents:
				if !ok {
					c.log.Warn().Msg("RTM event stream closed")
					return
				}
				switch ev := msg.Data.(type) {
				case *slack.ConnectedEvent:
					c.log.Info().Int("connection_count", ev.ConnectionCount).Msg("RTM connected")
					continue
				case *slack.RTMError:
					c.log.Error().Str("error", ev.Error()).Msg("RTM error")
					continue
				case *slack.InvalidAuthEvent:
					c.log.Error().Msg("RTM rejected the connection token")
					return
				}
				evt, ok := translateEvent(msg)
				if !ok {
					c.log.Trace().Str("type", msg.Type).Msg("Skipping RTM event")
					continue
				}
				select {
				case out <- evt:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// FetchHistory returns the channel messages in [oldest, latest], oldest
// first.
func (c *Client) FetchHistory(ctx context.Context, channelID string, oldest, latest float64) ([]portal.Message, error) {
	params := &slack.GetConversationHistoryParameters{
		ChannelID: channelID,
		Oldest:    portal.FormatTS(oldest),
		Latest:    portal.FormatTS(latest),
		Inclusive: true,
		Limit:     historyPageSize,
	}
	var msgs []portal.Message
	for {
		resp, err := c.api.GetConversationHistoryContext(ctx, params)
		if err != nil {
			return nil, fmt.Errorf("failed to fetch history of %s: %w", channelID, err)
		}
		for i := range resp.Messages {
			msgs = append(msgs, *convertMsg(&resp.Messages[i].Msg, channelID))
		}
		if !resp.HasMore || resp.ResponseMetaData.NextCursor == "" {
			break
		}
		params.Cursor = resp.ResponseMetaData.NextCursor
	}
	// Slack returns newest first.
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	c.log.Trace().Str("channel_id", channelID).Int("count", len(msgs)).Msg("Fetched history")
	return msgs, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID string, msg portal.OutgoingMessage) error {
	opts := []slack.MsgOption{
		slack.MsgOptionText(msg.Text, false),
		slack.MsgOptionAsUser(false),
		slack.MsgOptionUsername(msg.Username),
	}
	if msg.IconURL != "" {
		opts = append(opts, slack.MsgOptionIconURL(msg.IconURL))
	}
	if msg.ThreadTS != "" {
		opts = append(opts, slack.MsgOptionTS(msg.ThreadTS))
	}
	if _, _, err := c.api.PostMessageContext(ctx, channelID, opts...); err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	return nil
}

func (c *Client) UpdateMessage(ctx context.Context, channelID, ts, text string, attachments []portal.Attachment) error {
	atts := make([]slack.Attachment, 0, len(attachments))
	for _, att := range attachments {
		atts = append(atts, toSlackAttachment(att))
	}
	_, _, _, err := c.api.UpdateMessageContext(ctx, channelID, ts,
		slack.MsgOptionText(text, false),
		slack.MsgOptionAttachments(atts...),
	)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", ts, err)
	}
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	if _, _, err := c.api.DeleteMessageContext(ctx, channelID, ts); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", ts, err)
	}
	return nil
}

func (c *Client) FetchReactions(ctx context.Context, channelID, ts string) ([]portal.Reaction, error) {
	items, err := c.api.GetReactionsContext(ctx, slack.NewRefToMessage(channelID, ts), slack.GetReactionsParameters{Full: true})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reactions on %s: %w", ts, err)
	}
	reactions := make([]portal.Reaction, 0, len(items))
	for _, item := range items {
		reactions = append(reactions, portal.Reaction{
			Name:  item.Name,
			Count: item.Count,
			Users: item.Users,
		})
	}
	return reactions, nil
}

func (c *Client) LookupUser(ctx context.Context, userID string) (portal.Profile, error) {
	user, err := c.api.GetUserInfoContext(ctx, userID)
	if err != nil {
		if err.Error() == "user_not_found" {
			return portal.Profile{}, portal.ErrUserNotFound
		}
		return portal.Profile{}, fmt.Errorf("failed to get user info: %w", err)
	}
	realName := user.Profile.RealName
	if realName == "" {
		realName = user.RealName
	}
	return portal.Profile{
		ID:        user.ID,
		Handle:    user.Name,
		RealName:  realName,
		Nickname:  user.Profile.DisplayName,
		AvatarURL: user.Profile.Image48,
	}, nil
}

// ResolveChannelID looks name up among the public and private channels
// visible to the action token.
func (c *Client) ResolveChannelID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "#")
	params := &slack.GetConversationsParameters{
		ExcludeArchived: "true",
		Limit:           channelPageSize,
		Types:           []string{"public_channel", "private_channel"},
	}
	for {
		channels, cursor, err := c.api.GetConversationsContext(ctx, params)
		if err != nil {
			return "", fmt.Errorf("failed to list channels: %w", err)
		}
		for _, ch := range channels {
			if ch.Name == name {
				return ch.ID, nil
			}
		}
		if cursor == "" {
			return "", fmt.Errorf("%w: #%s", portal.ErrChannelNotFound, name)
		}
		params.Cursor = cursor
	}
}
