// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

// Package mmconn implements portal.Backend for a Mattermost team. Events
// arrive over the websocket API, everything else goes through REST v4.
//
// Mattermost identifies posts by id, while the portal correlates on
// timestamps. Post creation times are exposed as "seconds.millis" strings
// and a bounded index maps them back to post ids.
package mmconn

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mattermost/mattermost/server/public/model"
	"github.com/rs/zerolog"

	"github.com/aiku/slackportal/pkg/portal"
)

var errPostNotFound = errors.New("post not found")

const reconnectDelay = 5 * time.Second

// Options configures a Client. Token takes precedence over Username and
// Password.
type Options struct {
	ServerURL string
	Token     string
	Username  string
	Password  string
	Team      string
	// IndexSize bounds the number of posts remembered for edits and deletes.
	IndexSize int
}

// Client is a Mattermost backend.
type Client struct {
	client    *model.Client4
	serverURL string
	selfID    string
	teamID    string
	index     *postIndex
	log       zerolog.Logger

	reconnectDelay time.Duration
}

var _ portal.Backend = (*Client)(nil)

// New authenticates against the server and resolves the team.
func New(ctx context.Context, opts Options, log zerolog.Logger) (*Client, error) {
	serverURL := strings.TrimSuffix(opts.ServerURL, "/")
	c := &Client{
		client:         model.NewAPIv4Client(serverURL),
		serverURL:      serverURL,
		index:          newPostIndex(opts.IndexSize),
		log:            log.With().Str("component", "mm_client").Logger(),
		reconnectDelay: reconnectDelay,
	}

	if opts.Token != "" {
		c.client.SetToken(opts.Token)
	} else {
		if _, _, err := c.client.Login(ctx, opts.Username, opts.Password); err != nil {
			return nil, fmt.Errorf("login failed: %w", err)
		}
	}

	me, _, err := c.client.GetMe(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("authentication failed: %w", err)
	}
	// A personal access token posts as its human owner, whose own posts must
	// still be mirrored. Only a bot account is filtered as the mirror itself.
	if me.IsBot {
		c.selfID = me.Id
	}

	if opts.Team != "" {
		team, _, err := c.client.GetTeamByName(ctx, opts.Team, "")
		if err != nil {
			return nil, fmt.Errorf("failed to get team %s: %w", opts.Team, err)
		}
		c.teamID = team.Id
	} else {
		c.teamID, err = fetchFirstTeamID(ctx, c.client, me.Id)
		if err != nil {
			return nil, err
		}
	}

	c.log.Info().
		Str("user_id", me.Id).
		Str("username", me.Username).
		Bool("is_bot", me.IsBot).
		Str("team_id", c.teamID).
		Msg("Authenticated")
	return c, nil
}

// fetchFirstTeamID returns the first team of the user, or an empty string if
// the user has no teams.
func fetchFirstTeamID(ctx context.Context, client *model.Client4, userID string) (string, error) {
	teams, _, err := client.GetTeamsForUser(ctx, userID, "")
	if err != nil {
		return "", fmt.Errorf("failed to get teams: %w", err)
	}
	if len(teams) > 0 {
		return teams[0].Id, nil
	}
	return "", nil
}

// SelfID returns the bot account id, or an empty string when the client is
// authenticated as a regular user.
func (c *Client) SelfID() string {
	return c.selfID
}

// httpToWS converts an HTTP(S) URL to a WS(S) URL.
func httpToWS(url string) string {
	if strings.HasPrefix(url, "https://") {
		return "wss://" + strings.TrimPrefix(url, "https://")
	}
	if strings.HasPrefix(url, "http://") {
		return "ws://" + strings.TrimPrefix(url, "http://")
	}
	return url
}

func (c *Client) connectWebSocket() (*model.WebSocketClient, error) {
	wsURL := httpToWS(c.serverURL)
	ws, err := model.NewWebSocketClient4(wsURL, c.client.AuthToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create websocket client: %w", err)
	}
	ws.Listen()
	c.log.Info().Str("ws_url", wsURL).Msg("WebSocket connected")
	return ws, nil
}

// Subscribe opens the websocket and translates its events until ctx is
// done. A dropped connection is re-established after a delay.
func (c *Client) Subscribe(ctx context.Context) (<-chan portal.Event, error) {
	ws, err := c.connectWebSocket()
	if err != nil {
		return nil, err
	}
	out := make(chan portal.Event, 64)
	go func() {
		defer close(out)
		defer func() {
			if ws != nil {
				ws.Close()
			}
		}()
		for {
			select {
			case <-ctx.Done():
				return
			case wsEvt, ok := <-ws.EventChannel:
				if !ok {
					c.log.Warn().Msg("WebSocket event channel closed, reconnecting")
					ws = c.reconnect(ctx)
					if ws == nil {
						return
					}
					continue
				}
				if wsEvt == nil {
					continue
				}
				evt, ok := c.translateEvent(ctx, wsEvt)
				if !ok {
					c.log.Trace().Str("type", string(wsEvt.EventType())).Msg("Skipping websocket event")
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

// reconnect retries the websocket until it succeeds or ctx is done, in
// which case it returns nil.
func (c *Client) reconnect(ctx context.Context) *model.WebSocketClient {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(c.reconnectDelay):
		}
		ws, err := c.connectWebSocket()
		if err == nil {
			return ws
		}
		c.log.Error().Err(err).Msg("Failed to reconnect WebSocket")
	}
}

// FetchHistory returns the channel posts created in [oldest, latest], oldest
// first. System posts are skipped.
func (c *Client) FetchHistory(ctx context.Context, channelID string, oldest, latest float64) ([]portal.Message, error) {
	from, to := millisFromSeconds(oldest), millisFromSeconds(latest)
	postList, _, err := c.client.GetPostsSince(ctx, channelID, from, false)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch history of %s: %w", channelID, err)
	}
	posts := postList.ToSlice()
	sortPosts(posts)

	msgs := make([]portal.Message, 0, len(posts))
	for _, post := range posts {
		if post.DeleteAt != 0 || post.Type != model.PostTypeDefault {
			continue
		}
		c.index.put(post)
		if post.CreateAt < from || post.CreateAt > to {
			continue
		}
		msgs = append(msgs, *c.convertPost(post, c.threadTS(ctx, post)))
	}
	c.log.Trace().Str("channel_id", channelID).Int("count", len(msgs)).Msg("Fetched history")
	return msgs, nil
}

func (c *Client) PostMessage(ctx context.Context, channelID string, msg portal.OutgoingMessage) error {
	post := &model.Post{
		ChannelId: channelID,
		Message:   msg.Text,
	}
	if msg.ThreadTS != "" {
		root, err := c.postAt(ctx, channelID, msg.ThreadTS)
		if err != nil {
			return fmt.Errorf("failed to find thread root %s: %w", msg.ThreadTS, err)
		}
		post.RootId = root.Id
		if root.RootId != "" {
			post.RootId = root.RootId
		}
	}
	post.AddProp(propFromWebhook, "true")
	if msg.Username != "" {
		post.AddProp(propOverrideUsername, msg.Username)
	}
	if msg.IconURL != "" {
		post.AddProp(propOverrideIconURL, msg.IconURL)
	}
	created, _, err := c.client.CreatePost(ctx, post)
	if err != nil {
		return fmt.Errorf("failed to post message: %w", err)
	}
	c.index.put(created)
	return nil
}

// UpdateMessage replaces the text and attachments of the post at ts. Other
// props, such as the identity overrides of mirrored posts, are kept.
func (c *Client) UpdateMessage(ctx context.Context, channelID, ts, text string, attachments []portal.Attachment) error {
	post, err := c.postAt(ctx, channelID, ts)
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", ts, err)
	}
	props := model.StringInterface{}
	for k, v := range post.GetProps() {
		props[k] = v
	}
	if len(attachments) > 0 {
		props[propAttachments] = toSlackAttachments(attachments)
	} else {
		delete(props, propAttachments)
	}
	patched, _, err := c.client.PatchPost(ctx, post.Id, &model.PostPatch{
		Message: &text,
		Props:   &props,
	})
	if err != nil {
		return fmt.Errorf("failed to update message %s: %w", ts, err)
	}
	c.index.put(patched)
	return nil
}

func (c *Client) DeleteMessage(ctx context.Context, channelID, ts string) error {
	post, err := c.postAt(ctx, channelID, ts)
	if err != nil {
		return fmt.Errorf("failed to delete message %s: %w", ts, err)
	}
	if _, err := c.client.DeletePost(ctx, post.Id); err != nil {
		return fmt.Errorf("failed to delete message %s: %w", ts, err)
	}
	c.index.remove(post.Id)
	return nil
}

func (c *Client) FetchReactions(ctx context.Context, channelID, ts string) ([]portal.Reaction, error) {
	post, err := c.postAt(ctx, channelID, ts)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reactions on %s: %w", ts, err)
	}
	reactions, _, err := c.client.GetReactions(ctx, post.Id)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch reactions on %s: %w", ts, err)
	}
	return aggregateReactions(reactions), nil
}

func (c *Client) LookupUser(ctx context.Context, userID string) (portal.Profile, error) {
	user, resp, err := c.client.GetUser(ctx, userID, "")
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return portal.Profile{}, portal.ErrUserNotFound
		}
		return portal.Profile{}, fmt.Errorf("failed to get user: %w", err)
	}
	return portal.Profile{
		ID:        user.Id,
		Handle:    user.Username,
		RealName:  strings.TrimSpace(user.FirstName + " " + user.LastName),
		Nickname:  user.Nickname,
		AvatarURL: c.client.APIURL + "/users/" + user.Id + "/image",
	}, nil
}

// ResolveChannelID looks name up in the configured team.
func (c *Client) ResolveChannelID(ctx context.Context, name string) (string, error) {
	name = strings.TrimPrefix(name, "#")
	channel, resp, err := c.client.GetChannelByName(ctx, name, c.teamID, "")
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", fmt.Errorf("%w: #%s", portal.ErrChannelNotFound, name)
		}
		return "", fmt.Errorf("failed to get channel #%s: %w", name, err)
	}
	return channel.Id, nil
}

// postAt returns the post created at ts in the channel, from the index when
// possible.
func (c *Client) postAt(ctx context.Context, channelID, ts string) (*model.Post, error) {
	if post, ok := c.index.lookupTS(channelID, ts); ok {
		return post, nil
	}
	ms, err := millisFromTS(ts)
	if err != nil {
		return nil, err
	}
	postList, _, err := c.client.GetPostsSince(ctx, channelID, ms, false)
	if err != nil {
		return nil, err
	}
	var found *model.Post
	for _, post := range postList.ToSlice() {
		if post.DeleteAt != 0 {
			continue
		}
		c.index.put(post)
		if post.CreateAt == ms && found == nil {
			found = post
		}
	}
	if found == nil {
		return nil, fmt.Errorf("%w at %s", errPostNotFound, ts)
	}
	return found, nil
}

// threadTS returns the timestamp of the root of a reply, or an empty string
// for top-level posts.
func (c *Client) threadTS(ctx context.Context, post *model.Post) string {
	if post.RootId == "" {
		return ""
	}
	if root, ok := c.index.get(post.RootId); ok {
		return tsFromMillis(root.CreateAt)
	}
	root, _, err := c.client.GetPost(ctx, post.RootId, "")
	if err != nil {
		c.log.Warn().Err(err).Str("root_id", post.RootId).Msg("Failed to fetch thread root")
		return ""
	}
	c.index.put(root)
	return tsFromMillis(root.CreateAt)
}

func sortPosts(posts []*model.Post) {
	sort.SliceStable(posts, func(i, j int) bool {
		return posts[i].CreateAt < posts[j].CreateAt
	})
}
