// Copyright 2024-2026 Aiku AI

package mmconn

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/slackportal/pkg/portal"
)

// translateEvent maps a websocket event to a portal event. Events the portal
// does not act on (typing, channel views, status) are reported as not ok.
func (c *Client) translateEvent(ctx context.Context, evt *model.WebSocketEvent) (portal.Event, bool) {
	var (
		out portal.Event
		err error
	)
	switch evt.EventType() {
	case model.WebsocketEventPosted:
		out, err = c.translatePosted(ctx, evt)
	case model.WebsocketEventPostEdited:
		out, err = c.translateEdited(ctx, evt)
	case model.WebsocketEventPostDeleted:
		out, err = c.translateDeleted(ctx, evt)
	case model.WebsocketEventReactionAdded:
		out, err = c.translateReaction(ctx, evt, portal.EventReactionAdded)
	case model.WebsocketEventReactionRemoved:
		out, err = c.translateReaction(ctx, evt, portal.EventReactionRemoved)
	default:
		return portal.Event{}, false
	}
	if err != nil {
		c.log.Err(err).Str("event_type", string(evt.EventType())).Msg("Failed to parse websocket event")
		return portal.Event{}, false
	}
	return out, true
}

func parsePost(evt *model.WebSocketEvent) (*model.Post, error) {
	postJSON, ok := evt.GetData()["post"].(string)
	if !ok {
		return nil, fmt.Errorf("%s event missing post data", evt.EventType())
	}
	var post model.Post
	if err := json.Unmarshal([]byte(postJSON), &post); err != nil {
		return nil, fmt.Errorf("failed to unmarshal post: %w", err)
	}
	if post.ChannelId == "" && evt.GetBroadcast() != nil {
		post.ChannelId = evt.GetBroadcast().ChannelId
	}
	return &post, nil
}

func (c *Client) translatePosted(ctx context.Context, evt *model.WebSocketEvent) (portal.Event, error) {
	post, err := parsePost(evt)
	if err != nil {
		return portal.Event{}, err
	}
	msg := c.convertPost(post, c.threadTS(ctx, post))
	out := portal.Event{
		Subtype:   string(model.WebsocketEventPosted),
		ChannelID: post.ChannelId,
		TS:        msg.TS,
		ThreadTS:  msg.ThreadTS,
		UserID:    post.UserId,
		Text:      post.Message,
	}
	switch {
	case post.Type != model.PostTypeDefault:
		out.Kind = portal.EventUnknown
		out.Subtype = post.Type
		return out, nil
	case isIntegrationPost(post):
		out.Kind = portal.EventBotMessage
	case msg.IsThreadReply():
		out.Kind = portal.EventThreadReply
	default:
		out.Kind = portal.EventMessage
	}
	c.index.put(post)
	return out, nil
}

// translateEdited reports an edit with the indexed snapshot as the previous
// version. Without a snapshot the previous version of an integration post
// is assumed to be the post itself, so mirror updates stay ignored.
func (c *Client) translateEdited(ctx context.Context, evt *model.WebSocketEvent) (portal.Event, error) {
	post, err := parsePost(evt)
	if err != nil {
		return portal.Event{}, err
	}
	threadTS := c.threadTS(ctx, post)
	current := c.convertPost(post, threadTS)

	var previous *portal.Message
	if snapshot, ok := c.index.get(post.Id); ok {
		previous = c.convertPost(snapshot, threadTS)
	} else if current.Bot {
		previous = c.convertPost(post, threadTS)
	}
	c.index.put(post)

	editedAt := post.EditAt
	if editedAt == 0 {
		editedAt = post.UpdateAt
	}
	return portal.Event{
		Kind:      portal.EventMessageChanged,
		Subtype:   string(model.WebsocketEventPostEdited),
		ChannelID: post.ChannelId,
		TS:        tsFromMillis(editedAt),
		ThreadTS:  threadTS,
		UserID:    post.UserId,
		Text:      post.Message,
		Previous:  previous,
		Current:   current,
	}, nil
}

func (c *Client) translateDeleted(ctx context.Context, evt *model.WebSocketEvent) (portal.Event, error) {
	post, err := parsePost(evt)
	if err != nil {
		return portal.Event{}, err
	}
	threadTS := c.threadTS(ctx, post)
	previous := c.convertPost(post, threadTS)
	if snapshot, ok := c.index.get(post.Id); ok {
		previous = c.convertPost(snapshot, threadTS)
	}
	c.index.remove(post.Id)

	deletedAt := post.DeleteAt
	if deletedAt == 0 {
		deletedAt = model.GetMillis()
	}
	return portal.Event{
		Kind:      portal.EventMessageDeleted,
		Subtype:   string(model.WebsocketEventPostDeleted),
		ChannelID: post.ChannelId,
		TS:        tsFromMillis(deletedAt),
		ThreadTS:  threadTS,
		UserID:    post.UserId,
		Previous:  previous,
	}, nil
}

func (c *Client) translateReaction(ctx context.Context, evt *model.WebSocketEvent, kind portal.EventKind) (portal.Event, error) {
	reactionJSON, ok := evt.GetData()["reaction"].(string)
	if !ok {
		return portal.Event{}, fmt.Errorf("%s event missing reaction data", evt.EventType())
	}
	var reaction model.Reaction
	if err := json.Unmarshal([]byte(reactionJSON), &reaction); err != nil {
		return portal.Event{}, fmt.Errorf("failed to unmarshal reaction: %w", err)
	}
	channelID := reaction.ChannelId
	if channelID == "" && evt.GetBroadcast() != nil {
		channelID = evt.GetBroadcast().ChannelId
	}

	post, ok := c.index.get(reaction.PostId)
	if !ok {
		fetched, _, err := c.client.GetPost(ctx, reaction.PostId, "")
		if err != nil {
			return portal.Event{}, fmt.Errorf("failed to fetch reacted post %s: %w", reaction.PostId, err)
		}
		c.index.put(fetched)
		post = fetched
	}
	if channelID == "" {
		channelID = post.ChannelId
	}

	reactedAt := reaction.CreateAt
	if reactedAt == 0 {
		reactedAt = model.GetMillis()
	}
	return portal.Event{
		Kind:      kind,
		Subtype:   string(evt.EventType()),
		ChannelID: channelID,
		TS:        tsFromMillis(reactedAt),
		UserID:    reaction.UserId,
		ItemTS:    tsFromMillis(post.CreateAt),
		Reaction:  reaction.EmojiName,
	}, nil
}
