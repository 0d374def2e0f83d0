// Copyright 2024-2026 Aiku AI

package slackconn

import (
	"encoding/json"

	"github.com/nlopes/slack"

	"github.com/aiku/slackportal/pkg/portal"
)

// Slack message subtypes the mirror distinguishes.
const (
	subtypeBotMessage     = "bot_message"
	subtypeMessageChanged = "message_changed"
	subtypeMessageDeleted = "message_deleted"
	subtypeMessageReplied = "message_replied"
)

// translateEvent maps an RTM event to a portal event. Non-message RTM
// traffic (presence, typing, hello) is reported as not ok.
func translateEvent(msg slack.RTMEvent) (portal.Event, bool) {
	switch ev := msg.Data.(type) {
	case *slack.MessageEvent:
		return translateMessage(ev), true
	case *slack.ReactionAddedEvent:
		if ev.Item.Type != "" && ev.Item.Type != "message" {
			return portal.Event{}, false
		}
		return portal.Event{
			Kind:      portal.EventReactionAdded,
			Subtype:   "reaction_added",
			ChannelID: ev.Item.Channel,
			TS:        ev.EventTimestamp,
			UserID:    ev.User,
			ItemTS:    ev.Item.Timestamp,
			Reaction:  ev.Reaction,
		}, true
	case *slack.ReactionRemovedEvent:
		if ev.Item.Type != "" && ev.Item.Type != "message" {
			return portal.Event{}, false
		}
		return portal.Event{
			Kind:      portal.EventReactionRemoved,
			Subtype:   "reaction_removed",
			ChannelID: ev.Item.Channel,
			TS:        ev.EventTimestamp,
			UserID:    ev.User,
			ItemTS:    ev.Item.Timestamp,
			Reaction:  ev.Reaction,
		}, true
	default:
		return portal.Event{}, false
	}
}

func translateMessage(ev *slack.MessageEvent) portal.Event {
	evt := portal.Event{
		Subtype:   ev.SubType,
		ChannelID: ev.Channel,
		TS:        ev.Timestamp,
		ThreadTS:  ev.ThreadTimestamp,
		UserID:    ev.User,
		Text:      ev.Text,
	}
	switch ev.SubType {
	case "":
		switch {
		case ev.BotID != "":
			evt.Kind = portal.EventBotMessage
		case ev.ThreadTimestamp != "" && ev.ThreadTimestamp != ev.Timestamp:
			evt.Kind = portal.EventThreadReply
		default:
			evt.Kind = portal.EventMessage
		}
	case subtypeBotMessage:
		evt.Kind = portal.EventBotMessage
	case subtypeMessageChanged:
		evt.Kind = portal.EventMessageChanged
		evt.Previous = convertMsg(ev.PreviousMessage, ev.Channel)
		evt.Current = convertMsg(ev.SubMessage, ev.Channel)
		if evt.Current != nil {
			evt.UserID = evt.Current.UserID
			evt.Text = evt.Current.Text
		}
	case subtypeMessageDeleted:
		evt.Kind = portal.EventMessageDeleted
		evt.Previous = convertMsg(ev.PreviousMessage, ev.Channel)
	case subtypeMessageReplied:
		evt.Kind = portal.EventMessageReplied
	default:
		evt.Kind = portal.EventUnknown
	}
	return evt
}

// convertMsg converts a Slack message. Slack omits the channel on nested
// snapshots, so it is passed in.
func convertMsg(m *slack.Msg, channelID string) *portal.Message {
	if m == nil {
		return nil
	}
	msg := &portal.Message{
		ChannelID: channelID,
		TS:        m.Timestamp,
		UserID:    m.User,
		Text:      m.Text,
		ThreadTS:  m.ThreadTimestamp,
		Bot:       m.SubType == subtypeBotMessage || m.BotID != "",
	}
	for _, att := range m.Attachments {
		msg.Attachments = append(msg.Attachments, portal.Attachment{
			Fallback: att.Fallback,
			Text:     att.Text,
			Footer:   att.Footer,
			TS:       att.Ts.String(),
		})
	}
	for _, r := range m.Reactions {
		msg.Reactions = append(msg.Reactions, portal.Reaction{Name: r.Name, Count: r.Count, Users: r.Users})
	}
	return msg
}

func toSlackAttachment(att portal.Attachment) slack.Attachment {
	return slack.Attachment{
		Fallback: att.Fallback,
		Text:     att.Text,
		Footer:   att.Footer,
		Ts:       json.Number(att.TS),
	}
}
