// Copyright 2024-2026 Aiku AI

package mmconn

import (
	"fmt"
	"math"

	"github.com/mattermost/mattermost/server/public/model"

	"github.com/aiku/slackportal/pkg/portal"
)

// Post props set on mirrored posts.
const (
	propOverrideUsername = "override_username"
	propOverrideIconURL  = "override_icon_url"
	propFromWebhook      = "from_webhook"
	propFromBot          = "from_bot"
	propAttachments      = "attachments"
)

// tsFromMillis renders a Mattermost millisecond timestamp in the
// seconds.fraction form the portal correlates on.
func tsFromMillis(ms int64) string {
	return fmt.Sprintf("%d.%03d", ms/1000, ms%1000)
}

func millisFromSeconds(sec float64) int64 {
	return int64(math.Round(sec * 1000))
}

func millisFromTS(ts string) (int64, error) {
	sec, err := portal.ParseTS(ts)
	if err != nil {
		return 0, err
	}
	return millisFromSeconds(sec), nil
}

// isIntegrationPost reports whether post was made by a webhook, a bot or
// with an overridden identity.
func isIntegrationPost(post *model.Post) bool {
	if post.GetProp(propFromWebhook) == "true" || post.GetProp(propFromBot) == "true" {
		return true
	}
	name, _ := post.GetProp(propOverrideUsername).(string)
	return name != ""
}

// convertPost builds a portal message. threadTS is the timestamp of the
// root post for replies.
func (c *Client) convertPost(post *model.Post, threadTS string) *portal.Message {
	if post == nil {
		return nil
	}
	msg := &portal.Message{
		ChannelID: post.ChannelId,
		TS:        tsFromMillis(post.CreateAt),
		UserID:    post.UserId,
		Text:      post.Message,
		ThreadTS:  threadTS,
		Bot:       isIntegrationPost(post),
	}
	for _, att := range post.Attachments() {
		if att == nil {
			continue
		}
		msg.Attachments = append(msg.Attachments, portal.Attachment{
			Fallback: att.Fallback,
			Text:     att.Text,
			Footer:   att.Footer,
			TS:       attachmentTS(att.Timestamp),
		})
	}
	return msg
}

func attachmentTS(v any) string {
	switch ts := v.(type) {
	case nil:
		return ""
	case string:
		return ts
	case float64:
		return portal.FormatTS(ts)
	default:
		return fmt.Sprint(ts)
	}
}

func toSlackAttachments(attachments []portal.Attachment) []*model.SlackAttachment {
	out := make([]*model.SlackAttachment, 0, len(attachments))
	for _, att := range attachments {
		sa := &model.SlackAttachment{
			Fallback: att.Fallback,
			Text:     att.Text,
			Footer:   att.Footer,
		}
		if att.TS != "" {
			sa.Timestamp = att.TS
		}
		out = append(out, sa)
	}
	return out
}

// aggregateReactions groups per-user reactions by emoji in first-seen order.
func aggregateReactions(reactions []*model.Reaction) []portal.Reaction {
	var out []portal.Reaction
	pos := make(map[string]int)
	for _, r := range reactions {
		if r == nil || r.DeleteAt != 0 {
			continue
		}
		i, ok := pos[r.EmojiName]
		if !ok {
			i = len(out)
			pos[r.EmojiName] = i
			out = append(out, portal.Reaction{Name: r.EmojiName})
		}
		out[i].Count++
		out[i].Users = append(out[i].Users, r.UserId)
	}
	return out
}
