// Copyright 2024-2026 Aiku AI

package portal

import (
	"fmt"
	"strconv"
)

// Fallback tags marking attachments generated by the mirror itself.
const (
	FallbackEdited    = "slackportal_edited"
	FallbackReactions = "slackportal_emoji"
)

// Channel is a backend channel as resolved at startup.
type Channel struct {
	ID   string
	Name string
}

// Message is a chat message as returned by a backend's history API.
type Message struct {
	ChannelID   string
	TS          string
	UserID      string
	Text        string
	Attachments []Attachment
	Reactions   []Reaction
	// ThreadTS is the timestamp of the thread root for replies, empty otherwise.
	ThreadTS string
	// Bot is set for messages posted by an integration, including the mirror.
	Bot bool
}

// IsThreadReply reports whether the message is a reply inside a thread.
func (m *Message) IsThreadReply() bool {
	return m.ThreadTS != "" && m.ThreadTS != m.TS
}

// Attachment is a secondary block rendered under a message.
type Attachment struct {
	Fallback string `json:"fallback,omitempty"`
	Text     string `json:"text,omitempty"`
	Footer   string `json:"footer,omitempty"`
	TS       string `json:"ts,omitempty"`
}

// Reaction is one emoji on a message with the users who added it.
type Reaction struct {
	Name  string
	Count int
	Users []string
}

// Profile is the raw user profile returned by a backend.
type Profile struct {
	ID        string
	Handle    string
	RealName  string
	Nickname  string
	AvatarURL string
}

// DisplayName applies the nickname, real name, handle fallback chain.
func (p Profile) DisplayName() string {
	switch {
	case p.Nickname != "":
		return p.Nickname
	case p.RealName != "":
		return p.RealName
	case p.Handle != "":
		return p.Handle
	default:
		return p.ID
	}
}

// Identity is a resolved user as stored in the IdentityCache.
type Identity struct {
	ID          string
	DisplayName string
	AvatarURL   string
}

// OutgoingMessage is a message posted on behalf of a user from the other side.
type OutgoingMessage struct {
	Text     string
	Username string
	IconURL  string
	ThreadTS string
}

// ParseTS converts a backend timestamp string to float seconds.
func ParseTS(ts string) (float64, error) {
	f, err := strconv.ParseFloat(ts, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid timestamp %q: %w", ts, err)
	}
	return f, nil
}

// FormatTS renders float seconds with microsecond precision.
func FormatTS(ts float64) string {
	return strconv.FormatFloat(ts, 'f', 6, 64)
}
