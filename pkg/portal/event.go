// Copyright 2024-2026 Aiku AI

package portal

// EventKind is the variant tag of an Event.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventMessage
	EventThreadReply
	EventMessageChanged
	EventMessageDeleted
	EventMessageReplied
	EventReactionAdded
	EventReactionRemoved
	EventBotMessage
)

var eventKindNames = map[EventKind]string{
	EventUnknown:         "unknown",
	EventMessage:         "message",
	EventThreadReply:     "thread_reply",
	EventMessageChanged:  "message_changed",
	EventMessageDeleted:  "message_deleted",
	EventMessageReplied:  "message_replied",
	EventReactionAdded:   "reaction_added",
	EventReactionRemoved: "reaction_removed",
	EventBotMessage:      "bot_message",
}

func (k EventKind) String() string {
	if name, ok := eventKindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Event is a realtime event observed on one backend. Which fields are set
// depends on Kind:
//
//   - EventMessage, EventThreadReply, EventBotMessage: TS, UserID, Text,
//     ThreadTS for replies.
//   - EventMessageChanged: TS of the edit, Previous and Current snapshots.
//   - EventMessageDeleted: TS of the deletion and Previous.
//   - EventReactionAdded, EventReactionRemoved: ItemTS, Reaction, UserID.
type Event struct {
	Kind EventKind
	// Subtype is the backend's own name for the event, kept for logging.
	Subtype   string
	ChannelID string
	TS        string
	ThreadTS  string
	UserID    string
	Text      string

	Previous *Message
	Current  *Message

	ItemTS   string
	Reaction string
}
