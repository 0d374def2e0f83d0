// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUserNotFound is returned by Backend.LookupUser for unknown user ids.
	ErrUserNotFound = errors.New("user not found")
	// ErrChannelNotFound is returned by Backend.ResolveChannelID.
	ErrChannelNotFound = errors.New("channel not found")
	// ErrCorrelationFailed is wrapped by every CorrelationError.
	ErrCorrelationFailed = errors.New("no matching message in correlation window")
)

// Backend is one side of the mirror: a connection to a chat server that
// exposes a realtime event stream and a request/response API.
//
// FetchHistory must return messages with oldest <= ts <= latest, oldest
// first. Implementations do not retry failed calls.
type Backend interface {
	// SelfID is the id of a dedicated mirror account. Events authored by it
	// are never mirrored. It is empty when the account the backend acts as
	// may also be a human whose messages must be mirrored.
	SelfID() string
	// Subscribe starts the realtime stream. The channel is closed when ctx
	// is done or the connection is gone for good.
	Subscribe(ctx context.Context) (<-chan Event, error)
	FetchHistory(ctx context.Context, channelID string, oldest, latest float64) ([]Message, error)
	PostMessage(ctx context.Context, channelID string, msg OutgoingMessage) error
	UpdateMessage(ctx context.Context, channelID, ts, text string, attachments []Attachment) error
	DeleteMessage(ctx context.Context, channelID, ts string) error
	FetchReactions(ctx context.Context, channelID, ts string) ([]Reaction, error)
	LookupUser(ctx context.Context, userID string) (Profile, error)
	ResolveChannelID(ctx context.Context, name string) (string, error)
}

// LookupError is returned when a user identity cannot be resolved. It is
// never fatal: callers skip the identity-dependent step.
type LookupError struct {
	UserID string
	Err    error
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("failed to resolve user %s: %v", e.UserID, e.Err)
}

func (e *LookupError) Unwrap() error {
	return e.Err
}

// CorrelationError reports that no message in the search window matched.
// The sync operation that needed it is dropped.
type CorrelationError struct {
	Side      string
	ChannelID string
	Window    Window
	// Text is the expected text, nil when matching by timestamp only.
	Text *string
}

func (e *CorrelationError) Error() string {
	text := "<any>"
	if e.Text != nil {
		text = fmt.Sprintf("%q", *e.Text)
	}
	return fmt.Sprintf("%s: side=%s channel=%s window=%s text=%s",
		ErrCorrelationFailed, e.Side, e.ChannelID, e.Window, text)
}

func (e *CorrelationError) Unwrap() error {
	return ErrCorrelationFailed
}
