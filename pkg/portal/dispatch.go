// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package portal

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// ActionKind is the mirrored operation an event implies.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionPost
	ActionPostReply
	ActionEdit
	ActionDelete
	ActionSyncReactions
)

func (a ActionKind) String() string {
	switch a {
	case ActionPost:
		return "post"
	case ActionPostReply:
		return "post_reply"
	case ActionEdit:
		return "edit"
	case ActionDelete:
		return "delete"
	case ActionSyncReactions:
		return "sync_reactions"
	default:
		return "none"
	}
}

// Action is the outcome of classifying one event.
type Action struct {
	Kind ActionKind
	// Reason explains an ActionNone, Level is the level it is logged at.
	Reason string
	Level  zerolog.Level
}

func ignore(level zerolog.Level, reason string) Action {
	return Action{Kind: ActionNone, Reason: reason, Level: level}
}

// Dispatcher mirrors the events of one side (origin) onto the other
// (target). It keeps no per-message state: every event is handled with the
// information it carries plus live correlation.
type Dispatcher struct {
	Direction     string
	Origin        *Conn
	OriginChannel string
	Target        *Conn
	TargetChannel string
	Correlator    *Correlator
	Metrics       *Metrics

	log      zerolog.Logger
	inFlight sync.WaitGroup
}

// NewDispatcher creates a dispatcher for origin -> target.
func NewDispatcher(origin *Conn, originChannel string, target *Conn, targetChannel string, correlator *Correlator, metrics *Metrics, log zerolog.Logger) *Dispatcher {
	direction := origin.Name + "->" + target.Name
	return &Dispatcher{
		Direction:     direction,
		Origin:        origin,
		OriginChannel: originChannel,
		Target:        target,
		TargetChannel: targetChannel,
		Correlator:    correlator,
		Metrics:       metrics,
		log:           log.With().Str("component", "dispatcher").Str("direction", direction).Logger(),
	}
}

// Run handles events until the stream closes or ctx is done. Every event is
// handled on its own goroutine; there is no ordering between events. Handlers
// already started are not cancelled and Run waits for them before returning.
func (d *Dispatcher) Run(ctx context.Context, events <-chan Event) {
	d.log.Info().
		Str("origin_channel", d.OriginChannel).
		Str("target_channel", d.TargetChannel).
		Msg("Listening for events")
	defer d.inFlight.Wait()

	handlerCtx := context.WithoutCancel(ctx)
	for {
		select {
		case <-ctx.Done():
			d.log.Info().Msg("Dispatcher stopped")
			return
		case evt, ok := <-events:
			if !ok {
				d.log.Warn().Msg("Event stream closed")
				return
			}
			d.inFlight.Add(1)
			go func() {
				defer d.inFlight.Done()
				_ = d.Handle(handlerCtx, evt)
			}()
		}
	}
}

// Handle classifies one event and performs the resulting mirrored mutation.
// Failures are logged here; the returned error is for callers that want it.
func (d *Dispatcher) Handle(ctx context.Context, evt Event) error {
	log := d.log.With().
		Str("event", evt.Kind.String()).
		Str("channel_id", evt.ChannelID).
		Str("ts", evt.TS).
		Logger()
	ctx = log.WithContext(ctx)

	action := d.plan(&evt)
	d.Metrics.event(d.Direction, evt.Kind, action.Kind)
	if action.Kind == ActionNone {
		log.WithLevel(action.Level).Str("subtype", evt.Subtype).Str("reason", action.Reason).Msg("Ignoring event")
		return nil
	}
	log.Debug().Str("action", action.Kind.String()).Msg("Handling event")

	var err error
	switch action.Kind {
	case ActionPost:
		err = d.handlePost(ctx, &evt)
	case ActionPostReply:
		err = d.handleThreadReply(ctx, &evt)
	case ActionEdit:
		err = d.handleEdit(ctx, &evt)
	case ActionDelete:
		err = d.handleDelete(ctx, &evt)
	case ActionSyncReactions:
		err = d.handleReactions(ctx, &evt)
	}
	if err != nil {
		d.logFailure(log, action, err)
	}
	return err
}

// plan decides what an event implies without touching any backend.
func (d *Dispatcher) plan(evt *Event) Action {
	if evt.Kind == EventBotMessage {
		return ignore(zerolog.DebugLevel, "bot-originated message")
	}
	if evt.ChannelID != d.OriginChannel {
		return ignore(zerolog.TraceLevel, "event from another channel")
	}
	if evt.UserID != "" && evt.UserID == d.Origin.Backend.SelfID() {
		return ignore(zerolog.DebugLevel, "authored by the mirror account")
	}

	switch evt.Kind {
	case EventMessage:
		return Action{Kind: ActionPost}
	case EventThreadReply:
		return Action{Kind: ActionPostReply}
	case EventMessageChanged, EventMessageDeleted:
		if evt.Previous == nil {
			return ignore(zerolog.WarnLevel, "no previous message snapshot")
		}
		if evt.Previous.Bot {
			return ignore(zerolog.DebugLevel, "update of a bot message")
		}
		if evt.Kind == EventMessageDeleted {
			return Action{Kind: ActionDelete}
		}
		if evt.Current == nil {
			return ignore(zerolog.WarnLevel, "no current message snapshot")
		}
		if evt.Previous.Text == evt.Current.Text {
			return ignore(zerolog.DebugLevel, "attachment-only change")
		}
		return Action{Kind: ActionEdit}
	case EventReactionAdded, EventReactionRemoved:
		return Action{Kind: ActionSyncReactions}
	case EventMessageReplied:
		return ignore(zerolog.InfoLevel, "thread bookkeeping event")
	default:
		return ignore(zerolog.WarnLevel, "unrecognized event kind")
	}
}

func (d *Dispatcher) logFailure(log zerolog.Logger, action Action, err error) {
	var corrErr *CorrelationError
	var lookupErr *LookupError
	switch {
	case errors.As(err, &corrErr):
		text := "<any>"
		if corrErr.Text != nil {
			text = *corrErr.Text
		}
		log.Error().
			Str("action", action.Kind.String()).
			Str("searched_side", corrErr.Side).
			Str("searched_channel", corrErr.ChannelID).
			Float64("start_ts", corrErr.Window.Start).
			Float64("end_ts", corrErr.Window.End).
			Str("expected_text", text).
			Msg("Dropping sync, no correlated message found. The other side may have changed it; if not, consider widening start_ts_diff and end_ts_diff")
	case errors.As(err, &lookupErr):
		log.Warn().Err(err).Str("action", action.Kind.String()).Msg("Dropping sync, identity lookup failed")
	default:
		log.Error().Err(err).Str("action", action.Kind.String()).Msg("Failed to mirror event")
	}
}

// sender resolves the impersonated author of a mirrored message. Lookup
// failures fall back to the raw user id without avatar.
func (d *Dispatcher) sender(ctx context.Context, userID string) OutgoingMessage {
	ident, err := d.Origin.Identities.Resolve(ctx, userID)
	if err != nil {
		d.Metrics.lookupFailure(d.Origin.Name)
		zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Mirroring under the raw user id")
		return OutgoingMessage{Username: userID}
	}
	return OutgoingMessage{Username: ident.DisplayName, IconURL: ident.AvatarURL}
}

func (d *Dispatcher) handlePost(ctx context.Context, evt *Event) error {
	out := d.sender(ctx, evt.UserID)
	out.Text = d.Origin.Normalize(ctx, evt.Text)
	return d.mutate(ctx, "post", func() error {
		return d.Target.Backend.PostMessage(ctx, d.TargetChannel, out)
	})
}

func (d *Dispatcher) handleThreadReply(ctx context.Context, evt *Event) error {
	out := d.sender(ctx, evt.UserID)

	root, err := d.Correlator.SearchAt(ctx, d.Origin, d.OriginChannel, evt.ThreadTS)
	if err != nil {
		return err
	}
	rootTS, err := ParseTS(root.Message.TS)
	if err != nil {
		return err
	}
	zerolog.Ctx(ctx).Debug().Str("root_text", root.Text).Msg("Retrieved thread root")

	mirrorRoot, err := d.Correlator.SearchText(ctx, d.Target, d.TargetChannel, root.Text, d.Correlator.Timing.ThreadWindow(rootTS))
	if err != nil {
		return err
	}

	out.Text = d.Origin.Normalize(ctx, evt.Text)
	out.ThreadTS = mirrorRoot.Message.TS
	return d.mutate(ctx, "post_reply", func() error {
		return d.Target.Backend.PostMessage(ctx, d.TargetChannel, out)
	})
}

// locateMirror finds the target-side copy of the message in evt.Previous.
func (d *Dispatcher) locateMirror(ctx context.Context, evt *Event) (*Match, error) {
	prevTS, err := ParseTS(evt.Previous.TS)
	if err != nil {
		return nil, err
	}
	prevText := d.Origin.Normalize(ctx, evt.Previous.Text)
	return d.Correlator.SearchText(ctx, d.Target, d.TargetChannel, prevText, d.Correlator.Timing.EditWindow(prevTS))
}

func (d *Dispatcher) handleEdit(ctx context.Context, evt *Event) error {
	mirror, err := d.locateMirror(ctx, evt)
	if err != nil {
		return err
	}
	text := d.Origin.Normalize(ctx, evt.Current.Text)
	atts := UpsertAttachment(mirror.Message.Attachments, editMarker(evt.TS), true)
	return d.mutate(ctx, "edit", func() error {
		return d.Target.Backend.UpdateMessage(ctx, d.TargetChannel, mirror.Message.TS, text, atts)
	})
}

func (d *Dispatcher) handleDelete(ctx context.Context, evt *Event) error {
	mirror, err := d.locateMirror(ctx, evt)
	if err != nil {
		return err
	}
	return d.mutate(ctx, "delete", func() error {
		return d.Target.Backend.DeleteMessage(ctx, d.TargetChannel, mirror.Message.TS)
	})
}

func (d *Dispatcher) handleReactions(ctx context.Context, evt *Event) error {
	item, err := d.Correlator.SearchAt(ctx, d.Origin, d.OriginChannel, evt.ItemTS)
	if err != nil {
		return err
	}
	reactions, err := d.Origin.Backend.FetchReactions(ctx, d.OriginChannel, item.Message.TS)
	if err != nil {
		return fmt.Errorf("failed to fetch reactions on %s: %w", d.Origin.Name, err)
	}
	summary := Summarize(ctx, d.Origin.Identities, reactions)

	itemTS, err := ParseTS(evt.ItemTS)
	if err != nil {
		return err
	}
	mirror, err := d.Correlator.SearchText(ctx, d.Target, d.TargetChannel, item.Text, d.Correlator.Timing.ReactionWindow(itemTS))
	if err != nil {
		return err
	}
	atts := UpsertAttachment(mirror.Message.Attachments, summary, false)
	return d.mutate(ctx, "sync_reactions", func() error {
		return d.Target.Backend.UpdateMessage(ctx, d.TargetChannel, mirror.Message.TS, mirror.Message.Text, atts)
	})
}

func (d *Dispatcher) mutate(ctx context.Context, op string, fn func() error) error {
	err := fn()
	d.Metrics.mutation(d.Target.Name, op, err)
	if err != nil {
		return fmt.Errorf("failed to %s on %s: %w", op, d.Target.Name, err)
	}
	zerolog.Ctx(ctx).Info().Str("op", op).Msg("Mirrored event")
	return nil
}
