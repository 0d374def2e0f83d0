// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"

	"golang.org/x/time/rate"
)

// Throttle wraps a Backend so request/response calls wait for a token from
// a shared limiter. SelfID and Subscribe are not throttled.
type Throttle struct {
	Backend
	limiter *rate.Limiter
}

var _ Backend = (*Throttle)(nil)

// NewThrottle limits b to perSecond calls with the given burst. A
// non-positive rate returns b unchanged.
func NewThrottle(b Backend, perSecond float64, burst int) Backend {
	if perSecond <= 0 {
		return b
	}
	if burst < 1 {
		burst = 1
	}
	return &Throttle{Backend: b, limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (t *Throttle) FetchHistory(ctx context.Context, channelID string, oldest, latest float64) ([]Message, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Backend.FetchHistory(ctx, channelID, oldest, latest)
}

func (t *Throttle) PostMessage(ctx context.Context, channelID string, msg OutgoingMessage) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Backend.PostMessage(ctx, channelID, msg)
}

func (t *Throttle) UpdateMessage(ctx context.Context, channelID, ts, text string, attachments []Attachment) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Backend.UpdateMessage(ctx, channelID, ts, text, attachments)
}

func (t *Throttle) DeleteMessage(ctx context.Context, channelID, ts string) error {
	if err := t.limiter.Wait(ctx); err != nil {
		return err
	}
	return t.Backend.DeleteMessage(ctx, channelID, ts)
}

func (t *Throttle) FetchReactions(ctx context.Context, channelID, ts string) ([]Reaction, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	return t.Backend.FetchReactions(ctx, channelID, ts)
}

func (t *Throttle) LookupUser(ctx context.Context, userID string) (Profile, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return Profile{}, err
	}
	return t.Backend.LookupUser(ctx, userID)
}

func (t *Throttle) ResolveChannelID(ctx context.Context, name string) (string, error) {
	if err := t.limiter.Wait(ctx); err != nil {
		return "", err
	}
	return t.Backend.ResolveChannelID(ctx, name)
}
