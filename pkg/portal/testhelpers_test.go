// Copyright 2024-2026 Remi Philippe
// This Source Code Form is subject to the terms of the Mozilla Public
// License, v. 2.0. If a copy of the MPL was not distributed with this
// file, You can obtain one at https://mozilla.org/MPL/2.0/.

package portal

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
)

// backendCall records one mutating call made against a fakeBackend.
type backendCall struct {
	Op        string
	ChannelID string
	TS        string
	Text      string
	Msg       OutgoingMessage
	Atts      []Attachment
}

// fakeBackend is an in-memory Backend. Messages posted through it are
// stored with timestamps taken from NextTS so tests control where mirrors
// land in correlation windows.
type fakeBackend struct {
	Self string

	mu sync.Mutex
	// Messages maps channel ID to messages in insertion order.
	Messages map[string][]Message
	// Users maps user ID to profile for LookupUser.
	Users map[string]Profile
	// Channels maps channel name to ID.
	Channels map[string]string
	// Reactions maps "channel:ts" to reactions.
	Reactions map[string][]Reaction
	// NextTS is the timestamp assigned to the next posted message.
	NextTS float64
	// HistoryErr, when set, fails FetchHistory.
	HistoryErr error
	// Events is returned by Subscribe.
	Events chan Event

	calls        []backendCall
	lookups      map[string]int
	historyCalls []Window
}

func newFakeBackend(self string) *fakeBackend {
	return &fakeBackend{
		Self:      self,
		Messages:  make(map[string][]Message),
		Users:     make(map[string]Profile),
		Channels:  make(map[string]string),
		Reactions: make(map[string][]Reaction),
		Events:    make(chan Event, 16),
		lookups:   make(map[string]int),
	}
}

func (f *fakeBackend) addMessage(msg Message) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Messages[msg.ChannelID] = append(f.Messages[msg.ChannelID], msg)
}

func (f *fakeBackend) message(channelID, ts string) (Message, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, msg := range f.Messages[channelID] {
		if msg.TS == ts {
			return msg, true
		}
	}
	return Message{}, false
}

func (f *fakeBackend) Calls() []backendCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]backendCall, len(f.calls))
	copy(cp, f.calls)
	return cp
}

func (f *fakeBackend) LookupCount(userID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lookups[userID]
}

func (f *fakeBackend) HistoryWindows() []Window {
	f.mu.Lock()
	defer f.mu.Unlock()
	cp := make([]Window, len(f.historyCalls))
	copy(cp, f.historyCalls)
	return cp
}

func (f *fakeBackend) SelfID() string { return f.Self }

func (f *fakeBackend) Subscribe(_ context.Context) (<-chan Event, error) {
	return f.Events, nil
}

func (f *fakeBackend) FetchHistory(_ context.Context, channelID string, oldest, latest float64) ([]Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.historyCalls = append(f.historyCalls, Window{Start: oldest, End: latest})
	if f.HistoryErr != nil {
		return nil, f.HistoryErr
	}
	var out []Message
	for _, msg := range f.Messages[channelID] {
		ts, err := ParseTS(msg.TS)
		if err != nil {
			continue
		}
		if ts >= oldest && ts <= latest {
			out = append(out, msg)
		}
	}
	return out, nil
}

func (f *fakeBackend) PostMessage(_ context.Context, channelID string, msg OutgoingMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	ts := FormatTS(f.NextTS)
	f.NextTS += 0.5
	f.Messages[channelID] = append(f.Messages[channelID], Message{
		ChannelID: channelID,
		TS:        ts,
		UserID:    f.Self,
		Text:      msg.Text,
		ThreadTS:  msg.ThreadTS,
		Bot:       true,
	})
	f.calls = append(f.calls, backendCall{Op: "post", ChannelID: channelID, TS: ts, Text: msg.Text, Msg: msg})
	return nil
}

func (f *fakeBackend) UpdateMessage(_ context.Context, channelID, ts, text string, attachments []Attachment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, backendCall{Op: "update", ChannelID: channelID, TS: ts, Text: text, Atts: attachments})
	msgs := f.Messages[channelID]
	for i := range msgs {
		if msgs[i].TS == ts {
			msgs[i].Text = text
			msgs[i].Attachments = attachments
			return nil
		}
	}
	return errors.New("message_not_found")
}

func (f *fakeBackend) DeleteMessage(_ context.Context, channelID, ts string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, backendCall{Op: "delete", ChannelID: channelID, TS: ts})
	msgs := f.Messages[channelID]
	for i := range msgs {
		if msgs[i].TS == ts {
			f.Messages[channelID] = append(msgs[:i:i], msgs[i+1:]...)
			return nil
		}
	}
	return errors.New("message_not_found")
}

func (f *fakeBackend) FetchReactions(_ context.Context, channelID, ts string) ([]Reaction, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Reactions[channelID+":"+ts], nil
}

func (f *fakeBackend) LookupUser(_ context.Context, userID string) (Profile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups[userID]++
	p, ok := f.Users[userID]
	if !ok {
		return Profile{}, ErrUserNotFound
	}
	return p, nil
}

func (f *fakeBackend) ResolveChannelID(_ context.Context, name string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	id, ok := f.Channels[name]
	if !ok {
		return "", ErrChannelNotFound
	}
	return id, nil
}

// testPair is a local/remote dispatcher setup over two fake backends.
type testPair struct {
	local, remote         *fakeBackend
	localConn, remoteConn *Conn
	forward, backward     *Dispatcher
	metrics               *Metrics
}

const (
	localChannel  = "CLOCAL"
	remoteChannel = "CREMOTE"
)

func newTestPair() *testPair {
	log := zerolog.Nop()
	p := &testPair{
		local:   newFakeBackend("UBOTLOCAL"),
		remote:  newFakeBackend("UBOTREMOTE"),
		metrics: NewMetrics(nil),
	}
	p.localConn = NewConn("local", p.local, nil, log)
	p.remoteConn = NewConn("remote", p.remote, nil, log)
	correlator := &Correlator{Timing: DefaultTiming, Metrics: p.metrics}
	p.forward = NewDispatcher(p.localConn, localChannel, p.remoteConn, remoteChannel, correlator, p.metrics, log)
	p.backward = NewDispatcher(p.remoteConn, remoteChannel, p.localConn, localChannel, correlator, p.metrics, log)
	return p
}
