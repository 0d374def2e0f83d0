// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Side is one end of the mirror as configured: a connection plus the name of
// the channel to mirror on it.
type Side struct {
	Conn        *Conn
	ChannelName string
}

// Supervisor resolves the channel pair and runs one dispatcher per
// direction.
type Supervisor struct {
	local      Side
	remote     Side
	correlator *Correlator
	metrics    *Metrics
	log        zerolog.Logger

	mu          sync.RWMutex
	localID     string
	remoteID    string
	dispatchers []*Dispatcher
	startedAt   time.Time
}

// NewSupervisor creates a supervisor for the given pair.
func NewSupervisor(local, remote Side, timing Timing, metrics *Metrics, log zerolog.Logger) *Supervisor {
	return &Supervisor{
		local:      local,
		remote:     remote,
		correlator: &Correlator{Timing: timing, Metrics: metrics},
		metrics:    metrics,
		log:        log.With().Str("component", "supervisor").Logger(),
	}
}

// Start resolves both channel names to ids. Failure to resolve either is
// fatal to the process.
func (s *Supervisor) Start(ctx context.Context) error {
	var localID, remoteID string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		localID, err = s.resolve(gctx, s.local)
		return err
	})
	g.Go(func() (err error) {
		remoteID, err = s.resolve(gctx, s.remote)
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.localID = localID
	s.remoteID = remoteID
	s.dispatchers = []*Dispatcher{
		NewDispatcher(s.local.Conn, localID, s.remote.Conn, remoteID, s.correlator, s.metrics, s.log),
		NewDispatcher(s.remote.Conn, remoteID, s.local.Conn, localID, s.correlator, s.metrics, s.log),
	}
	s.startedAt = time.Now()
	s.log.Info().
		Str("local_channel", localID).
		Str("remote_channel", remoteID).
		Msg("Channel pair resolved")
	return nil
}

func (s *Supervisor) resolve(ctx context.Context, side Side) (string, error) {
	id, err := side.Conn.Backend.ResolveChannelID(ctx, side.ChannelName)
	if err != nil {
		return "", fmt.Errorf("failed to resolve %s channel #%s: %w", side.Conn.Name, side.ChannelName, err)
	}
	s.log.Debug().Str("side", side.Conn.Name).Str("channel", side.ChannelName).Str("channel_id", id).Msg("Resolved channel")
	return id, nil
}

// Run subscribes to both backends and dispatches until ctx is done. It
// returns once both directions have drained their in-flight events.
func (s *Supervisor) Run(ctx context.Context) error {
	s.mu.RLock()
	dispatchers := s.dispatchers
	s.mu.RUnlock()
	if len(dispatchers) == 0 {
		return fmt.Errorf("supervisor not started")
	}

	g, gctx := errgroup.WithContext(ctx)
	for _, d := range dispatchers {
		g.Go(func() error {
			events, err := d.Origin.Backend.Subscribe(gctx)
			if err != nil {
				return fmt.Errorf("failed to subscribe to %s: %w", d.Origin.Name, err)
			}
			d.Run(gctx, events)
			return nil
		})
	}
	return g.Wait()
}

// Status is a snapshot of the supervisor for the admin API.
type Status struct {
	Started    bool              `json:"started"`
	StartedAt  *time.Time        `json:"started_at,omitempty"`
	Directions []DirectionStatus `json:"directions"`
}

// DirectionStatus describes one mirroring direction.
type DirectionStatus struct {
	Direction     string `json:"direction"`
	OriginChannel string `json:"origin_channel"`
	TargetChannel string `json:"target_channel"`
}

// Status returns the current supervisor state.
func (s *Supervisor) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	st := Status{Started: len(s.dispatchers) > 0, Directions: []DirectionStatus{}}
	if st.Started {
		startedAt := s.startedAt
		st.StartedAt = &startedAt
	}
	for _, d := range s.dispatchers {
		st.Directions = append(st.Directions, DirectionStatus{
			Direction:     d.Direction,
			OriginChannel: d.OriginChannel,
			TargetChannel: d.TargetChannel,
		})
	}
	return st
}
