// Copyright 2024-2026 Aiku AI

package main

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aiku/slackportal/pkg/mmconn"
	"github.com/aiku/slackportal/pkg/portal"
	"github.com/aiku/slackportal/pkg/slackconn"
)

// connect authenticates one side and wraps it with its rate limit and
// identity cache.
func connect(ctx context.Context, side string, cfg portal.SideConfig, formatName portal.NameFormatter, log zerolog.Logger) (*portal.Conn, error) {
	log = log.With().Str("side", side).Logger()
	backend, err := newBackend(ctx, cfg, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect %s side: %w", side, err)
	}
	return portal.NewConn(side, portal.NewThrottle(backend, cfg.RateLimit, cfg.RateBurst), formatName, log), nil
}

func newBackend(ctx context.Context, cfg portal.SideConfig, log zerolog.Logger) (portal.Backend, error) {
	switch cfg.Type {
	case portal.BackendSlack:
		return slackconn.New(ctx, slackconn.Options{
			ConnectionToken: cfg.ConnectionToken,
			ActionToken:     cfg.ActionToken,
		}, log)
	case portal.BackendMattermost:
		token := cfg.ActionToken
		if token == "" {
			token = cfg.ConnectionToken
		}
		return mmconn.New(ctx, mmconn.Options{
			ServerURL: cfg.ServerURL,
			Token:     token,
			Username:  cfg.Username,
			Password:  cfg.Password,
			Team:      cfg.Team,
		}, log)
	default:
		return nil, fmt.Errorf("unknown backend type %q", cfg.Type)
	}
}
