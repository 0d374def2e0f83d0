// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
	"go.mau.fi/util/exsync"
)

// UserLookup is the part of Backend the IdentityCache needs.
type UserLookup interface {
	LookupUser(ctx context.Context, userID string) (Profile, error)
}

// NameFormatter turns a profile into the name shown on the other side.
type NameFormatter func(Profile) string

// IdentityCache memoizes user identities for the lifetime of the process.
// Entries are never evicted or refreshed. Concurrent misses for the same id
// may each query the backend; the last write wins.
type IdentityCache struct {
	lookup     UserLookup
	formatName NameFormatter
	identities *exsync.Map[string, Identity]
	log        zerolog.Logger
}

// NewIdentityCache creates an empty cache. A nil formatName uses
// Profile.DisplayName.
func NewIdentityCache(lookup UserLookup, formatName NameFormatter, log zerolog.Logger) *IdentityCache {
	if formatName == nil {
		formatName = Profile.DisplayName
	}
	return &IdentityCache{
		lookup:     lookup,
		formatName: formatName,
		identities: exsync.NewMap[string, Identity](),
		log:        log,
	}
}

// Resolve returns the identity for userID, querying the backend on a miss.
// The error is always a *LookupError.
func (c *IdentityCache) Resolve(ctx context.Context, userID string) (Identity, error) {
	if ident, ok := c.identities.Get(userID); ok {
		c.log.Trace().Str("user_id", userID).Str("name", ident.DisplayName).Msg("Identity cache hit")
		return ident, nil
	}

	c.log.Debug().Str("user_id", userID).Msg("Identity cache miss, resolving")
	profile, err := c.lookup.LookupUser(ctx, userID)
	if err != nil {
		if !errors.Is(err, ErrUserNotFound) {
			c.log.Warn().Err(err).Str("user_id", userID).Msg("User lookup failed")
		}
		return Identity{}, &LookupError{UserID: userID, Err: err}
	}

	name := c.formatName(profile)
	if name == "" {
		name = profile.DisplayName()
	}
	ident := Identity{
		ID:          userID,
		DisplayName: name,
		AvatarURL:   profile.AvatarURL,
	}
	c.identities.Set(userID, ident)
	c.log.Debug().Str("user_id", userID).Str("name", name).Msg("Resolved identity")
	return ident, nil
}

// Conn is a backend connection together with the identity cache it owns.
type Conn struct {
	// Name labels the side in logs and metrics ("local", "remote").
	Name       string
	Backend    Backend
	Identities *IdentityCache
}

// NewConn creates a connection wrapper with a fresh identity cache.
func NewConn(name string, backend Backend, formatName NameFormatter, log zerolog.Logger) *Conn {
	log = log.With().Str("side", name).Logger()
	return &Conn{
		Name:       name,
		Backend:    backend,
		Identities: NewIdentityCache(backend, formatName, log.With().Str("component", "identity_cache").Logger()),
	}
}
