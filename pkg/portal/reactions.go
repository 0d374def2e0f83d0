// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// maxParallelLookups bounds concurrent profile lookups for one summary.
const maxParallelLookups = 8

// Summarize builds the reaction summary attachment for a message. Every
// distinct reactor is resolved once, in parallel, before the summary is
// assembled. Reactors that cannot be resolved are listed by id.
//
// The attachment text lists ":emoji: count" per reaction and the footer lists
// who reacted with what, e.g. "+1: Alice, Bob | tada: Carol".
func Summarize(ctx context.Context, ids *IdentityCache, reactions []Reaction) Attachment {
	names := resolveReactors(ctx, ids, reactions)

	summary := make([]string, 0, len(reactions))
	detail := make([]string, 0, len(reactions))
	for _, r := range reactions {
		summary = append(summary, fmt.Sprintf(":%s: %d", r.Name, r.Count))
		users := make([]string, 0, len(r.Users))
		for _, userID := range r.Users {
			users = append(users, names[userID])
		}
		detail = append(detail, r.Name+": "+strings.Join(users, ", "))
	}

	return Attachment{
		Fallback: FallbackReactions,
		Text:     strings.Join(summary, " "),
		Footer:   strings.Join(detail, " | "),
	}
}

func resolveReactors(ctx context.Context, ids *IdentityCache, reactions []Reaction) map[string]string {
	names := make(map[string]string)
	var reactors []string
	for _, r := range reactions {
		for _, userID := range r.Users {
			if _, ok := names[userID]; !ok {
				names[userID] = userID
				reactors = append(reactors, userID)
			}
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelLookups)
	for _, userID := range reactors {
		g.Go(func() error {
			ident, err := ids.Resolve(gctx, userID)
			if err != nil {
				zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Listing reactor by id")
				return nil
			}
			mu.Lock()
			names[userID] = ident.DisplayName
			mu.Unlock()
			return nil
		})
	}
	// Failed lookups are logged above and never fail the group.
	_ = g.Wait()
	return names
}
