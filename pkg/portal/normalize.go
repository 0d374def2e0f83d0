// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"

	"github.com/rs/zerolog"

	"github.com/aiku/slackportal/pkg/portal/mentionfmt"
)

// Normalize rewrites user mentions in text to display names resolved on this
// connection, then strips any remaining markup. Ids that cannot be resolved
// are left to the strip pass and surface as bare ids.
func (c *Conn) Normalize(ctx context.Context, text string) string {
	ids := mentionfmt.Mentions(text)
	if len(ids) == 0 {
		return mentionfmt.Strip(text)
	}

	names := make(map[string]string, len(ids))
	for _, userID := range ids {
		ident, err := c.Identities.Resolve(ctx, userID)
		if err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Str("user_id", userID).Msg("Leaving mention unresolved")
			continue
		}
		names[userID] = ident.DisplayName
	}
	return mentionfmt.Strip(mentionfmt.ReplaceMentions(text, names))
}
