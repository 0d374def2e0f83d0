// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"
	"fmt"
	"sort"

	"github.com/rs/zerolog"
)

// Correlator finds messages by timestamp window and normalized text.
type Correlator struct {
	Timing  Timing
	Metrics *Metrics
}

// Match is a successful correlation.
type Match struct {
	// Message is the matched message as the backend returned it.
	Message Message
	// Text is the normalized text the match was made on.
	Text string
	// Close lists the window bounds the match is suspiciously near.
	Close []Bound
}

// SearchAt returns the message at exactly ts, whatever its text.
func (c *Correlator) SearchAt(ctx context.Context, conn *Conn, channelID, ts string) (*Match, error) {
	at, err := ParseTS(ts)
	if err != nil {
		return nil, err
	}
	return c.search(ctx, conn, channelID, nil, ExactWindow(at))
}

// SearchText returns the earliest message in w whose normalized text equals
// text.
func (c *Correlator) SearchText(ctx context.Context, conn *Conn, channelID, text string, w Window) (*Match, error) {
	return c.search(ctx, conn, channelID, &text, w)
}

func (c *Correlator) search(ctx context.Context, conn *Conn, channelID string, text *string, w Window) (*Match, error) {
	log := zerolog.Ctx(ctx).With().
		Str("searched_side", conn.Name).
		Str("searched_channel", channelID).
		Stringer("window", w).
		Logger()

	history, err := conn.Backend.FetchHistory(ctx, channelID, w.Start, w.End)
	if err != nil {
		c.Metrics.correlation(conn.Name, "error")
		return nil, fmt.Errorf("failed to fetch history on %s: %w", conn.Name, err)
	}
	log.Debug().Int("candidates", len(history)).Msg("Fetched correlation candidates")

	// Earliest match wins when clocks drift and several candidates fit.
	sort.SliceStable(history, func(i, j int) bool {
		return tsLess(history[i].TS, history[j].TS)
	})

	for _, msg := range history {
		normalized := conn.Normalize(ctx, msg.Text)
		if text != nil && normalized != *text {
			continue
		}

		match := &Match{Message: msg, Text: normalized}
		if ts, err := ParseTS(msg.TS); err == nil {
			match.Close = c.Timing.CloseBounds(w, ts)
			for _, bound := range match.Close {
				c.Metrics.toleranceWarning(conn.Name, bound)
				log.Warn().
					Str("ts", msg.TS).
					Str("bound", string(bound)).
					Float64("tolerance", c.Timing.Tolerance).
					Msg("Correlation match is close to the window bound, consider widening the timing diffs")
			}
		}
		c.Metrics.correlation(conn.Name, "found")
		log.Debug().Str("ts", msg.TS).Msg("Correlated message")
		return match, nil
	}

	c.Metrics.correlation(conn.Name, "not_found")
	return nil, &CorrelationError{Side: conn.Name, ChannelID: channelID, Window: w, Text: text}
}

func tsLess(a, b string) bool {
	fa, errA := ParseTS(a)
	fb, errB := ParseTS(b)
	if errA != nil || errB != nil {
		return a < b
	}
	return fa < fb
}
