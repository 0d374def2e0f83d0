// Copyright 2024-2026 Aiku AI

package portal

import (
	"fmt"
	"math"
)

// Window is an inclusive timestamp range searched during correlation.
type Window struct {
	Start float64
	End   float64
}

func (w Window) String() string {
	return fmt.Sprintf("[%s, %s]", FormatTS(w.Start), FormatTS(w.End))
}

// Exact reports whether the window addresses a single timestamp.
func (w Window) Exact() bool {
	return w.Start == w.End
}

// Bound names a window edge in tolerance warnings.
type Bound string

const (
	BoundStart Bound = "start"
	BoundEnd   Bound = "end"
)

// Timing holds the clock tunables shared by every correlation.
type Timing struct {
	// StartDiff is the assumed max clock skew between the two backends.
	StartDiff float64 `yaml:"start_ts_diff"`
	// EndDiff is the assumed max forwarding latency.
	EndDiff float64 `yaml:"end_ts_diff"`
	// Tolerance is the minimum distance from a window bound before a match
	// raises a tolerance warning.
	Tolerance float64 `yaml:"ts_diff_tolerance"`
}

// DefaultTiming matches the skew and latency usually seen between two Slack
// workspaces.
var DefaultTiming = Timing{
	StartDiff: 3.0,
	EndDiff:   6.0,
	Tolerance: 2.0,
}

// ExactWindow addresses the message at ts.
func ExactWindow(ts float64) Window {
	return Window{Start: ts, End: ts}
}

// EditWindow locates the mirror of a message being edited or deleted.
func (t Timing) EditWindow(prevTS float64) Window {
	start := prevTS - t.StartDiff
	return Window{Start: start, End: start + t.EndDiff}
}

// ThreadWindow locates the mirror of a thread root.
func (t Timing) ThreadWindow(rootTS float64) Window {
	return Window{Start: rootTS - t.StartDiff, End: rootTS + t.StartDiff + t.EndDiff}
}

// ReactionWindow locates the mirror of a reacted-to message.
func (t Timing) ReactionWindow(itemTS float64) Window {
	return Window{Start: itemTS - t.StartDiff, End: itemTS + t.EndDiff}
}

// CloseBounds returns the window bounds that ts lies strictly closer to
// than the tolerance. Exact windows never report.
func (t Timing) CloseBounds(w Window, ts float64) []Bound {
	if w.Exact() {
		return nil
	}
	var bounds []Bound
	if math.Abs(ts-w.Start) < t.Tolerance {
		bounds = append(bounds, BoundStart)
	}
	if math.Abs(ts-w.End) < t.Tolerance {
		bounds = append(bounds, BoundEnd)
	}
	return bounds
}
