// Copyright 2024-2026 Aiku AI

package portal

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
)

func newCorrelationFixture(msgs ...Message) (*Correlator, *Conn, *fakeBackend) {
	b := newFakeBackend("UBOT")
	b.Users["U1"] = Profile{ID: "U1", Handle: "alice"}
	for _, msg := range msgs {
		msg.ChannelID = "C1"
		b.addMessage(msg)
	}
	c := &Correlator{Timing: DefaultTiming, Metrics: NewMetrics(nil)}
	return c, NewConn("remote", b, nil, zerolog.Nop()), b
}

func TestSearchTextSingleMatch(t *testing.T) {
	t.Parallel()
	c, conn, _ := newCorrelationFixture(
		Message{TS: "999.000000", Text: "nope"},
		Message{TS: "1000.000000", Text: "hello <@U1>"},
	)
	match, err := c.SearchText(context.Background(), conn, "C1", "hello alice", Window{Start: 997, End: 1003})
	if err != nil {
		t.Fatal(err)
	}
	if match.Message.TS != "1000.000000" || match.Text != "hello alice" || match.Message.Text != "hello <@U1>" {
		t.Errorf("match: got %+v", match)
	}
	if len(match.Close) != 0 {
		t.Errorf("unexpected tolerance warning: %v", match.Close)
	}
}

func TestSearchTextEarliestWins(t *testing.T) {
	t.Parallel()
	// History is stored newest first to check the correlator orders it.
	c, conn, _ := newCorrelationFixture(
		Message{TS: "1002.000000", Text: "dup"},
		Message{TS: "1000.500000", Text: "dup"},
		Message{TS: "1001.000000", Text: "dup"},
	)
	match, err := c.SearchText(context.Background(), conn, "C1", "dup", Window{Start: 997, End: 1003})
	if err != nil {
		t.Fatal(err)
	}
	if match.Message.TS != "1000.500000" {
		t.Errorf("got %s, want earliest 1000.500000", match.Message.TS)
	}
}

func TestSearchTextNotFound(t *testing.T) {
	t.Parallel()
	c, conn, _ := newCorrelationFixture(
		Message{TS: "1000.000000", Text: "other"},
		Message{TS: "1010.000000", Text: "wanted"},
	)
	w := Window{Start: 997, End: 1003}
	_, err := c.SearchText(context.Background(), conn, "C1", "wanted", w)

	var corrErr *CorrelationError
	if !errors.As(err, &corrErr) {
		t.Fatalf("expected CorrelationError, got %v", err)
	}
	if corrErr.Window != w || corrErr.ChannelID != "C1" || corrErr.Side != "remote" {
		t.Errorf("context: %+v", corrErr)
	}
	if !errors.Is(err, ErrCorrelationFailed) {
		t.Error("CorrelationError does not wrap ErrCorrelationFailed")
	}
}

func TestSearchAt(t *testing.T) {
	t.Parallel()
	c, conn, b := newCorrelationFixture(
		Message{TS: "1000.000000", Text: "before"},
		Message{TS: "1000.250000", Text: "root <@U1>"},
	)
	match, err := c.SearchAt(context.Background(), conn, "C1", "1000.250000")
	if err != nil {
		t.Fatal(err)
	}
	if match.Text != "root alice" {
		t.Errorf("got %q", match.Text)
	}
	if w := b.HistoryWindows(); len(w) != 1 || !w[0].Exact() {
		t.Errorf("expected exact window, got %v", w)
	}
	if _, err := c.SearchAt(context.Background(), conn, "C1", "bogus"); err == nil {
		t.Error("expected error for invalid ts")
	}
}

func TestSearchToleranceWarning(t *testing.T) {
	t.Parallel()
	c, conn, _ := newCorrelationFixture(Message{TS: "1002.500000", Text: "late"})

	match, err := c.SearchText(context.Background(), conn, "C1", "late", Window{Start: 997, End: 1003})
	if err != nil {
		t.Fatal(err)
	}
	if len(match.Close) != 1 || match.Close[0] != BoundEnd {
		t.Errorf("close bounds: got %v", match.Close)
	}
	if got := testutil.ToFloat64(c.Metrics.ToleranceWarnings.WithLabelValues("remote", "end")); got != 1 {
		t.Errorf("tolerance warnings: got %v", got)
	}
}

func TestSearchHistoryError(t *testing.T) {
	t.Parallel()
	c, conn, b := newCorrelationFixture()
	b.HistoryErr = errors.New("ratelimited")

	_, err := c.SearchText(context.Background(), conn, "C1", "x", Window{Start: 1, End: 2})
	if err == nil || errors.Is(err, ErrCorrelationFailed) {
		t.Errorf("expected transport error, got %v", err)
	}
	if got := testutil.ToFloat64(c.Metrics.Correlations.WithLabelValues("remote", "error")); got != 1 {
		t.Errorf("error correlations: got %v", got)
	}
}
