// Copyright 2024-2026 Aiku AI

package portal

import (
	"slices"
	"testing"
)

func TestUpsertAttachment(t *testing.T) {
	t.Parallel()
	other := Attachment{Fallback: "unfurl", Text: "link preview"}
	oldSummary := Attachment{Fallback: FallbackReactions, Text: ":+1: 1"}
	newSummary := Attachment{Fallback: FallbackReactions, Text: ":+1: 2"}
	marker := editMarker("1010.000000")

	tests := []struct {
		name    string
		atts    []Attachment
		att     Attachment
		prepend bool
		want    []Attachment
	}{
		{"append to empty", nil, newSummary, false, []Attachment{newSummary}},
		{"append after others", []Attachment{other}, newSummary, false, []Attachment{other, newSummary}},
		{"replace in place", []Attachment{oldSummary, other}, newSummary, false, []Attachment{newSummary, other}},
		{"prepend marker", []Attachment{other}, marker, true, []Attachment{marker, other}},
		{"replace marker in place", []Attachment{other, editMarker("1000.000000")}, marker, true, []Attachment{other, marker}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			before := slices.Clone(tt.atts)
			got := UpsertAttachment(tt.atts, tt.att, tt.prepend)
			if !slices.Equal(got, tt.want) {
				t.Errorf("got %+v, want %+v", got, tt.want)
			}
			if !slices.Equal(tt.atts, before) {
				t.Errorf("input modified: %+v", tt.atts)
			}
		})
	}
}

func TestUpsertAttachmentLength(t *testing.T) {
	t.Parallel()
	atts := []Attachment{{Fallback: "a"}, {Fallback: FallbackEdited}}
	if got := UpsertAttachment(atts, editMarker("1"), true); len(got) != len(atts) {
		t.Errorf("replace changed length: %d", len(got))
	}
	if got := UpsertAttachment(atts, Attachment{Fallback: FallbackReactions}, false); len(got) != len(atts)+1 {
		t.Errorf("append length: %d", len(got))
	}
}
