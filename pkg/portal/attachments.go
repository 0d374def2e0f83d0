// Copyright 2024-2026 Aiku AI

package portal

// UpsertAttachment returns a copy of atts in which the attachment carrying
// att's fallback tag is replaced by att. When no attachment carries the tag,
// att is added at the front (prepend) or the back. At most one attachment per
// tag exists afterwards as long as that held before.
func UpsertAttachment(atts []Attachment, att Attachment, prepend bool) []Attachment {
	out := make([]Attachment, 0, len(atts)+1)
	found := false
	for _, existing := range atts {
		if !found && existing.Fallback == att.Fallback {
			out = append(out, att)
			found = true
			continue
		}
		out = append(out, existing)
	}
	if found {
		return out
	}
	if prepend {
		return append([]Attachment{att}, out...)
	}
	return append(out, att)
}

// editMarker is the attachment flagging a mirrored message as edited.
func editMarker(editTS string) Attachment {
	return Attachment{
		Fallback: FallbackEdited,
		Footer:   "(edited)",
		TS:       editTS,
	}
}
