// Copyright 2024-2026 Aiku AI

// Package mentionfmt finds and rewrites inline markup tokens in chat text:
// user mentions (<@U123>), channel links (<#C123|general>), special mentions
// (<!here>) and links (<https://example.com|label>).
package mentionfmt

import (
	"regexp"
	"strings"
)

var (
	userMentionRe = regexp.MustCompile(`<@([A-Z0-9]+)(?:\|[^<>]*)?>`)
	tokenRe       = regexp.MustCompile(`<([@#!]?)([^<>|]*)(?:\|([^<>]*))?>`)
)

// Mentions returns the distinct user ids mentioned in text, in order of first
// appearance.
func Mentions(text string) []string {
	matches := userMentionRe.FindAllStringSubmatch(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	ids := make([]string, 0, len(matches))
	for _, m := range matches {
		if _, ok := seen[m[1]]; ok {
			continue
		}
		seen[m[1]] = struct{}{}
		ids = append(ids, m[1])
	}
	return ids
}

// ReplaceMentions replaces every mention token of an id present in names
// with the mapped name. Tokens of other ids are left untouched.
func ReplaceMentions(text string, names map[string]string) string {
	if len(names) == 0 {
		return text
	}
	return userMentionRe.ReplaceAllStringFunc(text, func(token string) string {
		id := userMentionRe.FindStringSubmatch(token)[1]
		if name, ok := names[id]; ok {
			return name
		}
		return token
	})
}

// Strip removes all remaining markup tokens, keeping the most readable part
// of each: the label when one is present, otherwise the bare id or url.
// The result contains no tokens, so Strip is idempotent.
func Strip(text string) string {
	for {
		next := tokenRe.ReplaceAllStringFunc(text, stripToken)
		if next == text {
			return text
		}
		text = next
	}
}

func stripToken(token string) string {
	m := tokenRe.FindStringSubmatch(token)
	sigil, body, label := m[1], m[2], m[3]
	switch sigil {
	case "@":
		if label != "" {
			return label
		}
		return body
	case "#":
		if label != "" {
			return "#" + label
		}
		return "#" + body
	case "!":
		if label != "" {
			return label
		}
		if i := strings.IndexByte(body, '^'); i >= 0 {
			body = body[:i]
		}
		return "@" + body
	default:
		if label != "" {
			return label
		}
		return body
	}
}
