// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package links finds hyperlinks and email addresses in assistant prose
// and repairs URLs broken by upstream line wrapping.
//
// Recognized forms:
//
//	[label](https://example.com)    markdown link, label is the title
//	https://example.com/path         explicit scheme (http, https, ftp)
//	www.example.com                  gets an https:// prefix
//	mailto:team@example.com          email
//	team@example.com                 bare email, URL becomes mailto:
//
// Everything here is pure and uses RE2 patterns, so run time is linear in
// the input length.
package links

import (
	"encoding/json"
	"regexp"
	"slices"
	"strings"
)

// Kind separates web links from email addresses.
type Kind int

const (
	// KindWeb is any non-email link.
	KindWeb Kind = iota

	// KindEmail is a mailto: link or a bare address.
	KindEmail
)

// String returns "web" or "email".
func (k Kind) String() string {
	if k == KindEmail {
		return "email"
	}
	return "web"
}

// MarshalJSON encodes the kind as its name.
func (k Kind) MarshalJSON() ([]byte, error) {
	return json.Marshal(k.String())
}

// Item is one link found in text.
type Item struct {
	URL          string `json:"url"`
	DisplayTitle string `json:"display_title"`
	Kind         Kind   `json:"kind"`
}

const urlChars = `[^\s<>\[\]"'` + "`" + `]`

var (
	markdownLink = regexp.MustCompile(`\[([^\]\n]{1,500})\]\(\s*(` + urlChars + `{1,1000}?)\s*\)`)
	schemeURL    = regexp.MustCompile(`(?i)\b(?:https?|ftp)://` + urlChars + `+`)
	wwwURL       = regexp.MustCompile(`(?i)\bwww\.` + urlChars + `+`)
	mailtoURL    = regexp.MustCompile(`(?i)\bmailto:[^\s<>()\[\]"'` + "`" + `]+`)
	bareEmail    = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
)

// match is a candidate span in the sanitized text.
type match struct {
	start, end int
	item       Item
}

// Extract returns the links in text, in order of first appearance.
// Repeated links are kept at each position.
//
// The text is sanitized first, so URLs split by line wrapping come out
// whole.
func Extract(text string) []Item {
	text = Sanitize(text)

	var candidates []match
	for _, loc := range markdownLink.FindAllStringSubmatchIndex(text, -1) {
		label := strings.TrimSpace(text[loc[2]:loc[3]])
		target := text[loc[4]:loc[5]]
		item, ok := fromTarget(target)
		if !ok {
			continue
		}
		item.DisplayTitle = label
		candidates = append(candidates, match{start: loc[0], end: loc[1], item: item})
	}
	for _, loc := range schemeURL.FindAllStringIndex(text, -1) {
		candidates = appendURL(candidates, text, loc, "")
	}
	for _, loc := range wwwURL.FindAllStringIndex(text, -1) {
		candidates = appendURL(candidates, text, loc, "https://")
	}
	for _, loc := range mailtoURL.FindAllStringIndex(text, -1) {
		raw := trimTrailing(text[loc[0]:loc[1]])
		addr := raw[len("mailto:"):]
		if addr == "" {
			continue
		}
		candidates = append(candidates, match{
			start: loc[0],
			end:   loc[0] + len(raw),
			item:  Item{URL: "mailto:" + addr, DisplayTitle: addr, Kind: KindEmail},
		})
	}
	for _, loc := range bareEmail.FindAllStringIndex(text, -1) {
		addr := strings.TrimRight(text[loc[0]:loc[1]], ".")
		candidates = append(candidates, match{
			start: loc[0],
			end:   loc[0] + len(addr),
			item:  Item{URL: "mailto:" + addr, DisplayTitle: addr, Kind: KindEmail},
		})
	}

	// Earliest start wins; on a tie the longer span wins. Spans nested in
	// an accepted span (the URL inside a markdown link, the host inside a
	// scheme URL) are dropped.
	slices.SortStableFunc(candidates, func(a, b match) int {
		if a.start != b.start {
			return a.start - b.start
		}
		return b.end - a.end
	})
	items := make([]Item, 0, len(candidates))
	covered := -1
	for _, c := range candidates {
		if c.start < covered {
			continue
		}
		items = append(items, c.item)
		covered = c.end
	}
	return items
}

func appendURL(candidates []match, text string, loc []int, prefix string) []match {
	raw := trimTrailing(text[loc[0]:loc[1]])
	if raw == "" || strings.HasSuffix(raw, "://") {
		return candidates
	}
	return append(candidates, match{
		start: loc[0],
		end:   loc[0] + len(raw),
		item:  Item{URL: prefix + raw, DisplayTitle: raw, Kind: KindWeb},
	})
}

// fromTarget turns a markdown link target into an Item.
func fromTarget(target string) (Item, bool) {
	target = strings.TrimSpace(target)
	if target == "" {
		return Item{}, false
	}
	lower := strings.ToLower(target)
	switch {
	case strings.HasPrefix(lower, "mailto:"):
		return Item{URL: target, Kind: KindEmail}, true
	case strings.HasPrefix(lower, "www."):
		return Item{URL: "https://" + target, Kind: KindWeb}, true
	case bareEmail.MatchString(target) && bareEmail.FindString(target) == target:
		return Item{URL: "mailto:" + target, Kind: KindEmail}, true
	default:
		return Item{URL: target, Kind: KindWeb}, true
	}
}

// trimTrailing removes sentence punctuation and unbalanced closing
// brackets or emphasis markers from the end of a URL.
func trimTrailing(u string) string {
	for u != "" {
		last := u[len(u)-1]
		switch last {
		case '.', ',', ';', ':', '!', '?', '*', '_', '>', '\'', '"':
			u = u[:len(u)-1]
		case ')':
			if strings.Count(u, "(") >= strings.Count(u, ")") {
				return u
			}
			u = u[:len(u)-1]
		default:
			return u
		}
	}
	return u
}
