// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package links

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	// [label](https://exa mple.com/pa-\nge)
	markdownTarget = regexp.MustCompile(`(\[[^\]\n]{1,500}\]\()([^()]{1,1000})(\))`)

	// https : // example.com   https://\n  example.com
	spacedScheme = regexp.MustCompile(`(?i)\b(https?|ftp)[ \t]*:[ \t]*/[ \t]*/[ \t]*(?:\n[ \t]*)?([A-Za-z0-9])`)

	// https://example.com/very-long-\n  path
	hyphenWrap = regexp.MustCompile(`(?i)(\b(?:(?:https?|ftp)://|www\.)[^\s<>"'` + "`" + `]*-)[ \t]*\n[ \t]*([A-Za-z0-9][A-Za-z0-9_\-./?=&%#~+]*)`)

	// https://example.com/docs/\n  guide.html
	slashWrap = regexp.MustCompile(`(?i)(\b(?:(?:https?|ftp)://|www\.)[^\s<>"'` + "`" + `]*/)[ \t]*\n[ \t]*([A-Za-z0-9_~%+\-]*[/?=&#_.\-][A-Za-z0-9_~%+\-][A-Za-z0-9_\-./?=&%#~+]*)`)

	linkLike = regexp.MustCompile(`(?i)^(?:(?:https?|ftp):|www\.|mailto:)`)
)

// Sanitize repairs line-wrap damage inside URLs:
//
//   - whitespace inside a markdown link target is removed
//   - whitespace around "://" is removed
//   - a URL line ending in "-" or "/" is joined with the URL fragment on
//     the next line
//
// Text outside URL spans is never changed, and Sanitize is idempotent:
// it repeats the repairs until nothing changes.
func Sanitize(text string) string {
	for {
		next := sanitizeOnce(text)
		if next == text {
			return text
		}
		text = next
	}
}

func sanitizeOnce(text string) string {
	text = markdownTarget.ReplaceAllStringFunc(text, func(m string) string {
		parts := markdownTarget.FindStringSubmatch(m)
		target := strings.TrimSpace(parts[2])
		if !linkLike.MatchString(target) {
			return m
		}
		return parts[1] + removeSpace(target) + parts[3]
	})
	text = spacedScheme.ReplaceAllString(text, "${1}://${2}")
	text = hyphenWrap.ReplaceAllString(text, "${1}${2}")
	text = slashWrap.ReplaceAllString(text, "${1}${2}")
	return text
}

func removeSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
