// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package textstruct recognizes the shape of assistant prose: numbered
// sections, bulleted lists, or plain paragraphs.
//
// Classification is heuristic. It looks at line starts only and never
// parses markdown beyond that, so it can be wrong on unusual input; it is,
// however, total and deterministic. Priority is fixed:
//
//	Numbered > Bulleted > Simple
//
// All patterns are RE2 (package regexp), so matching time is linear in the
// input length and live re-classification of a growing message is safe.
package textstruct

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// DefaultMinLength is the shortest text, in runes, that may classify as
// anything other than Simple. It keeps a barely-started stream from
// flickering between shapes.
const DefaultMinLength = 10

var (
	// 1. **Title**: content   1) __Title__ - content   1. *Title* content
	numberedEmphasis = regexp.MustCompile(`^\s*(\d{1,3})[.)]\s+(?:\*\*([^*\n]+)\*\*|__([^_\n]+)__|\*([^*\n]+)\*)\s*(?:[:\-–—]\s*)?(.*)$`)

	// 1. Title: content
	numberedColon = regexp.MustCompile(`^\s*(\d{1,3})[.)]\s+([^:*\n]{1,80}?):(?:\s+(.*))?$`)

	// 1. anything
	numberedPlain = regexp.MustCompile(`^\s*(\d{1,3})[.)]\s+(.*)$`)

	// - item   * item   • item
	bulletLine = regexp.MustCompile(`^\s*[-*•]\s+(.*)$`)

	// **Title**   __Title:__   **Title**:
	emphasisTitle = regexp.MustCompile(`^\s*(?:\*\*([^*\n]+)\*\*|__([^_\n]+)__)\s*:?\s*$`)

	blankRun = regexp.MustCompile(`\n[ \t]*\n`)
)

// Classifier classifies text. The zero value uses DefaultMinLength.
type Classifier struct {
	// MinLength overrides DefaultMinLength when positive.
	MinLength int
}

// Classify uses a default Classifier.
func Classify(text string) Content {
	return Classifier{}.Classify(text)
}

// Classify returns exactly one Content variant for text.
func (c Classifier) Classify(text string) Content {
	normalized := strings.ReplaceAll(text, "\r\n", "\n")
	trimmed := strings.TrimSpace(normalized)

	minLength := c.MinLength
	if minLength <= 0 {
		minLength = DefaultMinLength
	}
	if utf8.RuneCountInString(trimmed) < minLength {
		return simple(trimmed)
	}

	lines := strings.Split(trimmed, "\n")
	if n, ok := classifyNumbered(lines); ok {
		return n
	}
	if b, ok := classifyBulleted(lines); ok {
		return b
	}
	return simple(trimmed)
}

// =============================================================================
// Numbered
// =============================================================================

type numberedMatch struct {
	index, title, rest string
}

// matchNumbered matches one line, preferring the emphasis-wrapped title
// over the colon-terminated one. A numbered line with no title still
// starts a section but does not count towards selecting Numbered.
func matchNumbered(line string) (numberedMatch, bool) {
	if m := numberedEmphasis.FindStringSubmatch(line); m != nil {
		title := firstNonEmpty(m[2], m[3], m[4])
		return numberedMatch{index: m[1], title: cleanTitle(title), rest: m[5]}, true
	}
	if m := numberedColon.FindStringSubmatch(line); m != nil {
		return numberedMatch{index: m[1], title: cleanTitle(m[2]), rest: m[3]}, true
	}
	if m := numberedPlain.FindStringSubmatch(line); m != nil {
		return numberedMatch{index: m[1], rest: m[2]}, true
	}
	return numberedMatch{}, false
}

func classifyNumbered(lines []string) (Numbered, bool) {
	var (
		intro    []string
		run      []string // content lines of the current section
		stray    []string // lines after a blank line, outside any run
		inRun    bool
		titled   int
		sections []NumberedSection
	)

	closeRun := func() {
		if len(sections) == 0 {
			return
		}
		last := &sections[len(sections)-1]
		last.Content = strings.TrimSpace(strings.Join(run, "\n"))
		run = nil
	}
	// attachStray keeps text found between a closed run and the next
	// numbered line as the previous section's aside.
	attachStray := func() {
		if len(sections) == 0 || len(stray) == 0 {
			return
		}
		sections[len(sections)-1].Aside = strings.TrimSpace(strings.Join(stray, "\n"))
		stray = nil
	}

	for _, line := range lines {
		if m, ok := matchNumbered(line); ok {
			if inRun {
				closeRun()
			}
			attachStray()
			sections = append(sections, NumberedSection{Index: m.index, Title: m.title})
			if m.title != "" {
				titled++
			}
			if rest := strings.TrimSpace(m.rest); rest != "" {
				run = append(run, rest)
			}
			inRun = true
			continue
		}

		if strings.TrimSpace(line) == "" {
			if inRun {
				closeRun()
				inRun = false
			}
			if len(sections) == 0 {
				intro = append(intro, line)
			} else {
				stray = append(stray, line)
			}
			continue
		}

		switch {
		case len(sections) == 0:
			intro = append(intro, line)
		case inRun:
			run = append(run, strings.TrimSpace(line))
		default:
			stray = append(stray, line)
		}
	}
	if inRun {
		closeRun()
	}

	if titled == 0 {
		return Numbered{}, false
	}
	return Numbered{
		Intro:    strings.TrimSpace(strings.Join(intro, "\n")),
		Sections: sections,
		Outro:    strings.TrimSpace(strings.Join(stray, "\n")),
	}, true
}

// =============================================================================
// Bulleted
// =============================================================================

type lineKind int

const (
	lineBlank lineKind = iota
	linePlain
	lineBullet
	lineTitle
)

func kindOf(line string) (lineKind, string) {
	if strings.TrimSpace(line) == "" {
		return lineBlank, ""
	}
	if m := bulletLine.FindStringSubmatch(line); m != nil {
		return lineBullet, strings.TrimSpace(m[1])
	}
	if m := emphasisTitle.FindStringSubmatch(line); m != nil {
		return lineTitle, cleanTitle(firstNonEmpty(m[1], m[2]))
	}
	trimmed := strings.TrimSpace(line)
	if strings.HasSuffix(trimmed, ":") {
		return lineTitle, cleanTitle(trimmed)
	}
	return linePlain, trimmed
}

// classifyBulleted accepts two layouts after an optional intro:
//
//   - every non-empty line is a bullet (one untitled section)
//   - title lines each followed by one or more item lines
//
// In the second layout items may be plain lines, but only under a title
// that has no bullets yet, and the text must have two or more sections or
// at least one real bullet. This keeps "The answer is:\n42" as prose.
func classifyBulleted(lines []string) (Bulleted, bool) {
	first := -1
	for i, line := range lines {
		if k, _ := kindOf(line); k == lineBullet || k == lineTitle {
			first = i
			break
		}
	}
	if first < 0 {
		return Bulleted{}, false
	}

	var (
		sections []BulletSection
		bullets  int
		titled   int
		// plainItems marks sections whose items came from plain lines.
		plainItems []bool
	)
	for _, line := range lines[first:] {
		kind, value := kindOf(line)
		switch kind {
		case lineBlank:
			continue
		case lineTitle:
			sections = append(sections, BulletSection{Title: value})
			plainItems = append(plainItems, false)
			titled++
		case lineBullet:
			if len(sections) > 0 && plainItems[len(sections)-1] {
				// Bullets after plain items under the same title mix
				// two layouts.
				return Bulleted{}, false
			}
			if len(sections) == 0 {
				sections = append(sections, BulletSection{})
				plainItems = append(plainItems, false)
			}
			last := &sections[len(sections)-1]
			last.Items = append(last.Items, value)
			bullets++
		case linePlain:
			if len(sections) == 0 {
				return Bulleted{}, false
			}
			last := &sections[len(sections)-1]
			if last.Title == "" || (len(last.Items) > 0 && !plainItems[len(sections)-1]) {
				return Bulleted{}, false
			}
			last.Items = append(last.Items, value)
			plainItems[len(sections)-1] = true
		}
	}

	for _, s := range sections {
		if len(s.Items) == 0 {
			return Bulleted{}, false
		}
	}
	switch {
	case len(sections) == 0:
		return Bulleted{}, false
	case titled == 0 && len(sections) != 1:
		return Bulleted{}, false
	case titled > 0 && len(sections) < 2 && bullets == 0:
		return Bulleted{}, false
	}

	return Bulleted{
		Intro:    strings.TrimSpace(strings.Join(lines[:first], "\n")),
		Sections: sections,
	}, true
}

// =============================================================================
// Simple
// =============================================================================

// Paragraphs splits text on blank lines, whatever its shape.
func Paragraphs(text string) []string {
	return simple(strings.TrimSpace(text)).Paragraphs
}

func simple(trimmed string) Simple {
	out := Simple{Text: trimmed, Paragraphs: []string{}}
	if trimmed == "" {
		return out
	}
	for _, p := range blankRun.Split(trimmed, -1) {
		if p = strings.TrimSpace(p); p != "" {
			out.Paragraphs = append(out.Paragraphs, p)
		}
	}
	return out
}

// =============================================================================
// Helpers
// =============================================================================

// cleanTitle strips wrapping emphasis markers and trailing colons.
func cleanTitle(title string) string {
	t := strings.TrimSpace(title)
	for {
		before := t
		t = strings.TrimSuffix(t, ":")
		for _, marker := range []string{"**", "__", "*", "_"} {
			if len(t) > 2*len(marker) && strings.HasPrefix(t, marker) && strings.HasSuffix(t, marker) {
				t = t[len(marker) : len(t)-len(marker)]
			}
		}
		t = strings.TrimSpace(t)
		if t == before {
			return t
		}
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
