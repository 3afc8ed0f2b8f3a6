// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package textstruct

import "encoding/json"

// Shape names the variant of a Content value.
type Shape int

const (
	// ShapeSimple is plain paragraphs.
	ShapeSimple Shape = iota

	// ShapeNumbered is titled, numbered sections.
	ShapeNumbered

	// ShapeBulleted is bullet items, optionally grouped under titles.
	ShapeBulleted
)

// String returns "simple", "numbered" or "bulleted". These are also the
// renderer content types for prose.
func (s Shape) String() string {
	switch s {
	case ShapeNumbered:
		return "numbered"
	case ShapeBulleted:
		return "bulleted"
	default:
		return "simple"
	}
}

// Content is the result of classification: exactly one of Simple,
// Numbered or Bulleted.
type Content interface {
	Shape() Shape
	sealed()
}

// Simple is unstructured text split into paragraphs.
type Simple struct {
	Text       string   `json:"text"`
	Paragraphs []string `json:"paragraphs"`
}

// Numbered is text organised as "1. **Title**: content" sections.
type Numbered struct {
	Intro    string            `json:"intro,omitempty"`
	Sections []NumberedSection `json:"sections"`
	Outro    string            `json:"outro,omitempty"`
}

// NumberedSection is one numbered entry. Index keeps the number as written.
//
// Content is the run that starts on the numbered line and ends at the first
// blank line. Aside holds text that follows the blank line but comes before
// the next numbered line; it is not part of the section's content.
type NumberedSection struct {
	Index   string `json:"index"`
	Title   string `json:"title"`
	Content string `json:"content"`
	Aside   string `json:"aside,omitempty"`
}

// Bulleted is bullet items grouped into sections. A section without a
// title holds bullets that were not under any title line.
type Bulleted struct {
	Intro    string          `json:"intro,omitempty"`
	Sections []BulletSection `json:"sections"`
}

// BulletSection is a title with its items.
type BulletSection struct {
	Title string   `json:"title,omitempty"`
	Items []string `json:"items"`
}

// Shape implements Content.
func (Simple) Shape() Shape { return ShapeSimple }

// Shape implements Content.
func (Numbered) Shape() Shape { return ShapeNumbered }

// Shape implements Content.
func (Bulleted) Shape() Shape { return ShapeBulleted }

func (Simple) sealed()   {}
func (Numbered) sealed() {}
func (Bulleted) sealed() {}

// MarshalJSON tags the value with its shape.
func (c Simple) MarshalJSON() ([]byte, error) {
	type alias Simple
	return json.Marshal(struct {
		Shape string `json:"shape"`
		alias
	}{ShapeSimple.String(), alias(c)})
}

// MarshalJSON tags the value with its shape.
func (c Numbered) MarshalJSON() ([]byte, error) {
	type alias Numbered
	return json.Marshal(struct {
		Shape string `json:"shape"`
		alias
	}{ShapeNumbered.String(), alias(c)})
}

// MarshalJSON tags the value with its shape.
func (c Bulleted) MarshalJSON() ([]byte, error) {
	type alias Bulleted
	return json.Marshal(struct {
		Shape string `json:"shape"`
		alias
	}{ShapeBulleted.String(), alias(c)})
}

// Intro returns the text that precedes the first section, so callers can
// render it ahead of the structured block. Simple content has no sections
// and returns "".
func Intro(c Content) string {
	switch v := c.(type) {
	case Numbered:
		return v.Intro
	case Bulleted:
		return v.Intro
	default:
		return ""
	}
}
