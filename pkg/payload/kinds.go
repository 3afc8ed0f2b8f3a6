// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package payload

import (
	"strings"
	"unicode"
)

// Kind is the closed set of interactive components the presentation layer
// knows how to draw. Anything else is KindUnknown and keeps its raw name in
// the Descriptor.
type Kind int

const (
	// KindUnknown is a component name with no known widget.
	KindUnknown Kind = iota

	// KindOpeningHours is a weekly opening-hours table.
	KindOpeningHours

	// KindContactCard is a person or office contact card.
	KindContactCard

	// KindLinkButtons is a row of labelled link buttons.
	KindLinkButtons

	// KindQuickReplies is a set of suggested follow-up messages.
	KindQuickReplies

	// KindImageGallery is a list of images with captions.
	KindImageGallery

	// KindMap is a location with an address and coordinates.
	KindMap

	// KindTable is a generic header/rows table.
	KindTable
)

// kindInfo describes one known kind.
type kindInfo struct {
	name        string
	contentType string
	aliases     []string
}

var kinds = map[Kind]kindInfo{
	KindUnknown:      {name: "Unknown", contentType: "unknown"},
	KindOpeningHours: {name: "OpeningHoursTable", contentType: "opening_hours", aliases: []string{"openinghours", "hours", "businesshours"}},
	KindContactCard:  {name: "ContactCard", contentType: "contact_card", aliases: []string{"contact", "contactinfo"}},
	KindLinkButtons:  {name: "LinkButtons", contentType: "link_buttons", aliases: []string{"buttons", "linklist", "links"}},
	KindQuickReplies: {name: "QuickReplies", contentType: "quick_replies", aliases: []string{"suggestions", "quickreply"}},
	KindImageGallery: {name: "ImageGallery", contentType: "image_gallery", aliases: []string{"gallery", "images"}},
	KindMap:          {name: "Map", contentType: "map", aliases: []string{"location", "locationmap"}},
	KindTable:        {name: "Table", contentType: "table", aliases: []string{"datatable"}},
}

// byName maps normalized names and aliases to kinds.
var byName = func() map[string]Kind {
	m := make(map[string]Kind)
	for k, info := range kinds {
		if k == KindUnknown {
			continue
		}
		m[normalizeName(info.name)] = k
		m[normalizeName(info.contentType)] = k
		for _, a := range info.aliases {
			m[a] = k
		}
	}
	return m
}()

// ParseKind maps a backend component name onto a Kind. Matching ignores
// case, spaces, dashes and underscores, so "OpeningHoursTable",
// "opening_hours" and "opening-hours-table" are the same kind.
func ParseKind(name string) Kind {
	if k, ok := byName[normalizeName(name)]; ok {
		return k
	}
	return KindUnknown
}

// String returns the canonical component name.
func (k Kind) String() string {
	if info, ok := kinds[k]; ok {
		return info.name
	}
	return kinds[KindUnknown].name
}

// ContentType returns the renderer registry key for the kind.
func (k Kind) ContentType() string {
	if info, ok := kinds[k]; ok {
		return info.contentType
	}
	return kinds[KindUnknown].contentType
}

// Kinds returns every known kind except KindUnknown, in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindOpeningHours,
		KindContactCard,
		KindLinkButtons,
		KindQuickReplies,
		KindImageGallery,
		KindMap,
		KindTable,
	}
}

func normalizeName(name string) string {
	var b strings.Builder
	for _, r := range name {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}
