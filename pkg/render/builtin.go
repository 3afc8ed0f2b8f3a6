// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/AleutianAI/AleutianChat/pkg/links"
	"github.com/AleutianAI/AleutianChat/pkg/textstruct"
)

// ErrUnsupportedData is returned by a built-in renderer given data of a
// type it does not handle.
var ErrUnsupportedData = errors.New("unsupported data")

// Built-in renderer names, as used in tenant override files.
const (
	NamePlain        = "plain"
	NameParagraphs   = "paragraphs"
	NameNumberedList = "numbered_list"
	NameBulletList   = "bullet_list"
	NameLinkList     = "link_list"
	NameTable        = "table"
	NameKeyValueCard = "key_value_card"
	NamePlaceholder  = "placeholder"
	NameRawData      = "raw_data"
)

// Builtin returns the built-in renderer with the given name.
func Builtin(name string) (Renderer, bool) {
	switch normalize(name) {
	case NamePlain:
		return Plain(), true
	case NameParagraphs:
		return Paragraphs(), true
	case NameNumberedList:
		return NumberedList(), true
	case NameBulletList:
		return BulletList(), true
	case NameLinkList:
		return LinkList(), true
	case NameTable:
		return Table(), true
	case NameKeyValueCard:
		return KeyValueCard(), true
	case NamePlaceholder:
		return Placeholder(), true
	case NameRawData:
		return RawData(), true
	}
	return nil, false
}

// BuiltinNames lists the built-in renderer names.
func BuiltinNames() []string {
	return []string{
		NamePlain, NameParagraphs, NameNumberedList, NameBulletList,
		NameLinkList, NameTable, NameKeyValueCard, NamePlaceholder, NameRawData,
	}
}

// Plain shows the element's text as one block.
func Plain() Renderer {
	return Func(NamePlain, func(_ context.Context, el Element) (View, error) {
		text, ok := textOf(el.Data)
		if !ok {
			return View{}, fmt.Errorf("%s: %w %T", NamePlain, ErrUnsupportedData, el.Data)
		}
		return View{Text: text}, nil
	})
}

// Paragraphs shows one item per paragraph.
func Paragraphs() Renderer {
	return Func(NameParagraphs, func(_ context.Context, el Element) (View, error) {
		var paras []string
		switch d := el.Data.(type) {
		case textstruct.Simple:
			paras = d.Paragraphs
		case *textstruct.Simple:
			paras = d.Paragraphs
		case string:
			paras = textstruct.Paragraphs(d)
		default:
			text, ok := textOf(el.Data)
			if !ok {
				return View{}, fmt.Errorf("%s: %w %T", NameParagraphs, ErrUnsupportedData, el.Data)
			}
			paras = []string{text}
		}

		view := View{Items: make([]ViewItem, 0, len(paras))}
		for _, p := range paras {
			view.Items = append(view.Items, ViewItem{Text: p})
		}
		return view, nil
	})
}

// NumberedList shows numbered sections with their content as children.
func NumberedList() Renderer {
	return Func(NameNumberedList, func(_ context.Context, el Element) (View, error) {
		var n textstruct.Numbered
		switch d := el.Data.(type) {
		case textstruct.Numbered:
			n = d
		case *textstruct.Numbered:
			n = *d
		default:
			return View{}, fmt.Errorf("%s: %w %T", NameNumberedList, ErrUnsupportedData, el.Data)
		}

		view := View{Title: n.Intro, Footer: n.Outro, Items: make([]ViewItem, 0, len(n.Sections))}
		for _, s := range n.Sections {
			item := ViewItem{Label: s.Index + ".", Text: s.Title}
			if s.Content != "" {
				item.Children = []string{s.Content}
			}
			if s.Aside != "" {
				item.Children = append(item.Children, s.Aside)
			}
			view.Items = append(view.Items, item)
		}
		return view, nil
	})
}

// BulletList shows titled sections as items with children, and the
// bullets of untitled sections as items of their own.
func BulletList() Renderer {
	return Func(NameBulletList, func(_ context.Context, el Element) (View, error) {
		var b textstruct.Bulleted
		switch d := el.Data.(type) {
		case textstruct.Bulleted:
			b = d
		case *textstruct.Bulleted:
			b = *d
		case []string:
			b = textstruct.Bulleted{Sections: []textstruct.BulletSection{{Items: d}}}
		case map[string]any:
			items, ok := stringList(d, "replies", "options", "items", "suggestions")
			if !ok {
				return View{}, fmt.Errorf("%s: %w: no items in data", NameBulletList, ErrUnsupportedData)
			}
			b = textstruct.Bulleted{
				Intro:    firstString(d, "title", "prompt", "text"),
				Sections: []textstruct.BulletSection{{Items: items}},
			}
		default:
			return View{}, fmt.Errorf("%s: %w %T", NameBulletList, ErrUnsupportedData, el.Data)
		}

		view := View{Title: b.Intro}
		for _, s := range b.Sections {
			if s.Title == "" {
				for _, it := range s.Items {
					view.Items = append(view.Items, ViewItem{Label: "•", Text: it})
				}
				continue
			}
			view.Items = append(view.Items, ViewItem{Text: s.Title, Children: slices.Clone(s.Items)})
		}
		return view, nil
	})
}

// LinkList shows extracted links.
func LinkList() Renderer {
	return Func(NameLinkList, func(_ context.Context, el Element) (View, error) {
		var items []links.Item
		switch d := el.Data.(type) {
		case []links.Item:
			items = d
		case links.Item:
			items = []links.Item{d}
		case string:
			items = links.Extract(d)
		case map[string]any:
			return linkButtons(d)
		default:
			return View{}, fmt.Errorf("%s: %w %T", NameLinkList, ErrUnsupportedData, el.Data)
		}

		view := View{Items: make([]ViewItem, 0, len(items))}
		for _, it := range items {
			view.Items = append(view.Items, ViewItem{Label: it.Kind.String(), Text: it.DisplayTitle, URL: it.URL})
		}
		return view, nil
	})
}

// =============================================================================
// Structured data renderers
// =============================================================================

// linkButtons reads button, link or image lists from component data:
// {"buttons": [{"label": ..., "url": ...}]}, {"images": [{"src": ...,
// "caption": ...}]} and similar.
func linkButtons(data map[string]any) (View, error) {
	view := View{Title: firstString(data, "title", "text")}
	for _, key := range []string{"buttons", "links", "images", "items"} {
		list, ok := data[key].([]any)
		if !ok {
			continue
		}
		for _, entry := range list {
			switch e := entry.(type) {
			case string:
				view.Items = append(view.Items, ViewItem{Text: e, URL: e})
			case map[string]any:
				url := firstString(e, "url", "href", "src", "link")
				label := firstString(e, "label", "title", "text", "caption", "alt")
				if label == "" {
					label = url
				}
				view.Items = append(view.Items, ViewItem{Text: label, URL: url})
			}
		}
		if len(view.Items) > 0 {
			return view, nil
		}
	}
	return View{}, fmt.Errorf("%s: %w: no links in data", NameLinkList, ErrUnsupportedData)
}

var weekdays = []string{"monday", "tuesday", "wednesday", "thursday", "friday", "saturday", "sunday"}

// Table renders tabular component data.
//
// # Description
//
// Accepts, in order of preference:
//
//   - {"header": [...], "rows": [[...], ...]} ("columns" is accepted for
//     "header")
//   - opening hours as a day-keyed object, either at the top level or under
//     "hours" / "opening_hours", e.g. {"mon": "9-17", "tue": "9-17"}
//   - opening hours as a list of {"day": ..., "hours": ...} objects, or
//     {"day", "open", "close"}
//
// Day keys are matched by their first three letters and shown Monday first.
//
// # Outputs
//
//   - View: Header and Rows set; Title from "title" or "name" when present.
//   - error: ErrUnsupportedData if no tabular shape is found.
//
// # Limitations
//
//   - Cells are stringified; nested objects are shown as compact JSON.
func Table() Renderer {
	return Func(NameTable, func(_ context.Context, el Element) (View, error) {
		data, ok := el.Data.(map[string]any)
		if !ok {
			return View{}, fmt.Errorf("%s: %w %T", NameTable, ErrUnsupportedData, el.Data)
		}
		view := View{Title: firstString(data, "title", "name")}

		if header, rows, ok := explicitTable(data); ok {
			view.Header, view.Rows = header, rows
			return view, nil
		}
		for _, key := range []string{"hours", "opening_hours", "days"} {
			if rows, ok := hoursRows(data[key]); ok {
				view.Header, view.Rows = []string{"Day", "Hours"}, rows
				return view, nil
			}
		}
		if rows, ok := hoursRows(data); ok {
			view.Header, view.Rows = []string{"Day", "Hours"}, rows
			return view, nil
		}
		return View{}, fmt.Errorf("%s: %w: no rows in data", NameTable, ErrUnsupportedData)
	})
}

func explicitTable(data map[string]any) ([]string, [][]string, bool) {
	rawRows, ok := data["rows"].([]any)
	if !ok {
		return nil, nil, false
	}
	var header []string
	for _, key := range []string{"header", "columns"} {
		if cols, ok := data[key].([]any); ok {
			for _, c := range cols {
				header = append(header, formatValue(c))
			}
			break
		}
	}
	rows := make([][]string, 0, len(rawRows))
	for _, r := range rawRows {
		switch row := r.(type) {
		case []any:
			cells := make([]string, len(row))
			for i, c := range row {
				cells[i] = formatValue(c)
			}
			rows = append(rows, cells)
		case map[string]any:
			if header == nil {
				header = slices.Sorted(maps.Keys(row))
			}
			cells := make([]string, len(header))
			for i, h := range header {
				cells[i] = formatValue(row[h])
			}
			rows = append(rows, cells)
		default:
			rows = append(rows, []string{formatValue(row)})
		}
	}
	return header, rows, true
}

func hoursRows(v any) ([][]string, bool) {
	switch d := v.(type) {
	case map[string]any:
		var rows [][]string
		for _, day := range weekdays {
			for key, val := range d {
				if dayOf(key) == day {
					rows = append(rows, []string{titleCase(day), formatValue(val)})
					break
				}
			}
		}
		return rows, len(rows) > 0
	case []any:
		var rows [][]string
		for _, entry := range d {
			m, ok := entry.(map[string]any)
			if !ok {
				return nil, false
			}
			day := firstString(m, "day", "days", "name")
			if day == "" {
				return nil, false
			}
			hours := firstString(m, "hours", "time", "value")
			if hours == "" {
				opens, closes := firstString(m, "open", "opens"), firstString(m, "close", "closes")
				switch {
				case opens != "" && closes != "":
					hours = opens + "–" + closes
				case m["closed"] == true:
					hours = "Closed"
				}
			}
			if name := dayOf(day); name != "" {
				day = titleCase(name)
			}
			rows = append(rows, []string{day, hours})
		}
		return rows, len(rows) > 0
	}
	return nil, false
}

func dayOf(key string) string {
	k := strings.ToLower(strings.TrimSpace(key))
	if len(k) < 3 {
		return ""
	}
	for _, day := range weekdays {
		if strings.HasPrefix(day, k) {
			return day
		}
	}
	return ""
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}

// preferredFields are shown first on a card, in this order.
var preferredFields = []string{"name", "title", "role", "organization", "phone", "email", "address", "website", "url"}

// KeyValueCard shows component data as a card of fields. "name" or "title"
// becomes the card title; the preferred contact fields come first, then the
// rest sorted by key.
func KeyValueCard() Renderer {
	return Func(NameKeyValueCard, func(_ context.Context, el Element) (View, error) {
		data, ok := el.Data.(map[string]any)
		if !ok {
			return View{}, fmt.Errorf("%s: %w %T", NameKeyValueCard, ErrUnsupportedData, el.Data)
		}
		view := View{Title: firstString(data, "name", "title")}

		seen := map[string]bool{}
		for _, key := range preferredFields {
			if v, ok := data[key]; ok {
				seen[key] = true
				view.Fields = append(view.Fields, Field{Key: key, Value: formatValue(v)})
			}
		}
		for _, key := range slices.Sorted(maps.Keys(data)) {
			if !seen[key] {
				view.Fields = append(view.Fields, Field{Key: key, Value: formatValue(data[key])})
			}
		}
		return view, nil
	})
}

// Placeholder is shown for components nothing can render.
func Placeholder() Renderer {
	return Func(NamePlaceholder, func(_ context.Context, el Element) (View, error) {
		name := el.Name
		if name == "" {
			name = el.ContentType
		}
		if name == "" {
			name = ContentTypeUnknown
		}
		return View{
			Title: "Unsupported content",
			Text:  fmt.Sprintf("This reply contains a %q component that cannot be shown here.", name),
		}, nil
	})
}

// RawData shows the data as indented JSON, or as-is for text. It accepts
// any value and is the generic renderer of last resort.
func RawData() Renderer {
	return Func(NameRawData, func(_ context.Context, el Element) (View, error) {
		if text, ok := el.Data.(string); ok {
			return View{Text: text}, nil
		}
		if el.Data == nil {
			return View{}, nil
		}
		out, err := json.MarshalIndent(el.Data, "", "  ")
		if err != nil {
			return View{Text: fmt.Sprintf("%v", el.Data)}, nil
		}
		return View{Text: string(out)}, nil
	})
}

// =============================================================================
// Helpers
// =============================================================================

func textOf(data any) (string, bool) {
	switch d := data.(type) {
	case string:
		return d, true
	case textstruct.Simple:
		return d.Text, true
	case *textstruct.Simple:
		return d.Text, true
	case fmt.Stringer:
		return d.String(), true
	}
	return "", false
}

func stringList(m map[string]any, keys ...string) ([]string, bool) {
	for _, k := range keys {
		list, ok := m[k].([]any)
		if !ok || len(list) == 0 {
			continue
		}
		out := make([]string, 0, len(list))
		for _, v := range list {
			if obj, ok := v.(map[string]any); ok {
				out = append(out, firstString(obj, "label", "title", "text", "value"))
				continue
			}
			out = append(out, formatValue(v))
		}
		return out, true
	}
	return nil, false
}

func firstString(m map[string]any, keys ...string) string {
	for _, k := range keys {
		if v, ok := m[k]; ok && v != nil {
			if s := formatValue(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case json.Number:
		return x.String()
	case bool, float64, int, int64:
		return fmt.Sprint(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, p := range x {
			parts = append(parts, formatValue(p))
		}
		return strings.Join(parts, ", ")
	}
	out, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprint(v)
	}
	return string(out)
}
