// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package render turns classified message parts into presentation-neutral
// views, choosing the renderer per tenant and content type.
//
// Single Responsibility:
//
//	This package maps (tenant, content type) to a Renderer and runs it
//	safely. It does not draw anything; the CLI and the gateway turn a View
//	into terminal output or JSON.
//
// Lookup Order:
//
//  1. exact (tenant, content type)
//  2. the tenant's default renderer
//  3. the global generic renderer
//
// Lookup never fails, and a renderer that errors or panics is replaced by
// a raw-data fallback view for that element only.
package render

import (
	"context"
	"strings"
)

// Well-known content types. Payload component kinds add their own
// (opening_hours, contact_card, ...).
const (
	ContentTypeSimple   = "simple"
	ContentTypeNumbered = "numbered"
	ContentTypeBulleted = "bulleted"
	ContentTypeLinks    = "links"
	ContentTypeUnknown  = "unknown"
)

// Element is one renderable part of a message.
type Element struct {
	// Tenant selects tenant-specific renderers. Empty means none.
	Tenant string `json:"tenant,omitempty"`

	// ContentType is the registry key.
	ContentType string `json:"content_type"`

	// Name is the source name, such as the backend's component name.
	Name string `json:"name,omitempty"`

	// Data is the value to render: a string, a textstruct.Content, a
	// []links.Item, or a payload data map.
	Data any `json:"data"`
}

// View is the presentation-neutral output of a renderer.
type View struct {
	// Renderer is the name of the renderer that produced the view.
	Renderer string `json:"renderer"`

	// ContentType echoes the element's content type.
	ContentType string `json:"content_type"`

	Title  string     `json:"title,omitempty"`
	Text   string     `json:"text,omitempty"`
	Items  []ViewItem `json:"items,omitempty"`
	Header []string   `json:"header,omitempty"`
	Rows   [][]string `json:"rows,omitempty"`
	Fields []Field    `json:"fields,omitempty"`
	Footer string     `json:"footer,omitempty"`

	// Fallback is set when the view replaces a failed or missing
	// renderer.
	Fallback bool `json:"fallback,omitempty"`

	// Error describes the failure behind a fallback view.
	Error string `json:"error,omitempty"`
}

// ViewItem is one entry of a list view.
type ViewItem struct {
	Label    string   `json:"label,omitempty"`
	Text     string   `json:"text"`
	URL      string   `json:"url,omitempty"`
	Children []string `json:"children,omitempty"`
}

// Field is one key/value row of a card view.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Renderer maps an Element to a View.
type Renderer interface {
	Name() string
	Render(ctx context.Context, el Element) (View, error)
}

// RenderFunc is the function form of a Renderer.
type RenderFunc func(ctx context.Context, el Element) (View, error)

type funcRenderer struct {
	name string
	fn   RenderFunc
}

func (r funcRenderer) Name() string { return r.name }

func (r funcRenderer) Render(ctx context.Context, el Element) (View, error) {
	view, err := r.fn(ctx, el)
	if err != nil {
		return View{}, err
	}
	if view.Renderer == "" {
		view.Renderer = r.name
	}
	if view.ContentType == "" {
		view.ContentType = el.ContentType
	}
	return view, nil
}

// Func wraps fn as a named Renderer.
func Func(name string, fn RenderFunc) Renderer {
	return funcRenderer{name: name, fn: fn}
}

// normalize is applied to every tenant and content type key.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
