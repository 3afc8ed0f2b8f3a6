// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
)

// RenderFailure describes a renderer that returned an error or panicked.
// The dispatcher logs it and shows a fallback view; it never reaches the
// caller as an error.
type RenderFailure struct {
	Tenant      string
	ContentType string
	Renderer    string

	// Err is the renderer's error, nil for a panic.
	Err error

	// Panic is the recovered value, nil for an error.
	Panic any
}

// Error implements error.
func (f *RenderFailure) Error() string {
	if f.Panic != nil {
		return fmt.Sprintf("renderer %s panicked on %q: %v", f.Renderer, f.ContentType, f.Panic)
	}
	return fmt.Sprintf("renderer %s failed on %q: %v", f.Renderer, f.ContentType, f.Err)
}

// Unwrap returns the renderer's error.
func (f *RenderFailure) Unwrap() error {
	return f.Err
}

// Observer is notified about dispatch outcomes. The observability package
// provides the Prometheus implementation.
type Observer interface {
	Resolved(match Match)
	Fallback(contentType string)
}

type nopObserver struct{}

func (nopObserver) Resolved(Match)  {}
func (nopObserver) Fallback(string) {}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithObserver sets the dispatch observer.
func WithObserver(o Observer) DispatcherOption {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// WithLogger sets the logger for render failures.
func WithLogger(l *slog.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// Dispatcher renders elements through a Registry.
//
// # Description
//
// The registry is passed in explicitly, built once at startup. Every
// renderer call is guarded: an error or panic produces a RawData view with
// Fallback set, so one bad element never hides its siblings.
//
// # Thread Safety
//
// Safe for concurrent use.
type Dispatcher struct {
	registry *Registry
	observer Observer
	logger   *slog.Logger
}

// NewDispatcher creates a Dispatcher. A nil registry resolves everything
// to RawData.
func NewDispatcher(registry *Registry, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		registry: registry,
		observer: nopObserver{},
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Registry returns the dispatcher's registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// Resolve returns the renderer for (tenant, contentType). It never returns
// nil.
func (d *Dispatcher) Resolve(tenant, contentType string) Renderer {
	r, match := d.registry.Lookup(tenant, contentType)
	d.observer.Resolved(match)
	return r
}

// Render renders one element.
//
// # Description
//
// Resolves the renderer and runs it. A returned error or a panic becomes
// a *RenderFailure, which is logged, and the element is shown by RawData
// instead.
//
// # Inputs
//
//   - ctx: passed to the renderer.
//   - el: the element. Any Data value is accepted.
//
// # Outputs
//
//   - View: the rendered view or the fallback view. Never an error.
func (d *Dispatcher) Render(ctx context.Context, el Element) View {
	r := d.Resolve(el.Tenant, el.ContentType)

	view, failure := d.invoke(ctx, r, el)
	if failure == nil {
		return view
	}

	d.observer.Fallback(el.ContentType)
	d.logger.Warn("render failed, using fallback",
		"tenant", el.Tenant,
		"content_type", el.ContentType,
		"renderer", failure.Renderer,
		"error", failure.Error())

	fallback := d.fallback(ctx, el)
	fallback.ContentType = el.ContentType
	fallback.Fallback = true
	fallback.Error = failure.Error()
	return fallback
}

// RenderAll renders elements independently, in order.
func (d *Dispatcher) RenderAll(ctx context.Context, els []Element) []View {
	views := make([]View, 0, len(els))
	for _, el := range els {
		views = append(views, d.Render(ctx, el))
	}
	return views
}

// invoke runs r with Name and Render both under the recover.
func (d *Dispatcher) invoke(ctx context.Context, r Renderer, el Element) (view View, failure *RenderFailure) {
	name := "unnamed"
	defer func() {
		if p := recover(); p != nil {
			d.logger.Debug("renderer panic stack", "renderer", name, "stack", string(debug.Stack()))
			failure = &RenderFailure{
				Tenant:      el.Tenant,
				ContentType: el.ContentType,
				Renderer:    name,
				Panic:       p,
			}
		}
	}()

	name = r.Name()
	view, err := r.Render(ctx, el)
	if err != nil {
		return View{}, &RenderFailure{
			Tenant:      el.Tenant,
			ContentType: el.ContentType,
			Renderer:    name,
			Err:         err,
		}
	}
	return view, nil
}

// fallback renders el with RawData. If that panics too, the view only
// names the data's type.
func (d *Dispatcher) fallback(ctx context.Context, el Element) (view View) {
	defer func() {
		if p := recover(); p != nil {
			d.logger.Error("fallback renderer panicked",
				"tenant", el.Tenant,
				"content_type", el.ContentType,
				"panic", fmt.Sprint(p))
			view = View{Renderer: NameRawData, Text: fmt.Sprintf("%T", el.Data)}
		}
	}()

	view, err := RawData().Render(ctx, el)
	if err != nil {
		view = View{Renderer: NameRawData, Text: fmt.Sprintf("%v", el.Data)}
	}
	return view
}
