// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package tenant supplies the renderer bindings each tenant contributes to
// the render registry, either compiled in as a Module or loaded from a
// YAML override file.
package tenant

import (
	"fmt"
	"maps"
	"slices"

	"github.com/AleutianAI/AleutianChat/pkg/payload"
	"github.com/AleutianAI/AleutianChat/pkg/render"
)

// GenericID is the ID of the shared base module. Its bindings apply to
// every tenant that does not override them.
const GenericID = ""

// Module is a tenant's set of renderer bindings.
type Module interface {
	// ID is the tenant ID; GenericID for the shared base.
	ID() string

	// Renderers maps content types to renderers.
	Renderers() map[string]render.Renderer

	// Default renders the tenant's unregistered content types. May be nil.
	Default() render.Renderer
}

// Static is a Module defined by value.
type Static struct {
	TenantID string
	Bindings map[string]render.Renderer
	Fallback render.Renderer
}

// ID implements Module.
func (s Static) ID() string { return s.TenantID }

// Renderers implements Module.
func (s Static) Renderers() map[string]render.Renderer { return s.Bindings }

// Default implements Module.
func (s Static) Default() render.Renderer { return s.Fallback }

// Generic returns the shared base module: text shapes, links, every known
// payload component, and a placeholder for unknown components.
func Generic() Module {
	return Static{
		TenantID: GenericID,
		Bindings: map[string]render.Renderer{
			render.ContentTypeSimple:               render.Paragraphs(),
			render.ContentTypeNumbered:             render.NumberedList(),
			render.ContentTypeBulleted:             render.BulletList(),
			render.ContentTypeLinks:                render.LinkList(),
			render.ContentTypeUnknown:              render.Placeholder(),
			payload.KindOpeningHours.ContentType(): render.Table(),
			payload.KindTable.ContentType():        render.Table(),
			payload.KindContactCard.ContentType():  render.KeyValueCard(),
			payload.KindMap.ContentType():          render.KeyValueCard(),
			payload.KindLinkButtons.ContentType():  render.LinkList(),
			payload.KindImageGallery.ContentType(): render.LinkList(),
			payload.KindQuickReplies.ContentType(): render.BulletList(),
		},
	}
}

// Kiosk is an example tenant for a reduced display. It shows text and
// links, opening hours as a card instead of a table, and a placeholder for
// every other component.
func Kiosk() Module {
	return Static{
		TenantID: "kiosk",
		Bindings: map[string]render.Renderer{
			render.ContentTypeSimple:               render.Paragraphs(),
			render.ContentTypeNumbered:             render.NumberedList(),
			render.ContentTypeBulleted:             render.BulletList(),
			render.ContentTypeLinks:                render.LinkList(),
			payload.KindOpeningHours.ContentType(): render.KeyValueCard(),
		},
		Fallback: render.Placeholder(),
	}
}

// BuiltinModules returns the compiled-in modules, generic first.
func BuiltinModules() []Module {
	return []Module{Generic(), Kiosk()}
}

// BuildRegistry registers modules in order, then applies overrides.
//
// # Description
//
// Each module's bindings are registered under its ID and its Default, if
// any, becomes the tenant default. Overrides from a tenant file are
// applied last, so they win over compiled-in modules.
//
// # Inputs
//
//   - modules: compiled-in modules. Two modules with the same ID is an
//     error.
//   - overrides: may be nil.
//
// # Outputs
//
//   - *render.Registry: immutable registry.
//   - error: duplicate module IDs, or an override naming an unknown
//     renderer.
func BuildRegistry(modules []Module, overrides *File) (*render.Registry, error) {
	b := render.NewBuilder()
	seen := make(map[string]bool, len(modules))

	for _, m := range modules {
		if m == nil {
			continue
		}
		id := m.ID()
		if seen[id] {
			return nil, fmt.Errorf("duplicate tenant module %q", id)
		}
		seen[id] = true
		register(b, m)
	}

	if overrides != nil {
		mods, err := overrides.Modules()
		if err != nil {
			return nil, err
		}
		for _, m := range mods {
			register(b, m)
		}
		if overrides.Generic != "" {
			r, _ := render.Builtin(overrides.Generic)
			b.SetGeneric(r)
		}
	}
	return b.Build(), nil
}

func register(b *render.Builder, m Module) {
	bindings := m.Renderers()
	for _, ct := range slices.Sorted(maps.Keys(bindings)) {
		b.Register(m.ID(), ct, bindings[ct])
	}
	if d := m.Default(); d != nil {
		b.SetTenantDefault(m.ID(), d)
	}
}
