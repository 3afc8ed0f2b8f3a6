// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package render

import (
	"maps"
	"slices"
)

// Match reports which lookup level served a Resolve call.
type Match int

const (
	// MatchGeneric is the global generic renderer.
	MatchGeneric Match = iota

	// MatchTenantDefault is the tenant's default renderer.
	MatchTenantDefault

	// MatchExact is a (tenant, content type) registration.
	MatchExact

	// MatchBase is a binding of the shared base tenant "", tried as part
	// of the generic level.
	MatchBase
)

// String returns "generic", "base", "tenant_default" or "exact".
func (m Match) String() string {
	switch m {
	case MatchExact:
		return "exact"
	case MatchBase:
		return "base"
	case MatchTenantDefault:
		return "tenant_default"
	default:
		return "generic"
	}
}

type bindingKey struct {
	tenant      string
	contentType string
}

// =============================================================================
// Builder
// =============================================================================

// Builder collects renderer bindings at startup. It is not safe for
// concurrent use; build once, then share the Registry.
//
// Example:
//
//	reg := render.NewBuilder().
//	    Register("", "numbered", render.NumberedList()).
//	    Register("acme", "opening_hours", acmeHours).
//	    SetTenantDefault("acme", render.Plain()).
//	    Build()
type Builder struct {
	exact    map[bindingKey]Renderer
	defaults map[string]Renderer
	generic  Renderer
}

// NewBuilder returns an empty Builder whose generic renderer is RawData.
func NewBuilder() *Builder {
	return &Builder{
		exact:    make(map[bindingKey]Renderer),
		defaults: make(map[string]Renderer),
		generic:  RawData(),
	}
}

// Register binds a renderer to (tenant, contentType). The empty tenant is
// the shared base; its bindings serve tenants that have neither an exact
// binding nor a default.
// Later registrations replace earlier ones. A nil renderer is ignored.
func (b *Builder) Register(tenant, contentType string, r Renderer) *Builder {
	if r != nil {
		b.exact[bindingKey{normalize(tenant), normalize(contentType)}] = r
	}
	return b
}

// SetTenantDefault sets the renderer for a tenant's unregistered content
// types. A nil renderer removes it.
func (b *Builder) SetTenantDefault(tenant string, r Renderer) *Builder {
	if r == nil {
		delete(b.defaults, normalize(tenant))
		return b
	}
	b.defaults[normalize(tenant)] = r
	return b
}

// SetGeneric replaces the global generic renderer. A nil renderer is
// ignored.
func (b *Builder) SetGeneric(r Renderer) *Builder {
	if r != nil {
		b.generic = r
	}
	return b
}

// Build returns an immutable Registry. The Builder can keep being used;
// later changes do not affect registries already built.
func (b *Builder) Build() *Registry {
	return &Registry{
		exact:    maps.Clone(b.exact),
		defaults: maps.Clone(b.defaults),
		generic:  b.generic,
	}
}

// =============================================================================
// Registry
// =============================================================================

// Registry is the read-only table of renderer bindings. It is safe for
// concurrent use.
type Registry struct {
	exact    map[bindingKey]Renderer
	defaults map[string]Renderer
	generic  Renderer
}

// Lookup resolves a renderer and reports which level matched.
//
// # Description
//
// Tries, in order: (tenant, contentType), the tenant default, and then the
// generic level. The generic level is the base binding ("", contentType),
// the base default, and finally the generic renderer. Keys are compared
// case-insensitively after trimming.
//
// # Inputs
//
//   - tenant: tenant ID, may be empty or unknown.
//   - contentType: content type, may be empty or unknown.
//
// # Outputs
//
//   - Renderer: never nil, also for a nil Registry.
//   - Match: the level that served the lookup.
func (r *Registry) Lookup(tenant, contentType string) (Renderer, Match) {
	if r == nil {
		return RawData(), MatchGeneric
	}
	t, ct := normalize(tenant), normalize(contentType)

	if rend, ok := r.exact[bindingKey{t, ct}]; ok {
		if t == "" {
			return rend, MatchBase
		}
		return rend, MatchExact
	}
	if rend, ok := r.defaults[t]; ok {
		return rend, MatchTenantDefault
	}
	if t != "" {
		if rend, ok := r.exact[bindingKey{"", ct}]; ok {
			return rend, MatchBase
		}
		if rend, ok := r.defaults[""]; ok {
			return rend, MatchBase
		}
	}
	if r.generic != nil {
		return r.generic, MatchGeneric
	}
	return RawData(), MatchGeneric
}

// Tenants returns the tenants with at least one binding, sorted. The
// shared base tenant "" is included when it has bindings.
func (r *Registry) Tenants() []string {
	if r == nil {
		return nil
	}
	seen := map[string]bool{}
	for k := range r.exact {
		seen[k.tenant] = true
	}
	for t := range r.defaults {
		seen[t] = true
	}
	return slices.Sorted(maps.Keys(seen))
}

// ContentTypes returns the content types registered for tenant, sorted.
func (r *Registry) ContentTypes(tenant string) []string {
	if r == nil {
		return nil
	}
	t := normalize(tenant)
	var out []string
	for k := range r.exact {
		if k.tenant == t {
			out = append(out, k.contentType)
		}
	}
	slices.Sort(out)
	return out
}
