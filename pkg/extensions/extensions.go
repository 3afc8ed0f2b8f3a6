// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package extensions defines the access hooks around a chat turn.
//
// The gateway calls three hooks for every turn:
//
//   - auth.go: AuthProvider resolves the caller from a bearer token and
//     says which tenants it may use.
//   - filter.go: MessageFilter inspects the inbound message and may
//     redact it or refuse the turn. PolicyFilter is the pattern-based
//     implementation.
//   - audit.go: AuditLogger records what happened to the turn.
//
// The zero Options, or DefaultOptions, allows everything and records
// nothing.
//
// # Thread Safety
//
// All implementations must be safe for concurrent use.
package extensions

// Options groups the hooks passed to the gateway.
type Options struct {
	// Auth validates bearer tokens. Default: NopAuthProvider.
	Auth AuthProvider

	// Filter inspects inbound messages. Default: NopMessageFilter.
	Filter MessageFilter

	// Audit records turn outcomes. Default: NopAuditLogger.
	Audit AuditLogger
}

// DefaultOptions returns Options with no-op hooks.
func DefaultOptions() Options {
	return Options{
		Auth:   &NopAuthProvider{},
		Filter: &NopMessageFilter{},
		Audit:  &NopAuditLogger{},
	}
}

// WithDefaults returns opts with nil hooks replaced by no-ops.
func (opts Options) WithDefaults() Options {
	d := DefaultOptions()
	if opts.Auth == nil {
		opts.Auth = d.Auth
	}
	if opts.Filter == nil {
		opts.Filter = d.Filter
	}
	if opts.Audit == nil {
		opts.Audit = d.Audit
	}
	return opts
}

// WithAuth returns a copy of opts with the given AuthProvider.
func (opts Options) WithAuth(p AuthProvider) Options {
	opts.Auth = p
	return opts
}

// WithFilter returns a copy of opts with the given MessageFilter.
func (opts Options) WithFilter(f MessageFilter) Options {
	opts.Filter = f
	return opts
}

// WithAudit returns a copy of opts with the given AuditLogger.
func (opts Options) WithAudit(l AuditLogger) Options {
	opts.Audit = l
	return opts
}
