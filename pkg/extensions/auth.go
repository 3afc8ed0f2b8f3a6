// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ErrUnauthorized is returned for missing or unknown tokens.
var ErrUnauthorized = errors.New("unauthorized")

// AnyTenant in AuthInfo.Tenants grants every tenant.
const AnyTenant = "*"

// AuthInfo describes an authenticated caller.
type AuthInfo struct {
	// Subject names the caller in logs and audit events.
	Subject string

	// Tenants the caller may use. AnyTenant grants all.
	Tenants []string
}

// Allows reports whether the caller may run turns for tenant.
func (a *AuthInfo) Allows(tenant string) bool {
	if a == nil {
		return false
	}
	return slices.Contains(a.Tenants, AnyTenant) || slices.Contains(a.Tenants, tenant)
}

// AuthProvider validates bearer tokens.
type AuthProvider interface {
	// Validate returns the caller for token, or ErrUnauthorized.
	// The token is empty when the request carried none.
	Validate(ctx context.Context, token string) (*AuthInfo, error)
}

// NopAuthProvider accepts every request as a local caller with access to
// every tenant.
type NopAuthProvider struct{}

// Validate implements AuthProvider.
func (p *NopAuthProvider) Validate(_ context.Context, _ string) (*AuthInfo, error) {
	return &AuthInfo{Subject: "local", Tenants: []string{AnyTenant}}, nil
}

// TokenEntry is one token in a tokens file.
type TokenEntry struct {
	Token   string   `yaml:"token"`
	Subject string   `yaml:"subject"`
	Tenants []string `yaml:"tenants"`
}

type tokensFile struct {
	Tokens []TokenEntry `yaml:"tokens"`
}

// StaticTokens authenticates against a fixed token list.
type StaticTokens struct {
	entries []TokenEntry
}

// NewStaticTokens builds a StaticTokens. Entries need a token and at least
// one tenant.
func NewStaticTokens(entries []TokenEntry) (*StaticTokens, error) {
	for i, e := range entries {
		if e.Token == "" {
			return nil, fmt.Errorf("token %d: empty token", i)
		}
		if len(e.Tenants) == 0 {
			return nil, fmt.Errorf("token %d (%s): no tenants", i, e.Subject)
		}
	}
	return &StaticTokens{entries: slices.Clone(entries)}, nil
}

// LoadTokens reads a YAML tokens file:
//
//	tokens:
//	  - token: s3cret
//	    subject: kiosk-lobby
//	    tenants: [kiosk]
func LoadTokens(path string) (*StaticTokens, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read the tokens file: %w", err)
	}
	var f tokensFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse the tokens file: %w", err)
	}
	return NewStaticTokens(f.Tokens)
}

// Validate implements AuthProvider. Tokens are compared in constant time.
func (s *StaticTokens) Validate(_ context.Context, token string) (*AuthInfo, error) {
	if token == "" {
		return nil, ErrUnauthorized
	}
	for _, e := range s.entries {
		if subtle.ConstantTimeCompare([]byte(e.Token), []byte(token)) == 1 {
			return &AuthInfo{Subject: e.Subject, Tenants: slices.Clone(e.Tenants)}, nil
		}
	}
	return nil, ErrUnauthorized
}

var (
	_ AuthProvider = (*NopAuthProvider)(nil)
	_ AuthProvider = (*StaticTokens)(nil)
)
