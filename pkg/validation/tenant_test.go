// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package validation

import (
	"strings"
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateTenantID(t *testing.T) {
	tests := []struct {
		name    string
		id      string
		wantErr bool
	}{
		// Valid identifiers
		{"simple", "acme", false},
		{"single char", "a", false},
		{"digits", "tenant42", false},
		{"separators", "acme.eu_west-1", false},
		{"max length", strings.Repeat("a", 64), false},

		// Invalid identifiers
		{"empty", "", true},
		{"uppercase", "Acme", true},
		{"too long", strings.Repeat("a", 65), true},
		{"spaces", "ac me", true},
		{"newline", "acme\nfake=1", true},
		{"label injection", `acme",tenant="other`, true},
		{"starts with dot", ".acme", true},
		{"starts with hyphen", "-acme", true},
		{"unicode", "acmé", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateTenantID(tt.id)
			assert.Equal(t, tt.wantErr, err != nil, "ValidateTenantID(%q) = %v", tt.id, err)
		})
	}
}

func TestValidateTenantIDs(t *testing.T) {
	assert.NoError(t, ValidateTenantIDs([]string{"acme", "kiosk"}))
	assert.NoError(t, ValidateTenantIDs(nil))

	err := ValidateTenantIDs([]string{"acme", "Bad!", "kiosk", ""})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Bad!")
}

func TestSanitizeTenantID(t *testing.T) {
	got, err := SanitizeTenantID("  Acme ")
	require.NoError(t, err)
	assert.Equal(t, "acme", got)

	_, err = SanitizeTenantID("a b")
	assert.Error(t, err)
}

func TestRegister(t *testing.T) {
	v := validator.New()
	require.NoError(t, Register(v))

	type req struct {
		Tenant string `validate:"omitempty,tenant_id"`
	}
	assert.NoError(t, v.Struct(req{}))
	assert.NoError(t, v.Struct(req{Tenant: "acme"}))
	assert.Error(t, v.Struct(req{Tenant: "ACME!"}))
}
