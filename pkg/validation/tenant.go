// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package validation checks identifiers that arrive from callers and
// config files before they are used as metric labels, log fields or
// registry keys.
package validation

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"
)

// TenantIDTag is the struct tag registered by Register.
const TenantIDTag = "tenant_id"

// tenantPattern matches tenant identifiers.
// Allows: lowercase letters, digits, dots, underscores, hyphens.
// Max length: 64 characters.
var tenantPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9._-]{0,63}$`)

// ValidateTenantID validates a tenant identifier.
//
// Valid identifiers:
//   - 1-64 characters
//   - Lowercase letters a-z and digits 0-9
//   - Dots, underscores and hyphens after the first character
//
// Tenant IDs become Prometheus label values, so an unbounded alphabet
// would let a caller mint arbitrary series.
func ValidateTenantID(id string) error {
	if id == "" {
		return fmt.Errorf("tenant id cannot be empty")
	}
	if !tenantPattern.MatchString(id) {
		return fmt.Errorf("invalid tenant id: %q (must be 1-64 lowercase alphanumeric chars, dots, underscores or hyphens)", id)
	}
	return nil
}

// ValidateTenantIDs validates several identifiers and lists every invalid
// one in the error.
func ValidateTenantIDs(ids []string) error {
	var invalid []string
	for _, id := range ids {
		if err := ValidateTenantID(id); err != nil {
			invalid = append(invalid, id)
		}
	}
	if len(invalid) > 0 {
		return fmt.Errorf("invalid tenant ids: %q", invalid)
	}
	return nil
}

// SanitizeTenantID trims and lowercases id, then validates it.
func SanitizeTenantID(id string) (string, error) {
	normalized := strings.ToLower(strings.TrimSpace(id))
	if err := ValidateTenantID(normalized); err != nil {
		return "", err
	}
	return normalized, nil
}

// Register adds the "tenant_id" tag to v.
func Register(v *validator.Validate) error {
	return v.RegisterValidation(TenantIDTag, func(fl validator.FieldLevel) bool {
		return ValidateTenantID(fl.Field().String()) == nil
	})
}
