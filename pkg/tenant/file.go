// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package tenant

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/AleutianAI/AleutianChat/pkg/render"
	"github.com/AleutianAI/AleutianChat/pkg/validation"
)

// fileValidate checks override files. The "renderer" tag accepts only
// built-in renderer names.
var fileValidate *validator.Validate

func init() {
	fileValidate = validator.New()
	_ = validation.Register(fileValidate)
	_ = fileValidate.RegisterValidation("renderer", func(fl validator.FieldLevel) bool {
		_, ok := render.Builtin(fl.Field().String())
		return ok
	})
}

// File is a tenant override file.
//
// Example:
//
//	generic: raw_data
//	tenants:
//	  - id: acme
//	    default: plain
//	    renderers:
//	      opening_hours: key_value_card
//	      links: link_list
type File struct {
	// Generic replaces the global generic renderer when set.
	Generic string `yaml:"generic,omitempty" validate:"omitempty,renderer"`

	Tenants []Override `yaml:"tenants" validate:"dive"`
}

// Override binds content types of one tenant to built-in renderers.
type Override struct {
	ID        string            `yaml:"id" validate:"required,tenant_id"`
	Default   string            `yaml:"default,omitempty" validate:"omitempty,renderer"`
	Renderers map[string]string `yaml:"renderers" validate:"dive,keys,required,endkeys,renderer"`
}

// LoadFile reads and validates a tenant override file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read tenant file %s: %w", path, err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("tenant file %s: %w", path, err)
	}
	return f, nil
}

// Parse decodes and validates override YAML. Unknown keys are rejected.
func Parse(data []byte) (*File, error) {
	var f File
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse tenant overrides: %w", err)
	}
	if err := fileValidate.Struct(&f); err != nil {
		return nil, fmt.Errorf("invalid tenant overrides: %w", err)
	}
	return &f, nil
}

// Modules converts the overrides into Modules, in file order.
func (f *File) Modules() ([]Module, error) {
	if f == nil {
		return nil, nil
	}
	mods := make([]Module, 0, len(f.Tenants))
	for _, o := range f.Tenants {
		m := Static{TenantID: o.ID, Bindings: make(map[string]render.Renderer, len(o.Renderers))}
		for ct, name := range o.Renderers {
			r, ok := render.Builtin(name)
			if !ok {
				return nil, fmt.Errorf("tenant %q: unknown renderer %q for %q", o.ID, name, ct)
			}
			m.Bindings[ct] = r
		}
		if o.Default != "" {
			r, ok := render.Builtin(o.Default)
			if !ok {
				return nil, fmt.Errorf("tenant %q: unknown default renderer %q", o.ID, o.Default)
			}
			m.Fallback = r
		}
		mods = append(mods, m)
	}
	return mods, nil
}
