// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package payload

import "fmt"

// MalformedPayloadError records a parse attempt on text that looked like a
// payload but was not valid JSON. The detector absorbs it and treats the
// text as prose; it is kept only for logging.
type MalformedPayloadError struct {
	// Length is the size of the text that was parsed.
	Length int

	// Err is the JSON error.
	Err error
}

// Error implements error.
func (e *MalformedPayloadError) Error() string {
	return fmt.Sprintf("malformed payload (%d bytes): %v", e.Length, e.Err)
}

// Unwrap returns the JSON error.
func (e *MalformedPayloadError) Unwrap() error {
	return e.Err
}

// UnrecognizedComponentError names a component with no known Kind. The
// descriptor is still emitted (as KindUnknown) so a placeholder is shown.
type UnrecognizedComponentError struct {
	Name string
}

// Error implements error.
func (e *UnrecognizedComponentError) Error() string {
	if e.Name == "" {
		return "unrecognized component: missing type"
	}
	return fmt.Sprintf("unrecognized component %q", e.Name)
}
