// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package extensions

import (
	"context"
	"errors"
)

// ErrMessageBlocked is returned by callers that refuse a blocked message.
var ErrMessageBlocked = errors.New("message blocked by filter")

// FilterResult is the outcome of filtering one message.
type FilterResult struct {
	// Filtered is the message to use. Equal to the input when nothing
	// was modified.
	Filtered string

	WasModified bool
	WasBlocked  bool

	// BlockReason is safe to show to the caller.
	BlockReason string

	Detections []Detection
}

// Detection is one policy match.
type Detection struct {
	Classification string `json:"classification"`
	PatternID      string `json:"pattern_id"`
	Action         Action `json:"action"`
}

// MessageFilter inspects inbound messages before they reach the backend.
type MessageFilter interface {
	FilterInput(ctx context.Context, message string) (*FilterResult, error)
}

// NopMessageFilter passes messages through unchanged.
type NopMessageFilter struct{}

// FilterInput implements MessageFilter.
func (f *NopMessageFilter) FilterInput(_ context.Context, message string) (*FilterResult, error) {
	return &FilterResult{Filtered: message}, nil
}

var _ MessageFilter = (*NopMessageFilter)(nil)
