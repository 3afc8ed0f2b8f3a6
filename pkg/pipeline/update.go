// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package pipeline

import (
	"github.com/AleutianAI/AleutianChat/pkg/payload"
	"github.com/AleutianAI/AleutianChat/pkg/textstruct"
)

// UpdateKind names what changed during a streamed turn.
type UpdateKind int

const (
	// UpdateProse carries new visible text in Delta, or a full
	// replacement when Reset is set.
	UpdateProse UpdateKind = iota

	// UpdatePayload carries recognized components.
	UpdatePayload

	// UpdateStructure carries the live structure of the prose so far.
	UpdateStructure

	// UpdateDone carries the final Result.
	UpdateDone

	// UpdateFailed carries a failed Result with the apology.
	UpdateFailed
)

// String returns the SSE event name for the kind.
func (k UpdateKind) String() string {
	switch k {
	case UpdateProse:
		return "prose"
	case UpdatePayload:
		return "payload"
	case UpdateStructure:
		return "structure"
	case UpdateDone:
		return "done"
	case UpdateFailed:
		return "error"
	default:
		return "unknown"
	}
}

// Update is one step of a streamed turn. Only the fields for Kind are set.
type Update struct {
	Kind UpdateKind `json:"-"`

	Delta string `json:"delta,omitempty"`
	Reset bool   `json:"reset,omitempty"`

	Payload   *payload.Payload   `json:"payload,omitempty"`
	Structure textstruct.Content `json:"structure,omitempty"`
	Result    *Result            `json:"result,omitempty"`
}

// Terminal reports whether the update ends the turn.
func (u Update) Terminal() bool {
	return u.Kind == UpdateDone || u.Kind == UpdateFailed
}
