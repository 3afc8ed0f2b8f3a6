// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package payload separates self-describing interactive payloads from prose
// in a message that arrives a few characters at a time.
//
// A backend may answer with plain prose or with a JSON object such as
//
//	{"text": "Our hours:", "component": "OpeningHoursTable", "data": {...}}
//	{"text": "Pick one", "components": [{"type": "QuickReplies", "data": {...}}]}
//
// The Detector is fed each text delta. Until the accumulated text parses as
// a recognized payload, every delta is prose. When it does, the payload's
// "text" field replaces the prose shown so far (Result.Reset) and the
// descriptors are emitted once. After that the detector stops parsing.
//
// # Determinism
//
// Only a message that opens with "{" can carry a payload. The decision is
// made once, on the first complete top-level object, whose extent depends
// only on the text and never on how it was split. Text after that object is
// prose appended to the payload's text. Feeding a message in one call or in
// any number of pieces ends in the same Prose and Payload.
package payload

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// =============================================================================
// Types
// =============================================================================

// Descriptor instructs the presentation layer to draw one interactive
// component.
type Descriptor struct {
	// ComponentType is the name the backend used, unmodified.
	ComponentType string `json:"component_type"`

	// Kind is the known component, or KindUnknown.
	Kind Kind `json:"-"`

	// Data is the component's key-value payload. Never nil.
	Data map[string]any `json:"data"`
}

// ContentType returns the renderer registry key for the descriptor.
func (d Descriptor) ContentType() string {
	return d.Kind.ContentType()
}

// Err returns an *UnrecognizedComponentError for KindUnknown descriptors.
func (d Descriptor) Err() error {
	if d.Kind == KindUnknown {
		return &UnrecognizedComponentError{Name: d.ComponentType}
	}
	return nil
}

// MarshalJSON adds the canonical kind name.
func (d Descriptor) MarshalJSON() ([]byte, error) {
	type plain Descriptor
	return json.Marshal(struct {
		plain
		Kind string `json:"kind"`
	}{plain(d), d.Kind.String()})
}

// Payload is a recognized message payload.
type Payload struct {
	// Text is the authoritative message text.
	Text string `json:"text"`

	// Descriptors are the components in message order.
	Descriptors []Descriptor `json:"descriptors"`
}

// Result is the outcome of one Feed or Finish call.
type Result struct {
	// ProseDelta is text to append to the visible prose, or, when Reset is
	// set, the complete replacement prose.
	ProseDelta string `json:"prose_delta"`

	// Reset means the prose shown so far must be replaced by ProseDelta.
	Reset bool `json:"reset,omitempty"`

	// Payload is set on the single call that recognized the payload.
	Payload *Payload `json:"payload,omitempty"`
}

// =============================================================================
// Options
// =============================================================================

// DetectorOption configures a Detector.
type DetectorOption func(*Detector)

// WithRepairOnFinish lets Finish repair almost-JSON (trailing commas,
// missing closing braces, single quotes) before giving up on a payload.
// Repair runs only once the message is complete, so it never depends on
// how the message was split.
func WithRepairOnFinish() DetectorOption {
	return func(d *Detector) {
		d.repair = true
	}
}

// WithMaxParseBytes stops parse attempts once the accumulated text exceeds
// n bytes. Zero means no limit.
func WithMaxParseBytes(n int) DetectorOption {
	return func(d *Detector) {
		d.maxParse = n
	}
}

// WithLogger sets the logger used for absorbed errors.
func WithLogger(l *slog.Logger) DetectorOption {
	return func(d *Detector) {
		if l != nil {
			d.logger = l
		}
	}
}

// =============================================================================
// Detector
// =============================================================================

// Detector is the per-message payload detector. It is not safe for
// concurrent use; a chat turn owns one.
type Detector struct {
	acc       strings.Builder
	prose     strings.Builder
	tail      strings.Builder
	payload   *Payload
	finalized bool
	settled   bool
	lastErr   error
	attempts  int

	// Scanner state for the leading object.
	opened  bool
	start   int
	pos     int
	depth   int
	inStr   bool
	escaped bool
	closeAt int

	repair   bool
	maxParse int
	logger   *slog.Logger
}

// NewDetector creates a Detector.
func NewDetector(opts ...DetectorOption) *Detector {
	d := &Detector{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Feed consumes the next piece of message text.
func (d *Detector) Feed(delta string) Result {
	d.acc.WriteString(delta)

	if d.finalized {
		return d.appendTail(delta, Result{})
	}
	if d.settled {
		d.prose.WriteString(delta)
		return Result{ProseDelta: delta}
	}

	end, ok := d.scan()
	if !ok || d.tooLarge() {
		d.settled = true
		d.prose.WriteString(delta)
		return Result{ProseDelta: delta}
	}
	if end == 0 {
		d.prose.WriteString(delta)
		return Result{ProseDelta: delta}
	}

	// The leading object is complete; it decides the message once.
	d.settled = true
	text := d.acc.String()
	p, err := parse(text[:end])
	d.attempts++
	if err != nil {
		d.lastErr = err
		d.prose.WriteString(delta)
		return Result{ProseDelta: delta}
	}
	if p == nil {
		// Valid JSON without payload fields: the whole text is prose,
		// which is exactly what has been emitted so far.
		d.prose.WriteString(delta)
		return Result{ProseDelta: delta}
	}
	return d.finalize(p, text[end:])
}

// Finish marks the end of the message. With WithRepairOnFinish it makes
// one last attempt on the repaired leading object; otherwise it returns an
// empty Result.
func (d *Detector) Finish() Result {
	if d.finalized || !d.repair || !d.opened || d.tooLarge() {
		return Result{}
	}
	text := d.acc.String()
	obj, rest := text, ""
	if d.closeAt > 0 {
		obj, rest = text[:d.closeAt], text[d.closeAt:]
	}
	obj = strings.TrimSpace(obj)

	fixed, err := jsonrepair.JSONRepair(obj)
	if err != nil {
		d.logger.Debug("payload repair failed", "length", len(obj), "error", err)
		return Result{}
	}
	p, err := parse(fixed)
	if err != nil || p == nil {
		return Result{}
	}
	d.logger.Debug("payload recovered by repair", "length", len(obj))
	return d.finalize(p, rest)
}

// Prose returns the prose as it currently stands.
func (d *Detector) Prose() string {
	return d.prose.String()
}

// Text returns everything fed so far.
func (d *Detector) Text() string {
	return d.acc.String()
}

// Payload returns the recognized payload, or nil.
func (d *Detector) Payload() *Payload {
	return d.payload
}

// Finalized reports whether a payload has been recognized.
func (d *Detector) Finalized() bool {
	return d.finalized
}

// LastError returns the most recent absorbed *MalformedPayloadError, if any.
func (d *Detector) LastError() error {
	return d.lastErr
}

// Attempts returns how many full parses were tried.
func (d *Detector) Attempts() int {
	return d.attempts
}

// scan advances over the accumulated text looking for the end of the
// leading object. It returns the offset just past the closing brace once
// the object is complete, 0 while it is still open, and ok=false when the
// first non-space byte is not "{". Braces inside JSON strings are ignored.
func (d *Detector) scan() (end int, ok bool) {
	text := d.acc.String()
	for ; d.pos < len(text); d.pos++ {
		c := text[d.pos]
		switch {
		case !d.opened:
			if isJSONSpace(c) {
				continue
			}
			if c != '{' {
				return 0, false
			}
			d.opened = true
			d.start = d.pos
			d.depth = 1
		case d.inStr:
			switch {
			case d.escaped:
				d.escaped = false
			case c == '\\':
				d.escaped = true
			case c == '"':
				d.inStr = false
			}
		case c == '"':
			d.inStr = true
		case c == '{':
			d.depth++
		case c == '}':
			d.depth--
			if d.depth == 0 {
				d.pos++
				d.closeAt = d.pos
				return d.closeAt, true
			}
		}
	}
	return 0, true
}

// tooLarge reports whether the leading object is longer than the
// WithMaxParseBytes limit. It measures the object, not the buffer, so the
// answer does not depend on chunking.
func (d *Detector) tooLarge() bool {
	if d.maxParse <= 0 || !d.opened {
		return false
	}
	end := d.pos
	if d.closeAt > 0 {
		end = d.closeAt
	}
	return end-d.start > d.maxParse
}

func isJSONSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func (d *Detector) finalize(p *Payload, rest string) Result {
	d.finalized = true
	d.payload = p
	d.prose.Reset()
	d.prose.WriteString(p.Text)
	for _, desc := range p.Descriptors {
		if err := desc.Err(); err != nil {
			d.logger.Warn("payload has unrecognized component", "component", desc.ComponentType)
		}
	}
	return d.appendTail(rest, Result{ProseDelta: p.Text, Reset: true, Payload: p})
}

// appendTail adds text that follows the payload to res. Whitespace is held
// back until something else arrives, so a trailing newline does not depend
// on whether it came with the closing brace.
func (d *Detector) appendTail(text string, res Result) Result {
	d.tail.WriteString(text)
	if strings.TrimSpace(d.tail.String()) == "" {
		return res
	}
	out := d.tail.String()
	d.tail.Reset()
	d.prose.WriteString(out)
	res.ProseDelta += out
	return res
}

// Detect runs a whole message through a fresh detector. The returned Result
// holds the complete prose (Reset is set when a payload was found).
func Detect(message string, opts ...DetectorOption) Result {
	d := NewDetector(opts...)
	res := d.Feed(message)
	if fin := d.Finish(); fin.Payload != nil {
		return fin
	}
	return res
}

// =============================================================================
// Parsing
// =============================================================================

// wirePayload is the union of both payload shapes.
type wirePayload struct {
	Text       *string         `json:"text"`
	Component  *string         `json:"component"`
	Data       json.RawMessage `json:"data"`
	Components []wireComponent `json:"components"`
}

type wireComponent struct {
	Type      string          `json:"type"`
	Component string          `json:"component"`
	Data      json.RawMessage `json:"data"`
}

// parse returns (nil, nil) for valid JSON that is not a payload and a
// *MalformedPayloadError for invalid JSON.
func parse(text string) (*Payload, error) {
	raw := []byte(strings.TrimSpace(text))
	if !json.Valid(raw) {
		var v any
		err := json.Unmarshal(raw, &v)
		return nil, &MalformedPayloadError{Length: len(raw), Err: err}
	}

	var keys map[string]json.RawMessage
	if err := json.Unmarshal(raw, &keys); err != nil {
		return nil, nil
	}
	_, hasComponent := keys["component"]
	_, hasComponents := keys["components"]
	if !hasComponent && !hasComponents {
		return nil, nil
	}

	var wire wirePayload
	if err := json.Unmarshal(raw, &wire); err != nil {
		// Right keys, wrong types: not a payload we understand.
		return nil, nil
	}

	p := &Payload{}
	if wire.Text != nil {
		p.Text = *wire.Text
	}
	if wire.Component != nil {
		p.Descriptors = append(p.Descriptors, newDescriptor(*wire.Component, wire.Data))
	}
	for _, c := range wire.Components {
		name := c.Type
		if name == "" {
			name = c.Component
		}
		p.Descriptors = append(p.Descriptors, newDescriptor(name, c.Data))
	}
	if len(p.Descriptors) == 0 {
		return nil, nil
	}
	return p, nil
}

// ParseComponents converts envelope structured_data entries into
// descriptors. Entries that are not objects are skipped.
func ParseComponents(items []json.RawMessage) []Descriptor {
	var out []Descriptor
	for _, item := range items {
		var c wireComponent
		if err := json.Unmarshal(item, &c); err != nil {
			continue
		}
		name := c.Type
		if name == "" {
			name = c.Component
		}
		data := c.Data
		if data == nil {
			data = item
		}
		out = append(out, newDescriptor(name, data))
	}
	return out
}

func newDescriptor(name string, data json.RawMessage) Descriptor {
	return Descriptor{
		ComponentType: name,
		Kind:          ParseKind(name),
		Data:          decodeData(data),
	}
}

// decodeData returns data as a map. Non-object data is kept under "value".
func decodeData(data json.RawMessage) map[string]any {
	out := map[string]any{}
	if len(bytes.TrimSpace(data)) == 0 {
		return out
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil || v == nil {
		return out
	}
	if m, ok := v.(map[string]any); ok {
		return m
	}
	out["value"] = v
	return out
}
