// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"encoding/json"
	"mime"
	"strings"
)

// =============================================================================
// Wire Formats
// =============================================================================

// Format selects how lines are interpreted.
type Format int

const (
	// FormatAuto picks FormatSSE for text/event-stream responses and
	// FormatLines for everything else.
	FormatAuto Format = iota

	// FormatSSE understands "data:", "event:", "id:", "retry:" and ":"
	// comment lines. Blank lines are event delimiters.
	FormatSSE

	// FormatLines treats every line as one payload (NDJSON or plain text).
	// The newline consumed by framing is restored on plain-text lines so
	// the reconstructed message matches the original bytes.
	FormatLines
)

// String returns "auto", "sse" or "lines".
func (f Format) String() string {
	switch f {
	case FormatSSE:
		return "sse"
	case FormatLines:
		return "lines"
	default:
		return "auto"
	}
}

// ParseFormat converts a config value into a Format. Unknown values map to
// FormatAuto.
func ParseFormat(s string) Format {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sse", "event-stream":
		return FormatSSE
	case "lines", "ndjson", "jsonl", "text":
		return FormatLines
	default:
		return FormatAuto
	}
}

// ResolveFormat returns f, or the format implied by contentType when f is
// FormatAuto.
func ResolveFormat(f Format, contentType string) Format {
	if f != FormatAuto {
		return f
	}
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err == nil && mediaType == "text/event-stream" {
		return FormatSSE
	}
	return FormatLines
}

// =============================================================================
// Frames
// =============================================================================

// FrameKind classifies a parsed line.
type FrameKind int

const (
	// FrameSkip is a line with no content for the consumer: SSE comments,
	// delimiters, field lines, and status envelopes.
	FrameSkip FrameKind = iota

	// FrameData carries message text and/or structured data.
	FrameData

	// FrameTerminal is an explicit end-of-stream signal.
	FrameTerminal

	// FrameError is an in-band error reported by the backend.
	FrameError
)

// Frame is one unit of streamed content.
type Frame struct {
	// Index is the zero-based position among data frames in the session.
	Index int `json:"index"`

	// Event is the SSE event name in effect, if any.
	Event string `json:"event,omitempty"`

	// Text is the message text carried by the frame. It may be empty when
	// the frame only carries structured data.
	Text string `json:"text"`

	// Structured holds the envelope's structured_data entries, untouched.
	Structured []json.RawMessage `json:"structured_data,omitempty"`

	// Err is the backend's message for FrameError.
	Err string `json:"error,omitempty"`
}

// terminalEvents are SSE event names that end a stream.
var terminalEvents = map[string]bool{
	"done":     true,
	"end":      true,
	"complete": true,
}

// doneSentinel is the OpenAI-style end marker.
const doneSentinel = "[DONE]"

// =============================================================================
// Frame Parser
// =============================================================================

// FrameParser turns framed lines into Frames.
//
// The parser keeps the SSE "event:" name between lines, so one parser
// belongs to one session and is not safe for concurrent use.
//
// Example:
//
//	p := NewFrameParser(FormatSSE)
//	frame, kind := p.ParseLine(`data: {"text":"Hi"}`, false)
//	// kind == FrameData, frame.Text == "Hi"
type FrameParser struct {
	format Format
	event  string

	// inEvent is set after a plain-text data line until the next blank
	// line; further plain lines of the same event are joined with "\n".
	inEvent bool
}

// NewFrameParser creates a parser. FormatAuto behaves like FormatLines with
// SSE prefixes recognized.
func NewFrameParser(format Format) *FrameParser {
	return &FrameParser{format: format}
}

// ParseLine parses one line without its trailing newline.
//
// last must be true for the final partial line flushed at end of stream; in
// FormatLines mode it suppresses the newline that would otherwise be
// restored, because that line never had one.
func (p *FrameParser) ParseLine(line string, last bool) (Frame, FrameKind) {
	if p.format == FormatSSE {
		return p.parseSSE(line)
	}
	return p.parseLines(line, last)
}

func (p *FrameParser) parseSSE(line string) (Frame, FrameKind) {
	if line == "" {
		p.event = ""
		p.inEvent = false
		return Frame{}, FrameSkip
	}
	if strings.HasPrefix(line, ":") {
		return Frame{}, FrameSkip
	}

	field, value := splitField(line)
	switch field {
	case "event":
		p.event = strings.ToLower(value)
		if terminalEvents[p.event] {
			return Frame{Event: p.event}, FrameTerminal
		}
		return Frame{}, FrameSkip
	case "data":
		if p.event == "error" {
			return Frame{Event: p.event, Err: errorMessage(value)}, FrameError
		}
		payload, kind := decodePayload(value)
		if kind == FrameData && payload.plain {
			if p.inEvent {
				payload.Text = "\n" + payload.Text
			}
			p.inEvent = true
		}
		payload.Event = p.event
		return payload.Frame, kind
	case "id", "retry":
		return Frame{}, FrameSkip
	default:
		// Unknown field names are ignored by the SSE grammar.
		return Frame{}, FrameSkip
	}
}

func (p *FrameParser) parseLines(line string, last bool) (Frame, FrameKind) {
	if strings.HasPrefix(line, "data:") {
		_, value := splitField(line)
		payload, kind := decodePayload(value)
		return payload.Frame, kind
	}
	if strings.HasPrefix(line, "event:") {
		_, value := splitField(line)
		if terminalEvents[strings.ToLower(value)] {
			return Frame{Event: strings.ToLower(value)}, FrameTerminal
		}
		return Frame{}, FrameSkip
	}

	payload, kind := decodePayload(line)
	if kind == FrameData && payload.plain && !last {
		payload.Text += "\n"
	}
	return payload.Frame, kind
}

// splitField splits an SSE line into field name and value. A single space
// after the colon is part of the syntax and is removed.
func splitField(line string) (string, string) {
	name, value, found := strings.Cut(line, ":")
	if !found {
		return line, ""
	}
	return name, strings.TrimPrefix(value, " ")
}

// parsedPayload remembers whether the text came from a plain-text line.
type parsedPayload struct {
	Frame
	plain bool
}

// decodePayload interprets the content of one data line.
//
//	[DONE]                               terminal
//	{"type":"done"}                      terminal
//	{"type":"error","error":"..."}       error
//	{"text":"..","structured_data":[..]} envelope
//	{"type":"token","content":".."}      envelope
//	"a JSON string"                      decoded text
//	anything else                        plain text
//
// Objects carrying "component" or "components" are message content, not
// envelopes, and pass through as plain text.
func decodePayload(data string) (parsedPayload, FrameKind) {
	trimmed := strings.TrimSpace(data)
	if trimmed == doneSentinel {
		return parsedPayload{}, FrameTerminal
	}

	switch {
	case strings.HasPrefix(trimmed, "{") && strings.HasSuffix(trimmed, "}"):
		if frame, kind, ok := decodeEnvelope(trimmed); ok {
			return parsedPayload{Frame: frame}, kind
		}
	case strings.HasPrefix(trimmed, `"`) && strings.HasSuffix(trimmed, `"`) && len(trimmed) >= 2:
		var s string
		if err := json.Unmarshal([]byte(trimmed), &s); err == nil {
			return parsedPayload{Frame: Frame{Text: s}}, FrameData
		}
	}
	return parsedPayload{Frame: Frame{Text: data}, plain: true}, FrameData
}

// envelope is the union of the server envelope shapes we accept.
type envelope struct {
	Type           string            `json:"type"`
	Text           *string           `json:"text"`
	Content        *string           `json:"content"`
	StructuredData []json.RawMessage `json:"structured_data"`
	Error          string            `json:"error"`
	Message        string            `json:"message"`
}

func decodeEnvelope(raw string) (Frame, FrameKind, bool) {
	var keys map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &keys); err != nil {
		return Frame{}, FrameSkip, false
	}
	if _, ok := keys["component"]; ok {
		return Frame{}, FrameSkip, false
	}
	if _, ok := keys["components"]; ok {
		return Frame{}, FrameSkip, false
	}

	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		return Frame{}, FrameSkip, false
	}

	switch strings.ToLower(env.Type) {
	case "done", "end", "complete":
		return Frame{}, FrameTerminal, true
	case "error":
		msg := env.Error
		if msg == "" {
			msg = env.Message
		}
		return Frame{Err: msg}, FrameError, true
	case "", "token", "text", "delta", "message", "chunk":
	default:
		// status, thinking, sources and similar side channels
		return Frame{}, FrameSkip, true
	}

	frame := Frame{Structured: env.StructuredData}
	switch {
	case env.Text != nil:
		frame.Text = *env.Text
	case env.Content != nil:
		frame.Text = *env.Content
	default:
		if len(env.StructuredData) == 0 {
			// A JSON object that is not an envelope at all.
			return Frame{}, FrameSkip, false
		}
	}
	return frame, FrameData, true
}

func errorMessage(data string) string {
	trimmed := strings.TrimSpace(data)
	if strings.HasPrefix(trimmed, "{") {
		var env envelope
		if err := json.Unmarshal([]byte(trimmed), &env); err == nil {
			if env.Error != "" {
				return env.Error
			}
			if env.Message != "" {
				return env.Message
			}
		}
	}
	return trimmed
}
