// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import "strings"

// LineFramer splits decoded text into newline-delimited frames.
//
// Only complete lines are returned; the trailing partial line stays
// buffered until more text arrives or Flush is called. A "\r" before the
// newline is dropped so CRLF streams frame the same as LF streams.
type LineFramer struct {
	partial strings.Builder
}

// Push appends text and returns every line it completes.
func (f *LineFramer) Push(text string) []string {
	var lines []string
	for {
		i := strings.IndexByte(text, '\n')
		if i < 0 {
			f.partial.WriteString(text)
			return lines
		}
		f.partial.WriteString(text[:i])
		lines = append(lines, strings.TrimSuffix(f.partial.String(), "\r"))
		f.partial.Reset()
		text = text[i+1:]
	}
}

// Flush returns the buffered partial line, if any, and empties the buffer.
func (f *LineFramer) Flush() (string, bool) {
	if f.partial.Len() == 0 {
		return "", false
	}
	line := f.partial.String()
	f.partial.Reset()
	return line, true
}

// Buffered reports the length of the partial line in bytes.
func (f *LineFramer) Buffered() int {
	return f.partial.Len()
}
