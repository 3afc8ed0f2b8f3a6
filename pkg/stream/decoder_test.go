// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Decoder Tests
// =============================================================================

func TestDecoder_SplitMultiByteAtEveryOffset(t *testing.T) {
	input := []byte("héllo wörld 👋 done")

	for split := 0; split <= len(input); split++ {
		dec := NewDecoder()
		first, err := dec.Decode(input[:split])
		require.NoError(t, err)
		second, err := dec.Decode(input[split:])
		require.NoError(t, err)
		tail, err := dec.Flush()
		require.NoError(t, err)

		assert.Equal(t, string(input), first+second+tail, "split at %d", split)
		assert.NotContains(t, first, "�", "split at %d", split)
	}
}

func TestDecoder_ByteAtATime(t *testing.T) {
	input := []byte("日本語テキスト")
	dec := NewDecoder()

	var out strings.Builder
	for _, b := range input {
		text, err := dec.Decode([]byte{b})
		require.NoError(t, err)
		out.WriteString(text)
	}
	tail, err := dec.Flush()
	require.NoError(t, err)
	out.WriteString(tail)

	assert.Equal(t, string(input), out.String())
}

func TestDecoder_HoldsBackIncompleteSequence(t *testing.T) {
	dec := NewDecoder()
	euro := []byte("€") // 3 bytes

	text, err := dec.Decode(euro[:2])
	require.NoError(t, err)
	assert.Empty(t, text)
	assert.Equal(t, 2, dec.Pending())

	text, err = dec.Decode(euro[2:])
	require.NoError(t, err)
	assert.Equal(t, "€", text)
	assert.Equal(t, 0, dec.Pending())
}

func TestDecoder_FlushReplacesTruncatedSequence(t *testing.T) {
	dec := NewDecoder()
	_, err := dec.Decode([]byte{'a', 0xE2, 0x82})
	require.NoError(t, err)

	tail, err := dec.Flush()
	require.NoError(t, err)
	assert.True(t, utf8.ValidString(tail))
	assert.Contains(t, tail, "\uFFFD")
	assert.Equal(t, 0, dec.Pending())
}

func TestDecoder_InvalidBytesBecomeReplacement(t *testing.T) {
	dec := NewDecoder()
	text, err := dec.Decode([]byte{'o', 'k', 0xFF, '!'})
	require.NoError(t, err)
	assert.Equal(t, "ok�!", text)
}

func TestDecoder_Latin1FromContentType(t *testing.T) {
	dec := NewDecoderForContentType("text/plain; charset=ISO-8859-1")
	text, err := dec.Decode([]byte{'c', 'a', 'f', 0xE9})
	require.NoError(t, err)
	assert.Equal(t, "café", text)
}

func TestNewDecoderForCharset_Unknown(t *testing.T) {
	_, err := NewDecoderForCharset("klingon-8")
	assert.Error(t, err)
}

func TestNewDecoderForContentType_FallsBackToUTF8(t *testing.T) {
	dec := NewDecoderForContentType("text/event-stream; charset=nope")
	text, err := dec.Decode([]byte("ünïcode"))
	require.NoError(t, err)
	assert.Equal(t, "ünïcode", text)
}

// =============================================================================
// LineFramer Tests
// =============================================================================

func TestLineFramer_RetainsPartialLine(t *testing.T) {
	f := &LineFramer{}

	assert.Empty(t, f.Push("hel"))
	assert.Equal(t, []string{"hello"}, f.Push("lo\nwor"))
	assert.Equal(t, 3, f.Buffered())
	assert.Equal(t, []string{"world", ""}, f.Push("ld\r\n\n"))

	_, ok := f.Flush()
	assert.False(t, ok)
}

func TestLineFramer_FlushReturnsRemainder(t *testing.T) {
	f := &LineFramer{}
	f.Push("a\nlast")

	line, ok := f.Flush()
	require.True(t, ok)
	assert.Equal(t, "last", line)

	_, ok = f.Flush()
	assert.False(t, ok)
}
