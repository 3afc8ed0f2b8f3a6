// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package stream

import (
	"errors"
	"fmt"
	"mime"
	"strings"

	"golang.org/x/text/encoding/htmlindex"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// Decoder converts response bytes to text incrementally.
//
// A multi-byte sequence split across two Decode calls is held back until
// the remaining bytes arrive, so callers never see a corrupted partial
// character. Invalid sequences become U+FFFD. Flush releases whatever is
// still pending at end of stream.
//
// Decoder is not safe for concurrent use; each Session owns one.
type Decoder struct {
	t       transform.Transformer
	pending []byte
	dst     []byte
}

// NewDecoder returns a UTF-8 decoder.
func NewDecoder() *Decoder {
	return newDecoder(unicode.UTF8.NewDecoder())
}

// NewDecoderForCharset returns a decoder for an IANA/WHATWG charset label
// such as "utf-8", "iso-8859-1" or "windows-1252". An empty label means
// UTF-8.
func NewDecoderForCharset(label string) (*Decoder, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		return NewDecoder(), nil
	}
	enc, err := htmlindex.Get(label)
	if err != nil {
		return nil, fmt.Errorf("unsupported charset %q: %w", label, err)
	}
	if enc == unicode.UTF8 {
		return NewDecoder(), nil
	}
	return newDecoder(enc.NewDecoder()), nil
}

// NewDecoderForContentType picks the decoder from a Content-Type header
// value. Missing or unknown charsets fall back to UTF-8.
func NewDecoderForContentType(contentType string) *Decoder {
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return NewDecoder()
	}
	dec, err := NewDecoderForCharset(params["charset"])
	if err != nil {
		return NewDecoder()
	}
	return dec
}

func newDecoder(t transform.Transformer) *Decoder {
	return &Decoder{t: t, dst: make([]byte, 4096)}
}

// Decode appends p to the pending input and returns all text that can be
// decoded without more data.
func (d *Decoder) Decode(p []byte) (string, error) {
	d.pending = append(d.pending, p...)
	return d.run(false)
}

// Flush decodes everything still pending, treating it as the end of input,
// and resets the decoder.
func (d *Decoder) Flush() (string, error) {
	out, err := d.run(true)
	d.pending = nil
	d.t.Reset()
	return out, err
}

// Pending reports how many undecoded bytes are being held back.
func (d *Decoder) Pending() int {
	return len(d.pending)
}

func (d *Decoder) run(atEOF bool) (string, error) {
	var out strings.Builder
	for len(d.pending) > 0 {
		nDst, nSrc, err := d.t.Transform(d.dst, d.pending, atEOF)
		out.Write(d.dst[:nDst])
		d.pending = d.pending[nSrc:]

		switch {
		case err == nil:
			if nSrc == 0 && nDst == 0 {
				return out.String(), nil
			}
		case errors.Is(err, transform.ErrShortDst):
			if nSrc == 0 && nDst == 0 {
				d.dst = make([]byte, 2*len(d.dst))
			}
		case errors.Is(err, transform.ErrShortSrc) && !atEOF:
			d.pending = append([]byte(nil), d.pending...)
			return out.String(), nil
		default:
			return out.String(), fmt.Errorf("decode: %w", err)
		}
	}
	d.pending = d.pending[:0]
	return out.String(), nil
}
