// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package links

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Extract
// =============================================================================

func TestExtract_MarkdownLink(t *testing.T) {
	got := Extract("Visit [Example](https://example.com) today")

	require.Len(t, got, 1)
	assert.Equal(t, Item{URL: "https://example.com", DisplayTitle: "Example", Kind: KindWeb}, got[0])
}

func TestExtract_LongMarkdownTarget(t *testing.T) {
	url := "https://example.com/" + strings.Repeat("a", 900)

	got := Extract("See [Long](" + url + ") for details")
	require.Len(t, got, 1)
	assert.Equal(t, Item{URL: url, DisplayTitle: "Long", Kind: KindWeb}, got[0])

	wrapped := "[Long](https://example.com/ " + strings.Repeat("a", 900) + ")"
	assert.Equal(t, "[Long]("+url+")", Sanitize(wrapped))
}

func TestExtract_Forms(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []Item
	}{
		{
			name: "scheme url with trailing period",
			text: "Docs live at https://docs.example.com/guide.",
			want: []Item{{URL: "https://docs.example.com/guide", DisplayTitle: "https://docs.example.com/guide", Kind: KindWeb}},
		},
		{
			name: "www host gets https",
			text: "Try www.example.org, it helps",
			want: []Item{{URL: "https://www.example.org", DisplayTitle: "www.example.org", Kind: KindWeb}},
		},
		{
			name: "mailto",
			text: "Write to mailto:help@example.com!",
			want: []Item{{URL: "mailto:help@example.com", DisplayTitle: "help@example.com", Kind: KindEmail}},
		},
		{
			name: "bare email",
			text: "Contact sales@example.co.uk.",
			want: []Item{{URL: "mailto:sales@example.co.uk", DisplayTitle: "sales@example.co.uk", Kind: KindEmail}},
		},
		{
			name: "markdown email target",
			text: "[Email us](mailto:hi@example.com)",
			want: []Item{{URL: "mailto:hi@example.com", DisplayTitle: "Email us", Kind: KindEmail}},
		},
		{
			name: "markdown www target",
			text: "[Site](www.example.com)",
			want: []Item{{URL: "https://www.example.com", DisplayTitle: "Site", Kind: KindWeb}},
		},
		{
			name: "balanced parentheses kept",
			text: "See https://en.wikipedia.org/wiki/Go_(language) for more",
			want: []Item{{URL: "https://en.wikipedia.org/wiki/Go_(language)", DisplayTitle: "https://en.wikipedia.org/wiki/Go_(language)", Kind: KindWeb}},
		},
		{
			name: "url in parentheses",
			text: "(see https://example.com/a)",
			want: []Item{{URL: "https://example.com/a", DisplayTitle: "https://example.com/a", Kind: KindWeb}},
		},
		{
			name: "bold url",
			text: "**https://example.com**",
			want: []Item{{URL: "https://example.com", DisplayTitle: "https://example.com", Kind: KindWeb}},
		},
		{
			name: "no links",
			text: "Nothing to see: here. Not an email @ all.",
			want: []Item{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Extract(tt.text))
		})
	}
}

func TestExtract_OrderAndDuplicates(t *testing.T) {
	text := "First www.a.com then [B](https://b.com), mail x@y.io, again www.a.com"
	got := Extract(text)

	urls := make([]string, len(got))
	for i, it := range got {
		urls[i] = it.URL
	}
	assert.Equal(t, []string{"https://www.a.com", "https://b.com", "mailto:x@y.io", "https://www.a.com"}, urls)
}

func TestExtract_NoNestedDuplicates(t *testing.T) {
	got := Extract("Go to https://www.example.com or email mailto:a@b.com")
	require.Len(t, got, 2)
	assert.Equal(t, "https://www.example.com", got[0].URL)
	assert.Equal(t, KindEmail, got[1].Kind)
}

func TestExtract_RepairsWrappedURL(t *testing.T) {
	got := Extract("Read https://example.com/very-long-\npath/page.html now")
	require.Len(t, got, 1)
	assert.Equal(t, "https://example.com/very-long-path/page.html", got[0].URL)
}

func TestExtract_ChunkIndependent(t *testing.T) {
	final := "See [Docs](https://docs.example.com/a) and www.b.org or c@d.com."
	want := Extract(final)
	for split := 0; split <= len(final); split++ {
		assert.Equal(t, want, Extract(final[:split]+final[split:]))
	}
}

// =============================================================================
// Sanitize
// =============================================================================

func TestSanitize_Repairs(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "markdown target whitespace",
			in:   "[Guide](https://example.com/ docs/\n getting-started)",
			want: "[Guide](https://example.com/docs/getting-started)",
		},
		{
			name: "spaced scheme",
			in:   "Open https: //example.com now",
			want: "Open https://example.com now",
		},
		{
			name: "scheme split over lines",
			in:   "Open https://\n   example.com now",
			want: "Open https://example.com now",
		},
		{
			name: "hyphen wrap",
			in:   "at https://my-long-\n  domain.example.com/x ok",
			want: "at https://my-long-domain.example.com/x ok",
		},
		{
			name: "slash wrap",
			in:   "at https://example.com/docs/\nguide.html ok",
			want: "at https://example.com/docs/guide.html ok",
		},
		{
			name: "repeated wraps",
			in:   "https://a.com/one-\ntwo-\nthree",
			want: "https://a.com/one-two-three",
		},
		{
			name: "slash then prose is left alone",
			in:   "Visit https://example.com/\nThen log in.",
			want: "Visit https://example.com/\nThen log in.",
		},
		{
			name: "hyphen outside url untouched",
			in:   "well-\nknown fact",
			want: "well-\nknown fact",
		},
		{
			name: "non-link parentheses untouched",
			in:   "[note](see the  appendix)",
			want: "[note](see the  appendix)",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Sanitize(tt.in))
		})
	}
}

func TestSanitize_Idempotent(t *testing.T) {
	inputs := []string{
		"",
		"plain text",
		"[a](https://x.com/ a b c)",
		"https : // x.com/p-\nq-\nr/\ns.t",
		"www.example.com/a-\n\nb",
		"mailto:  a@b.com",
		"http://\n\nnext",
		"[x](www.a .com)[y](http: //b.com)",
	}
	for _, in := range inputs {
		once := Sanitize(in)
		assert.Equal(t, once, Sanitize(once), "%q", in)
	}
}

func TestKind_JSON(t *testing.T) {
	out, err := json.Marshal(Item{URL: "mailto:a@b.co", DisplayTitle: "a@b.co", Kind: KindEmail})
	require.NoError(t, err)
	assert.JSONEq(t, `{"url":"mailto:a@b.co","display_title":"a@b.co","kind":"email"}`, string(out))
	assert.Equal(t, "web", KindWeb.String())
}
