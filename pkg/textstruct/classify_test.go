// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package textstruct

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Numbered
// =============================================================================

func TestClassify_NumberedEmphasisTitles(t *testing.T) {
	got := Classify("1. **Alpha**: one\n2. **Beta**: two")

	n, ok := got.(Numbered)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, []NumberedSection{
		{Index: "1", Title: "Alpha", Content: "one"},
		{Index: "2", Title: "Beta", Content: "two"},
	}, n.Sections)
	assert.Empty(t, n.Intro)
}

func TestClassify_NumberedVariants(t *testing.T) {
	tests := []struct {
		name     string
		text     string
		sections []NumberedSection
		intro    string
		outro    string
	}{
		{
			name: "colon terminated titles",
			text: "1. Install: run the installer\n2. Configure: edit the file",
			sections: []NumberedSection{
				{Index: "1", Title: "Install", Content: "run the installer"},
				{Index: "2", Title: "Configure", Content: "edit the file"},
			},
		},
		{
			name: "emphasis preferred over colon",
			text: "1. **Setup:** do this: carefully\n2) __Run__ - go",
			sections: []NumberedSection{
				{Index: "1", Title: "Setup", Content: "do this: carefully"},
				{Index: "2", Title: "Run", Content: "go"},
			},
		},
		{
			name: "intro continuation and outro",
			text: "Here is the plan.\n\n1. **First**\ncontinued line\n2. **Second**: body\n\nGood luck!",
			sections: []NumberedSection{
				{Index: "1", Title: "First", Content: "continued line"},
				{Index: "2", Title: "Second", Content: "body"},
			},
			intro: "Here is the plan.",
			outro: "Good luck!",
		},
		{
			name: "untitled numbered line still splits",
			text: "1. **Title**: a\n2. just text",
			sections: []NumberedSection{
				{Index: "1", Title: "Title", Content: "a"},
				{Index: "2", Title: "", Content: "just text"},
			},
		},
		{
			name: "paragraph between sections is an aside",
			text: "1. **A**: one\n\nextra words\n\n2. **B**: two",
			sections: []NumberedSection{
				{Index: "1", Title: "A", Content: "one", Aside: "extra words"},
				{Index: "2", Title: "B", Content: "two"},
			},
		},
		{
			name: "blank line ends the content run",
			text: "1. **Alpha**: one\n\nUnrelated remark.\n2. **Beta**: two",
			sections: []NumberedSection{
				{Index: "1", Title: "Alpha", Content: "one", Aside: "Unrelated remark."},
				{Index: "2", Title: "Beta", Content: "two"},
			},
		},
		{
			name: "run continues until the blank line",
			text: "1. **Alpha**: one\nstill one\n\nnot one\n2. **Beta**: two\n\nThe end.",
			sections: []NumberedSection{
				{Index: "1", Title: "Alpha", Content: "one\nstill one", Aside: "not one"},
				{Index: "2", Title: "Beta", Content: "two"},
			},
			outro: "The end.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.text)
			n, ok := got.(Numbered)
			require.True(t, ok, "got %T", got)
			assert.Equal(t, tt.sections, n.Sections)
			assert.Equal(t, tt.intro, n.Intro)
			assert.Equal(t, tt.outro, n.Outro)
		})
	}
}

func TestClassify_NumberedRequiresATitle(t *testing.T) {
	got := Classify("1. first thing\n2. second thing")
	assert.Equal(t, ShapeSimple, got.Shape())
}

func TestClassify_TimeIsNotATitle(t *testing.T) {
	got := Classify("1. Meet at 10:30 in the lobby\n2. Bring a badge")
	assert.Equal(t, ShapeSimple, got.Shape())
}

// =============================================================================
// Bulleted
// =============================================================================

func TestClassify_SimpleBulletList(t *testing.T) {
	got := Classify("- a\n- b\n- c")

	b, ok := got.(Bulleted)
	require.True(t, ok, "got %T", got)
	require.Len(t, b.Sections, 1)
	assert.Equal(t, []string{"a", "b", "c"}, b.Sections[0].Items)
	assert.Empty(t, b.Sections[0].Title)
}

func TestClassify_BulletGlyphs(t *testing.T) {
	got := Classify("* apples\n• pears\n- plums")
	b, ok := got.(Bulleted)
	require.True(t, ok)
	assert.Equal(t, []string{"apples", "pears", "plums"}, b.Sections[0].Items)
}

func TestClassify_TitledBulletSections(t *testing.T) {
	text := "Sure, here you go.\n\n**Fruits**\n- apple\n- pear\n\nVegetables:\n- kale"
	got := Classify(text)

	b, ok := got.(Bulleted)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "Sure, here you go.", b.Intro)
	assert.Equal(t, []BulletSection{
		{Title: "Fruits", Items: []string{"apple", "pear"}},
		{Title: "Vegetables", Items: []string{"kale"}},
	}, b.Sections)
	assert.Equal(t, "Sure, here you go.", Intro(got))
}

func TestClassify_TitlesWithPlainItems(t *testing.T) {
	got := Classify("Morning:\ncoffee\ntoast\nEvening:\ntea")

	b, ok := got.(Bulleted)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, []BulletSection{
		{Title: "Morning", Items: []string{"coffee", "toast"}},
		{Title: "Evening", Items: []string{"tea"}},
	}, b.Sections)
}

func TestClassify_ColonLineWithOneAnswerStaysSimple(t *testing.T) {
	got := Classify("The answer to your question is:\n42")
	assert.Equal(t, ShapeSimple, got.Shape())
}

func TestClassify_TrailingProseBreaksBulletList(t *testing.T) {
	got := Classify("- one\n- two\nThat is all for today.")
	assert.Equal(t, ShapeSimple, got.Shape())
}

func TestClassify_TitleWithoutItemsIsNotBulleted(t *testing.T) {
	got := Classify("Summary:\n- point\nConclusion:")
	assert.Equal(t, ShapeSimple, got.Shape())
}

func TestClassify_NumberedBeatsBulleted(t *testing.T) {
	got := Classify("1. **Prep**: gather\n- flour\n- eggs\n2. **Bake**: 30 minutes")
	n, ok := got.(Numbered)
	require.True(t, ok, "got %T", got)
	assert.Equal(t, "gather\n- flour\n- eggs", n.Sections[0].Content)
}

// =============================================================================
// Simple
// =============================================================================

func TestClassify_SimpleParagraphs(t *testing.T) {
	got := Classify("First paragraph here.\n\nSecond one\nwith two lines.\n \n\nThird.")

	s, ok := got.(Simple)
	require.True(t, ok)
	assert.Equal(t, []string{"First paragraph here.", "Second one\nwith two lines.", "Third."}, s.Paragraphs)
	assert.Empty(t, Intro(got))
}

func TestClassify_ShortInputIsSimple(t *testing.T) {
	for _, text := range []string{"", "   ", "- a\n- b", "1. **A**"} {
		got := Classify(text)
		assert.Equal(t, ShapeSimple, got.Shape(), "%q", text)
	}
}

func TestClassifier_MinLength(t *testing.T) {
	text := "- a\n- b\n- c"
	assert.Equal(t, ShapeBulleted, Classifier{MinLength: 5}.Classify(text).Shape())
	assert.Equal(t, ShapeSimple, Classifier{MinLength: 50}.Classify(text).Shape())
}

func TestClassify_CRLF(t *testing.T) {
	got := Classify("1. **Alpha**: one\r\n2. **Beta**: two\r\n")
	n, ok := got.(Numbered)
	require.True(t, ok)
	assert.Equal(t, "one", n.Sections[0].Content)
}

// =============================================================================
// Properties
// =============================================================================

func TestClassify_TotalAndDeterministic(t *testing.T) {
	inputs := []string{
		"",
		"{}",
		"***",
		"- \n- \n- ",
		"1.\n2.\n3.",
		"::::::::::::",
		"**bold**\n**bold**",
		strings.Repeat("1. **x**: y\n", 200),
		strings.Repeat("a", 10000),
		"1) __x__\n\n\n\n- y\n• z\nTitle:\nitem",
	}
	for _, in := range inputs {
		first := Classify(in)
		second := Classify(in)
		require.NotNil(t, first)
		assert.Equal(t, first, second)
		switch first.(type) {
		case Simple, Numbered, Bulleted:
		default:
			t.Fatalf("unexpected variant %T", first)
		}
	}
}

func TestClassify_StreamedPrefixesEndInSameResult(t *testing.T) {
	final := "Steps:\n\n1. **Download**: get it\n2. **Install**: run it\n\nDone."
	want := Classify(final)

	var acc strings.Builder
	for _, r := range final {
		acc.WriteRune(r)
		_ = Classify(acc.String()) // live snapshots must not panic
	}
	assert.Equal(t, want, Classify(acc.String()))
}

func TestCleanTitle(t *testing.T) {
	tests := map[string]string{
		"**Alpha**":   "Alpha",
		"**Alpha:**":  "Alpha",
		"__Beta__:":   "Beta",
		"Gamma:":      "Gamma",
		"*Delta*":     "Delta",
		" Epsilon :: ": "Epsilon",
		"**":          "**",
	}
	for in, want := range tests {
		assert.Equal(t, want, cleanTitle(in), in)
	}
}

func TestContent_MarshalJSON(t *testing.T) {
	out, err := json.Marshal(Classify("- a\n- b\n- c"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":"bulleted","sections":[{"items":["a","b","c"]}]}`, string(out))

	out, err = json.Marshal(Classify("hi"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"shape":"simple","text":"hi","paragraphs":["hi"]}`, string(out))
}

func TestShape_String(t *testing.T) {
	assert.Equal(t, "simple", ShapeSimple.String())
	assert.Equal(t, "numbered", ShapeNumbered.String())
	assert.Equal(t, "bulleted", ShapeBulleted.String())
}
