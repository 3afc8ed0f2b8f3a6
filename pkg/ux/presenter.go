// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/AleutianAI/AleutianChat/pkg/pipeline"
	"github.com/AleutianAI/AleutianChat/pkg/render"
)

// Presenter prints one chat turn as it streams.
//
// # Description
//
// Prose is printed as it arrives. When a payload replaces the prose the
// replacement is printed on a fresh line. Once the turn is done the views
// are printed below, except a plain paragraphs view, which would only
// repeat the prose. ModeMachine prints nothing until the end and then the
// Result as JSON.
//
// # Thread Safety
//
// Safe for concurrent use, though updates are expected in order.
type Presenter struct {
	w     io.Writer
	mode  Mode
	st    styles
	mu    sync.Mutex
	wrote bool
}

// NewPresenter creates a Presenter. A nil writer means os.Stdout.
func NewPresenter(w io.Writer, mode Mode) *Presenter {
	if w == nil {
		w = os.Stdout
	}
	return &Presenter{w: w, mode: mode, st: newStyles(w, mode)}
}

// OnUpdate prints one update.
func (p *Presenter) OnUpdate(u pipeline.Update) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode == ModeMachine {
		if u.Terminal() && u.Result != nil {
			return writeJSON(p.w, u.Result)
		}
		return nil
	}

	switch u.Kind {
	case pipeline.UpdateProse:
		if u.Reset && p.wrote {
			if _, err := fmt.Fprintf(p.w, "\n%s\n", p.st.Muted.Render(string(IconArrow)+" formatted reply")); err != nil {
				return err
			}
		}
		if u.Delta == "" {
			return nil
		}
		p.wrote = true
		_, err := io.WriteString(p.w, u.Delta)
		return err

	case pipeline.UpdateDone:
		if p.wrote {
			if _, err := io.WriteString(p.w, "\n"); err != nil {
				return err
			}
		}
		var views []render.View
		for _, v := range u.Result.Views {
			if v.Renderer == render.NameParagraphs && !v.Fallback {
				continue
			}
			views = append(views, v)
		}
		return p.printViews(views)

	case pipeline.UpdateFailed:
		if p.wrote {
			if _, err := io.WriteString(p.w, "\n"); err != nil {
				return err
			}
		}
		msg := pipeline.Apology
		if u.Result != nil && u.Result.Apology != "" {
			msg = u.Result.Apology
		}
		_, err := fmt.Fprintln(p.w, p.st.ErrorBox.Render(p.st.Error.Render(string(IconError)+" "+msg)))
		return err
	}
	return nil
}

// PrintResult prints a whole, non-streamed Result.
func (p *Presenter) PrintResult(res pipeline.Result) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.mode == ModeMachine {
		return writeJSON(p.w, res)
	}
	if res.Failed {
		_, err := fmt.Fprintln(p.w, p.st.ErrorBox.Render(p.st.Error.Render(string(IconError)+" "+res.Apology)))
		return err
	}
	return p.printViews(res.Views)
}

func (p *Presenter) printViews(views []render.View) error {
	for i, v := range views {
		if i > 0 {
			if _, err := io.WriteString(p.w, "\n"); err != nil {
				return err
			}
		}
		if _, err := fmt.Fprintln(p.w, renderView(v, p.st)); err != nil {
			return err
		}
	}
	return nil
}

// View lays out one view the way the presenter prints it.
func (p *Presenter) View(v render.View) string {
	return renderView(v, p.st)
}

func renderView(v render.View, st styles) string {
	var b strings.Builder
	line := func(s string) {
		b.WriteString(s)
		b.WriteString("\n")
	}

	if v.Fallback {
		line(st.Warning.Render(string(IconWarning) + " shown as raw data"))
	}
	if v.Title != "" {
		line(st.Title.Render(v.Title))
	}
	if v.Text != "" {
		line(v.Text)
	}

	for _, it := range v.Items {
		label := it.Label
		if label == "" {
			label = string(IconBullet)
		}
		text := it.Text
		if it.URL != "" && it.URL != it.Text {
			text = strings.TrimSpace(text + " " + st.Link.Render(it.URL))
		} else if it.URL != "" {
			text = st.Link.Render(it.URL)
		}
		if len(it.Children) > 0 && it.Text != "" {
			text = st.Bold.Render(text)
		}
		line(st.Subtitle.Render(label) + " " + text)
		for _, child := range it.Children {
			for _, l := range strings.Split(child, "\n") {
				line("   " + l)
			}
		}
	}

	if len(v.Rows) > 0 {
		t := table.New().
			Border(lipgloss.RoundedBorder()).
			BorderStyle(st.Border).
			Rows(v.Rows...)
		if len(v.Header) > 0 {
			t = t.Headers(v.Header...)
		}
		line(t.String())
	}

	if len(v.Fields) > 0 {
		width := 0
		for _, f := range v.Fields {
			width = max(width, len(f.Key))
		}
		var card strings.Builder
		for i, f := range v.Fields {
			if i > 0 {
				card.WriteString("\n")
			}
			card.WriteString(st.Bold.Render(fmt.Sprintf("%-*s", width+1, f.Key+":")))
			card.WriteString(" ")
			card.WriteString(f.Value)
		}
		line(st.Box.Render(card.String()))
	}

	if v.Footer != "" {
		line(v.Footer)
	}
	return strings.TrimRight(b.String(), "\n")
}

// WriteJSON prints v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	return writeJSON(w, v)
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
