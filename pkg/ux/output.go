// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package ux prints chat turns to a terminal.
package ux

import (
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Aleutian color palette - deep ocean teals and arctic waters
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7") // highlights
	ColorTealPrimary = lipgloss.Color("#20B9B4") // main brand color
	ColorTealDeep    = lipgloss.Color("#16858E") // borders
	ColorSlate       = lipgloss.Color("#2C4A54") // muted text
	ColorWarning     = lipgloss.Color("#F4D03F")
	ColorError       = lipgloss.Color("#E74C3C")
)

// Mode controls how much styling output gets.
type Mode string

const (
	// ModeRich uses colors, borders and icons.
	ModeRich Mode = "rich"

	// ModePlain prints the same layout without escape codes.
	ModePlain Mode = "plain"

	// ModeMachine prints JSON only, for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode converts a string to a Mode, defaulting to ModeRich.
func ParseMode(s string) Mode {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModePlain:
		return ModePlain
	case ModeMachine, "json":
		return ModeMachine
	default:
		return ModeRich
	}
}

// DetectMode picks ModeRich for terminals and ModePlain for everything
// else. NO_COLOR forces ModePlain.
func DetectMode(w io.Writer) Mode {
	if os.Getenv("NO_COLOR") != "" {
		return ModePlain
	}
	f, ok := w.(*os.File)
	if !ok {
		return ModePlain
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeRich
	}
	return ModePlain
}

// styles are built per writer so color detection follows the output, not
// os.Stdout.
type styles struct {
	Title    lipgloss.Style
	Subtitle lipgloss.Style
	Bold     lipgloss.Style
	Muted    lipgloss.Style
	Warning  lipgloss.Style
	Error    lipgloss.Style
	Link     lipgloss.Style
	Box      lipgloss.Style
	ErrorBox lipgloss.Style
	Border   lipgloss.Style
}

func newStyles(w io.Writer, mode Mode) styles {
	r := lipgloss.NewRenderer(w)
	if mode != ModeRich {
		return styles{
			Title:    r.NewStyle(),
			Subtitle: r.NewStyle(),
			Bold:     r.NewStyle(),
			Muted:    r.NewStyle(),
			Warning:  r.NewStyle(),
			Error:    r.NewStyle(),
			Link:     r.NewStyle(),
			Box:      r.NewStyle(),
			ErrorBox: r.NewStyle(),
			Border:   r.NewStyle(),
		}
	}
	return styles{
		Title:    r.NewStyle().Bold(true).Foreground(ColorTealBright),
		Subtitle: r.NewStyle().Foreground(ColorTealPrimary),
		Bold:     r.NewStyle().Bold(true),
		Muted:    r.NewStyle().Foreground(ColorSlate),
		Warning:  r.NewStyle().Foreground(ColorWarning),
		Error:    r.NewStyle().Foreground(ColorError),
		Link:     r.NewStyle().Underline(true).Foreground(ColorTealPrimary),
		Box: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorTealDeep).
			Padding(0, 1),
		ErrorBox: r.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(ColorError).
			Padding(0, 1),
		Border: r.NewStyle().Foreground(ColorTealDeep),
	}
}

// Icon is a themed status glyph.
type Icon string

const (
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
)
