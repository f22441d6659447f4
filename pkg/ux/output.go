// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the testsync CLI.
package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorRunning = lipgloss.Color("#5DADE2")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style
	Running lipgloss.Style
	Box     lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorSlate),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),
	Running: lipgloss.NewStyle().Foreground(ColorRunning),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a themed status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconRunning Icon = "↻"
	IconSkipped Icon = "⊘"
	IconNone    Icon = "·"
	IconBullet  Icon = "•"
)

// Render returns the icon with its style applied.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconRunning:
		return Styles.Running.Render(string(i))
	case IconPending, IconSkipped, IconNone:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// StateIcon maps a result state name to its icon.
func StateIcon(state string) Icon {
	switch state {
	case "passed":
		return IconSuccess
	case "failed":
		return IconError
	case "errored":
		return IconWarning
	case "running":
		return IconRunning
	case "queued":
		return IconPending
	case "skipped":
		return IconSkipped
	default:
		return IconNone
	}
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes styled lines to w. In machine mode output is plain,
// tab-separated and free of ANSI sequences.
type Printer struct {
	w       io.Writer
	machine bool
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer, machine bool) *Printer {
	return &Printer{w: w, machine: machine}
}

// Machine reports whether the printer emits plain output.
func (p *Printer) Machine() bool { return p.machine }

// Title prints a heading. Suppressed in machine mode.
func (p *Printer) Title(text string) {
	if p.machine {
		return
	}
	fmt.Fprintln(p.w, Styles.Title.Render(text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.machine {
		fmt.Fprintf(p.w, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning line.
func (p *Printer) Warning(text string) {
	if p.machine {
		fmt.Fprintf(p.w, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.machine {
		fmt.Fprintln(p.w, text)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", Styles.Muted.Render("│"), text)
}

// TreeLine prints one node of an indented tree.
func (p *Printer) TreeLine(depth int, icon Icon, label, detail string) {
	if p.machine {
		fmt.Fprintf(p.w, "%d\t%s\t%s\t%s\n", depth, icon, label, detail)
		return
	}
	line := strings.Repeat("  ", depth) + icon.Render() + " " + label
	if detail != "" {
		line += " " + Styles.Muted.Render(detail)
	}
	fmt.Fprintln(p.w, line)
}

// Stat is a labelled count for Summary.
type Stat struct {
	Label string
	Value int
}

// Summary prints counts on one line.
func (p *Printer) Summary(stats ...Stat) {
	parts := make([]string, 0, len(stats))
	for _, s := range stats {
		if p.machine {
			parts = append(parts, fmt.Sprintf("%s=%d", s.Label, s.Value))
			continue
		}
		parts = append(parts, Styles.Bold.Render(fmt.Sprintf("%d", s.Value))+" "+Styles.Muted.Render(s.Label))
	}
	if p.machine {
		fmt.Fprintf(p.w, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	fmt.Fprintln(p.w, strings.Join(parts, "  "))
}

// Box prints content in a rounded box.
func (p *Printer) Box(title, content string) {
	if p.machine {
		fmt.Fprintf(p.w, "%s: %s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}
