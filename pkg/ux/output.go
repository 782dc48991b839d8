// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

// Launchpad palette.
var (
	ColorAccent  = lipgloss.Color("#20B9B4")
	ColorBright  = lipgloss.Color("#2CD7C7")
	ColorBorder  = lipgloss.Color("#16858E")
	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
	ColorMuted   = lipgloss.Color("#5B7A84")
)

// Styles provides pre-configured lipgloss styles.
var Styles = struct {
	Title   lipgloss.Style
	Bold    lipgloss.Style
	Muted   lipgloss.Style
	Success lipgloss.Style
	Warning lipgloss.Style
	Error   lipgloss.Style

	Box        lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style
	Header     lipgloss.Style
	Cell       lipgloss.Style
}{
	Title:   lipgloss.NewStyle().Bold(true).Foreground(ColorBright),
	Bold:    lipgloss.NewStyle().Bold(true),
	Muted:   lipgloss.NewStyle().Foreground(ColorMuted),
	Success: lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning: lipgloss.NewStyle().Foreground(ColorWarning),
	Error:   lipgloss.NewStyle().Foreground(ColorError),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorBorder).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
	Header: lipgloss.NewStyle().Bold(true).Foreground(ColorAccent).Padding(0, 1),
	Cell:   lipgloss.NewStyle().Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
)

// Render returns the icon with its color.
func (i Icon) Render() string {
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	case IconPending:
		return Styles.Muted.Render(string(i))
	default:
		return string(i)
	}
}

// Printer writes styled command output.
//
// # Description
//
// Out receives results; Err receives warnings and errors. In ModeMachine
// every line is prefixed (OK:, WARN:, ERROR:) and nothing is styled, so CI
// logs stay greppable.
//
// # Thread Safety
//
// A Printer is not safe for concurrent use.
type Printer struct {
	Out  io.Writer
	Err  io.Writer
	Mode Mode
}

// NewPrinter returns a printer. A nil err writer falls back to out.
func NewPrinter(out, errOut io.Writer, mode Mode) *Printer {
	if errOut == nil {
		errOut = out
	}
	return &Printer{Out: out, Err: errOut, Mode: mode}
}

func (p *Printer) styled(s lipgloss.Style, text string) string {
	if p.Mode != ModeRich {
		return text
	}
	return s.Render(text)
}

func (p *Printer) icon(i Icon) string {
	if p.Mode != ModeRich {
		return string(i)
	}
	return i.Render()
}

// Title prints a heading. Machine mode skips it.
func (p *Printer) Title(text string) {
	if p.Mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.Out, p.styled(Styles.Title, text))
}

// Success prints a success line.
func (p *Printer) Success(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Out, "OK: %s\n", text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", p.icon(IconSuccess), p.styled(Styles.Success, text))
}

// Warning prints a warning line to Err.
func (p *Printer) Warning(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Err, "WARN: %s\n", text)
		return
	}
	fmt.Fprintf(p.Err, "%s %s\n", p.icon(IconWarning), p.styled(Styles.Warning, text))
}

// Error prints an error line to Err.
func (p *Printer) Error(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Err, "ERROR: %s\n", text)
		return
	}
	fmt.Fprintf(p.Err, "%s %s\n", p.icon(IconError), p.styled(Styles.Error, text))
}

// Info prints an informational line.
func (p *Printer) Info(text string) {
	if p.Mode == ModeMachine {
		fmt.Fprintln(p.Out, text)
		return
	}
	fmt.Fprintf(p.Out, "%s %s\n", p.styled(Styles.Muted, "│"), text)
}

// Muted prints secondary text. Machine mode skips it.
func (p *Printer) Muted(text string) {
	if p.Mode == ModeMachine {
		return
	}
	fmt.Fprintln(p.Out, p.styled(Styles.Muted, text))
}

// Box prints content under a title in a rounded box.
func (p *Printer) Box(title, content string) {
	p.box(Styles.Box, Styles.Title, p.Out, "", title, content)
}

// WarningBox prints content in a warning box on Err.
func (p *Printer) WarningBox(title, content string) {
	p.box(Styles.WarningBox, Styles.Warning.Bold(true), p.Err, "WARN ", title, content)
}

// ErrorBox prints content in an error box on Err.
func (p *Printer) ErrorBox(title, content string) {
	p.box(Styles.ErrorBox, Styles.Error.Bold(true), p.Err, "ERROR ", title, content)
}

func (p *Printer) box(frame, heading lipgloss.Style, w io.Writer, prefix, title, content string) {
	switch p.Mode {
	case ModeMachine:
		fmt.Fprintf(w, "%s%s: %s\n", prefix, title, strings.ReplaceAll(content, "\n", "; "))
	case ModePlain:
		fmt.Fprintf(w, "%s\n%s\n", title, content)
	default:
		fmt.Fprintln(w, frame.Width(72).Render(heading.Render(title)+"\n"+content))
	}
}

// Table prints rows under headers. Machine mode prints tab-separated
// lines without the header.
func (p *Printer) Table(headers []string, rows [][]string) {
	if p.Mode == ModeMachine {
		for _, r := range rows {
			fmt.Fprintln(p.Out, strings.Join(r, "\t"))
		}
		return
	}
	t := table.New().Headers(headers...).Rows(rows...)
	if p.Mode == ModeRich {
		t = t.Border(lipgloss.RoundedBorder()).
			BorderStyle(lipgloss.NewStyle().Foreground(ColorBorder)).
			StyleFunc(func(row, _ int) lipgloss.Style {
				if row == table.HeaderRow {
					return Styles.Header
				}
				return Styles.Cell
			})
	} else {
		t = t.Border(lipgloss.NormalBorder()).
			StyleFunc(func(int, int) lipgloss.Style { return lipgloss.NewStyle().Padding(0, 1) })
	}
	fmt.Fprintln(p.Out, t.Render())
}

// Summary prints "n label" pairs on one line.
func (p *Printer) Summary(pairs ...any) {
	var parts []string
	for i := 0; i+1 < len(pairs); i += 2 {
		label := fmt.Sprint(pairs[i])
		value := fmt.Sprint(pairs[i+1])
		if p.Mode == ModeMachine {
			parts = append(parts, label+"="+value)
			continue
		}
		parts = append(parts, p.styled(Styles.Bold, value)+" "+p.styled(Styles.Muted, label))
	}
	if p.Mode == ModeMachine {
		fmt.Fprintf(p.Out, "SUMMARY: %s\n", strings.Join(parts, " "))
		return
	}
	fmt.Fprintf(p.Out, "\n%s\n", strings.Join(parts, "  "))
}
