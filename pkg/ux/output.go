// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux styles terminal output for the conjecture command.
package ux

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette.
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles holds the shared lipgloss styles.
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Key       lipgloss.Style

	Box      lipgloss.Style
	ErrorBox lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Key:       lipgloss.NewStyle().Foreground(ColorTealPrimary).Width(18),

	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),
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

// Render returns the icon colored for its meaning.
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

// Title prints a heading. Machine output omits it.
func Title(text string) {
	if GetPersonality() == PersonalityMachine {
		return
	}
	stdout, _ := writers()
	fmt.Fprintln(stdout, Styles.Title.Render(text))
}

// Success prints a passing line.
func Success(text string) {
	stdout, _ := writers()
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stdout, "OK\t%s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(stdout, "%s %s\n", IconSuccess, text)
	default:
		fmt.Fprintf(stdout, "%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
	}
}

// Warning prints a warning line.
func Warning(text string) {
	stdout, stderr := writers()
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stderr, "WARN\t%s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(stdout, "%s %s\n", IconWarning, text)
	default:
		fmt.Fprintf(stdout, "%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
	}
}

// Error prints a failing line.
func Error(text string) {
	stdout, stderr := writers()
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stderr, "FAIL\t%s\n", text)
	case PersonalityMinimal:
		fmt.Fprintf(stdout, "%s %s\n", IconError, text)
	default:
		fmt.Fprintf(stdout, "%s %s\n", IconError.Render(), Styles.Error.Render(text))
	}
}

// Info prints a secondary line.
func Info(text string) {
	stdout, _ := writers()
	if GetPersonality() == PersonalityMachine {
		fmt.Fprintln(stdout, text)
		return
	}
	fmt.Fprintf(stdout, "%s %s\n", Styles.Muted.Render("│"), text)
}

// Field is one row of a KeyValues block.
type Field struct {
	Key   string
	Value string
}

// KeyValues prints aligned key/value rows. Machine output is key=value
// pairs on one tab-separated line, prefixed by label.
func KeyValues(label string, fields []Field) {
	stdout, _ := writers()
	if GetPersonality() == PersonalityMachine {
		parts := make([]string, 0, len(fields)+1)
		parts = append(parts, label)
		for _, f := range fields {
			parts = append(parts, f.Key+"="+f.Value)
		}
		fmt.Fprintln(stdout, strings.Join(parts, "\t"))
		return
	}
	for _, f := range fields {
		fmt.Fprintf(stdout, "  %s %s\n", Styles.Key.Render(f.Key), f.Value)
	}
}

// Box prints content in a rounded box under a title.
func Box(title, content string) {
	stdout, _ := writers()
	if GetPersonality() != PersonalityFull {
		fmt.Fprintf(stdout, "%s:\n%s\n", title, content)
		return
	}
	fmt.Fprintln(stdout, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// ErrorBox is Box for failures.
func ErrorBox(title, content string) {
	stdout, stderr := writers()
	switch GetPersonality() {
	case PersonalityMachine:
		fmt.Fprintf(stderr, "%s:\n%s\n", title, content)
	case PersonalityMinimal:
		fmt.Fprintf(stdout, "%s:\n%s\n", title, content)
	default:
		fmt.Fprintln(stdout, Styles.ErrorBox.Render(Styles.Error.Bold(true).Render(title)+"\n"+content))
	}
}

// Summary prints pass/fail counts.
func Summary(passed, failed, total int) {
	stdout, _ := writers()
	if GetPersonality() == PersonalityMachine {
		fmt.Fprintf(stdout, "SUMMARY\tpassed=%d\tfailed=%d\ttotal=%d\n", passed, failed, total)
		return
	}
	fmt.Fprintf(stdout, "\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprint(passed)), Styles.Muted.Render("passed"),
		Styles.Error.Render(fmt.Sprint(failed)), Styles.Muted.Render("failed"),
		Styles.Bold.Render(fmt.Sprint(total)), Styles.Muted.Render("total"),
	)
}

// HexDump formats buf as rows of 16 space-separated hex bytes.
func HexDump(buf []byte) string {
	if len(buf) == 0 {
		return "(empty)"
	}
	var b strings.Builder
	for i := 0; i < len(buf); i += 16 {
		if i > 0 {
			b.WriteByte('\n')
		}
		end := min(i+16, len(buf))
		fmt.Fprintf(&b, "%04x ", i)
		for _, c := range buf[i:end] {
			fmt.Fprintf(&b, " %02x", c)
		}
	}
	return b.String()
}
