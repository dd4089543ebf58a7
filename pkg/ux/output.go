// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the edward CLI.
package ux

import (
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Edward color palette - irises and late dusk
var (
	// Primary palette (brightest to darkest)
	ColorIrisBright  = lipgloss.Color("#9D8CFF") // Bright iris - highlights, success
	ColorIrisPrimary = lipgloss.Color("#7C6AE8") // Primary iris - main brand color
	ColorIrisVibrant = lipgloss.Color("#6A5ACD") // Vibrant iris - interactive elements
	ColorIrisMedium  = lipgloss.Color("#5F4BB6") // Medium iris - secondary elements
	ColorIrisDeep    = lipgloss.Color("#483D8B") // Deep iris - borders, accents
	ColorIrisNight   = lipgloss.Color("#3A3178") // Night iris - subtle accents

	// Dark palette (for backgrounds, muted elements)
	ColorDusk     = lipgloss.Color("#35305C") // Dusk - darker backgrounds
	ColorInk      = lipgloss.Color("#1E1B33") // Ink - deep backgrounds
	ColorSlate    = lipgloss.Color("#4A4668") // Slate - muted text, borders
	ColorDarkest  = lipgloss.Color("#121020") // Darkest - near black
	ColorMoonGrey = lipgloss.Color("#8E8AA8") // Moon grey - dim foreground text

	// Semantic colors (keeping standard conventions for clarity)
	ColorSuccess = lipgloss.Color("#9D8CFF") // Bright iris for success
	ColorWarning = lipgloss.Color("#F4D03F") // Gold/amber for warnings
	ColorError   = lipgloss.Color("#E74C3C") // Red for errors
	ColorMuted   = lipgloss.Color("#4A4668") // Slate for muted text
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	// Text styles
	Title     lipgloss.Style
	Subtitle  lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style

	// Box styles
	Box        lipgloss.Style
	InfoBox    lipgloss.Style
	WarningBox lipgloss.Style
	ErrorBox   lipgloss.Style

	// Status indicators
	StatusOK      lipgloss.Style
	StatusWarning lipgloss.Style
	StatusError   lipgloss.Style
	StatusPending lipgloss.Style
}{
	// Text styles
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorIrisBright),
	Subtitle:  lipgloss.NewStyle().Foreground(ColorIrisPrimary),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorIrisBright).Bold(true),

	// Box styles
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorIrisDeep).
		Padding(0, 1),
	InfoBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorIrisPrimary).
		Padding(0, 1),
	WarningBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorWarning).
		Padding(0, 1),
	ErrorBox: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorError).
		Padding(0, 1),

	// Status indicators
	StatusOK:      lipgloss.NewStyle().SetString("✓").Foreground(ColorSuccess),
	StatusWarning: lipgloss.NewStyle().SetString("⚠").Foreground(ColorWarning),
	StatusError:   lipgloss.NewStyle().SetString("✗").Foreground(ColorError),
	StatusPending: lipgloss.NewStyle().SetString("○").Foreground(ColorSlate),
}

// Icon provides themed status icons
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconPending Icon = "○"
	IconArrow   Icon = "→"
	IconBullet  Icon = "•"
	IconDie     Icon = "⚄"
	IconSigma   Icon = "Σ"
)

// Render returns the icon with appropriate styling
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

// plainMode controls unstyled line-oriented output. It starts true
// when stdout is not a terminal so piped output stays parseable.
var plainMode atomic.Bool

func init() {
	fd := os.Stdout.Fd()
	plainMode.Store(!isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd))
}

// SetPlain overrides terminal detection. The CLI calls this for the
// --plain and --json flags.
func SetPlain(v bool) {
	plainMode.Store(v)
}

// IsPlain reports whether print helpers emit unstyled output.
func IsPlain() bool {
	return plainMode.Load()
}

// Print helpers that respect plain mode

// Title prints a styled title. Plain mode prints the bare text.
func Title(text string) {
	if IsPlain() {
		fmt.Println(text)
		return
	}
	fmt.Println(Styles.Title.Render(text))
}

// Success prints a success message with checkmark
func Success(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stdout, "OK: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconSuccess.Render(), Styles.Success.Render(text))
}

// Warning prints a warning message
func Warning(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stderr, "WARN: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconWarning.Render(), Styles.Warning.Render(text))
}

// Error prints an error message
func Error(text string) {
	if IsPlain() {
		fmt.Fprintf(os.Stderr, "ERROR: %s\n", text)
		return
	}
	fmt.Printf("%s %s\n", IconError.Render(), Styles.Error.Render(text))
}

// Info prints an informational message
func Info(text string) {
	if IsPlain() {
		fmt.Println(text)
		return
	}
	fmt.Printf("%s %s\n", Styles.Muted.Render("│"), text)
}

// Muted prints muted/secondary text. Plain mode drops it.
func Muted(text string) {
	if IsPlain() {
		return
	}
	fmt.Println(Styles.Muted.Render(text))
}

// Box prints text in a rounded box
func Box(title, content string) {
	if IsPlain() {
		fmt.Printf("%s: %s\n", title, content)
		return
	}
	boxStyle := Styles.Box.Width(60)
	titleLine := Styles.Title.Render(title)
	fmt.Println(boxStyle.Render(titleLine + "\n" + content))
}

// KeyValueBlock prints aligned key/value rows. Plain mode emits
// key=value lines for scripting.
func KeyValueBlock(rows [][2]string) {
	if IsPlain() {
		for _, row := range rows {
			fmt.Printf("%s=%s\n", row[0], row[1])
		}
		return
	}
	width := 0
	for _, row := range rows {
		if len(row[0]) > width {
			width = len(row[0])
		}
	}
	for _, row := range rows {
		key := fmt.Sprintf("%-*s", width, row[0])
		fmt.Printf("  %s  %s\n", Styles.Muted.Render(key), row[1])
	}
}

// Summary prints a one-line edge tally for partition reports
func Summary(static, dynamic, total int) {
	if IsPlain() {
		fmt.Printf("SUMMARY: static=%d dynamic=%d total=%d\n", static, dynamic, total)
		return
	}
	fmt.Printf("\n%s %s  %s %s  %s %s\n",
		Styles.Success.Render(fmt.Sprintf("%d", static)), Styles.Muted.Render("static"),
		Styles.Warning.Render(fmt.Sprintf("%d", dynamic)), Styles.Muted.Render("dynamic"),
		Styles.Bold.Render(fmt.Sprintf("%d", total)), Styles.Muted.Render("total"),
	)
}

// Histogram renders a text histogram of draws, one line per bin with
// the bin's lower edge, a bar, and the count. Non-positive bins and
// width fall back to 10 and 40.
func Histogram(draws []float64, bins, width int) string {
	if len(draws) == 0 {
		return "(no draws)"
	}
	if bins <= 0 {
		bins = 10
	}
	if width <= 0 {
		width = 40
	}

	lo, hi := draws[0], draws[0]
	for _, d := range draws[1:] {
		if d < lo {
			lo = d
		}
		if d > hi {
			hi = d
		}
	}
	if lo == hi {
		// Every draw identical, a single full bar.
		return fmt.Sprintf("%12.4g  %s %d", lo, histogramBar(width, width), len(draws))
	}

	span := hi - lo
	counts := make([]int, bins)
	for _, d := range draws {
		i := int(float64(bins) * (d - lo) / span)
		if i >= bins {
			i = bins - 1
		}
		counts[i]++
	}
	max := 0
	for _, c := range counts {
		if c > max {
			max = c
		}
	}

	var b strings.Builder
	for i, c := range counts {
		edge := lo + span*float64(i)/float64(bins)
		filled := int(float64(width) * float64(c) / float64(max))
		if c > 0 && filled == 0 {
			filled = 1
		}
		fmt.Fprintf(&b, "%12.4g  %s %d", edge, histogramBar(filled, width), c)
		if i < bins-1 {
			b.WriteByte('\n')
		}
	}
	return b.String()
}

func histogramBar(filled, width int) string {
	if IsPlain() {
		return repeatChar('#', filled)
	}
	return Styles.Success.Render(repeatChar('█', filled)) +
		Styles.Muted.Render(repeatChar('░', width-filled))
}

func repeatChar(c rune, n int) string {
	if n <= 0 {
		return ""
	}
	result := make([]rune, n)
	for i := range result {
		result[i] = c
	}
	return string(result)
}
