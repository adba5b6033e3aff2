// Package tui provides the interactive terminal interface for dupesweep:
// live scan progress followed by a duplicate set browser where sets can be
// skipped before the delete queue is sent to the trash.
package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

// Palette. Keep and delete get their own hues so a member's fate reads at a
// glance even when the row is highlighted.
var (
	brand  = lipgloss.Color("#2AA198")
	accent = lipgloss.Color("#B58900")

	keepHue   = lipgloss.Color("#859900")
	deleteHue = lipgloss.Color("#DC322F")
	warnHue   = lipgloss.Color("#CB4B16")

	white = lipgloss.Color("#EEE8D5")
	dim   = lipgloss.Color("#93A1A1")
	faint = lipgloss.Color("#586E75")
	rule  = lipgloss.Color("#3B4A50")
	rowBg = lipgloss.Color("#073642")
)

func fg(c lipgloss.Color) lipgloss.Style { return lipgloss.NewStyle().Foreground(c) }

func bold(c lipgloss.Color) lipgloss.Style { return fg(c).Bold(true) }

func button(bg, text lipgloss.Color) lipgloss.Style {
	return lipgloss.NewStyle().Padding(0, 2).Margin(0, 1).Background(bg).Foreground(text)
}

var (
	outerBoxStyle = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(brand).Padding(0, 1)
	dividerStyle  = fg(rule)

	titleStyle       = bold(brand)
	mutedTextStyle   = fg(dim)
	errorTextStyle   = fg(deleteHue)
	successTextStyle = fg(keepHue)
	warningTextStyle = fg(warnHue)

	selectedItemStyle = bold(white).Background(rowBg)
	normalItemStyle   = fg(dim)
	cursorStyle       = bold(brand)
	checkedStyle      = bold(keepHue)
	uncheckedStyle    = fg(faint)
	sizeStyle         = fg(accent).Width(10).Align(lipgloss.Right)
	keepStyle         = bold(keepHue)
	deleteStyle       = fg(deleteHue)

	progressFillStyle  = fg(brand)
	progressEmptyStyle = fg(rule)

	statsBoxStyle   = lipgloss.NewStyle().Border(lipgloss.NormalBorder()).BorderForeground(rule).Padding(0, 1)
	statsLabelStyle = fg(faint)
	statsValueStyle = bold(white)

	keyStyle     = bold(brand)
	keyDescStyle = fg(faint)

	dialogBoxStyle      = lipgloss.NewStyle().Border(lipgloss.DoubleBorder()).BorderForeground(deleteHue).Padding(1, 2).Width(54)
	dialogTitleStyle    = bold(deleteHue).Align(lipgloss.Center)
	dialogTextStyle     = fg(white).Align(lipgloss.Center)
	activeButtonStyle   = button(deleteHue, white).Bold(true)
	inactiveButtonStyle = button(rule, dim)
)

func renderDivider(width int) string {
	return dividerStyle.Render(strings.Repeat("─", max(width, 0)))
}

// renderKeyHints renders "key desc" pairs separated by dots.
func renderKeyHints(pairs ...string) string {
	parts := make([]string, 0, len(pairs)/2)
	for i := 0; i+1 < len(pairs); i += 2 {
		parts = append(parts, keyStyle.Render(pairs[i])+" "+keyDescStyle.Render(pairs[i+1]))
	}
	return strings.Join(parts, keyDescStyle.Render("  ·  "))
}

// truncatePath shortens a path to maxLen runes, keeping the end.
func truncatePath(path string, maxLen int) string {
	r := []rune(path)
	if len(r) <= maxLen {
		return path
	}
	if maxLen <= 3 {
		return string(r[:max(maxLen, 0)])
	}
	return "..." + string(r[len(r)-(maxLen-3):])
}

// center centers s within width cells.
func center(s string, width int) string {
	w := lipgloss.Width(s)
	if w >= width {
		return s
	}
	left := (width - w) / 2
	return strings.Repeat(" ", left) + s + strings.Repeat(" ", width-w-left)
}

// shortID is the set ID prefix shown in lists.
func shortID(id string) string {
	if len(id) <= 8 {
		return id
	}
	return id[:8]
}
