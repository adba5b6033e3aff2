package output

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// PrettyFormatter renders sets with colors and boxes for terminal display.
type PrettyFormatter struct{}

// Format writes the formatted output to the buffer.
func (f *PrettyFormatter) Format(w *bytes.Buffer, r *Result) error {
	w.WriteString(f.formatHeader(r))
	w.WriteString("\n")

	view := buildView(r)
	if len(view.Sets) == 0 {
		w.WriteString(MutedStyle.Render("  No duplicate images found"))
		w.WriteString("\n")
	}
	for i, set := range view.Sets {
		w.WriteString(f.formatSet(i+1, set))
		w.WriteString("\n")
	}

	if len(r.Report.Skipped) > 0 {
		w.WriteString(f.formatSkipped(r.Report.Skipped))
	}
	w.WriteString(f.formatFooter(r))
	w.WriteString("\n")

	if len(r.Warnings) > 0 {
		w.WriteString("\n")
		w.WriteString(WarningStyle.Bold(true).Render("Warnings:"))
		w.WriteString("\n")
		for _, warning := range r.Warnings {
			w.WriteString(WarningStyle.Render("  " + warning))
			w.WriteString("\n")
		}
	}
	return nil
}

func (f *PrettyFormatter) formatHeader(r *Result) string {
	rep := r.Report
	roots := LabelStyle.Render("Roots:") + " " + ValueStyle.Render(strings.Join(rep.Roots, ", "))

	scanned := LabelStyle.Render("Scanned:") + " " + ValueStyle.Render(fmt.Sprintf("%s images in %s",
		humanize.Comma(int64(rep.FilesSeen)), formatDuration(rep.Elapsed)))
	hash := LabelStyle.Render("Hash:") + " " + ValueStyle.Render(fmt.Sprintf("%s ≤%d", rep.Algorithm, rep.Threshold))

	workers := fmt.Sprintf("workers: %d", rep.Budget.MaxWorkers)
	if rep.Budget.Static {
		workers += " (static)"
	}

	lines := []string{roots, strings.Join([]string{scanned, hash, MutedStyle.Render(workers)}, "  ")}
	if rep.CacheHits > 0 {
		lines = append(lines, MutedStyle.Render(fmt.Sprintf("%d hashes from cache", rep.CacheHits)))
	}
	return HeaderBox.Render(strings.Join(lines, "\n"))
}

func (f *PrettyFormatter) formatSet(n int, set setView) string {
	var sb strings.Builder

	title := TitleStyle.Render(fmt.Sprintf("Set %d", n)) + " " + MutedStyle.Render(set.ID)
	if set.Skipped {
		title += " " + WarningStyle.Render("(skipped)")
	}
	sb.WriteString(title)
	sb.WriteString("\n")

	sizeWidth := 8
	for _, m := range set.Members {
		sizeWidth = max(sizeWidth, len(m.SizeHuman))
	}

	for _, m := range set.Members {
		action := DeleteStyle.Render("delete")
		if m.Action == types.ActionKeep {
			action = KeepStyle.Render("keep  ")
		}
		dims := MutedStyle.Render(padLeft(fmt.Sprintf("%dx%d", m.Width, m.Height), 11))
		sb.WriteString(fmt.Sprintf("%s %s %s %s %s\n",
			action,
			MutedStyle.Render(fmt.Sprintf("%.2f", m.Score)),
			SizeStyle.Render(padLeft(m.SizeHuman, sizeWidth)),
			dims,
			PathStyle.Render(m.Path)))
	}
	return SetBox.Render(strings.TrimRight(sb.String(), "\n"))
}

func (f *PrettyFormatter) formatSkipped(skipped []types.SkippedFile) string {
	var sb strings.Builder
	sb.WriteString(WarningStyle.Bold(true).Render(fmt.Sprintf("Skipped %d files:", len(skipped))))
	sb.WriteString("\n")
	for _, s := range skipped {
		sb.WriteString(WarningStyle.Render("  "+s.Path) + MutedStyle.Render(": "+s.Reason))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (f *PrettyFormatter) formatFooter(r *Result) string {
	rep := r.Report
	parts := []string{
		LabelStyle.Render("Sets:") + " " + ValueStyle.Render(fmt.Sprintf("%d", len(rep.Sets))),
		LabelStyle.Render("Duplicates:") + " " + ValueStyle.Render(fmt.Sprintf("%d", rep.Clustered)),
		LabelStyle.Render("Reclaimable:") + " " + SizeStyle.Render(humanize.IBytes(queuedBytes(r))),
		LabelStyle.Render("Skipped:") + " " + ValueStyle.Render(fmt.Sprintf("%d", len(rep.Skipped))),
		MutedStyle.Render("Use --trash to move delete candidates to the trash"),
	}
	return FooterBox.Render(strings.Join(parts, "  "))
}

func queuedBytes(r *Result) uint64 {
	var total uint64
	for _, m := range deleteQueue(r) {
		total += m.Size
	}
	return total
}

// padLeft pads a string with spaces on the left to achieve the desired width.
func padLeft(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return strings.Repeat(" ", width-len(s)) + s
}

// formatDuration formats a duration in a human-friendly way.
func formatDuration(d time.Duration) string {
	sec := d.Seconds()
	if sec < 1 {
		return fmt.Sprintf("%.0fms", sec*1000)
	}
	if sec < 60 {
		return fmt.Sprintf("%.1fs", sec)
	}
	minutes := int(sec) / 60
	seconds := int(sec) % 60
	if minutes < 60 {
		return fmt.Sprintf("%dm %ds", minutes, seconds)
	}
	return fmt.Sprintf("%dh %dm", minutes/60, minutes%60)
}

func init() {
	Register("pretty", func() Formatter {
		return &PrettyFormatter{}
	})
}

// Ensure PrettyFormatter implements Formatter.
var _ Formatter = (*PrettyFormatter)(nil)
