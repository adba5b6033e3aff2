package tui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// ScanModel renders live scan progress.
type ScanModel struct {
	progress  types.ScanProgress
	spinner   spinner.Model
	startTime time.Time
	width     int
	height    int
	roots     []string
	title     string
	done      bool
	err       error
}

// ProgressMsg is sent when scan progress is updated.
type ProgressMsg types.ScanProgress

// ScanCompleteMsg is sent when the scan finishes.
type ScanCompleteMsg struct {
	Report *types.Report
	Err    error
}

// NewScanModel creates a scanning model for roots.
func NewScanModel(roots []string, title string) ScanModel {
	s := spinner.New()
	s.Spinner = spinner.Points
	s.Style = fg(brand)

	return ScanModel{
		spinner:   s,
		startTime: time.Now(),
		width:     80,
		height:    24,
		roots:     roots,
		title:     title,
	}
}

// Init starts the spinner.
func (m ScanModel) Init() tea.Cmd {
	return m.spinner.Tick
}

// Update handles messages for the scanning model.
func (m ScanModel) Update(msg tea.Msg) (ScanModel, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case ProgressMsg:
		m.SetProgress(types.ScanProgress(msg))
		return m, nil

	case ScanCompleteMsg:
		m.SetDone(msg.Err)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// View renders the scanning screen.
func (m ScanModel) View() string {
	var b strings.Builder

	contentWidth := max(m.width-4, 40)

	b.WriteString("\n")
	b.WriteString(m.renderHeader(contentWidth))
	b.WriteString("\n")
	b.WriteString(renderDivider(contentWidth))
	b.WriteString("\n\n")

	switch {
	case m.done && m.err != nil:
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("  Error: %v", m.err)))
	case m.done:
		b.WriteString(successTextStyle.Render("  Scan complete!"))
	default:
		status := fmt.Sprintf("  %s %s: %s",
			m.spinner.View(),
			phaseLabel(m.progress.Phase),
			truncatePath(m.progress.CurrentPath, contentWidth-24))
		b.WriteString(status)
	}
	b.WriteString("\n\n")

	b.WriteString(m.renderProgressBar(contentWidth))
	b.WriteString("\n\n")

	b.WriteString(m.renderStats(contentWidth))
	b.WriteString("\n")

	content := b.String()
	contentLines := strings.Count(content, "\n") + 1
	if avail := m.height - 2; avail > contentLines {
		content += strings.Repeat("\n", avail-contentLines)
	}

	return outerBoxStyle.Width(m.width - 2).Height(m.height - 2).Render(content)
}

func (m ScanModel) renderHeader(width int) string {
	title := titleStyle.Render("  " + m.title)
	hint := mutedTextStyle.Render("[Ctrl+C to stop]")
	roots := mutedTextStyle.Render("  " + truncatePath(strings.Join(m.roots, ", "), width-4))

	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(hint), 1)
	return title + strings.Repeat(" ", spacing) + hint + "\n" + roots
}

// renderProgressBar draws a determinate bar once the number of files is
// known and a sweeping pulse while discovery is still running.
func (m ScanModel) renderProgressBar(width int) string {
	barWidth := max(width-12, 10)

	var bar strings.Builder
	bar.WriteString("  ")

	if m.progress.FilesTotal > 0 {
		frac := m.progress.Fraction()
		if m.progress.Phase == types.PhaseClustering || m.progress.Phase == types.PhaseScoring || m.progress.Phase == types.PhaseDone {
			frac = 1
		}
		filled := int(frac * float64(barWidth))
		bar.WriteString(progressFillStyle.Render(strings.Repeat("█", filled)))
		bar.WriteString(progressEmptyStyle.Render(strings.Repeat("░", barWidth-filled)))
		bar.WriteString(fmt.Sprintf(" %3.0f%%", frac*100))
		return bar.String()
	}

	elapsed := time.Since(m.startTime)
	position := int(elapsed.Seconds()*8) % (barWidth * 2)
	if position > barWidth {
		position = barWidth*2 - position
	}
	pulse := max(barWidth/5, 3)
	for i := range barWidth {
		dist := i - position
		if dist < 0 {
			dist = -dist
		}
		if dist < pulse {
			bar.WriteString(progressFillStyle.Render("█"))
		} else {
			bar.WriteString(progressEmptyStyle.Render("░"))
		}
	}
	return bar.String()
}

func (m ScanModel) renderStats(totalWidth int) string {
	boxWidth := max((totalWidth-14)/6, 10)

	p := m.progress
	files := humanize.Comma(p.FilesDone)
	if p.FilesTotal > 0 {
		files = fmt.Sprintf("%s/%s", humanize.Comma(p.FilesDone), humanize.Comma(p.FilesTotal))
	}
	cache := "-"
	if p.FilesDone > 0 {
		cache = fmt.Sprintf("%.0f%%", float64(p.CacheHits)/float64(p.FilesDone)*100)
	}
	elapsed := p.Elapsed
	if elapsed == 0 {
		elapsed = time.Since(m.startTime)
	}

	boxes := []string{
		m.renderStatBox("Files", files, boxWidth),
		m.renderStatBox("Hashed", humanize.Comma(p.Hashed), boxWidth),
		m.renderStatBox("Skipped", humanize.Comma(p.Skipped), boxWidth),
		m.renderStatBox("Cache", cache, boxWidth),
		m.renderStatBox("Workers", fmt.Sprintf("%d", p.Workers), boxWidth),
		m.renderStatBox("Time", formatDuration(elapsed), boxWidth),
	}

	row := []string{"  "}
	for i, box := range boxes {
		if i > 0 {
			row = append(row, " ")
		}
		row = append(row, box)
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, row...)
}

func (m ScanModel) renderStatBox(label, value string, width int) string {
	content := lipgloss.JoinVertical(lipgloss.Center,
		center(statsLabelStyle.Render(label), width-4),
		center(statsValueStyle.Render(value), width-4))
	return statsBoxStyle.Width(width).Render(content)
}

func phaseLabel(p types.Phase) string {
	switch p {
	case types.PhaseHashing:
		return "Hashing"
	case types.PhaseClustering:
		return "Clustering"
	case types.PhaseScoring:
		return "Scoring"
	case types.PhaseDone:
		return "Done"
	default:
		return "Discovering"
	}
}

// formatDuration formats a duration as M:SS.
func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	m := d / time.Minute
	s := (d % time.Minute) / time.Second
	return fmt.Sprintf("%d:%02d", m, s)
}

// SetProgress updates the progress.
func (m *ScanModel) SetProgress(p types.ScanProgress) {
	m.progress = p
}

// SetDone marks the scan as complete.
func (m *ScanModel) SetDone(err error) {
	m.done = true
	m.err = err
}

// IsDone returns true if the scan is complete.
func (m ScanModel) IsDone() bool {
	return m.done
}

// Error returns any error from the scan.
func (m ScanModel) Error() error {
	return m.err
}
