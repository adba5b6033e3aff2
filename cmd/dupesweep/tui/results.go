package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// ResultModel browses duplicate sets and toggles which ones are skipped.
type ResultModel struct {
	plan     *scanner.Plan
	cursor   int
	offset   int
	width    int
	height   int
	canTrash bool
}

// NewResultModel creates a browser over plan.
func NewResultModel(plan *scanner.Plan, canTrash bool) ResultModel {
	return ResultModel{
		plan:     plan,
		width:    80,
		height:   24,
		canTrash: canTrash,
	}
}

// SetDimensions updates the terminal size.
func (m *ResultModel) SetDimensions(width, height int) {
	m.width = width
	m.height = height
	m.clampOffset()
}

func (m ResultModel) sets() []types.DuplicateSet {
	return m.plan.Report().Sets
}

// Selected returns the set under the cursor.
func (m ResultModel) Selected() (types.DuplicateSet, bool) {
	sets := m.sets()
	if len(sets) == 0 {
		return types.DuplicateSet{}, false
	}
	return sets[m.cursor], true
}

// MoveUp moves the cursor up one set.
func (m *ResultModel) MoveUp() {
	if m.cursor > 0 {
		m.cursor--
	}
	m.clampOffset()
}

// MoveDown moves the cursor down one set.
func (m *ResultModel) MoveDown() {
	if m.cursor < len(m.sets())-1 {
		m.cursor++
	}
	m.clampOffset()
}

// ToggleSkip flips the skip state of the selected set.
func (m *ResultModel) ToggleSkip() {
	set, ok := m.Selected()
	if !ok {
		return
	}
	_, _ = m.plan.Toggle(set.ID)
}

// SkipAll skips every set, or unskips them all when every set is
// already skipped.
func (m *ResultModel) SkipAll() {
	all := len(m.plan.Skipped()) == len(m.sets())
	for _, set := range m.sets() {
		if all {
			m.plan.Unskip(set.ID)
		} else {
			_ = m.plan.Skip(set.ID)
		}
	}
}

// QueueLen returns the number of files queued for the trash.
func (m ResultModel) QueueLen() int {
	return len(m.plan.DeleteQueue())
}

func (m ResultModel) listHeight() int {
	// Header, dividers, detail pane and key hints take the rest.
	return max((m.height-8)/2, 3)
}

func (m *ResultModel) clampOffset() {
	h := m.listHeight()
	if m.cursor < m.offset {
		m.offset = m.cursor
	}
	if m.cursor >= m.offset+h {
		m.offset = m.cursor - h + 1
	}
}

// View renders the set list and the selected set's members.
func (m ResultModel) View() string {
	width := max(m.width-4, 40)
	rep := m.plan.Report()

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString(m.renderHeader(rep, width))
	b.WriteString("\n")
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	if len(rep.Sets) == 0 {
		b.WriteString("\n")
		b.WriteString(successTextStyle.Render("  No near-duplicate images found."))
		b.WriteString("\n\n")
		b.WriteString("  " + renderKeyHints("q", "quit"))
		return outerBoxStyle.Width(m.width - 2).Render(b.String())
	}

	end := min(m.offset+m.listHeight(), len(rep.Sets))
	for i := m.offset; i < end; i++ {
		b.WriteString(m.renderSetLine(rep, i, width))
		b.WriteString("\n")
	}

	b.WriteString(renderDivider(width))
	b.WriteString("\n")
	if set, ok := m.Selected(); ok {
		b.WriteString(m.renderMembers(rep, set, width))
	}
	b.WriteString(renderDivider(width))
	b.WriteString("\n")

	hints := []string{"↑/↓", "move", "space", "skip set", "a", "skip all"}
	if m.canTrash {
		hints = append(hints, "t", "trash queue")
	}
	hints = append(hints, "q", "quit")
	b.WriteString("  " + renderKeyHints(hints...))

	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m ResultModel) renderHeader(rep *types.Report, width int) string {
	title := titleStyle.Render(fmt.Sprintf("  %d duplicate sets", len(rep.Sets)))
	queue := m.plan.DeleteQueue()
	summary := mutedTextStyle.Render(fmt.Sprintf("%d queued · %s reclaimable",
		len(queue), humanize.IBytes(m.plan.QueuedBytes())))
	spacing := max(width-lipgloss.Width(title)-lipgloss.Width(summary), 1)
	return title + strings.Repeat(" ", spacing) + summary
}

func (m ResultModel) renderSetLine(rep *types.Report, i, width int) string {
	set := rep.Sets[i]

	cursor := "  "
	if i == m.cursor {
		cursor = cursorStyle.Render("> ")
	}
	box := checkedStyle.Render("[x]")
	if m.plan.IsSkipped(set.ID) {
		box = uncheckedStyle.Render("[ ]")
	}

	var reclaim uint64
	keep := ""
	for _, s := range rep.Scores[set.ID] {
		if s.Action == types.ActionDelete {
			reclaim += s.Record.Size
		} else {
			keep = s.Record.Path
		}
	}

	head := fmt.Sprintf(" %s  %2d files ", shortID(set.ID), len(set.Members))
	size := sizeStyle.Render(humanize.IBytes(reclaim))
	pathWidth := max(width-lipgloss.Width(cursor)-lipgloss.Width(box)-lipgloss.Width(head)-lipgloss.Width(size)-2, 10)
	line := head + size + "  " + truncatePath(keep, pathWidth)

	style := normalItemStyle
	if i == m.cursor {
		style = selectedItemStyle
	}
	return cursor + box + style.Render(line)
}

func (m ResultModel) renderMembers(rep *types.Report, set types.DuplicateSet, width int) string {
	var b strings.Builder
	skipped := m.plan.IsSkipped(set.ID)
	for _, s := range rep.Scores[set.ID] {
		mark := keepStyle.Render("KEEP")
		if s.Action == types.ActionDelete {
			mark = deleteStyle.Render("DEL ")
			if skipped {
				mark = uncheckedStyle.Render("SKIP")
			}
		}
		dims := fmt.Sprintf("%dx%d", s.Record.Width, s.Record.Height)
		meta := fmt.Sprintf(" %.3f %11s %9s ", s.Score, dims, humanize.IBytes(s.Record.Size))
		pathWidth := max(width-4-lipgloss.Width(meta)-4, 10)
		b.WriteString("  " + mark + mutedTextStyle.Render(meta) + truncatePath(s.Record.Path, pathWidth))
		b.WriteString("\n")
	}
	return b.String()
}
