package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/jamesainslie/dupesweep/pkg/dupesweep/broadcaster"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/scanner"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/trash"
	"github.com/jamesainslie/dupesweep/pkg/dupesweep/types"
)

// AppState represents the current screen.
type AppState int

const (
	StateScanning AppState = iota
	StateResults
	StateConfirm
	StateTrashing
	StateComplete
)

// Options configures the TUI application.
type Options struct {
	Scanner *scanner.Scanner
	Roots   []string

	// Title is shown in the scanning header.
	Title string

	// Trasher enables the trash action. Nil means review only.
	Trasher trash.Trasher

	// Skip lists set IDs or ID prefixes to skip up front.
	Skip []string
}

// Outcome is what happened during the session.
type Outcome struct {
	Report  *types.Report
	Plan    *scanner.Plan
	Applied *scanner.ApplyResult
}

// Model is the top-level Bubble Tea model.
type Model struct {
	state       AppState
	scanModel   ScanModel
	resultModel ResultModel
	options     Options

	ctx    context.Context
	cancel context.CancelFunc
	sub    *broadcaster.Subscriber

	report   *types.Report
	plan     *scanner.Plan
	scanErr  error
	warnings []string

	confirmFocused int // 0 = cancel, 1 = trash

	trashSpinner spinner.Model
	applied      *scanner.ApplyResult
	trashErr     error

	width  int
	height int
}

// NewModel creates the model and subscribes to scan progress.
func NewModel(opts Options) Model {
	ctx, cancel := context.WithCancel(context.Background())

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = fg(deleteHue)

	title := opts.Title
	if title == "" {
		title = "dupesweep"
	}

	return Model{
		state:        StateScanning,
		scanModel:    NewScanModel(opts.Roots, title),
		options:      opts,
		ctx:          ctx,
		cancel:       cancel,
		sub:          opts.Scanner.Subscribe(),
		trashSpinner: s,
		width:        80,
		height:       24,
	}
}

// Init starts the scan.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.scanModel.Init(),
		m.startScan(),
		m.listenForProgress(),
	)
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.scanModel.width = msg.Width
		m.scanModel.height = msg.Height
		m.resultModel.SetDimensions(msg.Width, msg.Height)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case ProgressMsg:
		m.scanModel.SetProgress(types.ScanProgress(msg))
		return m, m.listenForProgress()

	case ScanCompleteMsg:
		m.scanModel.SetDone(msg.Err)
		if msg.Err != nil {
			m.scanErr = msg.Err
			return m, tea.Quit
		}
		m.report = msg.Report
		m.plan = scanner.NewPlan(msg.Report)
		for _, id := range m.options.Skip {
			full, err := m.plan.Resolve(id)
			if err != nil {
				m.warnings = append(m.warnings, err.Error())
				continue
			}
			_ = m.plan.Skip(full)
		}
		m.resultModel = NewResultModel(m.plan, m.options.Trasher != nil)
		m.resultModel.SetDimensions(m.width, m.height)
		m.state = StateResults
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		switch m.state {
		case StateScanning:
			m.scanModel, cmd = m.scanModel.Update(msg)
		case StateTrashing:
			m.trashSpinner, cmd = m.trashSpinner.Update(msg)
		}
		return m, cmd

	case trashDoneMsg:
		m.applied = &msg.result
		m.trashErr = msg.err
		m.state = StateComplete
		return m, nil
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	switch m.state {
	case StateScanning:
		if key == "ctrl+c" || key == "q" || key == "esc" {
			m.cancel()
		}
		return m, nil

	case StateResults:
		switch key {
		case "ctrl+c", "q", "esc":
			return m, tea.Quit
		case "up", "k":
			m.resultModel.MoveUp()
		case "down", "j":
			m.resultModel.MoveDown()
		case " ", "x":
			m.resultModel.ToggleSkip()
		case "a":
			m.resultModel.SkipAll()
		case "t", "enter":
			if m.options.Trasher != nil && m.resultModel.QueueLen() > 0 {
				m.state = StateConfirm
				m.confirmFocused = 0
			}
		}
		return m, nil

	case StateConfirm:
		switch key {
		case "ctrl+c":
			return m, tea.Quit
		case "esc", "n", "q":
			m.state = StateResults
		case "left", "right", "tab", "h", "l":
			m.confirmFocused = 1 - m.confirmFocused
		case "y":
			return m.startTrash()
		case "enter":
			if m.confirmFocused == 1 {
				return m.startTrash()
			}
			m.state = StateResults
		}
		return m, nil

	case StateTrashing:
		if key == "ctrl+c" {
			m.cancel()
		}
		return m, nil

	case StateComplete:
		return m, tea.Quit
	}
	return m, nil
}

// View renders the current screen.
func (m Model) View() string {
	switch m.state {
	case StateScanning:
		return m.scanModel.View()
	case StateResults:
		return m.resultModel.View()
	case StateConfirm:
		return m.placeDialog(m.renderConfirmDialog())
	case StateTrashing:
		return m.renderTrashing()
	case StateComplete:
		return m.renderComplete()
	}
	return ""
}

func (m Model) renderConfirmDialog() string {
	n := m.resultModel.QueueLen()
	title := dialogTitleStyle.Width(48).Render("Move to trash?")
	text := dialogTextStyle.Width(48).Render(fmt.Sprintf("%d files (%s) will be moved to the trash.",
		n, humanize.IBytes(m.plan.QueuedBytes())))

	cancel := inactiveButtonStyle.Render("Cancel")
	confirm := inactiveButtonStyle.Render("Trash")
	if m.confirmFocused == 0 {
		cancel = activeButtonStyle.Render("Cancel")
	} else {
		confirm = activeButtonStyle.Render("Trash")
	}
	buttons := lipgloss.PlaceHorizontal(48, lipgloss.Center, lipgloss.JoinHorizontal(lipgloss.Top, cancel, confirm))

	return dialogBoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, title, "", text, "", buttons))
}

func (m Model) placeDialog(dialog string) string {
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, dialog)
}

func (m Model) renderTrashing() string {
	body := fmt.Sprintf("\n  %s Moving %d files to the trash...\n", m.trashSpinner.View(), m.resultModel.QueueLen())
	return outerBoxStyle.Width(m.width - 2).Render(body)
}

func (m Model) renderComplete() string {
	var b strings.Builder
	b.WriteString("\n")
	if m.applied != nil {
		b.WriteString(successTextStyle.Render(fmt.Sprintf("  Moved %d files (%s) to the trash.",
			len(m.applied.Trashed), humanize.IBytes(m.applied.Bytes))))
		b.WriteString("\n")
		for _, f := range m.applied.Failed {
			b.WriteString(warningTextStyle.Render(fmt.Sprintf("  ! %s: %s", f.Path, f.Error)))
			b.WriteString("\n")
		}
	}
	if m.trashErr != nil {
		b.WriteString(errorTextStyle.Render(fmt.Sprintf("  Error: %v", m.trashErr)))
		b.WriteString("\n")
	}
	b.WriteString("\n  " + mutedTextStyle.Render("Press any key to exit."))
	return outerBoxStyle.Width(m.width - 2).Render(b.String())
}

func (m Model) startScan() tea.Cmd {
	sc := m.options.Scanner
	roots := m.options.Roots
	ctx := m.ctx
	sub := m.sub
	return func() tea.Msg {
		report, err := sc.Scan(ctx, roots)
		if sub != nil {
			sc.Progress().Unsubscribe(sub.ID)
		}
		return ScanCompleteMsg{Report: report, Err: err}
	}
}

func (m Model) listenForProgress() tea.Cmd {
	sub := m.sub
	return func() tea.Msg {
		if sub == nil {
			return nil
		}
		p, ok := <-sub.Events
		if !ok {
			return nil
		}
		return ProgressMsg(p)
	}
}

type trashDoneMsg struct {
	result scanner.ApplyResult
	err    error
}

func (m Model) startTrash() (tea.Model, tea.Cmd) {
	m.state = StateTrashing
	plan := m.plan
	t := m.options.Trasher
	ctx := m.ctx
	apply := func() tea.Msg {
		res, err := plan.Apply(ctx, t)
		return trashDoneMsg{result: res, err: err}
	}
	return m, tea.Batch(m.trashSpinner.Tick, apply)
}

// Outcome returns the session result.
func (m Model) Outcome() (Outcome, error) {
	if m.scanErr != nil {
		return Outcome{}, m.scanErr
	}
	if m.report == nil {
		return Outcome{}, types.ErrScanCancelled
	}
	return Outcome{Report: m.report, Plan: m.plan, Applied: m.applied}, m.trashErr
}

// Warnings returns problems found while applying the initial skip list.
func (m Model) Warnings() []string {
	return m.warnings
}

// Run starts the TUI and blocks until the user quits.
func Run(opts Options) (Outcome, []string, error) {
	if opts.Scanner == nil {
		return Outcome{}, nil, errors.New("tui: scanner is required")
	}
	model := NewModel(opts)
	defer model.cancel()

	p := tea.NewProgram(model, tea.WithAltScreen())
	final, err := p.Run()
	if err != nil {
		return Outcome{}, nil, err
	}
	fm := final.(Model)
	out, err := fm.Outcome()
	return out, fm.Warnings(), err
}
