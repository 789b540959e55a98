// Package tui renders the live worker dashboard.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/truncate"

	"github.com/getgenie/genie/internal/worker"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	helpStyle  = lipgloss.NewStyle().Faint(true).Padding(0, 1)
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Padding(0, 1)

	stateStyles = map[worker.State]lipgloss.Style{
		worker.StateWorking:    lipgloss.NewStyle().Foreground(lipgloss.Color("2")),
		worker.StateIdle:       lipgloss.NewStyle().Foreground(lipgloss.Color("4")),
		worker.StatePermission: lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		worker.StateQuestion:   lipgloss.NewStyle().Foreground(lipgloss.Color("3")),
		worker.StateError:      lipgloss.NewStyle().Foreground(lipgloss.Color("1")),
	}
)

// WorkerLister is the registry slice the dashboard needs.
type WorkerLister interface {
	List() ([]*worker.Worker, error)
}

type workersMsg struct {
	workers []*worker.Worker
	err     error
}

type tickMsg time.Time

// Model is the watch dashboard: a table of workers refreshed on an interval.
type Model struct {
	registry WorkerLister
	interval time.Duration

	table   table.Model
	spinner spinner.Model
	width   int
	count   int
	lastErr error
}

// NewModel creates the dashboard over the given registry.
func NewModel(registry WorkerLister, refresh time.Duration) Model {
	if refresh <= 0 {
		refresh = time.Second
	}

	columns := []table.Column{
		{Title: "ID", Width: 18},
		{Title: "PANE", Width: 8},
		{Title: "STATE", Width: 12},
		{Title: "TASK", Width: 14},
		{Title: "ELAPSED", Width: 9},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(12),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).BorderStyle(lipgloss.NormalBorder()).BorderBottom(true)
	styles.Selected = styles.Selected.Bold(true)
	t.SetStyles(styles)

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return Model{
		registry: registry,
		interval: refresh,
		table:    t,
		spinner:  sp,
	}
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.fetch(), m.tick())
}

func (m Model) tick() tea.Cmd {
	return tea.Tick(m.interval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m Model) fetch() tea.Cmd {
	return func() tea.Msg {
		workers, err := m.registry.List()
		return workersMsg{workers: workers, err: err}
	}
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			return m, m.fetch()
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.table.SetHeight(msg.Height - 4)

	case tickMsg:
		return m, tea.Batch(m.fetch(), m.tick())

	case workersMsg:
		m.lastErr = msg.err
		if msg.err == nil {
			m.setRows(msg.workers)
		}
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) setRows(workers []*worker.Worker) {
	now := time.Now()
	rows := make([]table.Row, 0, len(workers))
	for _, w := range workers {
		state := string(w.State)
		if style, ok := stateStyles[w.State]; ok {
			state = style.Render(state)
		}
		rows = append(rows, table.Row{
			truncate.StringWithTail(w.ID, 18, "…"),
			w.PaneID,
			state,
			truncate.StringWithTail(w.TaskID, 14, "…"),
			worker.FormatElapsed(w.StartedAt, now),
		})
	}
	m.table.SetRows(rows)
	m.count = len(workers)
}

// View implements tea.Model.
func (m Model) View() string {
	header := titleStyle.Render(fmt.Sprintf("%s genie workers (%d)", m.spinner.View(), m.count))
	body := m.table.View()
	footer := helpStyle.Render("r refresh · q quit")
	if m.lastErr != nil {
		footer = errStyle.Render(fmt.Sprintf("registry error: %v", m.lastErr))
	}
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

// Run starts the dashboard and blocks until the user quits.
func Run(registry WorkerLister, refresh time.Duration) error {
	_, err := tea.NewProgram(NewModel(registry, refresh), tea.WithAltScreen()).Run()
	return err
}
