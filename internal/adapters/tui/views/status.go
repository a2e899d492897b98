package views

import (
	"context"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"chimera/internal/adapters/tui/styles"
	"chimera/internal/application/commands"
	"chimera/internal/domain"
)

// StatusSource produces an index status report
type StatusSource interface {
	Execute(ctx context.Context) (*commands.StatusReport, error)
}

// SyncFunc hands a sync run of the given mode to the scheduler
type SyncFunc func(ctx context.Context, mode string) (*commands.SyncResult, error)

// StatusKeyMap defines key bindings for the status view
type StatusKeyMap struct {
	Refresh     key.Binding
	Incremental key.Binding
	Full        key.Binding
	Close       key.Binding
}

var StatusKeys = StatusKeyMap{
	Refresh: key.NewBinding(
		key.WithKeys("r"),
		key.WithHelp("r", "refresh"),
	),
	Incremental: key.NewBinding(
		key.WithKeys("i"),
		key.WithHelp("i", "incremental sync"),
	),
	Full: key.NewBinding(
		key.WithKeys("f"),
		key.WithHelp("f", "full sync"),
	),
	Close: key.NewBinding(
		key.WithKeys("esc", "q", "s"),
		key.WithHelp("esc", "back"),
	),
}

// StatusModel shows graph statistics and the sync loop, and can kick off
// a sync run
type StatusModel struct {
	ViewState
	source StatusSource
	sync   SyncFunc
	report *commands.StatusReport
}

// NewStatusModel creates a new status view. sync may be nil, which hides
// the sync keys.
func NewStatusModel(source StatusSource, sync SyncFunc) *StatusModel {
	return &StatusModel{source: source, sync: sync}
}

type statusLoadedMsg struct {
	report *commands.StatusReport
	err    error
}

type syncStartedMsg struct {
	result *commands.SyncResult
	err    error
}

// Init loads the first report
func (m *StatusModel) Init() tea.Cmd {
	return m.load
}

func (m *StatusModel) load() tea.Msg {
	report, err := m.source.Execute(context.Background())
	return statusLoadedMsg{report: report, err: err}
}

func (m *StatusModel) startSync(mode domain.SyncMode) tea.Cmd {
	return func() tea.Msg {
		result, err := m.sync(context.Background(), mode.String())
		return syncStartedMsg{result: result, err: err}
	}
}

// Update handles messages for the status view
func (m *StatusModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case statusLoadedMsg:
		if msg.err != nil {
			m.SetMessage(msg.err.Error(), true)
			return m, nil
		}
		m.report = msg.report
		return m, nil

	case syncStartedMsg:
		if msg.err != nil {
			m.SetMessage(msg.err.Error(), true)
			return m, nil
		}
		m.SetMessage(msg.result.Message, false)
		return m, m.load

	case tea.KeyMsg:
		switch {
		case msg.Type == tea.KeyCtrlC:
			return m, tea.Quit
		case key.Matches(msg, StatusKeys.Close):
			return m, func() tea.Msg { return SwitchToBrowserMsg{} }
		case key.Matches(msg, StatusKeys.Refresh):
			m.ClearMessage()
			return m, m.load
		case m.sync != nil && key.Matches(msg, StatusKeys.Incremental):
			return m, m.startSync(domain.SyncIncremental)
		case m.sync != nil && key.Matches(msg, StatusKeys.Full):
			return m, m.startSync(domain.SyncFull)
		}
	}
	return m, nil
}

// View renders the status view
func (m *StatusModel) View() string {
	v := NewViewBuilder().Title("Index Status")

	if m.report == nil {
		if m.Message == "" {
			v.Muted("Loading...")
		}
	} else {
		for _, line := range strings.Split(strings.TrimRight(m.report.String(), "\n"), "\n") {
			label, value, ok := strings.Cut(line, ": ")
			if !ok {
				v.Line(line)
				continue
			}
			v.Line(styles.InputLabel.Render(label+":") + " " + value)
		}
	}

	v.BlankLine()
	v.Message(m.Message, m.MessageErr)
	bindings := []key.Binding{StatusKeys.Refresh}
	if m.sync != nil {
		bindings = append(bindings, StatusKeys.Incremental, StatusKeys.Full)
	}
	v.Help(append(bindings, StatusKeys.Close)...)
	return v.String()
}
