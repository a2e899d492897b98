package tui

import (
	"os/exec"

	tea "github.com/charmbracelet/bubbletea"

	"chimera/internal/adapters/tui/views"
	"chimera/internal/application/commands"
)

// ViewState represents the current view
type ViewState int

const (
	ViewBrowser ViewState = iota
	ViewStatus
	ViewHelp
)

// LinkOpener builds the process that opens a result's link
type LinkOpener interface {
	Command(link string) (*exec.Cmd, error)
}

// Options wires the app to the application layer
type Options struct {
	Querier  commands.Querier
	Status   views.StatusSource
	Sync     views.SyncFunc // nil hides the sync keys
	Opener   LinkOpener     // nil disables opening links
	ClientID string
	Limit    int
}

// App is the main TUI application model
type App struct {
	opener LinkOpener

	state   ViewState
	browser *views.BrowserModel
	status  *views.StatusModel
	help    *views.HelpModel

	width  int
	height int
}

// NewApp creates a new TUI application
func NewApp(opts Options) *App {
	clientID := opts.ClientID
	if clientID == "" {
		clientID = "tui"
	}
	return &App{
		opener:  opts.Opener,
		state:   ViewBrowser,
		browser: views.NewBrowserModel(opts.Querier, clientID, opts.Limit),
		status:  views.NewStatusModel(opts.Status, opts.Sync),
		help:    views.NewHelpModel(),
	}
}

// Init initializes the application
func (a *App) Init() tea.Cmd {
	return a.browser.Init()
}

// Update handles messages for the application
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.browser.SetSize(msg.Width, msg.Height)
		a.status.SetSize(msg.Width, msg.Height)
		a.help.SetSize(msg.Width, msg.Height)
		return a, nil

	case views.SwitchToStatusMsg:
		a.state = ViewStatus
		return a, a.status.Init()

	case views.SwitchToHelpMsg:
		a.state = ViewHelp
		return a, nil

	case views.SwitchToBrowserMsg:
		a.state = ViewBrowser
		return a, nil

	case views.OpenLinkMsg:
		return a, a.openLink(msg.URL)

	case linkClosedMsg:
		if msg.err != nil {
			a.browser.SetMessage(msg.err.Error(), true)
		}
		return a, nil
	}

	// Results of async work go to their view even when another is showing
	if _, isKey := msg.(tea.KeyMsg); !isKey {
		_, bcmd := a.browser.Update(msg)
		_, scmd := a.status.Update(msg)
		return a, tea.Batch(bcmd, scmd)
	}

	var cmd tea.Cmd
	switch a.state {
	case ViewBrowser:
		_, cmd = a.browser.Update(msg)
	case ViewStatus:
		_, cmd = a.status.Update(msg)
	case ViewHelp:
		_, cmd = a.help.Update(msg)
	}
	return a, cmd
}

type linkClosedMsg struct{ err error }

func (a *App) openLink(link string) tea.Cmd {
	if a.opener == nil {
		return nil
	}

	cmd, err := a.opener.Command(link)
	if err != nil {
		return func() tea.Msg {
			return linkClosedMsg{err: err}
		}
	}

	return tea.ExecProcess(cmd, func(err error) tea.Msg {
		return linkClosedMsg{err: err}
	})
}

// State returns the view being shown
func (a *App) State() ViewState {
	return a.state
}

// View renders the current view
func (a *App) View() string {
	switch a.state {
	case ViewStatus:
		return a.status.View()
	case ViewHelp:
		return a.help.View()
	default:
		return a.browser.View()
	}
}
