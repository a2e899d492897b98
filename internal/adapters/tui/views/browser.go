package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"chimera/internal/adapters/tui/styles"
	"chimera/internal/application"
	"chimera/internal/application/commands"
	"chimera/internal/domain"
)

// BrowserState is what the browser is currently showing
type BrowserState int

const (
	BrowserInput BrowserState = iota
	BrowserLoading
	BrowserResults
	BrowserFilter
)

// BrowserKeyMap defines key bindings for the result browser
type BrowserKeyMap struct {
	Up       key.Binding
	Down     key.Binding
	NextPage key.Binding
	PrevPage key.Binding
	Query    key.Binding
	Filter   key.Binding
	Copy     key.Binding
	Open     key.Binding
	Preview  key.Binding
	Status   key.Binding
	Cancel   key.Binding
	Help     key.Binding
	Quit     key.Binding
}

var BrowserKeys = BrowserKeyMap{
	Up: key.NewBinding(
		key.WithKeys("k", "up"),
		key.WithHelp("k/↑", "up"),
	),
	Down: key.NewBinding(
		key.WithKeys("j", "down"),
		key.WithHelp("j/↓", "down"),
	),
	NextPage: key.NewBinding(
		key.WithKeys("ctrl+f", "pgdown"),
		key.WithHelp("ctrl+f", "next page"),
	),
	PrevPage: key.NewBinding(
		key.WithKeys("ctrl+b", "pgup"),
		key.WithHelp("ctrl+b", "prev page"),
	),
	Query: key.NewBinding(
		key.WithKeys("i", "n"),
		key.WithHelp("i", "new query"),
	),
	Filter: key.NewBinding(
		key.WithKeys("/"),
		key.WithHelp("/", "filter"),
	),
	Copy: key.NewBinding(
		key.WithKeys("y"),
		key.WithHelp("y", "copy link"),
	),
	Open: key.NewBinding(
		key.WithKeys("o", "enter"),
		key.WithHelp("o", "open"),
	),
	Preview: key.NewBinding(
		key.WithKeys("p"),
		key.WithHelp("p", "preview"),
	),
	Status: key.NewBinding(
		key.WithKeys("s"),
		key.WithHelp("s", "status"),
	),
	Cancel: key.NewBinding(
		key.WithKeys("esc"),
		key.WithHelp("esc", "back"),
	),
	Help: key.NewBinding(
		key.WithKeys("?"),
		key.WithHelp("?", "help"),
	),
	Quit: key.NewBinding(
		key.WithKeys("q", "ctrl+c"),
		key.WithHelp("q", "quit"),
	),
}

// copyToClipboard is swapped out in tests
var copyToClipboard = clipboard.WriteAll

// BrowserModel asks the retrieval pipeline a question and browses the
// ranked answer set
type BrowserModel struct {
	ViewState
	querier  commands.Querier
	clientID string
	limit    int

	state     BrowserState
	input     textinput.Model
	filter    textinput.Model
	spinner   spinner.Model
	paginator *Paginator

	result      *domain.StructuredResult
	shown       []domain.ResultEntry
	showPreview bool

	seq    int
	cancel context.CancelFunc
}

// NewBrowserModel creates a new browser model. limit 0 uses the
// pipeline's default.
func NewBrowserModel(querier commands.Querier, clientID string, limit int) *BrowserModel {
	input := textinput.New()
	input.Placeholder = "What are you looking for?"
	input.Prompt = "Ask: "
	input.Focus()

	filter := textinput.New()
	filter.Prompt = "/"

	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = styles.Spinner

	return &BrowserModel{
		querier:     querier,
		clientID:    clientID,
		limit:       limit,
		state:       BrowserInput,
		input:       input,
		filter:      filter,
		spinner:     s,
		paginator:   NewPaginator(8),
		showPreview: true,
	}
}

// Init initializes the browser
func (m *BrowserModel) Init() tea.Cmd {
	return textinput.Blink
}

type queryDoneMsg struct {
	seq    int
	result *domain.StructuredResult
	err    error
}

// Update handles messages for the browser
func (m *BrowserModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case spinner.TickMsg:
		if m.state != BrowserLoading {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case queryDoneMsg:
		if msg.seq != m.seq {
			return m, nil
		}
		m.cancel = nil
		if msg.err != nil {
			m.SetMessage(describeQueryError(msg.err), true)
			m.state = BrowserInput
			m.input.Focus()
			return m, nil
		}
		m.setResult(msg.result)
		return m, nil

	case tea.KeyMsg:
		switch m.state {
		case BrowserInput:
			return m.updateInput(msg)
		case BrowserLoading:
			return m.updateLoading(msg)
		case BrowserFilter:
			return m.updateFilter(msg)
		default:
			return m.updateResults(msg)
		}
	}
	return m, nil
}

func (m *BrowserModel) updateInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		return m, tea.Quit
	case tea.KeyEnter:
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		return m, m.startQuery(text)
	case tea.KeyEsc:
		if m.result == nil {
			return m, tea.Quit
		}
		m.input.Blur()
		m.state = BrowserResults
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m *BrowserModel) updateLoading(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		m.abort()
		return m, tea.Quit
	case key.Matches(msg, BrowserKeys.Cancel):
		m.abort()
		m.seq++
		m.SetMessage("Query canceled", false)
		m.state = BrowserInput
		m.input.Focus()
	}
	return m, nil
}

func (m *BrowserModel) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.filter.SetValue("")
		m.applyFilter()
		m.filter.Blur()
		m.state = BrowserResults
		return m, nil
	case tea.KeyEnter:
		m.filter.Blur()
		m.state = BrowserResults
		return m, nil
	}

	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	m.applyFilter()
	return m, cmd
}

func (m *BrowserModel) updateResults(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	m.ClearMessage()

	switch {
	case key.Matches(msg, BrowserKeys.Quit):
		return m, tea.Quit
	case key.Matches(msg, BrowserKeys.Up):
		m.paginator.CursorUp()
	case key.Matches(msg, BrowserKeys.Down):
		m.paginator.CursorDown()
	case key.Matches(msg, BrowserKeys.NextPage):
		m.paginator.NextPage()
	case key.Matches(msg, BrowserKeys.PrevPage):
		m.paginator.PrevPage()
	case key.Matches(msg, BrowserKeys.Preview):
		m.showPreview = !m.showPreview
	case key.Matches(msg, BrowserKeys.Query):
		m.state = BrowserInput
		m.input.SetValue("")
		return m, m.input.Focus()
	case key.Matches(msg, BrowserKeys.Filter):
		m.state = BrowserFilter
		return m, m.filter.Focus()
	case key.Matches(msg, BrowserKeys.Cancel):
		if m.filter.Value() != "" {
			m.filter.SetValue("")
			m.applyFilter()
		}
	case key.Matches(msg, BrowserKeys.Copy):
		m.copySelected()
	case key.Matches(msg, BrowserKeys.Open):
		if e, ok := m.Selected(); ok && e.URL != "" {
			return m, func() tea.Msg { return OpenLinkMsg{URL: e.URL} }
		}
	case key.Matches(msg, BrowserKeys.Status):
		return m, func() tea.Msg { return SwitchToStatusMsg{} }
	case key.Matches(msg, BrowserKeys.Help):
		return m, func() tea.Msg { return SwitchToHelpMsg{} }
	}
	return m, nil
}

func (m *BrowserModel) startQuery(text string) tea.Cmd {
	m.abort()
	m.seq++
	seq := m.seq
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.ClearMessage()
	m.state = BrowserLoading
	m.input.Blur()

	run := commands.NewQueryCommand(m.querier, text, m.clientID, m.limit)
	return tea.Batch(m.spinner.Tick, func() tea.Msg {
		defer cancel()
		result, err := run.Execute(ctx)
		return queryDoneMsg{seq: seq, result: result, err: err}
	})
}

func (m *BrowserModel) abort() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

func (m *BrowserModel) setResult(result *domain.StructuredResult) {
	m.result = result
	m.filter.SetValue("")
	m.state = BrowserResults
	m.paginator.Reset()
	m.applyFilter()
}

func (m *BrowserModel) applyFilter() {
	if m.result == nil {
		m.shown = nil
		m.paginator.SetTotal(0)
		return
	}
	m.shown = commands.NewFilterCommand(m.result.Candidates, m.filter.Value()).Execute()
	m.paginator.SetCursor(0)
	m.paginator.SetTotal(len(m.shown))
}

func (m *BrowserModel) copySelected() {
	entry, ok := m.Selected()
	if !ok {
		return
	}
	if entry.URL == "" {
		m.SetMessage("No link for "+entry.ID, true)
		return
	}
	if err := copyToClipboard(entry.URL); err != nil {
		m.SetMessage("Copy failed: "+err.Error(), true)
		return
	}
	m.SetMessage("Copied "+entry.URL, false)
}

// Selected returns the entry under the cursor
func (m *BrowserModel) Selected() (domain.ResultEntry, bool) {
	i := m.paginator.Cursor()
	if i < 0 || i >= len(m.shown) {
		return domain.ResultEntry{}, false
	}
	return m.shown[i], true
}

// State returns what the browser is showing
func (m *BrowserModel) State() BrowserState {
	return m.state
}

// Shown returns the entries currently listed, after filtering
func (m *BrowserModel) Shown() []domain.ResultEntry {
	return m.shown
}

func describeQueryError(err error) string {
	var perr *application.PipelineError
	if errors.As(err, &perr) {
		return fmt.Sprintf("Query failed during %s: %v", perr.Stage, perr.Err)
	}
	return "Query failed: " + err.Error()
}

// View renders the browser
func (m *BrowserModel) View() string {
	v := NewViewBuilder().Title("Chimera")

	switch m.state {
	case BrowserInput:
		v.Line(m.input.View()).BlankLine()
		v.Message(m.Message, m.MessageErr)
		v.Help(
			key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "search")),
			key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back")),
		)

	case BrowserLoading:
		v.Line(m.spinner.View() + " Searching...").BlankLine()
		v.Help(BrowserKeys.Cancel)

	default:
		m.renderResults(v)
	}
	return v.String()
}

func (m *BrowserModel) renderResults(v *ViewBuilder) {
	r := m.result
	v.Line(styles.Subtitle.Render(fmt.Sprintf("%q (%d results, %s)", r.Query, len(r.Candidates), r.Elapsed.Round(time.Millisecond))))
	if len(r.Keywords) > 0 {
		v.Muted("keywords: " + strings.Join(r.Keywords, ", "))
	}
	if r.Degraded {
		v.Line(styles.Degraded.Render("Confidence scoring unavailable, showing similarity order."))
	}
	if m.state == BrowserFilter || m.filter.Value() != "" {
		v.Line(m.filter.View())
	}
	v.BlankLine()

	if len(m.shown) == 0 {
		if len(r.Candidates) == 0 {
			v.Muted("No matching documents.")
		} else {
			v.Muted("Nothing matches the filter.")
		}
	}

	start, end := m.paginator.VisibleRange()
	cursor := m.paginator.Cursor()
	for i := start; i < end; i++ {
		e := m.shown[i]
		title := e.Title
		if title == "" {
			title = e.ID
		}
		if i == cursor {
			title = styles.ResultSelected.Render(" " + title + " ")
		} else {
			title = styles.ResultTitle.Render(" " + title)
		}
		line := RenderConfidence(e) + " " + title
		if tags := RenderTags(e.Tags); tags != "" {
			line += "  " + tags
		}
		v.Line(line)
	}
	if m.paginator.TotalPages() > 1 {
		v.Muted(fmt.Sprintf("Page %d/%d", m.paginator.CurrentPage(), m.paginator.TotalPages()))
	}

	if e, ok := m.Selected(); ok && m.showPreview {
		v.BlankLine()
		m.renderDetail(v, e)
	}

	v.BlankLine()
	v.Message(m.Message, m.MessageErr)
	v.Help(BrowserKeys.Down, BrowserKeys.Filter, BrowserKeys.Query, BrowserKeys.Open, BrowserKeys.Copy,
		BrowserKeys.Preview, BrowserKeys.Status, BrowserKeys.Help, BrowserKeys.Quit)
}

func (m *BrowserModel) renderDetail(v *ViewBuilder, e domain.ResultEntry) {
	if e.URL != "" {
		v.Muted(e.URL)
	}
	switch {
	case !e.ContentAvailable:
		v.Line(styles.ErrorMsg.Render("content unavailable: " + e.UnavailableReason))
	case e.ContentPreview != "":
		v.Line(styles.Preview.Render(Wrap(e.ContentPreview, m.Width-8)))
	}
	if len(e.RelatedItems) > 0 {
		v.Line(styles.InputLabel.Render("Related"))
		for _, rel := range e.RelatedItems {
			v.Line(RenderRelated(rel))
		}
	}
}

// SetSize updates the view dimensions and fits the page to the height
func (m *BrowserModel) SetSize(width, height int) {
	m.ViewState.SetSize(width, height)
	m.input.Width = max(width-12, 20)
	if height > 0 {
		m.paginator.SetPageSize(max(height-20, 3))
	}
}

// Messages for view switching
type SwitchToHelpMsg struct{}

type SwitchToStatusMsg struct{}

type SwitchToBrowserMsg struct{}

// OpenLinkMsg asks the app to open a result's link
type OpenLinkMsg struct {
	URL string
}
