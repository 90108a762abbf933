package tui

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/code-and-cash/cashctl/internal/admin"
	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/listview"
)

// Tab indexes the console views.
type Tab int

const (
	TabUsers Tab = iota
	TabTasks
	TabApplications
	TabSubmissions
)

// loadedMsg reports a finished list operation for one tab.
type loadedMsg struct {
	tab Tab
	gen uint64
	err error
}

// mutatedMsg reports a finished delete or review.
type mutatedMsg struct {
	tab    Tab
	status string
	err    error
}

type statsMsg struct {
	stats admin.Stats
	err   error
}

// Model is the admin console.
type Model struct {
	ctx    context.Context
	client *admin.Client
	panes  []pane
	active Tab

	table   table.Model
	spinner spinner.Model
	filter  textinput.Model
	help    help.Model
	keys    KeyMap

	filtering bool
	flash     string
	flashErr  bool
	stats     *admin.Stats
	authLost  bool

	width  int
	height int
}

// NewConsole builds the console. ctx bounds every request it issues.
func NewConsole(ctx context.Context, client *admin.Client, opts PaneOptions) *Model {
	sp := spinner.New()
	sp.Spinner = spinner.Dot

	ti := textinput.New()
	ti.Placeholder = "status (empty clears)"
	ti.CharLimit = 32
	ti.Prompt = "filter> "

	m := &Model{
		ctx:     ctx,
		client:  client,
		panes:   newPanes(client, opts),
		spinner: sp,
		filter:  ti,
		help:    help.New(),
		keys:    DefaultKeyMap,
		width:   100,
		height:  24,
	}
	m.table = table.New(table.WithFocused(true), table.WithHeight(m.tableHeight()))
	m.syncTable()
	return m
}

// Init starts the spinner and loads the first tab and the stats header.
func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.spinner.Tick, m.run(m.active, m.pane().load), m.fetchStats())
}

func (m *Model) pane() pane { return m.panes[m.active] }

// run executes op against the active pane off the update loop.
func (m *Model) run(tab Tab, op func(context.Context) error) tea.Cmd {
	p := m.panes[tab]
	return func() tea.Msg {
		err := op(m.ctx)
		return loadedMsg{tab: tab, gen: p.state().Generation, err: err}
	}
}

func (m *Model) mutate(tab Tab, op func(context.Context) (string, error)) tea.Cmd {
	return func() tea.Msg {
		status, err := op(m.ctx)
		return mutatedMsg{tab: tab, status: status, err: err}
	}
}

func (m *Model) fetchStats() tea.Cmd {
	return func() tea.Msg {
		s, err := m.client.Stats(m.ctx)
		return statsMsg{stats: s, err: err}
	}
}

// Update handles messages and updates the console state.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width, m.height = msg.Width, msg.Height
		m.table.SetHeight(m.tableHeight())
		m.table.SetWidth(msg.Width)
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case loadedMsg:
		if errors.Is(msg.err, listview.ErrStale) {
			return m, nil
		}
		m.noteError(msg.err)
		if msg.tab == m.active {
			m.syncTable()
		}
		return m, m.quitIfLoggedOut()

	case mutatedMsg:
		if msg.err != nil {
			m.noteError(msg.err)
		} else {
			m.flash, m.flashErr = msg.status, false
		}
		if msg.tab == m.active {
			m.syncTable()
		}
		return m, m.quitIfLoggedOut()

	case statsMsg:
		if msg.err == nil {
			s := msg.stats
			m.stats = &s
		}
		return m, nil

	case tea.KeyMsg:
		if m.filtering {
			return m.updateFilter(msg)
		}
		return m.updateKeys(msg)
	}
	return m, nil
}

func (m *Model) updateKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	p := m.pane()
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.NextTab):
		return m, m.switchTab(1)

	case key.Matches(msg, m.keys.PrevTab):
		return m, m.switchTab(-1)

	case key.Matches(msg, m.keys.NextPg):
		return m, m.run(m.active, p.nextPage)

	case key.Matches(msg, m.keys.PrevPg):
		return m, m.run(m.active, p.prevPage)

	case key.Matches(msg, m.keys.Refresh):
		m.flash = ""
		return m, tea.Batch(m.run(m.active, p.retry), m.fetchStats())

	case key.Matches(msg, m.keys.Sort):
		return m, m.run(m.active, p.toggleSort)

	case key.Matches(msg, m.keys.Filter):
		m.filtering = true
		m.filter.SetValue(p.state().Filter)
		m.filter.CursorEnd()
		return m, m.filter.Focus()

	case key.Matches(msg, m.keys.Delete):
		idx := m.table.Cursor()
		return m, m.mutate(m.active, func(ctx context.Context) (string, error) { return p.remove(ctx, idx) })

	case key.Matches(msg, m.keys.Approve), key.Matches(msg, m.keys.Reject):
		idx := m.table.Cursor()
		approve := key.Matches(msg, m.keys.Approve)
		return m, m.mutate(m.active, func(ctx context.Context) (string, error) { return p.review(ctx, idx, approve) })
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) updateFilter(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case KeyEnter:
		m.filtering = false
		m.filter.Blur()
		value := strings.TrimSpace(m.filter.Value())
		p := m.pane()
		return m, m.run(m.active, func(ctx context.Context) error { return p.filterStatus(ctx, value) })
	case KeyEsc:
		m.filtering = false
		m.filter.Blur()
		return m, nil
	}
	var cmd tea.Cmd
	m.filter, cmd = m.filter.Update(msg)
	return m, cmd
}

func (m *Model) switchTab(delta int) tea.Cmd {
	n := len(m.panes)
	m.active = Tab((int(m.active) + delta + n) % n)
	m.flash = ""
	m.syncTable()
	if m.pane().state().State == listview.Idle {
		return m.run(m.active, m.pane().load)
	}
	return nil
}

// syncTable copies the active pane into the table. Rows are cleared before
// the columns change so no row is ever wider than the column set.
func (m *Model) syncTable() {
	p := m.pane()
	rows := p.rows()
	for i, r := range rows {
		rows[i] = m.decorate(r, p.columns())
	}
	cursor := m.table.Cursor()
	m.table.SetRows(nil)
	m.table.SetColumns(p.columns())
	m.table.SetRows(rows)
	if cursor >= len(rows) {
		cursor = len(rows) - 1
	}
	if cursor < 0 {
		cursor = 0
	}
	m.table.SetCursor(cursor)
}

// decorate colors the status column.
func (m *Model) decorate(r table.Row, cols []table.Column) table.Row {
	for i, c := range cols {
		if c.Title == "Status" && i < len(r) {
			r[i] = StatusStyle(r[i]).Render(r[i])
		}
	}
	return r
}

func (m *Model) noteError(err error) {
	if err == nil {
		return
	}
	if api.IsAuthFailure(err) || errors.Is(err, api.ErrLoginRequired) {
		m.authLost = true
	}
	m.flash, m.flashErr = describeError(err), true
}

func (m *Model) quitIfLoggedOut() tea.Cmd {
	if m.authLost {
		return tea.Quit
	}
	return nil
}

// AuthLost reports whether the console exited because the session ended.
func (m *Model) AuthLost() bool { return m.authLost }

func (m *Model) tableHeight() int {
	h := m.height - 10
	if h < 3 {
		h = 3
	}
	return h
}

// View renders the console.
func (m *Model) View() string {
	var b strings.Builder

	b.WriteString(TitleStyle.Render("cashctl admin"))
	b.WriteString("\n")
	if m.stats != nil {
		b.WriteString(BoxStyle.Render(fmt.Sprintf("users %d · tasks %d (%d open) · applications %d pending · submissions %d pending",
			m.stats.Users, m.stats.Tasks, m.stats.OpenTasks, m.stats.PendingApplications, m.stats.PendingSubmissions)))
		b.WriteString("\n")
	}
	b.WriteString("\n")

	tabs := make([]string, len(m.panes))
	for i, p := range m.panes {
		if Tab(i) == m.active {
			tabs[i] = ActiveTabStyle.Render(p.title())
		} else {
			tabs[i] = InactiveTabStyle.Render(p.title())
		}
	}
	b.WriteString(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
	b.WriteString("\n\n")

	st := m.pane().state()
	switch {
	case st.State == listview.Loading:
		b.WriteString(m.spinner.View() + " loading...\n")
	case st.State == listview.Failed && st.Err != nil:
		b.WriteString(ErrorStyle.Render(describeError(st.Err)) + DimStyle.Render("  (r to retry)") + "\n")
	case st.State == listview.Loaded && st.Total == 0:
		b.WriteString(DimStyle.Render("No records.") + "\n")
	default:
		b.WriteString("\n")
	}

	b.WriteString(m.table.View())
	b.WriteString("\n")

	if m.filtering {
		b.WriteString(m.filter.View() + "\n")
	}

	status := fmt.Sprintf("page %d/%d · %d total · sort %s", st.Page, max(st.TotalPages, 1), st.Total, st.Order)
	if st.Filter != "" {
		status += " · status=" + st.Filter
	}
	if st.Dirty {
		status += " · edited"
	}
	b.WriteString(StatusBarStyle.Render(status))
	b.WriteString("\n")

	if m.flash != "" {
		if m.flashErr {
			b.WriteString(ErrorStyle.Render(m.flash))
		} else {
			b.WriteString(SuccessStyle.Render(m.flash))
		}
		b.WriteString("\n")
	}
	b.WriteString(m.help.ShortHelpView(m.keys.ShortHelp()))
	return b.String()
}

// describeError maps an error to a short user-facing message.
func describeError(err error) string {
	switch api.Kind(err) {
	case "timeout":
		return "The server took too long to respond."
	case "network":
		return "Cannot reach the server."
	case "auth":
		return "Session expired, run `cashctl login`."
	case "server":
		return "Server error: " + err.Error()
	}
	if errors.Is(err, errUnsupported) {
		return "That action is " + err.Error() + "."
	}
	return err.Error()
}
