package tui

import (
	"context"
	"net/http"
	"strings"
	"testing"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/code-and-cash/cashctl/internal/admin"
	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/session"
	"github.com/code-and-cash/cashctl/internal/testutil"
)

func newConsole(t *testing.T) (*Model, *testutil.Backend) {
	t.Helper()
	b := testutil.NewBackend(t)
	store := testutil.LoggedIn(t, "admin-token", session.User{ID: "root", Role: session.RoleAdmin})
	client := admin.New(api.NewClient(store, api.Options{BaseURL: b.URL()}))
	return NewConsole(context.Background(), client, PaneOptions{PageSize: 10}), b
}

// drain runs cmd and feeds every resulting message back into the model
// until no commands remain. Spinner ticks are dropped.
func drain(t *testing.T, m *Model, cmd tea.Cmd) {
	t.Helper()
	for depth := 0; cmd != nil; depth++ {
		if depth > 20 {
			t.Fatal("command chain did not settle")
		}
		msg := cmd()
		switch msg := msg.(type) {
		case tea.BatchMsg:
			for _, c := range msg {
				drain(t, m, c)
			}
			return
		case spinner.TickMsg, tea.QuitMsg, nil:
			return
		}
		_, cmd = m.Update(msg)
	}
}

func press(t *testing.T, m *Model, k tea.KeyMsg) tea.Cmd {
	t.Helper()
	_, cmd := m.Update(k)
	return cmd
}

func runes(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func usersBody(names ...string) map[string]any {
	users := make([]map[string]string, 0, len(names))
	for i, n := range names {
		users = append(users, map[string]string{"id": "u" + string(rune('1'+i)), "name": n, "role": "user"})
	}
	return map[string]any{"status": "success", "data": map[string]any{"users": users, "total": len(users)}}
}

func TestConsole_InitLoadsUsersAndStats(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusOK, usersBody("Alice", "Bob"))
	b.JSON(http.MethodGet, "/admin/stats", http.StatusOK, map[string]any{"data": map[string]any{"stats": map[string]int{"totalUsers": 2, "pendingApplications": 4}}})

	drain(t, m, m.Init())

	if got := len(m.table.Rows()); got != 2 {
		t.Fatalf("rows = %d, want 2", got)
	}
	view := m.View()
	for _, want := range []string{"Alice", "Bob", "users 2", "4 pending", "page 1/1"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestConsole_TabSwitchLoadsOnce(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusOK, usersBody("Alice"))
	b.JSON(http.MethodGet, "/admin/tasks", http.StatusOK, map[string]any{"tasks": []map[string]any{{"id": "t1", "title": "Logo", "status": "open", "payout": 25}}, "total": 1})

	drain(t, m, m.run(m.active, m.pane().load))
	drain(t, m, press(t, m, tea.KeyMsg{Type: tea.KeyTab}))

	if m.active != TabTasks {
		t.Fatalf("active = %d, want %d", m.active, TabTasks)
	}
	if got := m.table.Rows(); len(got) != 1 || got[0][1] != "Logo" {
		t.Errorf("rows = %v", got)
	}
	if len(m.table.Columns()) != 5 || m.table.Columns()[1].Title != "Title" {
		t.Errorf("columns = %v", m.table.Columns())
	}

	drain(t, m, press(t, m, tea.KeyMsg{Type: tea.KeyShiftTab}))
	if m.active != TabUsers {
		t.Fatalf("active = %d, want %d", m.active, TabUsers)
	}
	if n := b.Count(http.MethodGet, "/admin/users"); n != 1 {
		t.Errorf("users fetched %d times, want 1", n)
	}
}

func TestConsole_DeleteRemovesRow(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusOK, usersBody("Alice", "Bob"))
	b.JSON(http.MethodDelete, "/admin/users/u1", http.StatusOK, map[string]string{"status": "success"})

	drain(t, m, m.run(m.active, m.pane().load))
	drain(t, m, press(t, m, runes("d")))

	if n := b.Count(http.MethodDelete, "/admin/users/u1"); n != 1 {
		t.Fatalf("DELETE count = %d, want 1", n)
	}
	if n := b.Count(http.MethodGet, "/admin/users"); n != 1 {
		t.Errorf("list refetched: GET count = %d, want 1", n)
	}
	rows := m.table.Rows()
	if len(rows) != 1 || rows[0][1] != "Bob" {
		t.Errorf("rows = %v, want only Bob", rows)
	}
	st := m.pane().state()
	if st.Total != 1 || !st.Dirty {
		t.Errorf("state = %+v, want total 1 and dirty", st)
	}
	if m.flash != "deleted Alice" || m.flashErr {
		t.Errorf("flash = %q (err=%v)", m.flash, m.flashErr)
	}
}

func TestConsole_ApproveWithBareAck(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusOK, usersBody())
	b.JSON(http.MethodGet, "/admin/applications", http.StatusOK, map[string]any{"data": map[string]any{
		"applications": []map[string]any{{"id": "a1", "status": "pending"}},
		"total":        1,
	}})
	b.JSON(http.MethodPatch, "/admin/applications/a1/status", http.StatusOK, map[string]string{"status": "success"})

	m.active = TabApplications
	drain(t, m, m.run(m.active, m.pane().load))
	drain(t, m, press(t, m, runes("a")))

	if body := string(b.Last().Body); body != `{"status":"approved"}` {
		t.Errorf("body = %s", body)
	}
	rows := m.table.Rows()
	if len(rows) != 1 || !strings.Contains(rows[0][3], "approved") {
		t.Errorf("rows = %v, want status approved", rows)
	}
	if rows[0][1] != "Unknown User" || rows[0][2] != "Unknown Task" {
		t.Errorf("fallbacks = %q, %q", rows[0][1], rows[0][2])
	}
}

func TestConsole_UnsupportedAction(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/submissions", http.StatusOK, map[string]any{"submissions": []map[string]any{{"id": "s1", "status": "pending"}}})

	m.active = TabSubmissions
	drain(t, m, m.run(m.active, m.pane().load))
	drain(t, m, press(t, m, runes("d")))

	if !m.flashErr || !strings.Contains(m.flash, "not available") {
		t.Errorf("flash = %q (err=%v)", m.flash, m.flashErr)
	}
	if n := b.Count(http.MethodDelete, "/admin/submissions/s1"); n != 0 {
		t.Errorf("DELETE count = %d, want 0", n)
	}
}

func TestConsole_FilterInput(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusOK, usersBody("Alice"))

	drain(t, m, m.run(m.active, m.pane().load))
	// Cursor blink commands from the text input are not run.
	press(t, m, runes("/"))
	if !m.filtering {
		t.Fatal("filter input did not open")
	}
	for _, r := range "active" {
		press(t, m, runes(string(r)))
	}
	drain(t, m, press(t, m, tea.KeyMsg{Type: tea.KeyEnter}))

	if m.filtering {
		t.Error("filter input still open after enter")
	}
	if q := b.Last().Query; !strings.Contains(q, "status=active") || !strings.Contains(q, "page=1") {
		t.Errorf("query = %q", q)
	}

	// esc leaves the filter untouched.
	before := len(b.Requests())
	press(t, m, runes("/"))
	press(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if len(b.Requests()) != before {
		t.Error("esc must not reload")
	}
	if got := m.pane().state().Filter; got != "active" {
		t.Errorf("Filter = %q, want active", got)
	}
}

func TestConsole_AuthFailureQuits(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusUnauthorized, map[string]string{"message": "jwt expired"})

	drain(t, m, m.run(m.active, m.pane().load))

	if !m.AuthLost() {
		t.Fatal("AuthLost = false, want true")
	}
	if !strings.Contains(m.flash, "cashctl login") {
		t.Errorf("flash = %q", m.flash)
	}
}

func TestConsole_FailureShowsRetry(t *testing.T) {
	m, b := newConsole(t)
	b.JSON(http.MethodGet, "/admin/users", http.StatusInternalServerError, map[string]string{"message": "db down"})

	drain(t, m, m.run(m.active, m.pane().load))
	if view := m.View(); !strings.Contains(view, "r to retry") {
		t.Errorf("View missing retry hint:\n%s", view)
	}

	b.JSON(http.MethodGet, "/admin/users", http.StatusOK, usersBody("Alice"))
	b.JSON(http.MethodGet, "/admin/stats", http.StatusOK, map[string]int{"totalUsers": 1})
	drain(t, m, press(t, m, runes("r")))

	if got := len(m.table.Rows()); got != 1 {
		t.Errorf("rows after retry = %d, want 1", got)
	}
	if m.AuthLost() {
		t.Error("server error must not end the session")
	}
}
