package cli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/session"
	"github.com/code-and-cash/cashctl/internal/testutil"
)

type result struct {
	out    string
	errOut string
	err    error
}

// resetFlags restores every flag in the tree to its default so that
// package-level flag variables do not leak between runs.
func resetFlags(cmd *cobra.Command) {
	reset := func(f *pflag.Flag) {
		if sv, ok := f.Value.(pflag.SliceValue); ok {
			_ = sv.Replace(nil)
		} else {
			_ = f.Value.Set(f.DefValue)
		}
		f.Changed = false
	}
	cmd.Flags().VisitAll(reset)
	cmd.PersistentFlags().VisitAll(reset)
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

func run(t *testing.T, dir, stdin string, args ...string) result {
	t.Helper()
	resetFlags(rootCmd)
	var out, errOut bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&errOut)
	rootCmd.SetIn(strings.NewReader(stdin))
	rootCmd.SetArgs(append([]string{"--config-dir", dir}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return result{out: out.String(), errOut: errOut.String(), err: err}
}

// seed stores a session in dir the way login would.
func seed(t *testing.T, dir string, user session.User) {
	t.Helper()
	store, err := session.NewStore(filepath.Join(dir, "session.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()
	if _, err := store.Save("tok-"+user.ID, user); err != nil {
		t.Fatalf("saving session: %v", err)
	}
}

func readSession(t *testing.T, dir string) session.Session {
	t.Helper()
	store, err := session.NewStore(filepath.Join(dir, "session.db"))
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	defer store.Close()
	return store.Read()
}

var (
	member = session.User{ID: "u1", Email: "ada@example.com", Name: "Ada", Role: session.RoleUser}
	root   = session.User{ID: "a1", Email: "root@example.com", Name: "Root", Role: session.RoleAdmin}
)

func TestLogin_PromptsAndStoresSession(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewBackend(t)
	b.JSON(http.MethodPost, "/auth/login", http.StatusOK, map[string]any{
		"status": "success",
		"token":  "T",
		"data":   map[string]any{"user": member},
	})

	res := run(t, dir, "ada@example.com\nsecret\n", "--api-url", b.URL(), "login")
	if res.err != nil {
		t.Fatalf("login failed: %v (stderr %q)", res.err, res.errOut)
	}
	if !strings.Contains(res.out, "Logged in as Ada (user)") {
		t.Errorf("stdout = %q", res.out)
	}
	if body := string(b.Last().Body); !strings.Contains(body, `"password":"secret"`) {
		t.Errorf("body = %s", body)
	}

	sess := readSession(t, dir)
	if sess.Token != "T" || sess.Role() != session.RoleUser {
		t.Errorf("session = %+v", sess)
	}

	res = run(t, dir, "", "whoami")
	if res.err != nil {
		t.Fatalf("whoami failed: %v", res.err)
	}
	if !strings.Contains(res.out, "Ada") || !strings.Contains(res.out, "cached") {
		t.Errorf("whoami = %q", res.out)
	}

	res = run(t, dir, "", "log", "--event", "login")
	if res.err != nil {
		t.Fatalf("log failed: %v", res.err)
	}
	if !strings.Contains(res.out, "login") || !strings.Contains(res.out, "user=u1") {
		t.Errorf("log = %q", res.out)
	}
}

func TestLogin_InvalidInputNeverSent(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewBackend(t)

	res := run(t, dir, "", "--api-url", b.URL(), "login", "--email", "not-an-email", "--password", "x")
	if api.Kind(res.err) != "validation" {
		t.Fatalf("Kind = %q, want validation (err %v)", api.Kind(res.err), res.err)
	}
	if n := len(b.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestTasksList_RequiresSession(t *testing.T) {
	dir := t.TempDir()
	b := testutil.NewBackend(t)

	res := run(t, dir, "", "--api-url", b.URL(), "tasks", "list")
	if !errors.Is(res.err, api.ErrLoginRequired) {
		t.Fatalf("err = %v, want ErrLoginRequired", res.err)
	}
	if !strings.Contains(res.errOut, "cashctl login") {
		t.Errorf("stderr = %q", res.errOut)
	}
	if n := len(b.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestTasksList_QueryAndOutput(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, member)
	b := testutil.NewBackend(t)
	b.JSON(http.MethodGet, "/tasks", http.StatusOK, map[string]any{
		"status": "success",
		"data": map[string]any{
			"tasks": []map[string]any{
				{"id": "t6", "title": "Write API docs", "status": "open", "payout": 40, "category": "writing"},
				{"id": "t7", "title": "Fix login bug", "status": "open", "payout": 75.5},
			},
			"pagination": map[string]any{"total": 12, "page": 2, "limit": 5},
		},
	})

	res := run(t, dir, "", "--api-url", b.URL(), "tasks", "list", "--page", "2", "--limit", "5", "--filter", "status=open", "--order", "asc")
	if res.err != nil {
		t.Fatalf("tasks list failed: %v", res.err)
	}

	q := b.Last().Query
	for _, want := range []string{"page=2", "limit=5", "status=open", "sortOrder=asc", "sortBy=createdAt"} {
		if !strings.Contains(q, want) {
			t.Errorf("query %q missing %q", q, want)
		}
	}
	if got := b.Last().Header.Get("Authorization"); got != "Bearer tok-u1" {
		t.Errorf("Authorization = %q", got)
	}
	for _, want := range []string{"Write API docs", "Fix login bug", "$75.50", "writing", "Page 2 of 3, 12 total"} {
		if !strings.Contains(res.out, want) {
			t.Errorf("output missing %q:\n%s", want, res.out)
		}
	}
}

func TestTasksList_BadFlags(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, member)
	b := testutil.NewBackend(t)

	tests := []struct {
		name string
		args []string
	}{
		{"filter without value", []string{"--filter", "status"}},
		{"unknown order", []string{"--order", "sideways"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--api-url", b.URL(), "tasks", "list"}, tt.args...)
			if res := run(t, dir, "", args...); res.err == nil {
				t.Error("expected an error")
			}
		})
	}
	if n := len(b.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestUnauthorizedClearsSession(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, member)
	b := testutil.NewBackend(t)
	b.JSON(http.MethodGet, "/applications/my", http.StatusUnauthorized, map[string]string{"message": "jwt expired"})

	res := run(t, dir, "", "--api-url", b.URL(), "applications", "list")
	if api.Kind(res.err) != "auth" {
		t.Fatalf("Kind = %q, want auth (err %v)", api.Kind(res.err), res.err)
	}
	if strings.Count(res.errOut, "cashctl login") != 1 {
		t.Errorf("stderr = %q, want one login hint", res.errOut)
	}
	if sess := readSession(t, dir); !sess.IsZero() {
		t.Errorf("session survived a 401: %+v", sess)
	}
}

func TestAdmin_DeniedForMember(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, member)
	b := testutil.NewBackend(t)
	b.JSON(http.MethodGet, "/auth/me", http.StatusOK, map[string]any{"data": map[string]any{"user": member}})

	res := run(t, dir, "", "--api-url", b.URL(), "admin", "stats")
	if !errors.Is(res.err, api.ErrAccessDenied) {
		t.Fatalf("err = %v, want ErrAccessDenied", res.err)
	}
	if !strings.Contains(res.errOut, "requires the admin role") {
		t.Errorf("stderr = %q", res.errOut)
	}
	if n := b.Count(http.MethodGet, "/admin/stats"); n != 0 {
		t.Errorf("admin endpoint called %d times", n)
	}
}

func TestAdmin_StatsFromCachedRole(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, root)
	b := testutil.NewBackend(t)
	b.JSON(http.MethodGet, "/admin/stats", http.StatusOK, map[string]any{"data": map[string]any{"stats": map[string]int{
		"totalUsers": 12, "totalTasks": 30, "openTasks": 9, "pendingApplications": 4,
	}}})

	res := run(t, dir, "", "--api-url", b.URL(), "admin", "stats")
	if res.err != nil {
		t.Fatalf("admin stats failed: %v", res.err)
	}
	if n := b.Count(http.MethodGet, "/auth/me"); n != 0 {
		t.Errorf("role confirmed with server %d times, want 0 inside the trust window", n)
	}
	for _, want := range []string{"12", "30 (9 open)", "(4 pending)"} {
		if !strings.Contains(res.out, want) {
			t.Errorf("output missing %q:\n%s", want, res.out)
		}
	}
}

func TestAdmin_Mutations(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, root)
	b := testutil.NewBackend(t)
	b.JSON(http.MethodPatch, "/admin/submissions/s1/review", http.StatusOK, map[string]string{"status": "success"})
	b.JSON(http.MethodPost, "/admin/tasks", http.StatusCreated, map[string]any{"task": map[string]any{"id": "t9", "title": "Logo design"}})

	res := run(t, dir, "", "--api-url", b.URL(), "admin", "submissions", "review", "s1", "revision_requested", "--feedback", "add sources")
	if res.err != nil {
		t.Fatalf("review failed: %v", res.err)
	}
	if body := string(b.Last().Body); body != `{"status":"revision_requested","feedback":"add sources"}` {
		t.Errorf("body = %s", body)
	}
	if !strings.Contains(res.out, "Updated submission s1") {
		t.Errorf("stdout = %q", res.out)
	}

	res = run(t, dir, "", "--api-url", b.URL(), "admin", "tasks", "create", "--title", "Logo design", "--description", "SVG logo", "--payout", "50", "--deadline", "2026-12-01")
	if res.err != nil {
		t.Fatalf("create failed: %v", res.err)
	}
	if !strings.Contains(res.out, "Created task t9") {
		t.Errorf("stdout = %q", res.out)
	}
	if body := string(b.Last().Body); !strings.Contains(body, `"deadline":"2026-12-01T00:00:00`) {
		t.Errorf("body = %s", body)
	}

	before := len(b.Requests())
	res = run(t, dir, "", "--api-url", b.URL(), "admin", "users", "role", "u1", "owner")
	if api.Kind(res.err) != "validation" {
		t.Errorf("Kind = %q, want validation", api.Kind(res.err))
	}
	if len(b.Requests()) != before {
		t.Error("invalid role reached the backend")
	}
}

func TestSubmit_RejectsBeforeUpload(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, member)
	b := testutil.NewBackend(t)
	png := testutil.TempFile(t, "shot.png", []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR"))

	res := run(t, dir, "", "--api-url", b.URL(), "submit", "app1", png)
	if api.Kind(res.err) != "validation" {
		t.Fatalf("Kind = %q, want validation (err %v)", api.Kind(res.err), res.err)
	}
	if n := len(b.Requests()); n != 0 {
		t.Errorf("requests = %d, want 0", n)
	}
}

func TestLogout_ClearsEvenWhenServerFails(t *testing.T) {
	dir := t.TempDir()
	seed(t, dir, member)
	b := testutil.NewBackend(t)
	b.JSON(http.MethodPost, "/auth/logout", http.StatusInternalServerError, map[string]string{"message": "boom"})

	res := run(t, dir, "", "--api-url", b.URL(), "logout")
	if res.err != nil {
		t.Fatalf("logout failed: %v", res.err)
	}
	if sess := readSession(t, dir); !sess.IsZero() {
		t.Errorf("session = %+v, want cleared", sess)
	}

	res = run(t, dir, "", "--api-url", b.URL(), "logout")
	if !strings.Contains(res.out, "Not logged in.") {
		t.Errorf("second logout = %q", res.out)
	}
}

func TestConfig_SetURLAndShow(t *testing.T) {
	dir := t.TempDir()

	res := run(t, dir, "", "config", "set-url", "https://api.example.com/api/")
	if res.err != nil {
		t.Fatalf("set-url failed: %v", res.err)
	}

	res = run(t, dir, "", "config", "show")
	if res.err != nil {
		t.Fatalf("show failed: %v", res.err)
	}
	if !strings.Contains(res.out, "base_url: https://api.example.com/api\n") {
		t.Errorf("config = %q", res.out)
	}

	if res := run(t, dir, "", "config", "set-url", "not a url"); res.err == nil {
		t.Error("expected an error for an invalid URL")
	}
}

func TestPrintError(t *testing.T) {
	verr := &api.ValidationError{}
	verr.Add("email", "must be a valid email address")
	verr.Add("password", "is required")

	var buf bytes.Buffer
	printError(&buf, verr)
	want := "Error: invalid input\n  email must be a valid email address\n  password is required\n"
	if buf.String() != want {
		t.Errorf("validation output = %q, want %q", buf.String(), want)
	}

	apiErr := api.NewError(http.StatusConflict, "Already applied", "DUPLICATE")
	apiErr.RequestID = "req-1"

	verbose = true
	defer func() { verbose = false }()
	buf.Reset()
	printError(&buf, apiErr)
	if got := buf.String(); got != "Error: Already applied\n  (kind=business status=409 code=DUPLICATE request=req-1)\n" {
		t.Errorf("verbose output = %q", got)
	}

	verbose = false
	buf.Reset()
	printError(&buf, fmt.Errorf("market: register: %w", api.NewError(http.StatusConflict, "Email already registered", "")))
	if got := buf.String(); got != "Error: Email already registered\n" {
		t.Errorf("wrapped server error output = %q", got)
	}

	buf.Reset()
	printError(&buf, api.ErrTimeout)
	if !strings.Contains(buf.String(), "took too long") {
		t.Errorf("timeout output = %q", buf.String())
	}
}
