package listview

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/log"
)

type row struct {
	ID     string
	Status string
}

func rowID(r row) string { return r.ID }

// fakeBackend serves a fixed collection and records every query it sees.
type fakeBackend struct {
	mu      sync.Mutex
	rows    []row
	queries []api.ListQuery
	fail    error
}

func newFakeBackend(n int) *fakeBackend {
	b := &fakeBackend{}
	for i := 1; i <= n; i++ {
		b.rows = append(b.rows, row{ID: fmt.Sprintf("r%d", i), Status: "pending"})
	}
	return b
}

func (b *fakeBackend) fetch(ctx context.Context, q api.ListQuery) (api.ListResult[row], error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queries = append(b.queries, q)
	if b.fail != nil {
		return api.ListResult[row]{}, b.fail
	}
	start := (q.Page - 1) * q.PageSize
	var page []row
	if start < len(b.rows) {
		end := min(start+q.PageSize, len(b.rows))
		page = append(page, b.rows[start:end]...)
	}
	return api.NewListResult(page, len(b.rows), q), nil
}

func (b *fakeBackend) calls() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queries)
}

func (b *fakeBackend) delete(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, r := range b.rows {
		if r.ID == id {
			b.rows = append(b.rows[:i], b.rows[i+1:]...)
			return
		}
	}
}

func (b *fakeBackend) setFail(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.fail = err
}

func TestLoad(t *testing.T) {
	b := newFakeBackend(23)
	c := New(b.fetch, rowID, Options{Query: api.NewListQuery(5)})

	if s := c.Snapshot(); s.State != Idle || len(s.Items) != 0 {
		t.Fatalf("initial snapshot = %+v", s)
	}
	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	s := c.Snapshot()
	if s.State != Loaded {
		t.Errorf("State = %s, want loaded", s.State)
	}
	if len(s.Items) != 5 || s.Total != 23 || s.TotalPages != 5 {
		t.Errorf("snapshot = items %d total %d pages %d", len(s.Items), s.Total, s.TotalPages)
	}
	if s.Dirty {
		t.Error("fresh load should not be dirty")
	}
}

func TestQueryChangesOnlyFireWhenChanged(t *testing.T) {
	b := newFakeBackend(30)
	c := New(b.fetch, rowID, Options{Query: api.NewListQuery(10)})
	ctx := context.Background()

	if err := c.Load(ctx); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := c.SetPage(ctx, 1); err != nil {
		t.Fatal(err)
	}
	if b.calls() != 1 {
		t.Errorf("SetPage to current page fetched: calls = %d, want 1", b.calls())
	}

	if err := c.SetPage(ctx, 3); err != nil {
		t.Fatal(err)
	}
	if err := c.SetFilter(ctx, "status", "pending"); err != nil {
		t.Fatal(err)
	}
	if q := c.Query(); q.Page != 1 || q.Filters["status"] != "pending" {
		t.Errorf("after SetFilter query = %+v, want page 1 with filter", q)
	}
	if err := c.SetFilter(ctx, "status", "pending"); err != nil {
		t.Fatal(err)
	}
	if b.calls() != 3 {
		t.Errorf("calls = %d, want 3", b.calls())
	}

	if err := c.SetSort(ctx, "createdAt", api.SortAsc); err != nil {
		t.Fatal(err)
	}
	if err := c.SetPageSize(ctx, 20); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearFilter(ctx, "status"); err != nil {
		t.Fatal(err)
	}
	if err := c.ClearFilter(ctx, "status"); err != nil {
		t.Fatal(err)
	}
	if b.calls() != 6 {
		t.Errorf("calls = %d, want 6", b.calls())
	}
}

func TestNextPrevPageBounds(t *testing.T) {
	b := newFakeBackend(15)
	c := New(b.fetch, rowID, Options{Query: api.NewListQuery(10)})
	ctx := context.Background()

	_ = c.Load(ctx)
	_ = c.PrevPage(ctx)
	_ = c.NextPage(ctx)
	_ = c.NextPage(ctx)

	if q := c.Query(); q.Page != 2 {
		t.Errorf("Page = %d, want 2", q.Page)
	}
	if b.calls() != 2 {
		t.Errorf("calls = %d, want 2", b.calls())
	}
}

func TestClampRefetchesOnce(t *testing.T) {
	b := newFakeBackend(25)
	c := New(b.fetch, rowID, Options{Query: api.ListQuery{Page: 9, PageSize: 10}})

	if err := c.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	s := c.Snapshot()
	if s.Query.Page != 3 {
		t.Errorf("Page = %d, want 3", s.Query.Page)
	}
	if len(s.Items) != 5 || s.Items[0].ID != "r21" {
		t.Errorf("items = %v", s.Items)
	}
	if b.calls() != 2 {
		t.Errorf("calls = %d, want 2", b.calls())
	}
}

func TestEmptiedListReturnsToFirstPage(t *testing.T) {
	b := newFakeBackend(25)
	c := New(b.fetch, rowID, Options{Query: api.ListQuery{PageSize: 10}})
	ctx := context.Background()

	if err := c.SetPage(ctx, 3); err != nil {
		t.Fatalf("SetPage failed: %v", err)
	}
	b.mu.Lock()
	b.rows = nil
	b.mu.Unlock()

	before := b.calls()
	if err := c.Refresh(ctx); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	s := c.Snapshot()
	if s.Query.Page != 1 {
		t.Errorf("Page = %d, want 1", s.Query.Page)
	}
	if s.State != Loaded || len(s.Items) != 0 || s.Total != 0 {
		t.Errorf("snapshot = %s, %d items of %d", s.State, len(s.Items), s.Total)
	}
	if n := b.calls() - before; n != 2 {
		t.Errorf("calls = %d, want 2", n)
	}
}

func TestFailureAndRetry(t *testing.T) {
	b := newFakeBackend(3)
	c := New(b.fetch, rowID, Options{})
	ctx := context.Background()

	b.setFail(api.ErrNetwork)
	if err := c.Load(ctx); !errors.Is(err, api.ErrNetwork) {
		t.Fatalf("Load error = %v, want ErrNetwork", err)
	}
	s := c.Snapshot()
	if s.State != Failed || !errors.Is(s.Err, api.ErrNetwork) {
		t.Errorf("snapshot = %s %v", s.State, s.Err)
	}

	b.setFail(nil)
	if err := c.Retry(ctx); err != nil {
		t.Fatalf("Retry failed: %v", err)
	}
	if s := c.Snapshot(); s.State != Loaded || s.Err != nil || len(s.Items) != 3 {
		t.Errorf("after retry snapshot = %+v", s)
	}
}

// Deleting one item on a 23 item list without refetch leaves 4 visible
// rows, a total of 22 and 5 pages.
func TestRemoveWithoutRefetch(t *testing.T) {
	b := newFakeBackend(23)
	c := New(b.fetch, rowID, Options{Query: api.NewListQuery(5)})
	ctx := context.Background()
	_ = c.Load(ctx)

	if err := c.Remove(ctx, "r2"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	s := c.Snapshot()
	if len(s.Items) != 4 || s.Total != 22 || s.TotalPages != 5 {
		t.Errorf("snapshot = items %d total %d pages %d", len(s.Items), s.Total, s.TotalPages)
	}
	for _, r := range s.Items {
		if r.ID == "r2" {
			t.Error("removed item still visible")
		}
	}
	if !s.Dirty {
		t.Error("optimistic remove should mark the page dirty")
	}
	if b.calls() != 1 {
		t.Errorf("calls = %d, want 1 (no refetch)", b.calls())
	}

	if err := c.Remove(ctx, "not-here"); err != nil {
		t.Fatalf("Remove(unknown) failed: %v", err)
	}
	if c.Snapshot().Total != 22 {
		t.Error("removing an unknown id should not change the total")
	}
}

func TestRemoveWithRefetch(t *testing.T) {
	b := newFakeBackend(23)
	c := New(b.fetch, rowID, Options{Query: api.NewListQuery(5), RefetchAfterMutation: true})
	ctx := context.Background()
	_ = c.Load(ctx)

	b.delete("r2")
	if err := c.Remove(ctx, "r2"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	s := c.Snapshot()
	if len(s.Items) != 5 || s.Total != 22 || s.Dirty {
		t.Errorf("snapshot = items %d total %d dirty %v", len(s.Items), s.Total, s.Dirty)
	}
	if b.calls() != 2 {
		t.Errorf("calls = %d, want 2", b.calls())
	}
}

func TestRemoveLastRowStepsBack(t *testing.T) {
	b := newFakeBackend(11)
	c := New(b.fetch, rowID, Options{Query: api.ListQuery{Page: 2, PageSize: 10}})
	ctx := context.Background()
	_ = c.Load(ctx)

	b.delete("r11")
	if err := c.Remove(ctx, "r11"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	s := c.Snapshot()
	if s.Query.Page != 1 || len(s.Items) != 10 {
		t.Errorf("page = %d items = %d, want page 1 with 10 items", s.Query.Page, len(s.Items))
	}
}

func TestPrependAndReplace(t *testing.T) {
	b := newFakeBackend(10)
	c := New(b.fetch, rowID, Options{Query: api.NewListQuery(10)})
	ctx := context.Background()
	_ = c.Load(ctx)

	if err := c.Prepend(ctx, row{ID: "new", Status: "open"}); err != nil {
		t.Fatal(err)
	}
	s := c.Snapshot()
	if len(s.Items) != 10 || s.Items[0].ID != "new" || s.Total != 11 || s.TotalPages != 2 {
		t.Errorf("after Prepend: first %q len %d total %d pages %d", s.Items[0].ID, len(s.Items), s.Total, s.TotalPages)
	}

	if err := c.Replace(ctx, row{ID: "r3", Status: "approved"}); err != nil {
		t.Fatal(err)
	}
	if err := c.Patch(ctx, "r4", func(r row) row { r.Status = "rejected"; return r }); err != nil {
		t.Fatal(err)
	}
	s = c.Snapshot()
	for _, r := range s.Items {
		switch r.ID {
		case "r3":
			if r.Status != "approved" {
				t.Errorf("r3 status = %q, want approved", r.Status)
			}
		case "r4":
			if r.Status != "rejected" {
				t.Errorf("r4 status = %q, want rejected", r.Status)
			}
		}
	}
}

func TestSnapshotIsACopy(t *testing.T) {
	b := newFakeBackend(3)
	c := New(b.fetch, rowID, Options{})
	_ = c.Load(context.Background())

	s := c.Snapshot()
	s.Items[0].Status = "mutated"
	if c.Snapshot().Items[0].Status == "mutated" {
		t.Error("Snapshot must not alias controller state")
	}
}

// gatedFetcher blocks each call until its page is released.
type gatedFetcher struct {
	mu      sync.Mutex
	gates   map[int]chan struct{}
	started chan int
}

func newGatedFetcher(pages ...int) *gatedFetcher {
	g := &gatedFetcher{gates: make(map[int]chan struct{}), started: make(chan int, 8)}
	for _, p := range pages {
		g.gates[p] = make(chan struct{})
	}
	return g
}

func (g *gatedFetcher) fetch(ctx context.Context, q api.ListQuery) (api.ListResult[row], error) {
	g.mu.Lock()
	gate := g.gates[q.Page]
	g.mu.Unlock()
	g.started <- q.Page
	if gate != nil {
		<-gate
	}
	items := []row{{ID: fmt.Sprintf("p%d", q.Page)}}
	return api.NewListResult(items, 30, q), nil
}

func (g *gatedFetcher) release(page int) { close(g.gates[page]) }

func TestLastRequestedWins(t *testing.T) {
	dir := t.TempDir()
	logger, err := log.NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}

	g := newGatedFetcher(1, 2)
	c := New(g.fetch, rowID, Options{Query: api.NewListQuery(10), Logger: logger, Name: "users"})
	ctx := context.Background()

	firstErr := make(chan error, 1)
	go func() { firstErr <- c.Load(ctx) }()
	<-g.started // page 1 in flight

	secondErr := make(chan error, 1)
	go func() { secondErr <- c.SetPage(ctx, 2) }()
	<-g.started // page 2 in flight

	// The newer request answers first, then the older one.
	g.release(2)
	if err := <-secondErr; err != nil {
		t.Fatalf("page 2 load failed: %v", err)
	}
	g.release(1)
	if err := <-firstErr; !errors.Is(err, ErrStale) {
		t.Fatalf("page 1 load error = %v, want ErrStale", err)
	}

	s := c.Snapshot()
	if s.Query.Page != 2 || len(s.Items) != 1 || s.Items[0].ID != "p2" {
		t.Errorf("snapshot = page %d items %v, want page 2 items", s.Query.Page, s.Items)
	}

	events, err := logger.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	var stale int
	for _, ev := range events {
		if ev.Event == log.EventListStaleDiscarded {
			stale++
			if ev.View != "users" || ev.Generation != 1 {
				t.Errorf("stale event = %+v", ev)
			}
		}
	}
	if stale != 1 {
		t.Errorf("stale events = %d, want 1", stale)
	}
}

// An optimistic delete that lands while a refresh is in flight is
// overwritten by the refresh result: the last applied state wins.
func TestDeleteDuringRefreshLastAppliedWins(t *testing.T) {
	b := newFakeBackend(5)
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var gated atomic.Bool
	fetch := func(ctx context.Context, q api.ListQuery) (api.ListResult[row], error) {
		res, err := b.fetch(ctx, q) // snapshot of the backend taken before the delete
		started <- struct{}{}
		if gated.Load() {
			<-release
		}
		return res, err
	}
	c := New(fetch, rowID, Options{Query: api.NewListQuery(10)})
	ctx := context.Background()
	_ = c.Load(ctx)
	<-started

	gated.Store(true)
	done := make(chan error, 1)
	go func() { done <- c.Refresh(ctx) }()
	<-started

	if err := c.Remove(ctx, "r1"); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if s := c.Snapshot(); len(s.Items) != 4 || !s.Dirty {
		t.Fatalf("optimistic state = items %d dirty %v", len(s.Items), s.Dirty)
	}

	close(release)
	if err := <-done; err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}
	s := c.Snapshot()
	if len(s.Items) != 5 || s.Total != 5 || s.Dirty {
		t.Errorf("final state = items %d total %d dirty %v, want the refresh result", len(s.Items), s.Total, s.Dirty)
	}
}

func TestPollPausesAfterThreshold(t *testing.T) {
	dir := t.TempDir()
	logger, err := log.NewLogger(dir)
	if err != nil {
		t.Fatalf("NewLogger: %v", err)
	}
	b := newFakeBackend(3)
	b.setFail(api.ErrTimeout)
	c := New(b.fetch, rowID, Options{Logger: logger, Name: "tasks"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- c.Poll(ctx, 5*time.Millisecond, 2) }()

	deadline := time.Now().Add(2 * time.Second)
	for !c.Snapshot().Paused {
		if time.Now().After(deadline) {
			t.Fatal("poll never paused")
		}
		time.Sleep(5 * time.Millisecond)
	}
	calls := b.calls()
	time.Sleep(30 * time.Millisecond)
	if b.calls() != calls {
		t.Errorf("paused poll kept fetching: %d -> %d", calls, b.calls())
	}

	b.setFail(nil)
	// A concurrent poll tick may supersede the retry's own load.
	if err := c.Retry(context.Background()); err != nil && !errors.Is(err, ErrStale) {
		t.Fatalf("Retry failed: %v", err)
	}
	if c.Snapshot().Paused {
		t.Error("Retry should resume polling")
	}

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Errorf("Poll returned %v, want context.Canceled", err)
	}

	events, _ := logger.ReadAll()
	var paused int
	for _, ev := range events {
		if ev.Event == log.EventPollPaused {
			paused++
		}
	}
	if paused != 1 {
		t.Errorf("poll_paused events = %d, want 1", paused)
	}
}

func TestPollRejectsZeroInterval(t *testing.T) {
	c := New(newFakeBackend(1).fetch, rowID, Options{})
	if err := c.Poll(context.Background(), 0, 3); err == nil {
		t.Error("Poll with zero interval should fail")
	}
}

func TestOnChangeCalled(t *testing.T) {
	var n atomic.Int32
	c := New(newFakeBackend(2).fetch, rowID, Options{OnChange: func() { n.Add(1) }})
	_ = c.Load(context.Background())
	if n.Load() < 2 {
		t.Errorf("OnChange calls = %d, want at least 2 (loading, loaded)", n.Load())
	}
}
