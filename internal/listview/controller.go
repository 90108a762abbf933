// Package listview keeps the state behind a paginated, filterable list:
// the current query, the visible page, loading and error status.
//
// Every load takes a new generation number. A result is applied only if
// no newer load has started since, so the last requested query always
// wins regardless of response order. Optimistic mutations edit the
// visible page in place and mark it dirty until the next applied load.
package listview

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/log"
)

// ErrStale is returned by Load when a newer load superseded it. The result
// was discarded.
var ErrStale = errors.New("listview: result superseded by a newer load")

// State is the controller's lifecycle phase.
type State int

const (
	Idle State = iota
	Loading
	Loaded
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Fetcher loads one page for q.
type Fetcher[T any] func(ctx context.Context, q api.ListQuery) (api.ListResult[T], error)

// Options configures a Controller.
type Options struct {
	Query                api.ListQuery
	RefetchAfterMutation bool
	Logger               *log.Logger
	Name                 string // view name used in log events

	// OnChange is called, outside the lock, after every state change.
	OnChange func()
}

// Snapshot is a copy of the controller state at one instant.
type Snapshot[T any] struct {
	State      State
	Query      api.ListQuery
	Items      []T
	Total      int
	TotalPages int
	Err        error
	Dirty      bool
	Generation uint64
	Paused     bool
}

// Controller owns the state of one list view. It is safe for concurrent use.
type Controller[T any] struct {
	fetch Fetcher[T]
	idOf  func(T) string
	opts  Options

	mu         sync.Mutex
	state      State
	query      api.ListQuery
	items      []T
	total      int
	totalPages int
	err        error
	dirty      bool
	gen        uint64
	breaker    *Breaker
}

// New creates an idle controller. Nothing is fetched until Load.
func New[T any](fetch Fetcher[T], idOf func(T) string, opts Options) *Controller[T] {
	return &Controller[T]{
		fetch: fetch,
		idOf:  idOf,
		opts:  opts,
		query: opts.Query.Normalize(),
		items: []T{},
	}
}

// Load fetches the page for the current query. It returns ErrStale when a
// newer load started before this one finished.
func (c *Controller[T]) Load(ctx context.Context) error {
	return c.load(ctx, true)
}

// Refresh reloads the current page.
func (c *Controller[T]) Refresh(ctx context.Context) error {
	return c.Load(ctx)
}

// Retry reloads after a failure and resumes paused polling.
func (c *Controller[T]) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.breaker != nil {
		c.breaker.Reset()
	}
	c.mu.Unlock()
	return c.Load(ctx)
}

func (c *Controller[T]) load(ctx context.Context, allowClamp bool) error {
	c.mu.Lock()
	c.gen++
	gen := c.gen
	q := c.query
	c.state = Loading
	c.err = nil
	c.mu.Unlock()
	c.changed()

	start := time.Now()
	res, err := c.fetch(ctx, q)

	c.mu.Lock()
	if gen != c.gen {
		c.mu.Unlock()
		c.logEvent(log.LogEvent{Event: log.EventListStaleDiscarded, Generation: gen, Page: q.Page})
		return ErrStale
	}

	if err != nil {
		c.state = Failed
		c.err = err
		c.mu.Unlock()
		c.logEvent(log.LogEvent{
			Event:      log.EventListFailed,
			Generation: gen,
			Page:       q.Page,
			Kind:       api.Kind(err),
			Error:      err.Error(),
			DurationMs: time.Since(start).Milliseconds(),
		})
		c.changed()
		return err
	}

	// Past the last page, or past page 1 of an empty list.
	if allowClamp && q.Page > 1 && q.Page > res.TotalPages {
		c.query = q.Clamp(max(res.TotalPages, 1))
		c.mu.Unlock()
		return c.load(ctx, false)
	}

	c.items = res.Items
	if c.items == nil {
		c.items = []T{}
	}
	c.total = res.Total
	c.totalPages = res.TotalPages
	c.state = Loaded
	c.dirty = false
	c.mu.Unlock()

	c.logEvent(log.LogEvent{
		Event:      log.EventListLoaded,
		Generation: gen,
		Page:       q.Page,
		Total:      res.Total,
		DurationMs: time.Since(start).Milliseconds(),
	})
	c.changed()
	return nil
}

// SetPage moves to page p. Pages below 1 become 1.
func (c *Controller[T]) SetPage(ctx context.Context, p int) error {
	if p < 1 {
		p = 1
	}
	return c.update(ctx, func(q api.ListQuery) api.ListQuery {
		q.Page = p
		return q
	}, false)
}

// NextPage advances one page unless the last known page is showing.
func (c *Controller[T]) NextPage(ctx context.Context) error {
	c.mu.Lock()
	page, last := c.query.Page, c.totalPages
	c.mu.Unlock()
	if last > 0 && page >= last {
		return nil
	}
	return c.SetPage(ctx, page+1)
}

// PrevPage goes back one page; it is a no-op on the first page.
func (c *Controller[T]) PrevPage(ctx context.Context) error {
	c.mu.Lock()
	page := c.query.Page
	c.mu.Unlock()
	if page <= 1 {
		return nil
	}
	return c.SetPage(ctx, page-1)
}

// SetFilter sets one filter and returns to page 1. An empty value removes
// the filter.
func (c *Controller[T]) SetFilter(ctx context.Context, key, value string) error {
	return c.update(ctx, func(q api.ListQuery) api.ListQuery {
		return q.WithFilter(key, value)
	}, true)
}

// ClearFilter removes one filter and returns to page 1.
func (c *Controller[T]) ClearFilter(ctx context.Context, key string) error {
	return c.update(ctx, func(q api.ListQuery) api.ListQuery {
		return q.WithoutFilter(key)
	}, true)
}

// SetSort changes the sort field and order and returns to page 1.
func (c *Controller[T]) SetSort(ctx context.Context, field string, order api.SortOrder) error {
	return c.update(ctx, func(q api.ListQuery) api.ListQuery {
		return q.WithSort(field, order)
	}, true)
}

// SetPageSize changes the page size and returns to page 1.
func (c *Controller[T]) SetPageSize(ctx context.Context, size int) error {
	if size <= 0 {
		size = api.DefaultPageSize
	}
	return c.update(ctx, func(q api.ListQuery) api.ListQuery {
		q.PageSize = size
		return q
	}, true)
}

// update applies fn to the query and loads only if the query changed.
func (c *Controller[T]) update(ctx context.Context, fn func(api.ListQuery) api.ListQuery, resetPage bool) error {
	c.mu.Lock()
	cur := c.query
	next := fn(cur.Normalize()).Normalize()
	if next.Equal(cur) {
		c.mu.Unlock()
		return nil
	}
	if resetPage {
		next.Page = 1
	}
	c.query = next
	c.mu.Unlock()
	return c.Load(ctx)
}

// Remove drops the item with id from the visible page after a successful
// delete. With RefetchAfterMutation it reloads instead.
func (c *Controller[T]) Remove(ctx context.Context, id string) error {
	if c.opts.RefetchAfterMutation {
		return c.Load(ctx)
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}
	items := make([]T, 0, len(c.items)-1)
	items = append(items, c.items[:idx]...)
	items = append(items, c.items[idx+1:]...)
	c.items = items
	if c.total > 0 {
		c.total--
	}
	c.totalPages = api.TotalPages(c.total, c.query.PageSize)
	c.dirty = true
	emptied := len(c.items) == 0 && c.query.Page > 1
	c.mu.Unlock()

	c.logMutation("remove", id)
	c.changed()

	// Deleting the last row of a trailing page steps back one page.
	if emptied {
		return c.PrevPage(ctx)
	}
	return nil
}

// Prepend adds a newly created item to the top of the visible page.
func (c *Controller[T]) Prepend(ctx context.Context, item T) error {
	if c.opts.RefetchAfterMutation {
		return c.Load(ctx)
	}

	c.mu.Lock()
	items := make([]T, 0, len(c.items)+1)
	items = append(items, item)
	items = append(items, c.items...)
	if size := c.query.PageSize; size > 0 && len(items) > size {
		items = items[:size]
	}
	c.items = items
	c.total++
	c.totalPages = api.TotalPages(c.total, c.query.PageSize)
	c.dirty = true
	c.mu.Unlock()

	c.logMutation("prepend", c.idOf(item))
	c.changed()
	return nil
}

// Replace swaps the visible copy of an item after a status update. Items
// not on the current page are ignored.
func (c *Controller[T]) Replace(ctx context.Context, item T) error {
	id := c.idOf(item)
	return c.Patch(ctx, id, func(T) T { return item })
}

// Patch rewrites the visible copy of the item with id using fn. It is used
// when the backend acknowledges a change without returning the entity.
func (c *Controller[T]) Patch(ctx context.Context, id string, fn func(T) T) error {
	if c.opts.RefetchAfterMutation {
		return c.Load(ctx)
	}

	c.mu.Lock()
	idx := c.indexOf(id)
	if idx < 0 {
		c.mu.Unlock()
		return nil
	}
	items := make([]T, len(c.items))
	copy(items, c.items)
	items[idx] = fn(items[idx])
	c.items = items
	c.dirty = true
	c.mu.Unlock()

	c.logMutation("replace", id)
	c.changed()
	return nil
}

func (c *Controller[T]) indexOf(id string) int {
	for i, it := range c.items {
		if c.idOf(it) == id {
			return i
		}
	}
	return -1
}

// Query returns the current query.
func (c *Controller[T]) Query() api.ListQuery {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.query.Normalize()
}

// Snapshot returns a copy of the current state.
func (c *Controller[T]) Snapshot() Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	items := make([]T, len(c.items))
	copy(items, c.items)
	s := Snapshot[T]{
		State:      c.state,
		Query:      c.query.Normalize(),
		Items:      items,
		Total:      c.total,
		TotalPages: c.totalPages,
		Err:        c.err,
		Dirty:      c.dirty,
		Generation: c.gen,
	}
	if c.breaker != nil {
		s.Paused = c.breaker.Paused()
	}
	return s
}

// Poll reloads every interval until ctx ends. After threshold consecutive
// failures it stops loading until Retry is called.
func (c *Controller[T]) Poll(ctx context.Context, interval time.Duration, threshold int) error {
	if interval <= 0 {
		return errors.New("listview: poll interval must be positive")
	}
	breaker := NewBreaker(threshold)
	c.mu.Lock()
	c.breaker = breaker
	c.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		if breaker.Paused() {
			continue
		}
		err := c.Load(ctx)
		switch {
		case err == nil:
			breaker.Success()
		case errors.Is(err, ErrStale), ctx.Err() != nil:
			// Superseded or shutting down; not a backend failure.
		default:
			if breaker.Failure() {
				c.logEvent(log.LogEvent{
					Event:  log.EventPollPaused,
					Kind:   api.Kind(err),
					Error:  err.Error(),
					Reason: "consecutive failures",
					Data:   map[string]interface{}{"failures": breaker.Failures()},
				})
				c.changed()
			}
		}
	}
}

func (c *Controller[T]) changed() {
	if c.opts.OnChange != nil {
		c.opts.OnChange()
	}
}

func (c *Controller[T]) logMutation(op, id string) {
	c.mu.Lock()
	ev := log.LogEvent{
		Event:      log.EventListMutated,
		Reason:     op,
		Page:       c.query.Page,
		Total:      c.total,
		Generation: c.gen,
		Data:       map[string]interface{}{"id": id},
	}
	c.mu.Unlock()
	c.logEvent(ev)
}

func (c *Controller[T]) logEvent(ev log.LogEvent) {
	if c.opts.Logger == nil {
		return
	}
	ev.View = c.opts.Name
	_ = c.opts.Logger.Append(ev)
}
