package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/code-and-cash/cashctl/internal/api"
)

// Tasks reads the public task board.
type Tasks struct {
	client *api.Client
}

// NewTasks creates a task client.
func NewTasks(client *api.Client) *Tasks {
	return &Tasks{client: client}
}

// List returns one page of tasks matching q.
func (t *Tasks) List(ctx context.Context, q api.ListQuery) (api.ListResult[Task], error) {
	res, err := api.List[Task](ctx, t.client, "/tasks", q, "tasks")
	if err != nil {
		return res, fmt.Errorf("market: listing tasks: %w", err)
	}
	return res, nil
}

// Get returns a single task.
func (t *Tasks) Get(ctx context.Context, id string) (Task, error) {
	if id == "" {
		return Task{}, requiredID("task")
	}
	raw, err := t.client.Raw(ctx, api.Request{Method: http.MethodGet, Path: "/tasks/" + url.PathEscape(id)})
	if err != nil {
		return Task{}, fmt.Errorf("market: fetching task %s: %w", id, err)
	}
	task, ok, err := api.DecodeEntity[Task](raw, "task")
	if err != nil {
		return Task{}, err
	}
	if !ok {
		return Task{}, fmt.Errorf("market: fetching task %s: %w", id, api.ErrInvalidEnvelope)
	}
	return task, nil
}

func requiredID(field string) error {
	verr := &api.ValidationError{}
	verr.Add(field+"Id", "is required")
	return verr
}
