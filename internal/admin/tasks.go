package admin

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/market"
)

// TaskInput is the body for creating or replacing a task.
type TaskInput struct {
	Title       string     `json:"title" validate:"required,min=3,max=200"`
	Description string     `json:"description" validate:"required"`
	Category    string     `json:"category,omitempty" validate:"max=100"`
	Difficulty  string     `json:"difficulty,omitempty" validate:"omitempty,oneof=easy medium hard"`
	Payout      float64    `json:"payout" validate:"gte=0"`
	Deadline    *time.Time `json:"deadline,omitempty"`
}

type taskStatusUpdate struct {
	Status market.TaskStatus `json:"status" validate:"required,oneof=open in_progress completed submitted cancelled"`
}

// Tasks manages the task board.
type Tasks struct {
	client *api.Client
}

// List returns one page of tasks, including non-open ones.
func (t *Tasks) List(ctx context.Context, q api.ListQuery) (api.ListResult[market.Task], error) {
	res, err := api.List[market.Task](ctx, t.client, "/admin/tasks", q, "tasks")
	if err != nil {
		return res, fmt.Errorf("admin: listing tasks: %w", err)
	}
	return res, nil
}

// Create posts a new task.
func (t *Tasks) Create(ctx context.Context, in TaskInput) (market.Task, bool, error) {
	if err := api.ValidateStruct(in); err != nil {
		return market.Task{}, false, err
	}
	task, ok, err := api.Mutate[market.Task](ctx, t.client, http.MethodPost, "/admin/tasks", in, "task")
	if err != nil {
		return market.Task{}, false, fmt.Errorf("admin: creating task: %w", err)
	}
	return task, ok, nil
}

// Update replaces a task.
func (t *Tasks) Update(ctx context.Context, id string, in TaskInput) (market.Task, bool, error) {
	if err := requireID(id); err != nil {
		return market.Task{}, false, err
	}
	if err := api.ValidateStruct(in); err != nil {
		return market.Task{}, false, err
	}
	task, ok, err := api.Mutate[market.Task](ctx, t.client, http.MethodPut, entityPath("tasks", id), in, "task")
	if err != nil {
		return market.Task{}, false, fmt.Errorf("admin: updating task %s: %w", id, err)
	}
	return task, ok, nil
}

// Delete removes a task.
func (t *Tasks) Delete(ctx context.Context, id string) error {
	return remove(ctx, t.client, "tasks", id)
}

// UpdateStatus moves a task through its lifecycle.
func (t *Tasks) UpdateStatus(ctx context.Context, id string, status market.TaskStatus) (market.Task, bool, error) {
	if err := requireID(id); err != nil {
		return market.Task{}, false, err
	}
	if err := api.ValidateStruct(taskStatusUpdate{Status: status}); err != nil {
		return market.Task{}, false, err
	}
	task, ok, err := api.UpdateStatus[market.Task](ctx, t.client, entityPath("tasks", id, "status"),
		api.StatusUpdate{Status: string(status)}, "task")
	if err != nil {
		return market.Task{}, false, fmt.Errorf("admin: updating task %s: %w", id, err)
	}
	return task, ok, nil
}
