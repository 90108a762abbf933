// Package admin holds the resource clients behind the /admin routes. They
// issue single requests and never touch list state; callers feed results
// into a listview.Controller.
package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/code-and-cash/cashctl/internal/api"
)

// Client groups the admin resource clients.
type Client struct {
	Users        *Users
	Tasks        *Tasks
	Applications *Applications
	Submissions  *Submissions

	api *api.Client
}

// New creates the admin clients on top of c.
func New(c *api.Client) *Client {
	return &Client{
		Users:        &Users{client: c},
		Tasks:        &Tasks{client: c},
		Applications: &Applications{client: c},
		Submissions:  &Submissions{client: c},
		api:          c,
	}
}

// Stats holds the dashboard counters.
type Stats struct {
	Users               int `json:"totalUsers"`
	Tasks               int `json:"totalTasks"`
	OpenTasks           int `json:"openTasks"`
	Applications        int `json:"totalApplications"`
	PendingApplications int `json:"pendingApplications"`
	Submissions         int `json:"totalSubmissions"`
	PendingSubmissions  int `json:"pendingSubmissions"`
}

// Stats fetches the dashboard counters. Both {"data":{"stats":{...}}} and a
// bare object are accepted.
func (c *Client) Stats(ctx context.Context) (Stats, error) {
	var envelope struct {
		Data *struct {
			Stats *Stats `json:"stats"`
		} `json:"data"`
		Stats *Stats `json:"stats"`
	}
	raw, err := c.api.Raw(ctx, api.Request{Method: http.MethodGet, Path: "/admin/stats"})
	if err != nil {
		return Stats{}, fmt.Errorf("admin: fetching stats: %w", err)
	}
	if err := decodeJSON(raw, &envelope); err != nil {
		return Stats{}, err
	}
	switch {
	case envelope.Data != nil && envelope.Data.Stats != nil:
		return *envelope.Data.Stats, nil
	case envelope.Stats != nil:
		return *envelope.Stats, nil
	}
	var flat Stats
	if err := decodeJSON(raw, &flat); err != nil {
		return Stats{}, err
	}
	return flat, nil
}

func entityPath(collection, id string, suffix ...string) string {
	p := "/admin/" + collection + "/" + url.PathEscape(id)
	for _, s := range suffix {
		p += "/" + s
	}
	return p
}

func requireID(id string) error {
	if id != "" {
		return nil
	}
	verr := &api.ValidationError{}
	verr.Add("id", "is required")
	return verr
}

func remove(ctx context.Context, c *api.Client, collection, id string) error {
	if err := requireID(id); err != nil {
		return err
	}
	if err := c.Do(ctx, api.Request{Method: http.MethodDelete, Path: entityPath(collection, id)}, nil); err != nil {
		return fmt.Errorf("admin: deleting %s %s: %w", collection, id, err)
	}
	return nil
}

func decodeJSON(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("admin: decoding response: %w", err)
	}
	return nil
}
