package api

import (
	"context"
	"net/http"

	"github.com/code-and-cash/cashctl/internal/log"
)

// StatusUpdate is the body of every review/status endpoint.
type StatusUpdate struct {
	Status   string `json:"status"`
	Note     string `json:"note,omitempty"`
	Feedback string `json:"feedback,omitempty"`
}

// Mutate issues a write and extracts the returned entity, if any. ok is
// false when the backend answered with a bare acknowledgment.
func Mutate[T any](ctx context.Context, c *Client, method, path string, body any, keys ...string) (T, bool, error) {
	var zero T
	raw, err := c.Raw(ctx, Request{Method: method, Path: path, Body: body})
	if err != nil {
		return zero, false, err
	}
	return DecodeEntity[T](raw, keys...)
}

// UpdateStatus moves an entity to a new status with PATCH.
func UpdateStatus[T any](ctx context.Context, c *Client, path string, update StatusUpdate, keys ...string) (T, bool, error) {
	return Mutate[T](ctx, c, http.MethodPatch, path, update, keys...)
}

// List fetches a page and normalizes whichever envelope the backend used.
func List[T any](ctx context.Context, c *Client, path string, q ListQuery, itemKeys ...string) (ListResult[T], error) {
	q = q.Normalize()
	raw, err := c.Raw(ctx, Request{Method: http.MethodGet, Path: path, Query: q.Values()})
	if err != nil {
		return ListResult[T]{}, err
	}
	res, err := DecodeList[T](raw, q, itemKeys...)
	if err != nil {
		return ListResult[T]{}, err
	}
	// A bare array is paged locally. One that already fits a single page
	// past page 1 was probably paged by the server and comes back empty.
	if q.Page > 1 && res.Total <= q.PageSize {
		if shape, _ := DetectShape(raw); shape == ShapeBare {
			_ = c.logger.Append(log.LogEvent{
				Event:  log.EventListBareShortPage,
				Method: http.MethodGet,
				Path:   path,
				Page:   q.Page,
				Total:  res.Total,
			})
		}
	}
	return res, nil
}
