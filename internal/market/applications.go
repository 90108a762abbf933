package market

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/code-and-cash/cashctl/internal/api"
)

// ApplyInput is the body of POST /applications.
type ApplyInput struct {
	TaskID  string `json:"taskId" validate:"required"`
	Message string `json:"message,omitempty" validate:"max=2000"`
}

// Applications manages the caller's own applications and submissions.
type Applications struct {
	client *api.Client
}

// NewApplications creates an application client.
func NewApplications(client *api.Client) *Applications {
	return &Applications{client: client}
}

// Apply applies to a task.
func (a *Applications) Apply(ctx context.Context, taskID, message string) (Application, error) {
	in := ApplyInput{TaskID: strings.TrimSpace(taskID), Message: strings.TrimSpace(message)}
	if err := api.ValidateStruct(in); err != nil {
		return Application{}, err
	}
	app, ok, err := api.Mutate[Application](ctx, a.client, http.MethodPost, "/applications", in, "application")
	if err != nil {
		return Application{}, fmt.Errorf("market: applying to task %s: %w", in.TaskID, err)
	}
	if !ok {
		return Application{}, fmt.Errorf("market: applying to task %s: %w", in.TaskID, api.ErrInvalidEnvelope)
	}
	return app, nil
}

// ListMine returns one page of the caller's applications.
func (a *Applications) ListMine(ctx context.Context, q api.ListQuery) (api.ListResult[Application], error) {
	res, err := api.List[Application](ctx, a.client, "/applications/my", q, "applications")
	if err != nil {
		return res, fmt.Errorf("market: listing applications: %w", err)
	}
	return res, nil
}

// SubmitFiles uploads work for an application. Every file is validated
// before anything is sent; one bad file rejects the whole batch.
func (a *Applications) SubmitFiles(ctx context.Context, applicationID string, files []File) (Application, error) {
	if applicationID == "" {
		return Application{}, requiredID("application")
	}
	if err := ValidateFiles(files); err != nil {
		return Application{}, err
	}

	body := &api.Multipart{}
	for _, f := range files {
		body.Files = append(body.Files, f.part())
	}

	path := "/applications/" + url.PathEscape(applicationID) + "/submit"
	app, ok, err := api.Mutate[Application](ctx, a.client, http.MethodPost, path, body, "application")
	if err != nil {
		return Application{}, fmt.Errorf("market: submitting files: %w", err)
	}
	if !ok {
		app = Application{ID: applicationID}
	}
	return app, nil
}
