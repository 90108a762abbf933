package admin

import (
	"context"
	"fmt"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/market"
)

type applicationReview struct {
	Status market.ApplicationStatus `json:"status" validate:"required,oneof=pending in_review accepted approved rejected"`
	Note   string                   `json:"note" validate:"max=1000"`
}

type submissionReview struct {
	Status   market.SubmissionStatus `json:"status" validate:"required,oneof=pending approved rejected revision_requested"`
	Feedback string                  `json:"feedback" validate:"max=2000"`
}

// Applications reviews applications.
type Applications struct {
	client *api.Client
}

// List returns one page of applications across all users.
func (a *Applications) List(ctx context.Context, q api.ListQuery) (api.ListResult[market.Application], error) {
	res, err := api.List[market.Application](ctx, a.client, "/admin/applications", q, "applications")
	if err != nil {
		return res, fmt.Errorf("admin: listing applications: %w", err)
	}
	return res, nil
}

// UpdateStatus records a review decision with an optional note.
func (a *Applications) UpdateStatus(ctx context.Context, id string, status market.ApplicationStatus, note string) (market.Application, bool, error) {
	if err := requireID(id); err != nil {
		return market.Application{}, false, err
	}
	if err := api.ValidateStruct(applicationReview{Status: status, Note: note}); err != nil {
		return market.Application{}, false, err
	}
	app, ok, err := api.UpdateStatus[market.Application](ctx, a.client, entityPath("applications", id, "status"),
		api.StatusUpdate{Status: string(status), Note: note}, "application")
	if err != nil {
		return market.Application{}, false, fmt.Errorf("admin: reviewing application %s: %w", id, err)
	}
	return app, ok, nil
}

// Submissions reviews delivered work.
type Submissions struct {
	client *api.Client
}

// List returns one page of submissions.
func (s *Submissions) List(ctx context.Context, q api.ListQuery) (api.ListResult[market.Submission], error) {
	res, err := api.List[market.Submission](ctx, s.client, "/admin/submissions", q, "submissions")
	if err != nil {
		return res, fmt.Errorf("admin: listing submissions: %w", err)
	}
	return res, nil
}

// Review approves, rejects or sends back a submission.
func (s *Submissions) Review(ctx context.Context, id string, status market.SubmissionStatus, feedback string) (market.Submission, bool, error) {
	if err := requireID(id); err != nil {
		return market.Submission{}, false, err
	}
	if err := api.ValidateStruct(submissionReview{Status: status, Feedback: feedback}); err != nil {
		return market.Submission{}, false, err
	}
	sub, ok, err := api.UpdateStatus[market.Submission](ctx, s.client, entityPath("submissions", id, "review"),
		api.StatusUpdate{Status: string(status), Feedback: feedback}, "submission")
	if err != nil {
		return market.Submission{}, false, fmt.Errorf("admin: reviewing submission %s: %w", id, err)
	}
	return sub, ok, nil
}
