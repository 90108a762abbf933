package tui

import (
	"context"
	"errors"
	"strconv"

	"github.com/charmbracelet/bubbles/table"

	"github.com/code-and-cash/cashctl/internal/admin"
	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/listview"
	"github.com/code-and-cash/cashctl/internal/log"
	"github.com/code-and-cash/cashctl/internal/market"
)

var errUnsupported = errors.New("not available in this view")

// sortField is the column every admin list sorts on.
const sortField = "createdAt"

// paneState is what the console renders around the table.
type paneState struct {
	State      listview.State
	Err        error
	Page       int
	TotalPages int
	Total      int
	Filter     string
	Order      api.SortOrder
	Dirty      bool
	Generation uint64
}

// pane is one tab of the console.
type pane interface {
	title() string
	columns() []table.Column
	rows() []table.Row
	state() paneState

	load(ctx context.Context) error
	retry(ctx context.Context) error
	nextPage(ctx context.Context) error
	prevPage(ctx context.Context) error
	filterStatus(ctx context.Context, status string) error
	toggleSort(ctx context.Context) error

	remove(ctx context.Context, idx int) (string, error)
	review(ctx context.Context, idx int, approve bool) (string, error)
}

// listPane adapts a listview.Controller to a console tab.
type listPane[T any] struct {
	name   string
	ctrl   *listview.Controller[T]
	cols   []table.Column
	toRow  func(T) table.Row
	idOf   func(T) string
	label  func(T) string
	delete func(ctx context.Context, item T) error
	// decide returns the updated entity (ok=false for a bare ack) and the
	// local patch to apply in that case.
	decide func(ctx context.Context, item T, approve bool) (T, bool, error)
	patch  func(item T, approve bool) T
}

func (p *listPane[T]) title() string           { return p.name }
func (p *listPane[T]) columns() []table.Column { return p.cols }

func (p *listPane[T]) rows() []table.Row {
	snap := p.ctrl.Snapshot()
	rows := make([]table.Row, 0, len(snap.Items))
	for _, it := range snap.Items {
		rows = append(rows, p.toRow(it))
	}
	return rows
}

func (p *listPane[T]) state() paneState {
	snap := p.ctrl.Snapshot()
	return paneState{
		State:      snap.State,
		Err:        snap.Err,
		Page:       snap.Query.Page,
		TotalPages: snap.TotalPages,
		Total:      snap.Total,
		Filter:     snap.Query.Filters["status"],
		Order:      snap.Query.SortOrder,
		Dirty:      snap.Dirty,
		Generation: snap.Generation,
	}
}

func (p *listPane[T]) load(ctx context.Context) error     { return p.ctrl.Load(ctx) }
func (p *listPane[T]) retry(ctx context.Context) error    { return p.ctrl.Retry(ctx) }
func (p *listPane[T]) nextPage(ctx context.Context) error { return p.ctrl.NextPage(ctx) }
func (p *listPane[T]) prevPage(ctx context.Context) error { return p.ctrl.PrevPage(ctx) }

func (p *listPane[T]) filterStatus(ctx context.Context, status string) error {
	return p.ctrl.SetFilter(ctx, "status", status)
}

func (p *listPane[T]) toggleSort(ctx context.Context) error {
	q := p.ctrl.Query()
	return p.ctrl.SetSort(ctx, sortField, q.SortOrder.Toggle())
}

func (p *listPane[T]) itemAt(idx int) (T, bool) {
	var zero T
	items := p.ctrl.Snapshot().Items
	if idx < 0 || idx >= len(items) {
		return zero, false
	}
	return items[idx], true
}

func (p *listPane[T]) remove(ctx context.Context, idx int) (string, error) {
	if p.delete == nil {
		return "", errUnsupported
	}
	item, ok := p.itemAt(idx)
	if !ok {
		return "", errors.New("nothing selected")
	}
	if err := p.delete(ctx, item); err != nil {
		return "", err
	}
	if err := p.ctrl.Remove(ctx, p.idOf(item)); err != nil {
		return "", err
	}
	return "deleted " + p.label(item), nil
}

func (p *listPane[T]) review(ctx context.Context, idx int, approve bool) (string, error) {
	if p.decide == nil {
		return "", errUnsupported
	}
	item, ok := p.itemAt(idx)
	if !ok {
		return "", errors.New("nothing selected")
	}
	updated, returned, err := p.decide(ctx, item, approve)
	if err != nil {
		return "", err
	}
	if returned {
		err = p.ctrl.Replace(ctx, updated)
	} else {
		err = p.ctrl.Patch(ctx, p.idOf(item), func(cur T) T { return p.patch(cur, approve) })
	}
	if err != nil {
		return "", err
	}
	verb := "rejected "
	if approve {
		verb = "approved "
	}
	return verb + p.label(item), nil
}

// PaneOptions configures the list controllers behind the console tabs.
type PaneOptions struct {
	PageSize             int
	RefetchAfterMutation bool
	Logger               *log.Logger
}

func (o PaneOptions) controller(name string) listview.Options {
	return listview.Options{
		Query:                api.NewListQuery(o.PageSize).WithSort(sortField, api.SortDesc),
		RefetchAfterMutation: o.RefetchAfterMutation,
		Logger:               o.Logger,
		Name:                 name,
	}
}

func newPanes(c *admin.Client, opts PaneOptions) []pane {
	return []pane{
		usersPane(c, opts),
		tasksPane(c, opts),
		applicationsPane(c, opts),
		submissionsPane(c, opts),
	}
}

func usersPane(c *admin.Client, opts PaneOptions) pane {
	return &listPane[market.User]{
		name: "Users",
		ctrl: listview.New[market.User](c.Users.List, market.User.Key, opts.controller("users")),
		cols: []table.Column{
			{Title: "ID", Width: 10},
			{Title: "Name", Width: 22},
			{Title: "Email", Width: 28},
			{Title: "Role", Width: 8},
			{Title: "Joined", Width: 12},
		},
		toRow: func(u market.User) table.Row {
			return table.Row{ShortID(u.ID), u.DisplayName(), u.Email, string(u.Role), FormatDate(u.CreatedAt)}
		},
		idOf:   market.User.Key,
		label:  func(u market.User) string { return u.DisplayName() },
		delete: func(ctx context.Context, u market.User) error { return c.Users.Delete(ctx, u.ID) },
	}
}

func tasksPane(c *admin.Client, opts PaneOptions) pane {
	return &listPane[market.Task]{
		name: "Tasks",
		ctrl: listview.New[market.Task](c.Tasks.List, market.Task.Key, opts.controller("tasks")),
		cols: []table.Column{
			{Title: "ID", Width: 10},
			{Title: "Title", Width: 30},
			{Title: "Status", Width: 12},
			{Title: "Payout", Width: 10},
			{Title: "Deadline", Width: 12},
		},
		toRow: func(t market.Task) table.Row {
			deadline := "-"
			if t.Deadline != nil {
				deadline = FormatDate(*t.Deadline)
			}
			return table.Row{ShortID(t.ID), t.DisplayTitle(), string(t.Status), FormatMoney(t.Payout), deadline}
		},
		idOf:   market.Task.Key,
		label:  func(t market.Task) string { return t.DisplayTitle() },
		delete: func(ctx context.Context, t market.Task) error { return c.Tasks.Delete(ctx, t.ID) },
	}
}

func applicationsPane(c *admin.Client, opts PaneOptions) pane {
	return &listPane[market.Application]{
		name: "Applications",
		ctrl: listview.New[market.Application](c.Applications.List, market.Application.Key, opts.controller("applications")),
		cols: []table.Column{
			{Title: "ID", Width: 10},
			{Title: "Applicant", Width: 22},
			{Title: "Task", Width: 28},
			{Title: "Status", Width: 12},
			{Title: "Applied", Width: 12},
		},
		toRow: func(a market.Application) table.Row {
			return table.Row{ShortID(a.ID), a.User.DisplayName(), a.Task.DisplayTitle(), string(a.Status), FormatDate(a.CreatedAt)}
		},
		idOf:  market.Application.Key,
		label: func(a market.Application) string { return "application " + ShortID(a.ID) },
		decide: func(ctx context.Context, a market.Application, approve bool) (market.Application, bool, error) {
			return c.Applications.UpdateStatus(ctx, a.ID, applicationDecision(approve), "")
		},
		patch: func(a market.Application, approve bool) market.Application {
			a.Status = applicationDecision(approve)
			return a
		},
	}
}

func submissionsPane(c *admin.Client, opts PaneOptions) pane {
	return &listPane[market.Submission]{
		name: "Submissions",
		ctrl: listview.New[market.Submission](c.Submissions.List, market.Submission.Key, opts.controller("submissions")),
		cols: []table.Column{
			{Title: "ID", Width: 10},
			{Title: "Submitter", Width: 22},
			{Title: "Task", Width: 28},
			{Title: "Files", Width: 6},
			{Title: "Status", Width: 18},
		},
		toRow: func(s market.Submission) table.Row {
			return table.Row{ShortID(s.ID), s.User.DisplayName(), s.Task.DisplayTitle(), strconv.Itoa(len(s.Files)), string(s.Status)}
		},
		idOf:  market.Submission.Key,
		label: func(s market.Submission) string { return "submission " + ShortID(s.ID) },
		decide: func(ctx context.Context, s market.Submission, approve bool) (market.Submission, bool, error) {
			return c.Submissions.Review(ctx, s.ID, submissionDecision(approve), "")
		},
		patch: func(s market.Submission, approve bool) market.Submission {
			s.Status = submissionDecision(approve)
			return s
		},
	}
}

func applicationDecision(approve bool) market.ApplicationStatus {
	if approve {
		return market.ApplicationApproved
	}
	return market.ApplicationRejected
}

func submissionDecision(approve bool) market.SubmissionStatus {
	if approve {
		return market.SubmissionApproved
	}
	return market.SubmissionRejected
}
