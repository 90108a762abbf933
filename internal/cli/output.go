package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/listview"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#6B7280"))
)

// listFlags are the paging, filter and sort flags shared by list commands.
type listFlags struct {
	page     int
	limit    int
	filters  []string
	sort     string
	order    string
	watch    bool
	interval time.Duration
}

func (f *listFlags) register(cmd *cobra.Command, filterHelp string) {
	cmd.Flags().IntVar(&f.page, "page", 1, "Page number")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "Page size (default from config)")
	cmd.Flags().StringArrayVar(&f.filters, "filter", nil, "Filter as key=value, repeatable ("+filterHelp+")")
	cmd.Flags().StringVar(&f.sort, "sort", "createdAt", "Sort field")
	cmd.Flags().StringVar(&f.order, "order", "desc", "Sort order: asc or desc")
	cmd.Flags().BoolVarP(&f.watch, "watch", "w", false, "Keep polling and reprint the page on every change")
	cmd.Flags().DurationVar(&f.interval, "interval", 0, "Polling interval for --watch (default from config, else 10s)")
}

// query builds the list query from the flags.
func (f *listFlags) query(defaultSize int) (api.ListQuery, error) {
	size := f.limit
	if size <= 0 {
		size = defaultSize
	}
	order, err := api.ParseSortOrder(f.order)
	if err != nil {
		return api.ListQuery{}, err
	}
	q := api.NewListQuery(size).WithSort(f.sort, order)
	for _, kv := range f.filters {
		k, v, ok := strings.Cut(kv, "=")
		if !ok || strings.TrimSpace(k) == "" {
			return api.ListQuery{}, fmt.Errorf("invalid --filter %q, want key=value", kv)
		}
		q = q.WithFilter(strings.TrimSpace(k), strings.TrimSpace(v))
	}
	q.Page = f.page
	return q.Normalize(), nil
}

// columns describes how one item type prints.
type columns[T any] struct {
	headers []string
	row     func(T) []string
	empty   string
}

// showList loads one page through a list controller and prints it. With
// --watch it keeps polling until interrupted or polling pauses.
func showList[T any](cmd *cobra.Command, a *app, name string, f *listFlags, fetch listview.Fetcher[T], idOf func(T) string, cols columns[T]) error {
	q, err := f.query(a.cfg.Lists.PageSize)
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()

	changes := make(chan struct{}, 1)
	ctrl := listview.New(fetch, idOf, listview.Options{
		Query:                q,
		RefetchAfterMutation: a.cfg.Lists.RefetchAfterMutation,
		Logger:               a.logger,
		Name:                 name,
		OnChange: func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		},
	})
	if err := ctrl.Load(cmd.Context()); err != nil {
		return err
	}
	printPage(out, ctrl.Snapshot(), cols)

	if !f.watch {
		return nil
	}
	return watch(cmd.Context(), out, a, f, ctrl, changes, cols)
}

func watch[T any](ctx context.Context, out io.Writer, a *app, f *listFlags, ctrl *listview.Controller[T], changes <-chan struct{}, cols columns[T]) error {
	interval := f.interval
	if interval <= 0 {
		interval = a.cfg.PollInterval()
	}
	if interval <= 0 {
		interval = 10 * time.Second
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- ctrl.Poll(ctx, interval, a.cfg.Lists.FailureThreshold) }()

	last := ctrl.Snapshot().Generation
	for {
		select {
		case err := <-done:
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		case <-changes:
		}

		snap := ctrl.Snapshot()
		if snap.Paused {
			cancel()
			<-done
			return fmt.Errorf("polling paused after %d consecutive failures: %w", a.cfg.Lists.FailureThreshold, snap.Err)
		}
		if snap.State == listview.Loaded && snap.Generation != last {
			last = snap.Generation
			fmt.Fprintf(out, "\n%s\n", dimStyle.Render("updated "+time.Now().Format(time.TimeOnly)))
			printPage(out, snap, cols)
		}
	}
}

func printPage[T any](out io.Writer, snap listview.Snapshot[T], cols columns[T]) {
	if len(snap.Items) == 0 {
		empty := cols.empty
		if empty == "" {
			empty = "Nothing found."
		}
		fmt.Fprintln(out, empty)
		return
	}

	rows := make([][]string, 0, len(snap.Items))
	for _, it := range snap.Items {
		rows = append(rows, cols.row(it))
	}
	fmt.Fprintln(out, renderTable(cols.headers, rows))

	footer := fmt.Sprintf("Page %d of %d, %d total", snap.Query.Page, max(snap.TotalPages, 1), snap.Total)
	if len(snap.Query.Filters) > 0 {
		parts := make([]string, 0, len(snap.Query.Filters))
		for k, v := range snap.Query.Filters {
			parts = append(parts, k+"="+v)
		}
		footer += " (" + strings.Join(parts, ", ") + ")"
	}
	fmt.Fprintln(out, dimStyle.Render(footer))
}

func renderTable(headers []string, rows [][]string) string {
	return table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...).
		String()
}

// printFields prints label/value pairs aligned on the label column.
func printFields(out io.Writer, pairs ...string) {
	width := 0
	for i := 0; i < len(pairs); i += 2 {
		width = max(width, len(pairs[i]))
	}
	for i := 0; i+1 < len(pairs); i += 2 {
		fmt.Fprintf(out, "%-*s  %s\n", width+1, pairs[i]+":", pairs[i+1])
	}
}
