// tasks.go implements the member-facing commands: browsing tasks, applying,
// and submitting work.
package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/code-and-cash/cashctl/internal/market"
	"github.com/code-and-cash/cashctl/internal/tui"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Browse marketplace tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List tasks",
	Example: `  cashctl tasks list --filter status=open --filter category=design
  cashctl tasks list --page 2 --order asc --watch`,
	Args: cobra.NoArgs,
	RunE: runTasksList,
}

var tasksShowCmd = &cobra.Command{
	Use:   "show <task-id>",
	Short: "Show one task",
	Args:  cobra.ExactArgs(1),
	RunE:  runTasksShow,
}

var applyCmd = &cobra.Command{
	Use:   "apply <task-id>",
	Short: "Apply to work on a task",
	Args:  cobra.ExactArgs(1),
	RunE:  runApply,
}

var applicationsCmd = &cobra.Command{
	Use:     "applications",
	Aliases: []string{"apps"},
	Short:   "Track your applications",
}

var applicationsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List your applications",
	Args:  cobra.NoArgs,
	RunE:  runApplicationsList,
}

var submitCmd = &cobra.Command{
	Use:   "submit <application-id> <file>...",
	Short: "Submit finished work for an application",
	Long: `Upload files for an accepted application. Only PDF, DOC and DOCX files
up to 10 MB are accepted; every file is checked before anything is sent.`,
	Args: cobra.MinimumNArgs(2),
	RunE: runSubmit,
}

var (
	tasksList        listFlags
	applicationsList listFlags
	messageFlag      string
)

func init() {
	tasksList.register(tasksListCmd, "status, category, difficulty, search")
	applicationsList.register(applicationsListCmd, "status")
	applyCmd.Flags().StringVarP(&messageFlag, "message", "m", "", "Message to the task owner")

	tasksCmd.AddCommand(tasksListCmd)
	tasksCmd.AddCommand(tasksShowCmd)
	applicationsCmd.AddCommand(applicationsListCmd)
}

var taskColumns = columns[market.Task]{
	headers: []string{"ID", "Title", "Category", "Difficulty", "Payout", "Status", "Deadline"},
	row: func(t market.Task) []string {
		deadline := "-"
		if t.Deadline != nil {
			deadline = tui.FormatDate(*t.Deadline)
		}
		return []string{t.ID, t.DisplayTitle(), orDash(t.Category), orDash(t.Difficulty), tui.FormatMoney(t.Payout), string(t.Status), deadline}
	},
	empty: "No tasks match.",
}

var applicationColumns = columns[market.Application]{
	headers: []string{"ID", "Task", "Status", "Applied"},
	row: func(a market.Application) []string {
		return []string{a.ID, a.Task.DisplayTitle(), string(a.Status), tui.FormatDate(a.CreatedAt)}
	},
	empty: "You have not applied to any task yet.",
}

func runTasksList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(a *app) error {
		return showList[market.Task](cmd, a, "tasks", &tasksList, a.tasks.List, market.Task.Key, taskColumns)
	})
}

func runTasksShow(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(a *app) error {
		t, err := a.tasks.Get(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		deadline := "-"
		if t.Deadline != nil {
			deadline = tui.FormatDate(*t.Deadline)
		}
		out := cmd.OutOrStdout()
		printFields(out,
			"ID", t.ID,
			"Title", t.DisplayTitle(),
			"Status", string(t.Status),
			"Category", orDash(t.Category),
			"Difficulty", orDash(t.Difficulty),
			"Payout", tui.FormatMoney(t.Payout),
			"Deadline", deadline,
			"Posted by", t.CreatedBy.DisplayName(),
		)
		if t.Description != "" {
			fmt.Fprintf(out, "\n%s\n", t.Description)
		}
		return nil
	})
}

func runApply(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(a *app) error {
		res, err := a.applications.Apply(cmd.Context(), args[0], messageFlag)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Applied to task %s (application %s, %s)\n", args[0], res.ID, res.Status)
		return nil
	})
}

func runApplicationsList(cmd *cobra.Command, args []string) error {
	return withSession(cmd, func(a *app) error {
		return showList[market.Application](cmd, a, "my_applications", &applicationsList, a.applications.ListMine, market.Application.Key, applicationColumns)
	})
}

func runSubmit(cmd *cobra.Command, args []string) error {
	files := make([]market.File, 0, len(args)-1)
	for _, path := range args[1:] {
		f, err := market.FileFromPath(path)
		if err != nil {
			return err
		}
		files = append(files, f)
	}

	return withSession(cmd, func(a *app) error {
		res, err := a.applications.SubmitFiles(cmd.Context(), args[0], files)
		if err != nil {
			return err
		}
		names := make([]string, len(files))
		for i, f := range files {
			names[i] = f.Name + " (" + humanSize(f.Size) + ")"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Submitted %s for application %s\n", strings.Join(names, ", "), res.ID)
		return nil
	})
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func humanSize(n int64) string {
	switch {
	case n >= 1<<20:
		return strconv.FormatFloat(float64(n)/(1<<20), 'f', 1, 64) + " MB"
	case n >= 1<<10:
		return strconv.FormatFloat(float64(n)/(1<<10), 'f', 1, 64) + " KB"
	default:
		return strconv.FormatInt(n, 10) + " B"
	}
}
