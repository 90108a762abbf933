// admin.go implements the "cashctl admin" command tree. Every subcommand
// passes the admin role gate before touching the backend.
package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/code-and-cash/cashctl/internal/admin"
	"github.com/code-and-cash/cashctl/internal/market"
	"github.com/code-and-cash/cashctl/internal/session"
	"github.com/code-and-cash/cashctl/internal/tui"
)

var adminCmd = &cobra.Command{
	Use:   "admin",
	Short: "Moderate the marketplace (admin role required)",
}

var adminStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show dashboard counters",
	Args:  cobra.NoArgs,
	RunE:  runAdminStats,
}

var (
	adminUsersCmd        = &cobra.Command{Use: "users", Short: "Manage user accounts"}
	adminTasksCmd        = &cobra.Command{Use: "tasks", Short: "Manage the task board"}
	adminApplicationsCmd = &cobra.Command{Use: "applications", Aliases: []string{"apps"}, Short: "Review applications"}
	adminSubmissionsCmd  = &cobra.Command{Use: "submissions", Aliases: []string{"subs"}, Short: "Review submitted work"}
)

var (
	adminUsersList        listFlags
	adminTasksList        listFlags
	adminApplicationsList listFlags
	adminSubmissionsList  listFlags

	taskTitleFlag       string
	taskDescriptionFlag string
	taskCategoryFlag    string
	taskDifficultyFlag  string
	taskPayoutFlag      float64
	taskDeadlineFlag    string

	noteFlag     string
	feedbackFlag string
)

func init() {
	usersList := &cobra.Command{Use: "list", Short: "List users", Args: cobra.NoArgs, RunE: runAdminUsersList}
	adminUsersList.register(usersList, "role, search")
	adminUsersCmd.AddCommand(
		usersList,
		&cobra.Command{Use: "delete <user-id>", Short: "Delete a user", Args: cobra.ExactArgs(1), RunE: runAdminUsersDelete},
		&cobra.Command{Use: "role <user-id> <user|admin>", Short: "Change a user's role", Args: cobra.ExactArgs(2), RunE: runAdminUsersRole},
	)

	tasksList := &cobra.Command{Use: "list", Short: "List tasks", Args: cobra.NoArgs, RunE: runAdminTasksList}
	adminTasksList.register(tasksList, "status, category, difficulty")
	tasksCreate := &cobra.Command{Use: "create", Short: "Post a new task", Args: cobra.NoArgs, RunE: runAdminTasksCreate}
	tasksUpdate := &cobra.Command{Use: "update <task-id>", Short: "Replace a task", Args: cobra.ExactArgs(1), RunE: runAdminTasksUpdate}
	for _, c := range []*cobra.Command{tasksCreate, tasksUpdate} {
		c.Flags().StringVar(&taskTitleFlag, "title", "", "Task title")
		c.Flags().StringVar(&taskDescriptionFlag, "description", "", "Task description")
		c.Flags().StringVar(&taskCategoryFlag, "category", "", "Category")
		c.Flags().StringVar(&taskDifficultyFlag, "difficulty", "", "easy, medium or hard")
		c.Flags().Float64Var(&taskPayoutFlag, "payout", 0, "Payout in dollars")
		c.Flags().StringVar(&taskDeadlineFlag, "deadline", "", "Deadline as YYYY-MM-DD")
	}
	adminTasksCmd.AddCommand(
		tasksList,
		tasksCreate,
		tasksUpdate,
		&cobra.Command{Use: "delete <task-id>", Short: "Delete a task", Args: cobra.ExactArgs(1), RunE: runAdminTasksDelete},
		&cobra.Command{Use: "status <task-id> <status>", Short: "Move a task to another status", Args: cobra.ExactArgs(2), RunE: runAdminTasksStatus},
	)

	appsList := &cobra.Command{Use: "list", Short: "List applications", Args: cobra.NoArgs, RunE: runAdminApplicationsList}
	adminApplicationsList.register(appsList, "status")
	appsReview := &cobra.Command{Use: "review <application-id> <status>", Short: "Approve, reject or hold an application", Args: cobra.ExactArgs(2), RunE: runAdminApplicationsReview}
	appsReview.Flags().StringVar(&noteFlag, "note", "", "Note for the applicant")
	adminApplicationsCmd.AddCommand(appsList, appsReview)

	subsList := &cobra.Command{Use: "list", Short: "List submissions", Args: cobra.NoArgs, RunE: runAdminSubmissionsList}
	adminSubmissionsList.register(subsList, "status")
	subsReview := &cobra.Command{Use: "review <submission-id> <status>", Short: "Approve, reject or request revisions", Args: cobra.ExactArgs(2), RunE: runAdminSubmissionsReview}
	subsReview.Flags().StringVar(&feedbackFlag, "feedback", "", "Feedback for the submitter")
	adminSubmissionsCmd.AddCommand(subsList, subsReview)

	adminCmd.AddCommand(adminStatsCmd, adminUsersCmd, adminTasksCmd, adminApplicationsCmd, adminSubmissionsCmd)
}

var userColumns = columns[market.User]{
	headers: []string{"ID", "Name", "Email", "Role", "Joined"},
	row: func(u market.User) []string {
		return []string{u.ID, u.DisplayName(), u.Email, string(u.Role), tui.FormatDate(u.CreatedAt)}
	},
	empty: "No users match.",
}

var adminApplicationColumns = columns[market.Application]{
	headers: []string{"ID", "Applicant", "Task", "Status", "Applied"},
	row: func(a market.Application) []string {
		return []string{a.ID, a.User.DisplayName(), a.Task.DisplayTitle(), string(a.Status), tui.FormatDate(a.CreatedAt)}
	},
	empty: "No applications match.",
}

var submissionColumns = columns[market.Submission]{
	headers: []string{"ID", "Submitter", "Task", "Files", "Status", "Submitted"},
	row: func(s market.Submission) []string {
		return []string{s.ID, s.User.DisplayName(), s.Task.DisplayTitle(), strconv.Itoa(len(s.Files)), string(s.Status), tui.FormatDate(s.SubmittedAt)}
	},
	empty: "No submissions match.",
}

func runAdminStats(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		s, err := a.admin.Stats(cmd.Context())
		if err != nil {
			return err
		}
		printFields(cmd.OutOrStdout(),
			"Users", strconv.Itoa(s.Users),
			"Tasks", fmt.Sprintf("%d (%d open)", s.Tasks, s.OpenTasks),
			"Applications", fmt.Sprintf("%d (%d pending)", s.Applications, s.PendingApplications),
			"Submissions", fmt.Sprintf("%d (%d pending)", s.Submissions, s.PendingSubmissions),
		)
		return nil
	})
}

func runAdminUsersList(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		return showList[market.User](cmd, a, "admin_users", &adminUsersList, a.admin.Users.List, market.User.Key, userColumns)
	})
}

func runAdminUsersDelete(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		if err := a.admin.Users.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted user %s\n", args[0])
		return nil
	})
}

func runAdminUsersRole(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		u, ok, err := a.admin.Users.UpdateRole(cmd.Context(), args[0], session.Role(args[1]))
		if err != nil {
			return err
		}
		reportUpdate(cmd, "user "+args[0], ok, func() string { return u.DisplayName() + " is now " + string(u.Role) })
		return nil
	})
}

func runAdminTasksList(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		return showList[market.Task](cmd, a, "admin_tasks", &adminTasksList, a.admin.Tasks.List, market.Task.Key, taskColumns)
	})
}

func taskInput() (admin.TaskInput, error) {
	in := admin.TaskInput{
		Title:       taskTitleFlag,
		Description: taskDescriptionFlag,
		Category:    taskCategoryFlag,
		Difficulty:  taskDifficultyFlag,
		Payout:      taskPayoutFlag,
	}
	if taskDeadlineFlag != "" {
		d, err := time.ParseInLocation("2006-01-02", taskDeadlineFlag, time.Local)
		if err != nil {
			return in, fmt.Errorf("invalid --deadline %q, want YYYY-MM-DD", taskDeadlineFlag)
		}
		in.Deadline = &d
	}
	return in, nil
}

func runAdminTasksCreate(cmd *cobra.Command, args []string) error {
	in, err := taskInput()
	if err != nil {
		return err
	}
	return withAdmin(cmd, func(a *app) error {
		t, ok, err := a.admin.Tasks.Create(cmd.Context(), in)
		if err != nil {
			return err
		}
		if ok {
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %s: %s\n", t.ID, t.DisplayTitle())
		} else {
			fmt.Fprintf(cmd.OutOrStdout(), "Created task %q\n", in.Title)
		}
		return nil
	})
}

func runAdminTasksUpdate(cmd *cobra.Command, args []string) error {
	in, err := taskInput()
	if err != nil {
		return err
	}
	return withAdmin(cmd, func(a *app) error {
		t, ok, err := a.admin.Tasks.Update(cmd.Context(), args[0], in)
		if err != nil {
			return err
		}
		reportUpdate(cmd, "task "+args[0], ok, func() string { return t.DisplayTitle() + " (" + string(t.Status) + ")" })
		return nil
	})
}

func runAdminTasksDelete(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		if err := a.admin.Tasks.Delete(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted task %s\n", args[0])
		return nil
	})
}

func runAdminTasksStatus(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		t, ok, err := a.admin.Tasks.UpdateStatus(cmd.Context(), args[0], market.TaskStatus(args[1]))
		if err != nil {
			return err
		}
		reportUpdate(cmd, "task "+args[0], ok, func() string { return t.DisplayTitle() + " is now " + string(t.Status) })
		return nil
	})
}

func runAdminApplicationsList(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		return showList[market.Application](cmd, a, "admin_applications", &adminApplicationsList, a.admin.Applications.List, market.Application.Key, adminApplicationColumns)
	})
}

func runAdminApplicationsReview(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		res, ok, err := a.admin.Applications.UpdateStatus(cmd.Context(), args[0], market.ApplicationStatus(args[1]), noteFlag)
		if err != nil {
			return err
		}
		reportUpdate(cmd, "application "+args[0], ok, func() string { return "application " + res.ID + " is now " + string(res.Status) })
		return nil
	})
}

func runAdminSubmissionsList(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		return showList[market.Submission](cmd, a, "admin_submissions", &adminSubmissionsList, a.admin.Submissions.List, market.Submission.Key, submissionColumns)
	})
}

func runAdminSubmissionsReview(cmd *cobra.Command, args []string) error {
	return withAdmin(cmd, func(a *app) error {
		s, ok, err := a.admin.Submissions.Review(cmd.Context(), args[0], market.SubmissionStatus(args[1]), feedbackFlag)
		if err != nil {
			return err
		}
		reportUpdate(cmd, "submission "+args[0], ok, func() string { return "submission " + s.ID + " is now " + string(s.Status) })
		return nil
	})
}

// reportUpdate prints the server's version of the record when it sent one,
// otherwise a bare confirmation.
func reportUpdate(cmd *cobra.Command, what string, ok bool, describe func() string) {
	if ok {
		fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", describe())
		return
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Updated %s\n", what)
}
