// console.go implements the "cashctl console" command, the full-screen
// admin console.
package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/code-and-cash/cashctl/internal/api"
	"github.com/code-and-cash/cashctl/internal/tui"
)

var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Open the interactive admin console",
	Long: `Open a full-screen console with users, tasks, applications and
submissions tabs. Requires a terminal and the admin role.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

func runConsole(cmd *cobra.Command, args []string) error {
	if !tui.IsTTY() || !tui.IsInputTTY() {
		return errors.New("the console needs an interactive terminal; use 'cashctl admin' subcommands instead")
	}

	return withAdmin(cmd, func(a *app) error {
		m := tui.NewConsole(cmd.Context(), a.admin, tui.PaneOptions{
			PageSize:             a.cfg.Lists.PageSize,
			RefetchAfterMutation: a.cfg.Lists.RefetchAfterMutation,
			Logger:               a.logger,
		})
		if err := tui.Run(m); err != nil {
			return fmt.Errorf("running console: %w", err)
		}
		if m.AuthLost() {
			return api.ErrLoginRequired
		}
		return nil
	})
}
