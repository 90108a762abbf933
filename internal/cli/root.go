// Package cli defines Cobra command definitions for the cashctl CLI.
// This file contains the root command, global flags, and error output.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/code-and-cash/cashctl/internal/api"
)

var (
	configDirFlag string
	apiURLFlag    string
	timeoutFlag   time.Duration
	verbose       bool
	version       = "dev" // set via ldflags at build time
)

var rootCmd = &cobra.Command{
	Use:   "cashctl",
	Short: "Command-line client for the Code & Cash task marketplace",
	Long: `cashctl talks to the Code & Cash marketplace API. Browse tasks, apply,
submit finished work, and, with the admin role, moderate users, tasks,
applications and submissions from the terminal.`,
	Version:       version,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command. Called from main.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		printError(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDirFlag, "config-dir", "", "Configuration directory (default $CASHCTL_HOME or ~/.cashctl)")
	rootCmd.PersistentFlags().StringVar(&apiURLFlag, "api-url", "", "Override the API base URL")
	rootCmd.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 0, "Override the per-request timeout")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show error kinds, status codes and request IDs")

	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(logoutCmd)
	rootCmd.AddCommand(whoamiCmd)
	rootCmd.AddCommand(profileCmd)
	rootCmd.AddCommand(tasksCmd)
	rootCmd.AddCommand(applyCmd)
	rootCmd.AddCommand(applicationsCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(adminCmd)
	rootCmd.AddCommand(consoleCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(logCmd)
}

// printError writes err the way a user should read it.
func printError(w io.Writer, err error) {
	var verr *api.ValidationError
	if errors.As(err, &verr) && verr.HasErrors() {
		fmt.Fprintln(w, "Error: invalid input")
		fields := make([]string, 0, len(verr.FieldErrors))
		for f := range verr.FieldErrors {
			fields = append(fields, f)
		}
		sort.Strings(fields)
		for _, f := range fields {
			fmt.Fprintf(w, "  %s %s\n", f, verr.FieldErrors[f])
		}
		return
	}

	fmt.Fprintf(w, "Error: %s\n", errorMessage(err))
	if !verbose {
		return
	}

	details := []string{"kind=" + api.Kind(err)}
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		details = append(details, fmt.Sprintf("status=%d", apiErr.StatusCode))
		if apiErr.Code != "" {
			details = append(details, "code="+apiErr.Code)
		}
		if apiErr.RequestID != "" {
			details = append(details, "request="+apiErr.RequestID)
		}
	}
	fmt.Fprintf(w, "  (%s)\n", strings.Join(details, " "))
}

func errorMessage(err error) string {
	switch api.Kind(err) {
	case "timeout":
		return "the server took too long to respond"
	case "network":
		return "cannot reach the server: " + err.Error()
	case "canceled":
		return "interrupted"
	}
	switch {
	case errors.Is(err, api.ErrLoginRequired):
		return "not logged in"
	case errors.Is(err, api.ErrAccessDenied):
		return "access denied"
	}
	// The server's own wording, without the wrapping call chain.
	var apiErr *api.Error
	if errors.As(err, &apiErr) {
		return apiErr.Message
	}
	return err.Error()
}
