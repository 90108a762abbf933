// config.go implements "cashctl config" for inspecting and editing
// config.yaml, and "cashctl log" for reading the event log.
package cli

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/code-and-cash/cashctl/internal/config"
	"github.com/code-and-cash/cashctl/internal/log"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show or change client configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration",
	Args:  cobra.NoArgs,
	RunE:  runConfigShow,
}

var configSetURLCmd = &cobra.Command{
	Use:   "set-url <base-url>",
	Short: "Point the client at another backend",
	Args:  cobra.ExactArgs(1),
	RunE:  runConfigSetURL,
}

var logCmd = &cobra.Command{
	Use:   "log",
	Short: "Show recent client events",
	Long: `Show events from log.jsonl: logins, session expiry, access decisions,
failed requests and list loads.`,
	Args: cobra.NoArgs,
	RunE: runLog,
}

var (
	tailFlag  int
	eventFlag string
)

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetURLCmd)

	logCmd.Flags().IntVarP(&tailFlag, "tail", "n", 20, "Number of events to show (0 = all)")
	logCmd.Flags().StringVar(&eventFlag, "event", "", "Only show events of this type")
}

func runConfigShow(cmd *cobra.Command, args []string) error {
	dir, cfg, err := loadConfig()
	if err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "# %s\n", dir)
	_, err = out.Write(data)
	return err
}

func runConfigSetURL(cmd *cobra.Command, args []string) error {
	dir := configDirFlag
	if dir == "" {
		d, err := config.Dir()
		if err != nil {
			return err
		}
		dir = d
	}

	cfg, err := config.ReadConfig(dir)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return err
		}
		cfg = config.DefaultConfig()
	}
	cfg.API.BaseURL = strings.TrimRight(strings.TrimSpace(args[0]), "/")
	if err := cfg.Validate(); err != nil {
		return err
	}
	if err := config.WriteConfig(dir, cfg); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "API URL set to %s\n", cfg.API.BaseURL)
	return nil
}

func runLog(cmd *cobra.Command, args []string) error {
	dir, _, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := log.NewLogger(dir)
	if err != nil {
		return err
	}

	var events []log.LogEvent
	if eventFlag == "" {
		events, err = logger.Tail(tailFlag)
	} else {
		events, err = logger.ReadAll()
	}
	if err != nil {
		return err
	}
	if eventFlag != "" {
		filtered := events[:0]
		for _, ev := range events {
			if ev.Event == eventFlag {
				filtered = append(filtered, ev)
			}
		}
		events = filtered
		if tailFlag > 0 && len(events) > tailFlag {
			events = events[len(events)-tailFlag:]
		}
	}

	out := cmd.OutOrStdout()
	if len(events) == 0 {
		fmt.Fprintln(out, "No events.")
		return nil
	}
	for _, ev := range events {
		fmt.Fprintf(out, "%s  %-22s %s\n", ev.Time.Local().Format(time.DateTime), ev.Event, describeEvent(ev))
	}
	return nil
}

func describeEvent(ev log.LogEvent) string {
	var parts []string
	add := func(k, v string) {
		if v != "" {
			parts = append(parts, k+"="+v)
		}
	}
	add("user", ev.UserID)
	add("role", ev.Role)
	add("view", ev.View)
	if ev.Method != "" {
		add("req", ev.Method+" "+ev.Path)
	}
	if ev.Status != 0 {
		add("status", fmt.Sprint(ev.Status))
	}
	add("kind", ev.Kind)
	if ev.Page != 0 {
		add("page", fmt.Sprint(ev.Page))
	}
	if ev.Event == log.EventListLoaded || ev.Event == log.EventListBareShortPage {
		add("total", fmt.Sprint(ev.Total))
	}
	add("reason", ev.Reason)
	add("error", ev.Error)
	add("request_id", ev.RequestID)
	return strings.Join(parts, " ")
}
