package cmd

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/josephlewis42/smallsh/core/logger"
	"github.com/spf13/cobra"
	"sigs.k8s.io/yaml"
)

var colorMode string

// applyColorMode maps the --color flag onto the global color switch.
func applyColorMode() error {
	switch colorMode {
	case "auto":
		// Leave detection to the color package.
	case "always":
		color.NoColor = false
	case "never":
		color.NoColor = true
	default:
		return fmt.Errorf("invalid --color %q, want auto, always or never", colorMode)
	}
	return nil
}

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Explore the interpreter's event log.",
}

var reportCommand = &cobra.Command{
	Use:   "report",
	Short: "Show a report of events.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := config.ReadAppLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

var sessionsCommand = &cobra.Command{
	Use:   "sessions",
	Short: "Show events grouped by session.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		config, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := config.ReadAppLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		report := logger.NewSessionsReport()
		if err := logger.ReadJSONLinesLog(fd, report.Update); err != nil {
			return err
		}

		out, err := yaml.Marshal(report)
		if err != nil {
			return err
		}

		fmt.Fprintln(cmd.OutOrStdout(), string(out))

		return nil
	},
}

var tailCommand = &cobra.Command{
	Use:   "tail",
	Short: "Print raw events, most recent last.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyColorMode(); err != nil {
			return err
		}

		config, err := loadConfig()
		if err != nil {
			return err
		}

		fd, err := config.ReadAppLog()
		if err != nil {
			return err
		}
		defer fd.Close()

		timeColor := color.New(color.Faint)
		kindColor := color.New(color.FgCyan, color.Bold)
		out := cmd.OutOrStdout()
		return logger.ReadJSONLinesLog(fd, func(le *logger.LogEntry) {
			event := le.Event()
			if event == nil {
				return
			}
			payload, err := json.Marshal(event)
			if err != nil {
				return
			}

			stamp := time.UnixMicro(le.TimestampMicros).UTC().Format(time.RFC3339)
			fmt.Fprintf(out, "%s %s %s\n",
				timeColor.Sprint(stamp),
				kindColor.Sprint(eventKind(event)),
				payload)
		})
	},
}

// eventKind names an event payload for display, e.g. "run_command".
func eventKind(event logger.Event) string {
	name := fmt.Sprintf("%T", event)
	name = strings.TrimPrefix(name, "*logger.")

	var out strings.Builder
	for i, r := range name {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				out.WriteByte('_')
			}
			out.WriteRune(r - 'A' + 'a')
			continue
		}
		out.WriteRune(r)
	}
	return out.String()
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(reportCommand)
	eventsCmd.AddCommand(sessionsCommand)
	eventsCmd.AddCommand(tailCommand)

	rootCmd.PersistentFlags().StringVar(&colorMode, "color", "auto", "colorize output: auto, always or never")
}
