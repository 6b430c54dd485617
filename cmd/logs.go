package cmd

import (
	"fmt"
	"io"
	"os"

	"github.com/fatih/color"
	"github.com/josephlewis42/smallsh/core"
	"github.com/spf13/cobra"
)

var logsCmd = &cobra.Command{
	Use:     "logs",
	Aliases: []string{"log"},
	Short:   "Explore recorded session transcripts.",
}

var listCommand = &cobra.Command{
	Use:   "list",
	Short: "List recorded session transcripts.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true
		if err := applyColorMode(); err != nil {
			return err
		}

		config, err := loadConfig()
		if err != nil {
			return err
		}

		infos, err := config.SessionLogs()
		if err != nil {
			return err
		}

		nameColor := color.New(color.FgGreen)
		out := cmd.OutOrStdout()
		for _, info := range infos {
			fmt.Fprintf(out, "%s\t%d\t%s\n",
				nameColor.Sprint(info.Name()),
				info.Size(),
				info.ModTime().UTC().Format("2006-01-02 15:04:05"))
		}
		return nil
	},
}

// catCommand dumps what a recorded session's user saw.
var catCommand = &cobra.Command{
	Use:   "cat NAME",
	Short: "Print the full output of a recorded session.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		fd, err := openTranscript(args[0])
		if err != nil {
			return err
		}
		defer fd.Close()

		return core.Replay(fd, cmd.OutOrStdout())
	},
}

// openTranscript accepts either a bare transcript name from the
// configuration directory or a path to a transcript file.
func openTranscript(name string) (io.ReadCloser, error) {
	if fd, err := os.Open(name); err == nil {
		return fd, nil
	}

	config, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return config.OpenSessionLog(name)
}

func init() {
	rootCmd.AddCommand(logsCmd)
	logsCmd.AddCommand(listCommand)
	logsCmd.AddCommand(catCommand)
}
