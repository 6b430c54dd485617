package cmd

import (
	"log"
	"os"
	"os/signal"

	"github.com/josephlewis42/smallsh/core"
	"github.com/josephlewis42/smallsh/core/logger"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
)

var runCommandLine string

// runCmd starts the interpreter on the local terminal.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the interpreter on the local terminal.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		appLog, err := configuration.OpenAppLog()
		if err != nil {
			return err
		}
		defer appLog.Close()
		sessionLogger := logger.NewJsonLinesLogRecorder(appLog).NewSession()

		shell, err := core.NewShell(core.Session{
			IO:  core.NewIO(os.Stdin, os.Stdout, os.Stderr),
			Log: sessionLogger,
			IsTerminal: func() bool {
				return isatty.IsTerminal(os.Stdin.Fd())
			},
		}, configuration)
		if err != nil {
			return err
		}
		defer shell.Close()

		// An interrupt kills the running foreground job, not the
		// interpreter.
		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt)
		defer signal.Stop(sigs)
		go func() {
			for range sigs {
				shell.Interrupt()
			}
		}()

		exitCode := 0
		if runCommandLine != "" {
			// One line, then out, like sh -c.
			if _, err := shell.RunLine(runCommandLine); err != nil {
				log.Println(err)
				exitCode = 1
			} else {
				exitCode = shell.LastResult()
			}
		} else {
			exitCode = shell.Run()
		}

		sessionLogger.Record(&logger.SessionClosed{ExitCode: exitCode})
		if exitCode != 0 {
			shell.Close()
			appLog.Close()
			os.Exit(exitCode)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().StringVarP(&runCommandLine, "command", "c", "", "run a single command line and exit")
}
