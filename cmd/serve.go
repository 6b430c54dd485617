package cmd

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/josephlewis42/smallsh/core"
	"github.com/spf13/cobra"
)

// serveCmd starts the SSH listener.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the interpreter over SSH.",
	Args:  cobra.ExactArgs(0),
	RunE: func(cmd *cobra.Command, args []string) error {
		cmd.SilenceUsage = true

		errlog := log.New(cmd.ErrOrStderr(), "", log.LstdFlags)

		configuration, err := loadConfig()
		if err != nil {
			return err
		}

		server, err := core.NewServer(configuration, errlog)
		if err != nil {
			return err
		}

		serveErr := make(chan error, 1)
		go func() {
			serveErr <- server.ListenAndServe()
		}()

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

		select {
		case err := <-serveErr:
			return err
		case sig := <-sigs:
			errlog.Printf("got signal %q, terminating...", sig)
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(ctx); err != nil {
			return err
		}
		errlog.Print("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
