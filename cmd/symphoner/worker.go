package main

import (
	"os"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/torosent/symphoner/internal/action"
	"github.com/torosent/symphoner/internal/logger"
	"github.com/torosent/symphoner/internal/worker"
)

// newWorkerCommand is the entry point of a client process. It reads commands
// on stdin, writes events on stdout and logs to stderr.
func newWorkerCommand() *cobra.Command {
	var (
		id         string
		logLevel   string
		actionsDir string
	)
	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a single load test client (started by symphoner)",
		Hidden: true,
		Args:   cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			// Ctrl-C reaches the whole process group. The supervisor owns
			// shutdown and aborts clients itself.
			signal.Ignore(os.Interrupt)

			w := worker.New(worker.Options{
				ID:       id,
				In:       os.Stdin,
				Out:      os.Stdout,
				Registry: action.NewRegistry(actionsDir),
				Logger:   logger.New(os.Stderr, logLevel),
				Exit:     os.Exit,
			})
			return w.Serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "Client identifier assigned by the supervisor")
	cmd.Flags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error")
	cmd.Flags().StringVar(&actionsDir, "actions-dir", "", "Directory used to resolve relative action paths")
	_ = cmd.MarkFlagRequired("id")
	return cmd
}
