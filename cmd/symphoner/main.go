package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"github.com/torosent/symphoner/internal/config"
	"github.com/torosent/symphoner/internal/logger"
	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/metrics"
	"github.com/torosent/symphoner/internal/output"
	"github.com/torosent/symphoner/internal/phase"
	"github.com/torosent/symphoner/internal/runner"
	"github.com/torosent/symphoner/internal/supervisor"
	"github.com/torosent/symphoner/internal/threshold"
	"github.com/torosent/symphoner/internal/tracing"
)

const progressInterval = time.Second

var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "symphoner",
		Short:         "Run phased load tests with supervised client processes",
		Args:          cobra.NoArgs,
		SilenceErrors: true,
		SilenceUsage:  true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Flags().NFlag() == 0 {
				return cmd.Help()
			}
			return run(cmd)
		},
	}
	config.RegisterFlags(cmd)
	cmd.AddCommand(newWorkerCommand())
	return cmd
}

func run(cmd *cobra.Command) error {
	cfg, err := config.NewLoader().FromFlags(cmd.Flags())
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	log := logger.New(cmd.ErrOrStderr(), cfg.LogLevel)
	out := cmd.OutOrStdout()

	if cfg.LockFile != "" {
		lock := flock.New(cfg.LockFile)
		locked, err := lock.TryLock()
		if err != nil {
			return fmt.Errorf("lock %s: %w", cfg.LockFile, err)
		}
		if !locked {
			return fmt.Errorf("another run holds %s", cfg.LockFile)
		}
		defer lock.Unlock()
	}

	ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	sink, statsd, err := newSink(cfg.StatsD)
	if err != nil {
		provider.Shutdown(context.Background())
		return err
	}

	init := message.InitializeClient{StatsD: statsd}
	if cfg.Tracing.Enabled() || cfg.Tracing.ShouldPropagate() {
		tc := cfg.Tracing
		init.Tracing = &tc
	}

	r, err := runner.New(runner.Options{
		Launcher: supervisor.ExecLauncher{
			Extra:  workerArgs(cfg),
			Logger: log,
		},
		Init:         init,
		Settings:     cfg.Settings,
		Metrics:      sink,
		Tracing:      provider,
		IdleTimeout:  cfg.IdleTimeout,
		AbortTimeout: cfg.AbortTimeout,
		Logger:       log,
	})
	if err != nil {
		return err
	}
	defer func() {
		if err := r.Close(); err != nil {
			log.Warn("shutdown", "error", err)
		}
	}()

	test := runner.Test{Phases: make([]phase.Phase, 0, len(cfg.Phases))}
	for _, pc := range cfg.Phases {
		test.Phases = append(test.Phases, phase.FromConfig(pc))
	}

	var progress *output.ProgressReporter
	if cfg.Progress && !cfg.JSONOutput {
		progress = output.NewProgressReporter(r.Summary, progressInterval, out)
		progress.Start()
	}
	runErr := r.Run(ctx, test)
	if progress != nil {
		progress.Stop()
	}

	summary := r.Summary()
	results := threshold.NewEvaluator(thresholds).Evaluate(summary)
	if cfg.JSONOutput {
		if err := output.PrintJSONReport(out, summary, results); err != nil {
			return err
		}
	} else {
		output.PrintReport(out, summary)
		output.PrintThresholds(out, results)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	if !threshold.AllPassed(results) {
		return errThresholdsFailed
	}
	return nil
}

// newSink returns the orchestrator's StatsD sink and the settings workers
// need to open their own. Both are nil when StatsD is disabled.
func newSink(c config.StatsDConfig) (metrics.Sink, *metrics.StatsDConfig, error) {
	if !c.Enabled() {
		return nil, nil, nil
	}
	sc := &metrics.StatsDConfig{
		Host:       strings.TrimSpace(c.Host),
		Port:       c.Port,
		Prefix:     c.Prefix,
		Suffix:     c.Suffix,
		GlobalTags: c.GlobalTags,
	}
	s, err := metrics.NewStatsD(*sc)
	if err != nil {
		return nil, nil, fmt.Errorf("statsd: %w", err)
	}
	return s, sc, nil
}

func workerArgs(cfg *config.Config) []string {
	args := []string{"--log-level", cfg.LogLevel}
	if cfg.ActionsDir != "" {
		args = append(args, "--actions-dir", cfg.ActionsDir)
	}
	return args
}
