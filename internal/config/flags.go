package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "symphoner",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to test definition file (JSON or YAML)")

	// Single-phase shortcut
	flags.StringSlice("action", nil, "Action to run in a single phase, optionally weighted as action=weight (repeatable)")
	flags.IntP("clients", "c", 1, "Target number of concurrent clients for --action")
	flags.DurationP("duration", "d", 0, "How long the --action phase lasts (e.g. 30s, 5m)")
	flags.Duration("arrival-rate", time.Second, "Delay between new client admissions for --action")
	flags.String("arrival-model", string(ArrivalModelUniform), "Client admission model for --action (uniform or poisson)")
	flags.StringToString("setting", nil, "Global action setting in key=value form (repeatable)")

	// Client supervision
	flags.Duration("idle-timeout", DefaultIdleTimeout, "Abort a client that reports no activity for this long")
	flags.Duration("abort-timeout", DefaultAbortTimeout, "Kill a client that has not exited this long after an abort")
	flags.String("actions-dir", "", "Directory used to resolve relative action paths")

	// StatsD
	flags.String("statsd-host", "", "StatsD host (metrics are disabled when empty)")
	flags.Int("statsd-port", 8125, "StatsD UDP port")
	flags.String("statsd-prefix", "", "Prefix prepended to every metric name")
	flags.String("statsd-suffix", "", "Suffix appended to every metric name")
	flags.StringToString("statsd-tag", nil, "Global StatsD tag in key=value form (repeatable)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP endpoint for phase and action spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Float64("tracing-sample-rate", 1, "Trace sampling ratio between 0.0 and 1.0")

	// Output
	flags.StringSlice("threshold", nil, "Pass/fail threshold (repeatable, e.g., 'action_duration:p95 < 500')")
	flags.Bool("json-output", false, "Emit JSON formatted summary")
	flags.Bool("progress", true, "Print a live progress line while the test runs")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("lock-file", "", "Refuse to start while another run holds this lock file")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("action") {
		phase, err := phaseFromFlags(fs)
		if err != nil {
			return err
		}
		cfg.Phases = []PhaseConfig{phase}
	}
	if fs.Changed("setting") {
		val, err := fs.GetStringToString("setting")
		if err != nil {
			return err
		}
		if cfg.Settings == nil {
			cfg.Settings = map[string]interface{}{}
		}
		for k, v := range val {
			cfg.Settings[k] = v
		}
	}
	if fs.Changed("idle-timeout") {
		val, err := fs.GetDuration("idle-timeout")
		if err != nil {
			return err
		}
		cfg.IdleTimeout = val
	}
	if fs.Changed("abort-timeout") {
		val, err := fs.GetDuration("abort-timeout")
		if err != nil {
			return err
		}
		cfg.AbortTimeout = val
	}
	if fs.Changed("actions-dir") {
		val, err := fs.GetString("actions-dir")
		if err != nil {
			return err
		}
		cfg.ActionsDir = strings.TrimSpace(val)
	}

	if fs.Changed("statsd-host") {
		val, err := fs.GetString("statsd-host")
		if err != nil {
			return err
		}
		cfg.StatsD.Host = strings.TrimSpace(val)
	}
	if fs.Changed("statsd-port") {
		val, err := fs.GetInt("statsd-port")
		if err != nil {
			return err
		}
		cfg.StatsD.Port = val
	}
	if fs.Changed("statsd-prefix") {
		val, err := fs.GetString("statsd-prefix")
		if err != nil {
			return err
		}
		cfg.StatsD.Prefix = val
	}
	if fs.Changed("statsd-suffix") {
		val, err := fs.GetString("statsd-suffix")
		if err != nil {
			return err
		}
		cfg.StatsD.Suffix = val
	}
	if fs.Changed("statsd-tag") {
		val, err := fs.GetStringToString("statsd-tag")
		if err != nil {
			return err
		}
		if cfg.StatsD.GlobalTags == nil {
			cfg.StatsD.GlobalTags = map[string]string{}
		}
		for k, v := range val {
			cfg.StatsD.GlobalTags[k] = v
		}
	}

	if fs.Changed("tracing-endpoint") {
		val, err := fs.GetString("tracing-endpoint")
		if err != nil {
			return err
		}
		cfg.Tracing.Endpoint = strings.TrimSpace(val)
	}
	if fs.Changed("tracing-protocol") {
		val, err := fs.GetString("tracing-protocol")
		if err != nil {
			return err
		}
		cfg.Tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if fs.Changed("tracing-insecure") {
		val, err := fs.GetBool("tracing-insecure")
		if err != nil {
			return err
		}
		cfg.Tracing.Insecure = val
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	if fs.Changed("json-output") {
		val, err := fs.GetBool("json-output")
		if err != nil {
			return err
		}
		cfg.JSONOutput = val
	}
	if fs.Changed("progress") {
		val, err := fs.GetBool("progress")
		if err != nil {
			return err
		}
		cfg.Progress = val
	}
	if fs.Changed("log-level") {
		val, err := fs.GetString("log-level")
		if err != nil {
			return err
		}
		cfg.LogLevel = val
	}
	if fs.Changed("lock-file") {
		val, err := fs.GetString("lock-file")
		if err != nil {
			return err
		}
		cfg.LockFile = strings.TrimSpace(val)
	}

	return nil
}

// phaseFromFlags builds the single phase described by --action and friends.
func phaseFromFlags(fs *pflag.FlagSet) (PhaseConfig, error) {
	actions, err := fs.GetStringSlice("action")
	if err != nil {
		return PhaseConfig{}, err
	}
	clients, err := fs.GetInt("clients")
	if err != nil {
		return PhaseConfig{}, err
	}
	duration, err := fs.GetDuration("duration")
	if err != nil {
		return PhaseConfig{}, err
	}
	arrivalRate, err := fs.GetDuration("arrival-rate")
	if err != nil {
		return PhaseConfig{}, err
	}
	model, err := fs.GetString("arrival-model")
	if err != nil {
		return PhaseConfig{}, err
	}

	phase := PhaseConfig{
		Name:         "main",
		Duration:     duration,
		Clients:      clients,
		ArrivalRate:  arrivalRate,
		ArrivalModel: ArrivalModel(strings.ToLower(strings.TrimSpace(model))),
	}
	for _, entry := range actions {
		sc := ScenarioConfig{Action: strings.TrimSpace(entry), Probability: 1}
		if idx := strings.LastIndex(entry, "="); idx != -1 {
			weight, err := asInt(entry[idx+1:])
			if err != nil {
				return PhaseConfig{}, fmt.Errorf("action weight must be an integer: %s", entry)
			}
			sc.Action = strings.TrimSpace(entry[:idx])
			sc.Probability = weight
		}
		phase.Scenarios = append(phase.Scenarios, sc)
	}
	return phase, nil
}
