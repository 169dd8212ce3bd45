// Package runner executes a test: an ordered list of phases run one after
// another against a shared event bus.
//
// # Usage
//
//	r, err := runner.New(runner.Options{
//		Launcher: supervisor.ExecLauncher{},
//		Settings: cfg.Settings,
//		Metrics:  statsd,
//	})
//	if err != nil {
//		return err
//	}
//	defer r.Close()
//	err = r.Run(ctx, runner.Test{Phases: phases})
//
// # Reporters
//
// The runner subscribes three reporters to the bus for its lifetime:
//   - the console reporter logs phase events and, at debug level, client events
//   - the phase reporter times each phase as phase.duration
//   - the action reporter counts started actions and feeds the in-process
//     recorder behind [Runner.Summary]
package runner
