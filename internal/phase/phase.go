// Package phase runs one load phase: it ramps a worker pool up to the target
// concurrency and keeps every ready worker busy with a weighted choice of
// scenarios until the phase duration elapses.
package phase

import (
	"errors"
	"fmt"
	"time"

	"github.com/torosent/symphoner/internal/config"
)

var (
	ErrNoScenarios    = errors.New("phase has no scenarios")
	ErrAlreadyRunning = errors.New("phase is already running")
	ErrClosed         = errors.New("phase is closed")
)

// Phase describes a period of constant target load.
type Phase struct {
	Name     string
	Duration time.Duration
	Clients  int
	// ArrivalRate is the interval between worker additions during ramp-up.
	ArrivalRate time.Duration
	Arrival     config.ArrivalModel
	Scenarios   []Scenario
}

// FromConfig converts a loaded phase definition.
func FromConfig(pc config.PhaseConfig) Phase {
	p := Phase{
		Name:        pc.Name,
		Duration:    pc.Duration,
		Clients:     pc.Clients,
		ArrivalRate: pc.ArrivalRate,
		Arrival:     pc.ArrivalModel,
		Scenarios:   make([]Scenario, 0, len(pc.Scenarios)),
	}
	for _, sc := range pc.Scenarios {
		p.Scenarios = append(p.Scenarios, Scenario{Probability: sc.Probability, Action: sc.Action})
	}
	return p
}

// Validate checks the phase invariants.
func (p Phase) Validate() error {
	switch {
	case p.Clients < 1:
		return fmt.Errorf("phase %q: clients must be >= 1", p.Name)
	case p.Duration <= 0:
		return fmt.Errorf("phase %q: duration must be > 0", p.Name)
	case p.ArrivalRate < 0:
		return fmt.Errorf("phase %q: arrival rate must be >= 0", p.Name)
	}
	if _, err := NewTable(p.Scenarios); err != nil {
		return fmt.Errorf("phase %q: %w", p.Name, err)
	}
	return nil
}
