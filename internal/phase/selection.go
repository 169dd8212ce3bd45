package phase

import (
	"fmt"
	"math/rand/v2"
)

// Scenario is an action with a relative weight.
type Scenario struct {
	Probability int
	Action      string
}

// Table holds scenarios with weights normalized to percentages.
type Table struct {
	entries []entry
	rand    func() float64
}

type entry struct {
	scenario Scenario
	percent  float64
}

// NewTable normalizes the weights so they sum to 100.
func NewTable(scenarios []Scenario) (*Table, error) {
	if len(scenarios) == 0 {
		return nil, ErrNoScenarios
	}
	total := 0
	for i, sc := range scenarios {
		if sc.Probability <= 0 {
			return nil, fmt.Errorf("scenario %d (%s): probability must be > 0", i, sc.Action)
		}
		if sc.Action == "" {
			return nil, fmt.Errorf("scenario %d: action is required", i)
		}
		total += sc.Probability
	}

	t := &Table{entries: make([]entry, len(scenarios)), rand: rand.Float64}
	for i, sc := range scenarios {
		t.entries[i] = entry{scenario: sc, percent: float64(sc.Probability) * 100 / float64(total)}
	}
	return t, nil
}

// WithSource replaces the uniform [0,1) source used by Draw.
func (t *Table) WithSource(fn func() float64) *Table {
	t.rand = fn
	return t
}

// Pick returns the first scenario whose cumulative percentage reaches r,
// or the last one when rounding leaves r above the total.
func (t *Table) Pick(r float64) Scenario {
	sum := 0.0
	for _, e := range t.entries {
		sum += e.percent
		if r <= sum {
			return e.scenario
		}
	}
	return t.entries[len(t.entries)-1].scenario
}

// Draw picks a scenario at random.
func (t *Table) Draw() Scenario {
	return t.Pick(t.rand() * 100)
}

// Percent returns the normalized weight of scenario i.
func (t *Table) Percent(i int) float64 {
	return t.entries[i].percent
}

func (t *Table) Len() int { return len(t.entries) }
