package phase

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

func TestNewTableNormalizes(t *testing.T) {
	table, err := NewTable([]Scenario{{Probability: 3, Action: "a"}, {Probability: 1, Action: "b"}})
	if err != nil {
		t.Fatalf("NewTable() error = %v", err)
	}
	if table.Percent(0) != 75 || table.Percent(1) != 25 {
		t.Errorf("percentages = %v, %v; want 75, 25", table.Percent(0), table.Percent(1))
	}
}

func TestNewTableRejectsInvalid(t *testing.T) {
	if _, err := NewTable(nil); !errors.Is(err, ErrNoScenarios) {
		t.Errorf("NewTable(nil) error = %v, want ErrNoScenarios", err)
	}
	if _, err := NewTable([]Scenario{{Probability: 0, Action: "a"}}); err == nil {
		t.Error("zero probability should be rejected")
	}
	if _, err := NewTable([]Scenario{{Probability: 1}}); err == nil {
		t.Error("missing action should be rejected")
	}
}

func TestPickWalksCumulatively(t *testing.T) {
	table, _ := NewTable([]Scenario{
		{Probability: 1, Action: "a"},
		{Probability: 1, Action: "b"},
		{Probability: 2, Action: "c"},
	})
	tests := []struct {
		r    float64
		want string
	}{
		{0, "a"},
		{25, "a"},
		{25.01, "b"},
		{50, "b"},
		{99.9, "c"},
		{100, "c"},
		{150, "c"},
	}
	for _, tt := range tests {
		if got := table.Pick(tt.r).Action; got != tt.want {
			t.Errorf("Pick(%v) = %s, want %s", tt.r, got, tt.want)
		}
	}
}

func TestSingleScenarioAlwaysChosen(t *testing.T) {
	table, _ := NewTable([]Scenario{{Probability: 7, Action: "only"}})
	for _, r := range []float64{0, 0.5, 42, 99.99, 100} {
		if got := table.Pick(r).Action; got != "only" {
			t.Fatalf("Pick(%v) = %s", r, got)
		}
	}
	for i := 0; i < 1000; i++ {
		if table.Draw().Action != "only" {
			t.Fatal("Draw() returned another scenario")
		}
	}
}

func TestDrawFollowsWeights(t *testing.T) {
	const draws = 100_000
	table, _ := NewTable([]Scenario{{Probability: 80, Action: "browse"}, {Probability: 20, Action: "buy"}})
	table.WithSource(rand.New(rand.NewPCG(1, 2)).Float64)

	counts := map[string]int{}
	for i := 0; i < draws; i++ {
		counts[table.Draw().Action]++
	}

	share := float64(counts["browse"]) / draws
	if math.Abs(share-0.8) > 0.01 {
		t.Errorf("browse share = %.4f, want 0.80 ± 0.01", share)
	}
	if counts["browse"]+counts["buy"] != draws {
		t.Errorf("unexpected actions drawn: %v", counts)
	}
}
