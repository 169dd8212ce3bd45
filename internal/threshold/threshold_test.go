package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/symphoner/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "p95 duration",
			input: "action_duration:p95 < 500",
			want:  Threshold{Metric: "action_duration", Aggregate: "p95", Operator: "<", Value: 500, Raw: "action_duration:p95 < 500"},
		},
		{
			name:  "failure rate",
			input: "actions_failed:rate < 0.01",
			want:  Threshold{Metric: "actions_failed", Aggregate: "rate", Operator: "<", Value: 0.01, Raw: "actions_failed:rate < 0.01"},
		},
		{
			name:  "count without spaces",
			input: "actions:count>=10",
			want:  Threshold{Metric: "actions", Aggregate: "count", Operator: ">=", Value: 10, Raw: "actions:count>=10"},
		},
		{name: "empty", input: "  ", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "unknown aggregate", input: "actions:p42 < 5", wantError: true},
		{name: "bad operator", input: "actions:count != 5", wantError: true},
		{name: "garbage", input: "fast please", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if tt.wantError {
				if err == nil {
					t.Fatalf("Parse(%q) expected error", tt.input)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse(%q) error = %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Parse(%q) = %+v, want %+v", tt.input, got, tt.want)
			}
		})
	}
}

func TestParseMultipleCollectsErrors(t *testing.T) {
	_, err := ParseMultiple([]string{"actions:count > 1", "nope", "actions:oops < 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("error should mention both bad entries: %v", err)
	}

	got, err := ParseMultiple(nil)
	if err != nil || got != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func testSummary() metrics.Summary {
	rec := metrics.NewRecorder()
	for i := 1; i <= 100; i++ {
		rec.Timing("action.duration", time.Duration(i)*time.Millisecond)
		rec.Increment("actions")
	}
	for i := 0; i < 95; i++ {
		rec.Increment("actions.success")
	}
	for i := 0; i < 5; i++ {
		rec.Increment("actions.error")
	}
	return rec.Summary(10 * time.Second)
}

func TestEvaluate(t *testing.T) {
	summary := testSummary()

	tests := []struct {
		input    string
		wantPass bool
	}{
		{"action_duration:p95 < 200", true},
		{"action_duration:p50 < 10", false},
		{"action_duration:max <= 100", true},
		{"action_duration:min >= 1", true},
		{"actions_failed:rate < 0.01", false},
		{"actions_failed:rate <= 0.05", true},
		{"actions_failed:count == 5", true},
		{"actions:count > 99", true},
		{"actions:rate >= 10", true},
		{"actions:rate > 10", false},
		{"actions:p95 < 1", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			th, err := Parse(tt.input)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			results := NewEvaluator([]Threshold{th}).Evaluate(summary)
			if len(results) != 1 {
				t.Fatalf("got %d results", len(results))
			}
			if results[0].Pass != tt.wantPass {
				t.Errorf("Pass = %v (actual %.4f), want %v: %s", results[0].Pass, results[0].Actual, tt.wantPass, results[0].Message)
			}
		})
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed(nil) {
		t.Error("no results should pass")
	}
	if AllPassed([]Result{{Pass: true}, {Pass: false}}) {
		t.Error("a failing result should fail the set")
	}
}

func TestEvaluateWithoutData(t *testing.T) {
	th, _ := Parse("actions_failed:rate < 0.5")
	results := NewEvaluator([]Threshold{th}).Evaluate(metrics.Summary{})
	if !results[0].Pass || results[0].Actual != 0 {
		t.Errorf("empty summary result = %+v", results[0])
	}
}
