// Package threshold evaluates pass/fail assertions against a run summary.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/symphoner/internal/metrics"
)

// Threshold is one assertion such as "action_duration:p95 < 500".
type Threshold struct {
	Metric    string  // action_duration, actions_failed or actions
	Aggregate string  // p50, p90, p95, p99, avg, min, max, rate, count
	Operator  string  // <, <=, >, >=, ==
	Value     float64 // durations in ms, rates per second or as a fraction
	Raw       string
}

type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{thresholds: thresholds}
}

// Evaluate checks every threshold against summary.
func (e *Evaluator) Evaluate(summary metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, summary))
	}
	return results
}

// AllPassed reports whether no result failed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, summary metrics.Summary) Result {
	actual, err := extractMetricValue(t, summary)
	if err != nil {
		return Result{
			Threshold: t,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}
	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*([0-9.]+)$`)

var (
	validMetrics    = map[string]bool{"action_duration": true, "actions_failed": true, "actions": true}
	validAggregates = map[string]bool{"p50": true, "p90": true, "p95": true, "p99": true, "avg": true, "min": true, "max": true, "rate": true, "count": true}
	validOperators  = map[string]bool{"<": true, "<=": true, ">": true, ">=": true, "==": true}
)

// Parse reads "metric:aggregate operator value". Supported forms:
//
//	action_duration:p95 < 500   (ms)
//	action_duration:avg < 200   (ms)
//	actions_failed:rate < 0.01  (failed / completed)
//	actions_failed:count < 10
//	actions:rate > 100          (started per second)
//	actions:count > 1000
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected metric:aggregate operator value, e.g. 'action_duration:p95 < 500')", s)
	}
	metric, aggregate, operator := matches[1], matches[2], matches[3]

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[4], err)
	}
	if !validMetrics[metric] {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: action_duration, actions_failed, actions)", metric)
	}
	if !validAggregates[aggregate] {
		return Threshold{}, fmt.Errorf("unsupported aggregate: %q (supported: p50, p90, p95, p99, avg, min, max, rate, count)", aggregate)
	}
	if !validOperators[operator] {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses every string and reports all failures together.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var problems []string
	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			problems = append(problems, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}
	if len(problems) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(problems, "; "))
	}
	return result, nil
}

func extractMetricValue(t Threshold, s metrics.Summary) (float64, error) {
	switch t.Metric {
	case "action_duration":
		return extractDuration(t.Aggregate, s.Timings["action.duration"])
	case "actions_failed":
		failed := s.Counter("actions.error")
		switch t.Aggregate {
		case "count":
			return float64(failed), nil
		case "rate":
			completed := failed + s.Counter("actions.success")
			if completed == 0 {
				return 0, nil
			}
			return float64(failed) / float64(completed), nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for actions_failed (use 'count' or 'rate')", t.Aggregate)
	case "actions":
		switch t.Aggregate {
		case "count":
			return float64(s.Counter("actions")), nil
		case "rate":
			return s.Rate("actions"), nil
		}
		return 0, fmt.Errorf("unsupported aggregate %q for actions (use 'count' or 'rate')", t.Aggregate)
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractDuration(aggregate string, stats metrics.TimingStats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50Ms, nil
	case "p90":
		return stats.P90Ms, nil
	case "p95":
		return stats.P95Ms, nil
	case "p99":
		return stats.P99Ms, nil
	case "avg":
		return stats.MeanMs, nil
	case "min":
		return stats.MinMs, nil
	case "max":
		return stats.MaxMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for action_duration", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	const epsilon = 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
