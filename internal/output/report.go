// Package output renders run summaries and live progress for the terminal.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"

	"github.com/torosent/symphoner/internal/metrics"
	"github.com/torosent/symphoner/internal/threshold"
)

// PrintReport writes a human-readable summary.
func PrintReport(w io.Writer, s metrics.Summary) {
	started := s.Counter("actions")
	succeeded := s.Counter("actions.success")
	failed := s.Counter("actions.error")

	fmt.Fprintln(w, "\n--- Load Test Results ---")
	fmt.Fprintf(w, "Actions Started:   %d\n", started)
	fmt.Fprintf(w, "Successful:        %d\n", succeeded)
	fmt.Fprintf(w, "Failed:            %d\n", failed)
	if aborted := s.Counter("actions.aborted"); aborted > 0 {
		fmt.Fprintf(w, "Aborted:           %d\n", aborted)
	}
	fmt.Fprintf(w, "Duration:          %s\n", s.Duration.Round(time.Millisecond))
	fmt.Fprintf(w, "Actions/sec:       %.2f\n", s.Rate("actions"))

	if stats, ok := s.Timings["action.duration"]; ok {
		fmt.Fprintln(w, "\nAction Duration:")
		writeTiming(w, stats, "  ")
	}

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		reasons := make([]string, 0, len(s.Errors))
		for reason := range s.Errors {
			reasons = append(reasons, reason)
		}
		sort.Slice(reasons, func(i, j int) bool {
			if s.Errors[reasons[i]] == s.Errors[reasons[j]] {
				return reasons[i] < reasons[j]
			}
			return s.Errors[reasons[i]] > s.Errors[reasons[j]]
		})
		for _, reason := range reasons {
			fmt.Fprintf(w, "  %6d  %s\n", s.Errors[reason], reason)
		}
	}

	var other []string
	for name := range s.Timings {
		if name != "action.duration" {
			other = append(other, name)
		}
	}
	if len(other) > 0 {
		sort.Strings(other)
		fmt.Fprintln(w, "\nOther Timings:")
		for _, name := range other {
			st := s.Timings[name]
			fmt.Fprintf(w, "  %s: count=%d mean=%.1fms p95=%.1fms max=%.1fms\n", name, st.Count, st.MeanMs, st.P95Ms, st.MaxMs)
		}
	}
}

func writeTiming(w io.Writer, st metrics.TimingStats, indent string) {
	fmt.Fprintf(w, "%sMin:             %s\n", indent, st.Min)
	fmt.Fprintf(w, "%sMax:             %s\n", indent, st.Max)
	fmt.Fprintf(w, "%sMean:            %s\n", indent, st.Mean)
	fmt.Fprintf(w, "%sP50:             %s\n", indent, st.P50)
	fmt.Fprintf(w, "%sP90:             %s\n", indent, st.P90)
	fmt.Fprintf(w, "%sP95:             %s\n", indent, st.P95)
	fmt.Fprintf(w, "%sP99:             %s\n", indent, st.P99)
}

// PrintThresholds writes one line per threshold result.
func PrintThresholds(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\nThresholds:")
	for _, r := range results {
		fmt.Fprintf(w, "  %s\n", strings.TrimSpace(r.Message))
	}
}

type jsonThreshold struct {
	Threshold string  `json:"threshold"`
	Actual    float64 `json:"actual"`
	Pass      bool    `json:"pass"`
}

type jsonReport struct {
	metrics.Summary
	Thresholds []jsonThreshold `json:"thresholds,omitempty"`
}

// PrintJSONReport writes the summary and threshold results as JSON.
func PrintJSONReport(w io.Writer, s metrics.Summary, results []threshold.Result) error {
	report := jsonReport{Summary: s}
	for _, r := range results {
		report.Thresholds = append(report.Thresholds, jsonThreshold{
			Threshold: r.Threshold.Raw,
			Actual:    r.Actual,
			Pass:      r.Pass,
		})
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}
