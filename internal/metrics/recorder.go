package metrics

import (
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Recorder keeps metrics in memory. Timings are tracked per name in HDR
// histograms from 1µs to 10 minutes.
type Recorder struct {
	mu       sync.Mutex
	counters map[string]int64
	gauges   map[string]float64
	timings  map[string]*timing
	reasons  map[string]int64
}

type timing struct {
	hist *hdrhistogram.Histogram
	min  time.Duration
	max  time.Duration
	sum  time.Duration
}

// TimingStats summarizes one timing series.
type TimingStats struct {
	Count int64         `json:"count"`
	Min   time.Duration `json:"-"`
	Max   time.Duration `json:"-"`
	Mean  time.Duration `json:"-"`
	P50   time.Duration `json:"-"`
	P90   time.Duration `json:"-"`
	P95   time.Duration `json:"-"`
	P99   time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinMs  float64 `json:"min_ms"`
	MaxMs  float64 `json:"max_ms"`
	MeanMs float64 `json:"mean_ms"`
	P50Ms  float64 `json:"p50_ms"`
	P90Ms  float64 `json:"p90_ms"`
	P95Ms  float64 `json:"p95_ms"`
	P99Ms  float64 `json:"p99_ms"`
}

// Summary is a point-in-time view of a Recorder.
type Summary struct {
	Duration   time.Duration          `json:"-"`
	DurationMs float64                `json:"duration_ms"`
	Counters   map[string]int64       `json:"counters"`
	Gauges     map[string]float64     `json:"gauges,omitempty"`
	Timings    map[string]TimingStats `json:"timings,omitempty"`
	Errors     map[string]int64       `json:"errors,omitempty"`
}

func NewRecorder() *Recorder {
	return &Recorder{
		counters: make(map[string]int64),
		gauges:   make(map[string]float64),
		timings:  make(map[string]*timing),
		reasons:  make(map[string]int64),
	}
}

func (r *Recorder) Increment(name string) {
	r.mu.Lock()
	r.counters[name]++
	r.mu.Unlock()
}

func (r *Recorder) Gauge(name string, value float64) {
	r.mu.Lock()
	r.gauges[name] = value
	r.mu.Unlock()
}

func (r *Recorder) Timing(name string, d time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.timings[name]
	if !ok {
		t = &timing{hist: hdrhistogram.New(1, 600_000_000, 3)}
		r.timings[name] = t
	}

	us := d.Microseconds()
	if us < t.hist.LowestTrackableValue() {
		us = t.hist.LowestTrackableValue()
	}
	if us > t.hist.HighestTrackableValue() {
		us = t.hist.HighestTrackableValue()
	}
	_ = t.hist.RecordValue(us)

	t.sum += d
	if t.hist.TotalCount() == 1 || d < t.min {
		t.min = d
	}
	if d > t.max {
		t.max = d
	}
}

// RecordError counts one failure under a short reason label.
func (r *Recorder) RecordError(reason string) {
	if len(reason) > 60 {
		reason = reason[:60]
	}
	if reason == "" {
		reason = "unknown"
	}
	r.mu.Lock()
	r.reasons[reason]++
	r.mu.Unlock()
}

func (r *Recorder) Close() error { return nil }

// Summary computes the current aggregates. elapsed is used for rates.
func (r *Recorder) Summary(elapsed time.Duration) Summary {
	r.mu.Lock()
	defer r.mu.Unlock()

	s := Summary{
		Duration:   elapsed,
		DurationMs: float64(elapsed) / float64(time.Millisecond),
		Counters:   make(map[string]int64, len(r.counters)),
	}
	for k, v := range r.counters {
		s.Counters[k] = v
	}
	if len(r.gauges) > 0 {
		s.Gauges = make(map[string]float64, len(r.gauges))
		for k, v := range r.gauges {
			s.Gauges[k] = v
		}
	}
	if len(r.timings) > 0 {
		s.Timings = make(map[string]TimingStats, len(r.timings))
		for name, t := range r.timings {
			s.Timings[name] = t.stats()
		}
	}
	if len(r.reasons) > 0 {
		s.Errors = make(map[string]int64, len(r.reasons))
		for k, v := range r.reasons {
			s.Errors[k] = v
		}
	}
	return s
}

func (t *timing) stats() TimingStats {
	count := t.hist.TotalCount()
	st := TimingStats{Count: count, Min: t.min, Max: t.max}
	if count > 0 {
		st.Mean = time.Duration(int64(t.sum) / count)
		st.P50 = time.Duration(t.hist.ValueAtQuantile(50)) * time.Microsecond
		st.P90 = time.Duration(t.hist.ValueAtQuantile(90)) * time.Microsecond
		st.P95 = time.Duration(t.hist.ValueAtQuantile(95)) * time.Microsecond
		st.P99 = time.Duration(t.hist.ValueAtQuantile(99)) * time.Microsecond
	}
	st.MinMs = toMs(st.Min)
	st.MaxMs = toMs(st.Max)
	st.MeanMs = toMs(st.Mean)
	st.P50Ms = toMs(st.P50)
	st.P90Ms = toMs(st.P90)
	st.P95Ms = toMs(st.P95)
	st.P99Ms = toMs(st.P99)
	return st
}

func toMs(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// Counter returns a counter value, zero when absent.
func (s Summary) Counter(name string) int64 {
	return s.Counters[name]
}

// Rate returns a counter divided by the summary duration in seconds.
func (s Summary) Rate(name string) float64 {
	if s.Duration <= 0 {
		return 0
	}
	return float64(s.Counters[name]) / s.Duration.Seconds()
}
