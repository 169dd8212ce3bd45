package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/symphoner/internal/metrics"
)

// ProgressReporter redraws a one-line status at a fixed interval.
type ProgressReporter struct {
	snapshot func() metrics.Summary
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
}

// NewProgressReporter reads the current summary from snapshot on every tick.
func NewProgressReporter(snapshot func() metrics.Summary, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		snapshot: snapshot,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
	}
}

func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts updates and ends the status line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, progressLine(p.snapshot()))
		case <-p.done:
			return
		}
	}
}

func progressLine(s metrics.Summary) string {
	line := fmt.Sprintf("\rClients: %.0f | Actions: %d | Successes: %d | Failures: %d | Actions/s: %.1f",
		s.Gauges["clients"],
		s.Counter("actions"),
		s.Counter("actions.success"),
		s.Counter("actions.error"),
		s.Rate("actions"),
	)
	if st, ok := s.Timings["action.duration"]; ok && st.Count > 0 {
		line += fmt.Sprintf(" | P95 %.1fms", st.P95Ms)
	}
	return line
}
