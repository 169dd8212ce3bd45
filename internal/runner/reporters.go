package runner

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/torosent/symphoner/internal/bus"
	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/metrics"
)

func registerReporters(b *bus.Bus, sink metrics.Sink, rec *metrics.Recorder, logger *slog.Logger) []bus.SubscriptionID {
	console := consoleReporter{logger: logger}
	phases := &phaseReporter{sink: sink}
	actions := actionReporter{sink: sink, recorder: rec}

	return []bus.SubscriptionID{
		b.Subscribe([]message.Predicate{message.IsEvent(message.EventPhaseStarted, message.EventPhaseEnded)}, console.onPhase),
		b.Subscribe([]message.Predicate{message.IsFromType(message.SourceSupervisor)}, console.onClient),
		b.Subscribe([]message.Predicate{message.IsEvent(message.EventPhaseStarted)}, phases.onStarted),
		b.Subscribe([]message.Predicate{message.IsEvent(message.EventPhaseEnded)}, phases.onEnded),
		b.Subscribe([]message.Predicate{
			message.IsFromType(message.SourceSupervisor),
			message.IsEvent(
				message.EventActionStarted,
				message.EventActionFinished,
				message.EventActionErrored,
				message.EventActionAborted,
			),
		}, actions.onAction),
	}
}

func describe(ev message.EventMessage) string {
	return fmt.Sprintf("%s: Event{%s}", ev.Source, ev.Event)
}

type consoleReporter struct {
	logger *slog.Logger
}

func (c consoleReporter) onPhase(m message.Message) {
	ev := m.(message.EventMessage)
	attrs := []any{"phase", ev.Phase}
	if ev.Event == message.EventPhaseEnded {
		attrs = append(attrs, "elapsed", ev.Elapsed.Round(time.Millisecond))
	}
	c.logger.Info(describe(ev), attrs...)
}

func (c consoleReporter) onClient(m message.Message) {
	ev, ok := m.(message.EventMessage)
	if !ok {
		return
	}
	attrs := make([]any, 0, 6)
	if ev.Action != "" {
		attrs = append(attrs, "action", ev.Action)
	}
	if ev.Reason != "" {
		attrs = append(attrs, "reason", ev.Reason)
	}
	if ev.Signal != "" {
		attrs = append(attrs, "signal", ev.Signal)
	}
	c.logger.Debug(describe(ev), attrs...)
}

// phaseReporter times phases from their Started and Ended events.
type phaseReporter struct {
	sink    metrics.Sink
	mu      sync.Mutex
	started map[string]time.Time
}

func (p *phaseReporter) onStarted(m message.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started == nil {
		p.started = make(map[string]time.Time)
	}
	p.started[m.Head().Source.ID] = m.Head().Timestamp
}

func (p *phaseReporter) onEnded(m message.Message) {
	ev := m.(message.EventMessage)

	p.mu.Lock()
	start, ok := p.started[ev.Source.ID]
	delete(p.started, ev.Source.ID)
	p.mu.Unlock()

	elapsed := ev.Elapsed
	if elapsed <= 0 && ok {
		elapsed = ev.Timestamp.Sub(start)
	}
	if elapsed > 0 {
		p.sink.Timing("phase.duration", elapsed)
	}
}

// actionReporter counts actions for the whole sink and feeds outcome details
// to the in-process recorder only, since workers already report them.
type actionReporter struct {
	sink     metrics.Sink
	recorder *metrics.Recorder
}

func (a actionReporter) onAction(m message.Message) {
	ev := m.(message.EventMessage)
	switch ev.Event {
	case message.EventActionStarted:
		a.sink.Increment("actions")
	case message.EventActionFinished:
		a.recorder.Timing("action.duration", ev.Elapsed)
		a.recorder.Increment("actions.success")
	case message.EventActionErrored:
		a.recorder.Increment("actions.error")
		a.recorder.RecordError(ev.Reason)
	case message.EventActionAborted:
		a.recorder.Increment("actions.aborted")
	}
}
