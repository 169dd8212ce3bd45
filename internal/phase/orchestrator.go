package phase

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/symphoner/internal/bus"
	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/pool"
	"github.com/torosent/symphoner/internal/tracing"
)

// Pool is the part of *pool.Pool an orchestrator drives.
type Pool interface {
	Source() message.Source
	Grow(n int)
	Size() int
	ExecuteAction(action string) error
	Close() error
}

// PoolFactory creates the pool for one run.
type PoolFactory func(ctx context.Context) (Pool, error)

type State int

const (
	StateIdle State = iota
	StateRunning
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Options struct {
	Logger *slog.Logger
	Tracer trace.Tracer
	// Rand replaces the scenario selection source. Values in [0,1).
	Rand func() float64
	// Sample replaces the exponential sampler of the poisson arrival model.
	Sample func() float64
}

// Orchestrator runs one Phase once.
type Orchestrator struct {
	src     message.Source
	phase   Phase
	bus     *bus.Bus
	newPool PoolFactory
	logger  *slog.Logger
	tracer  trace.Tracer
	rand    func() float64
	sample  func() float64

	mu    sync.Mutex
	state State
}

func New(b *bus.Bus, newPool PoolFactory, p Phase, opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("")
	}
	id := uuid.NewString()
	return &Orchestrator{
		src:     message.Source{ID: id, Type: message.SourcePhase},
		phase:   p,
		bus:     b,
		newPool: newPool,
		logger:  logger.With("phase", p.Name),
		tracer:  tracer,
		rand:    opts.Rand,
		sample:  opts.Sample,
	}
}

func (o *Orchestrator) Source() message.Source { return o.src }

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Run executes the phase and returns when it has ended and its pool is
// closed. Cancelling ctx ends the phase early and returns ctx.Err().
func (o *Orchestrator) Run(ctx context.Context) (err error) {
	o.mu.Lock()
	switch o.state {
	case StateRunning:
		o.mu.Unlock()
		return ErrAlreadyRunning
	case StateClosed:
		o.mu.Unlock()
		return ErrClosed
	}
	o.state = StateRunning
	o.mu.Unlock()
	defer o.setState(StateClosed)

	if err := o.phase.Validate(); err != nil {
		return err
	}
	table, err := NewTable(o.phase.Scenarios)
	if err != nil {
		return err
	}
	if o.rand != nil {
		table.WithSource(o.rand)
	}

	ctx, span := tracing.StartPhaseSpan(ctx, o.tracer, o.phase.Name, o.phase.Clients, o.phase.Duration)
	defer func() { tracing.EndSpan(span, err) }()

	p, err := o.newPool(ctx)
	if err != nil {
		return err
	}

	sub := o.bus.Subscribe([]message.Predicate{
		message.IsFrom(p.Source().ID),
		message.IsEvent(message.EventReady),
	}, func(message.Message) { o.dispatch(p, table) })

	p.Grow(1)

	rampCtx, stopRamp := context.WithCancel(ctx)
	var ramp sync.WaitGroup
	if o.phase.Clients > 1 {
		ramp.Add(1)
		go func() {
			defer ramp.Done()
			o.ramp(rampCtx, p)
		}()
	}

	start := time.Now()
	o.publish(message.EventPhaseStarted, 0)

	timer := time.NewTimer(o.phase.Duration)
	select {
	case <-timer.C:
	case <-ctx.Done():
		err = ctx.Err()
	}
	timer.Stop()

	stopRamp()
	ramp.Wait()
	if closeErr := p.Close(); closeErr != nil {
		o.logger.Warn("close pool", "error", closeErr)
	}
	o.bus.Unsubscribe(sub)
	o.publish(message.EventPhaseEnded, time.Since(start))

	return err
}

func (o *Orchestrator) ramp(ctx context.Context, p Pool) {
	arr := newArrival(o.phase.Arrival, o.phase.ArrivalRate, o.sample)
	for p.Size() < o.phase.Clients {
		if err := arr.Wait(ctx); err != nil {
			return
		}
		p.Grow(1)
	}
}

func (o *Orchestrator) dispatch(p Pool, table *Table) {
	sc := table.Draw()
	err := p.ExecuteAction(sc.Action)
	switch {
	case err == nil:
	case errors.Is(err, pool.ErrNoClientsAvailable), errors.Is(err, pool.ErrClosed):
		o.logger.Debug("no client for action", "action", sc.Action, "error", err)
	default:
		o.logger.Warn("execute action", "action", sc.Action, "error", err)
	}
}

func (o *Orchestrator) publish(event message.Event, elapsed time.Duration) {
	ev := message.NewEvent(o.src, event)
	ev.Phase = o.phase.Name
	ev.Elapsed = elapsed
	o.bus.Publish(ev)
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}
