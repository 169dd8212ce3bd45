package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/torosent/symphoner/internal/bus"
	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/metrics"
	"github.com/torosent/symphoner/internal/phase"
	"github.com/torosent/symphoner/internal/pool"
	"github.com/torosent/symphoner/internal/supervisor"
	"github.com/torosent/symphoner/internal/tracing"
)

var (
	ErrRunning = errors.New("a test is already running")
	ErrClosed  = errors.New("runner is closed")
)

// Test is an ordered list of phases.
type Test struct {
	Phases []phase.Phase
}

type Options struct {
	Launcher supervisor.Launcher
	// Init is sent to every new worker.
	Init     message.InitializeClient
	Settings map[string]interface{}
	// Metrics is owned by the runner and closed by Close. Optional.
	Metrics      metrics.Sink
	Tracing      *tracing.Provider
	IdleTimeout  time.Duration
	AbortTimeout time.Duration
	Bus          *bus.Bus
	Logger       *slog.Logger
}

type Runner struct {
	opts     Options
	bus      *bus.Bus
	sink     metrics.Sink
	recorder *metrics.Recorder
	logger   *slog.Logger
	subs     []bus.SubscriptionID

	mu       sync.Mutex
	running  bool
	closed   bool
	runStart time.Time
	elapsed  time.Duration
}

func New(opts Options) (*Runner, error) {
	if opts.Launcher == nil {
		return nil, errors.New("runner: launcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	b := opts.Bus
	if b == nil {
		b = bus.New(bus.WithLogger(logger))
	}
	rec := metrics.NewRecorder()

	r := &Runner{
		opts:     opts,
		bus:      b,
		sink:     metrics.Multi(opts.Metrics, rec),
		recorder: rec,
		logger:   logger,
	}
	r.subs = registerReporters(b, r.sink, rec, logger)
	return r, nil
}

// Bus returns the bus the runner publishes on.
func (r *Runner) Bus() *bus.Bus { return r.bus }

// Run executes every phase of t in order. All phases are validated before
// any worker is started.
func (r *Runner) Run(ctx context.Context, t Test) error {
	r.mu.Lock()
	switch {
	case r.closed:
		r.mu.Unlock()
		return ErrClosed
	case r.running:
		r.mu.Unlock()
		return ErrRunning
	}
	r.running = true
	r.runStart = time.Now()
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		r.running = false
		r.elapsed += time.Since(r.runStart)
		r.mu.Unlock()
	}()

	if len(t.Phases) == 0 {
		return errors.New("test has no phases")
	}
	for i, p := range t.Phases {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("phases[%d]: %w", i, err)
		}
	}

	for _, p := range t.Phases {
		o := phase.New(r.bus, r.newPool, p, phase.Options{
			Logger: r.logger,
			Tracer: r.opts.Tracing.Tracer(),
		})
		if err := o.Run(ctx); err != nil {
			return fmt.Errorf("phase %s: %w", p.Name, err)
		}
	}
	return nil
}

func (r *Runner) newPool(ctx context.Context) (phase.Pool, error) {
	return pool.New(ctx, pool.Options{
		Bus:      r.bus,
		Spawn:    r.spawn,
		Settings: r.opts.Settings,
		Metrics:  r.sink,
		Logger:   r.logger,
	})
}

func (r *Runner) spawn(ctx context.Context, id string) (pool.Member, error) {
	s, err := supervisor.New(ctx, supervisor.Options{
		ID:           id,
		Bus:          r.bus,
		Launcher:     r.opts.Launcher,
		Init:         r.opts.Init,
		IdleTimeout:  r.opts.IdleTimeout,
		AbortTimeout: r.opts.AbortTimeout,
		Logger:       r.logger,
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Summary returns the metrics recorded so far.
func (r *Runner) Summary() metrics.Summary {
	r.mu.Lock()
	elapsed := r.elapsed
	if r.running {
		elapsed += time.Since(r.runStart)
	}
	r.mu.Unlock()
	return r.recorder.Summary(elapsed)
}

// Close releases the reporters, closes the metrics sink and flushes
// tracing. The runner cannot be used afterwards.
func (r *Runner) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	for _, id := range r.subs {
		r.bus.Unsubscribe(id)
	}

	errs := []error{r.sink.Close()}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	errs = append(errs, r.opts.Tracing.Shutdown(ctx))
	return errors.Join(errs...)
}
