// Package worker runs inside a client process. It reads commands from the
// supervisor, executes actions and reports lifecycle events back.
package worker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/torosent/symphoner/internal/action"
	"github.com/torosent/symphoner/internal/httpclient"
	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/metrics"
	"github.com/torosent/symphoner/internal/tracing"
)

// DefaultAbortDelay is how long an aborted worker waits before exiting so
// that its final events reach the supervisor.
const DefaultAbortDelay = 100 * time.Millisecond

type state int

const (
	stateInitializing state = iota
	stateIdle
	stateRunning
	stateAborting
)

func (s state) String() string {
	switch s {
	case stateInitializing:
		return "initializing"
	case stateIdle:
		return "idle"
	case stateRunning:
		return "running"
	case stateAborting:
		return "aborting"
	default:
		return "unknown"
	}
}

type Options struct {
	ID       string
	In       io.Reader
	Out      io.Writer
	Registry *action.Registry
	Logger   *slog.Logger
	// AbortDelay defaults to DefaultAbortDelay.
	AbortDelay time.Duration
	// Exit terminates the process after an abort. Required.
	Exit func(code int)
}

type Worker struct {
	src        message.Source
	enc        *message.Encoder
	dec        *message.Decoder
	registry   *action.Registry
	logger     *slog.Logger
	abortDelay time.Duration
	exit       func(int)

	mu       sync.Mutex
	state    state
	sink     metrics.Sink
	provider *tracing.Provider
	cancel   context.CancelFunc
}

func New(opts Options) *Worker {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	registry := opts.Registry
	if registry == nil {
		registry = action.NewRegistry("")
	}
	delay := opts.AbortDelay
	if delay <= 0 {
		delay = DefaultAbortDelay
	}
	exit := opts.Exit
	if exit == nil {
		exit = func(int) {}
	}

	return &Worker{
		src:        message.Source{ID: opts.ID, Type: message.SourceClient},
		enc:        message.NewEncoder(opts.Out),
		dec:        message.NewDecoder(opts.In),
		registry:   registry,
		logger:     logger.With("client", opts.ID),
		abortDelay: delay,
		exit:       exit,
		sink:       metrics.Nop{},
	}
}

// Serve processes commands until the input closes or ctx is done. A closed
// input means the supervisor is gone.
func (w *Worker) Serve(ctx context.Context) error {
	defer w.shutdown()

	type decoded struct {
		msg message.Message
		err error
	}
	incoming := make(chan decoded)
	go func() {
		for {
			msg, err := w.dec.Decode()
			if errors.Is(err, message.ErrUnrecognized) {
				continue
			}
			select {
			case incoming <- decoded{msg: msg, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case in := <-incoming:
			if errors.Is(in.err, io.EOF) {
				w.logger.Debug("input closed")
				return nil
			}
			if in.err != nil {
				return in.err
			}
			cmd, ok := in.msg.(message.CommandMessage)
			if !ok {
				continue
			}
			w.handle(ctx, cmd.Command)
		}
	}
}

func (w *Worker) handle(ctx context.Context, cmd message.Command) {
	switch c := cmd.(type) {
	case message.InitializeClient:
		w.initialize(ctx, c)
	case message.ExecuteAction:
		w.execute(ctx, c)
	case message.Abort:
		w.abort()
	}
}

func (w *Worker) initialize(ctx context.Context, c message.InitializeClient) {
	var sink metrics.Sink = metrics.Nop{}
	if c.StatsD != nil && c.StatsD.Enabled() {
		statsd, err := metrics.NewStatsD(*c.StatsD)
		if err != nil {
			w.logger.Warn("statsd disabled", "error", err)
		} else {
			sink = statsd
		}
	}
	httpclient.Install(sink)

	var provider *tracing.Provider
	if c.Tracing != nil {
		p, err := tracing.Init(ctx, *c.Tracing, tracing.AsClient(w.src.ID))
		if err != nil {
			w.logger.Warn("tracing disabled", "error", err)
		} else {
			provider = p
		}
	}

	w.mu.Lock()
	w.sink = sink
	w.provider = provider
	w.state = stateIdle
	w.mu.Unlock()

	w.emit(message.NewEvent(w.src, message.EventReady))
}

func (w *Worker) execute(ctx context.Context, c message.ExecuteAction) {
	w.mu.Lock()
	if w.state != stateIdle {
		current := w.state
		w.mu.Unlock()
		ev := message.NewEvent(w.src, message.EventError)
		ev.Action = c.Action
		ev.Reason = "client is " + current.String()
		w.emit(ev)
		return
	}
	w.state = stateRunning
	actionCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	sink := w.sink
	tracer := w.provider.Tracer()
	w.mu.Unlock()

	working := message.NewEvent(w.src, message.EventWorking)
	working.Action = c.Action
	w.emit(working)

	a, err := w.registry.Resolve(c.Action)
	if err != nil {
		w.logger.Debug("resolve failed", "action", c.Action, "error", err)
		ev := message.NewEvent(w.src, message.EventError)
		ev.Action = c.Action
		ev.Reason = err.Error()
		w.emit(ev)
		w.becomeIdle()
		return
	}

	go func() {
		started := message.NewEvent(w.src, message.EventActionStarted)
		started.Action = c.Action
		w.emit(started)

		spanCtx, span := tracing.StartActionSpan(actionCtx, tracer, c.Action, w.src.ID, c.Trace)
		start := time.Now()
		err := a.Invoke(spanCtx, action.Config{Metrics: sink, Settings: c.Settings}).Wait(spanCtx)
		elapsed := time.Since(start)
		tracing.EndSpan(span, err)

		w.mu.Lock()
		if w.state != stateRunning {
			w.mu.Unlock()
			return
		}
		w.state = stateIdle
		w.cancel = nil
		w.mu.Unlock()
		cancel()

		if err == nil {
			sink.Timing("action.duration", elapsed)
			sink.Increment("actions.success")
			ev := message.NewEvent(w.src, message.EventActionFinished)
			ev.Action = c.Action
			ev.Elapsed = elapsed
			w.emit(ev)
		} else {
			sink.Increment("actions.error")
			ev := message.NewEvent(w.src, message.EventActionErrored)
			ev.Action = c.Action
			ev.Reason = err.Error()
			w.emit(ev)
		}
		w.emit(message.NewEvent(w.src, message.EventReady))
	}()
}

func (w *Worker) becomeIdle() {
	w.mu.Lock()
	if w.state == stateRunning {
		w.state = stateIdle
	}
	if w.cancel != nil {
		w.cancel()
		w.cancel = nil
	}
	w.mu.Unlock()
	w.emit(message.NewEvent(w.src, message.EventReady))
}

func (w *Worker) abort() {
	w.mu.Lock()
	if w.state != stateRunning {
		w.mu.Unlock()
		return
	}
	w.state = stateAborting
	cancel := w.cancel
	w.cancel = nil
	w.mu.Unlock()

	w.emit(message.NewEvent(w.src, message.EventActionAborted))
	if cancel != nil {
		cancel()
	}
	time.AfterFunc(w.abortDelay, func() {
		w.shutdown()
		w.exit(0)
	})
}

func (w *Worker) shutdown() {
	w.mu.Lock()
	sink, provider := w.sink, w.provider
	w.sink = metrics.Nop{}
	w.provider = nil
	w.mu.Unlock()

	if err := sink.Close(); err != nil {
		w.logger.Debug("close metrics", "error", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := provider.Shutdown(ctx); err != nil {
		w.logger.Debug("flush tracing", "error", err)
	}
}

func (w *Worker) emit(ev message.EventMessage) {
	if err := w.enc.Encode(ev); err != nil {
		w.logger.Debug("emit failed", "event", ev.Event, "error", err)
	}
}
