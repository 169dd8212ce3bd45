// Package supervisor watches one worker process on behalf of the pool.
//
// A Supervisor forwards commands to its process, re-publishes the worker's
// events on the bus under its own identity and enforces two timeouts: an idle
// timeout after which the worker is aborted, and an abort timeout after which
// an aborted worker is killed.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/torosent/symphoner/internal/bus"
	"github.com/torosent/symphoner/internal/message"
)

const (
	DefaultIdleTimeout  = time.Minute
	DefaultAbortTimeout = 5 * time.Second

	// disconnectGrace is how long a process may linger after closing its
	// output before it is treated as disconnected rather than exited.
	disconnectGrace = 250 * time.Millisecond
)

var ErrClosed = errors.New("supervisor closed")

type State int

const (
	StateInitializing State = iota
	StateIdle
	StateRunning
	StateAborting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateInitializing:
		return "initializing"
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateAborting:
		return "aborting"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// ExitStatus describes how a process terminated.
type ExitStatus struct {
	Code   int
	Signal string
}

// Process is a launched worker.
type Process interface {
	Send(msg message.CommandMessage) error
	// Messages is closed when the process output ends.
	Messages() <-chan message.Message
	// Exited delivers one status when the process terminates.
	Exited() <-chan ExitStatus
	// CloseInput signals end of commands. Workers exit when their input ends.
	CloseInput() error
	Kill() error
}

type Launcher interface {
	Launch(ctx context.Context, id string) (Process, error)
}

type LauncherFunc func(ctx context.Context, id string) (Process, error)

func (f LauncherFunc) Launch(ctx context.Context, id string) (Process, error) {
	return f(ctx, id)
}

type Options struct {
	// ID names the supervisor and its worker. A random one is used when
	// empty.
	ID       string
	Bus      *bus.Bus
	Launcher Launcher
	Init     message.InitializeClient
	// IdleTimeout defaults to DefaultIdleTimeout.
	IdleTimeout time.Duration
	// AbortTimeout defaults to DefaultAbortTimeout.
	AbortTimeout time.Duration
	Logger       *slog.Logger
}

type Supervisor struct {
	src          message.Source
	bus          *bus.Bus
	proc         Process
	logger       *slog.Logger
	idleTimeout  time.Duration
	abortTimeout time.Duration

	mu         sync.Mutex
	state      State
	idleTimer  *time.Timer
	abortTimer *time.Timer
	aborting   bool
	done       chan struct{}
}

// New launches a worker, initializes it and starts watching it.
func New(ctx context.Context, opts Options) (*Supervisor, error) {
	if opts.Bus == nil {
		return nil, errors.New("supervisor: bus is required")
	}
	if opts.Launcher == nil {
		return nil, errors.New("supervisor: launcher is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	idle := opts.IdleTimeout
	if idle <= 0 {
		idle = DefaultIdleTimeout
	}
	abort := opts.AbortTimeout
	if abort <= 0 {
		abort = DefaultAbortTimeout
	}

	id := opts.ID
	if id == "" {
		id = uuid.NewString()
	}
	proc, err := opts.Launcher.Launch(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("launch worker: %w", err)
	}

	s := &Supervisor{
		src:          message.Source{ID: id, Type: message.SourceSupervisor},
		bus:          opts.Bus,
		proc:         proc,
		logger:       logger.With("supervisor", id),
		idleTimeout:  idle,
		abortTimeout: abort,
		done:         make(chan struct{}),
	}

	if err := proc.Send(message.NewCommand(s.src, opts.Init)); err != nil {
		_ = proc.Kill()
		return nil, fmt.Errorf("initialize worker: %w", err)
	}

	s.mu.Lock()
	s.idleTimer = time.AfterFunc(idle, s.onIdleTimeout)
	s.mu.Unlock()

	go s.watch()
	return s, nil
}

func (s *Supervisor) Source() message.Source { return s.src }

func (s *Supervisor) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Done is closed once the supervisor has closed.
func (s *Supervisor) Done() <-chan struct{} { return s.done }

// Send forwards cmd to the worker.
func (s *Supervisor) Send(cmd message.Command) error {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}
	return s.proc.Send(message.NewCommand(s.src, cmd))
}

// Abort asks the worker to stop, closes its input and kills it if it has not
// exited within the abort timeout. It returns once the supervisor is closed. Calling it again,
// or after close, only waits.
func (s *Supervisor) Abort() {
	s.mu.Lock()
	if s.state == StateClosed || s.aborting {
		s.mu.Unlock()
		<-s.done
		return
	}
	s.aborting = true
	s.state = StateAborting
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	s.abortTimer = time.AfterFunc(s.abortTimeout, s.kill)
	s.mu.Unlock()

	if err := s.proc.Send(message.NewCommand(s.src, message.Abort{})); err != nil {
		s.logger.Debug("send abort", "error", err)
	}
	// An idle worker ignores Abort and leaves once its input ends.
	if err := s.proc.CloseInput(); err != nil {
		s.logger.Debug("close worker input", "error", err)
	}
	<-s.done
}

func (s *Supervisor) onIdleTimeout() {
	s.logger.Warn("worker idle timeout, aborting", "timeout", s.idleTimeout)
	s.Abort()
}

func (s *Supervisor) kill() {
	s.mu.Lock()
	closed := s.state == StateClosed
	s.mu.Unlock()
	if closed {
		return
	}

	s.logger.Warn("worker did not exit after abort, killing", "timeout", s.abortTimeout)
	if err := s.proc.Kill(); err != nil {
		s.logger.Debug("kill worker", "error", err)
	}
	s.close(message.EventExited, ExitStatus{Code: -1, Signal: "SIGKILL"})
}

func (s *Supervisor) watch() {
	msgs := s.proc.Messages()
	exited := s.proc.Exited()
	var grace <-chan time.Time

	for {
		select {
		case <-s.done:
			return
		case m, ok := <-msgs:
			if !ok {
				msgs = nil
				grace = time.After(disconnectGrace)
				continue
			}
			s.handle(m)
		case status := <-exited:
			s.drain(msgs)
			s.close(message.EventExited, status)
			return
		case <-grace:
			// Only the abort timer kills. A worker that drops its output
			// has left on its own.
			s.logger.Debug("worker output closed without exit")
			s.close(message.EventDisconnected, ExitStatus{})
			return
		}
	}
}

// drain delivers messages already buffered before the process exited.
func (s *Supervisor) drain(msgs <-chan message.Message) {
	if msgs == nil {
		return
	}
	for {
		select {
		case m, ok := <-msgs:
			if !ok {
				return
			}
			s.handle(m)
		default:
			return
		}
	}
}

func (s *Supervisor) handle(m message.Message) {
	ev, ok := m.(message.EventMessage)
	if !ok {
		return
	}

	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	switch ev.Event {
	case message.EventReady:
		if !s.aborting {
			s.state = StateIdle
		}
		s.rearmLocked()
	case message.EventWorking:
		if !s.aborting {
			s.state = StateRunning
		}
	case message.EventActionFinished, message.EventActionErrored:
		s.rearmLocked()
	}
	s.mu.Unlock()

	s.bus.Publish(ev.WithSource(s.src))
}

func (s *Supervisor) rearmLocked() {
	if s.aborting || s.idleTimer == nil {
		return
	}
	s.idleTimer.Reset(s.idleTimeout)
}

// close publishes the terminal event once and makes the supervisor inert.
func (s *Supervisor) close(event message.Event, status ExitStatus) {
	s.mu.Lock()
	if s.state == StateClosed {
		s.mu.Unlock()
		return
	}
	s.state = StateClosed
	if s.idleTimer != nil {
		s.idleTimer.Stop()
	}
	if s.abortTimer != nil {
		s.abortTimer.Stop()
	}
	s.mu.Unlock()

	ev := message.NewEvent(s.src, event)
	ev.ExitCode = status.Code
	ev.Signal = status.Signal
	s.bus.Publish(ev)
	close(s.done)
}
