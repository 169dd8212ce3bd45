// Package supervisortest provides in-memory worker processes for tests.
package supervisortest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/torosent/symphoner/internal/message"
	"github.com/torosent/symphoner/internal/supervisor"
)

var errExited = errors.New("process exited")

// Process is a fake worker. Tests drive it with Emit, Exit and Disconnect,
// or attach a Behavior that reacts to commands.
type Process struct {
	ID string

	mu           sync.Mutex
	sent         []message.Command
	messages     chan message.Message
	exited       chan supervisor.ExitStatus
	outputClosed bool
	hasExited    bool
	killed       bool
	inputClosed  bool
	exitOnClose  bool
	behavior     Behavior
}

// Behavior is called for every command sent to a process.
type Behavior func(p *Process, cmd message.Command)

func NewProcess(id string, behavior Behavior) *Process {
	return &Process{
		ID:       id,
		messages: make(chan message.Message, 256),
		exited:   make(chan supervisor.ExitStatus, 1),
		behavior: behavior,
	}
}

func (p *Process) Send(msg message.CommandMessage) error {
	p.mu.Lock()
	if p.hasExited || p.inputClosed {
		p.mu.Unlock()
		return errExited
	}
	p.sent = append(p.sent, msg.Command)
	behavior := p.behavior
	p.mu.Unlock()

	if behavior != nil {
		behavior(p, msg.Command)
	}
	return nil
}

func (p *Process) Messages() <-chan message.Message { return p.messages }

func (p *Process) Exited() <-chan supervisor.ExitStatus { return p.exited }

// CloseInput ends the command stream. The process exits if it was created
// with exit-on-close.
func (p *Process) CloseInput() error {
	p.mu.Lock()
	p.inputClosed = true
	exit := p.exitOnClose
	p.mu.Unlock()
	if exit {
		go p.Exit(supervisor.ExitStatus{})
	}
	return nil
}

func (p *Process) InputClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inputClosed
}

func (p *Process) Kill() error {
	p.mu.Lock()
	p.killed = true
	p.mu.Unlock()
	p.Exit(supervisor.ExitStatus{Code: -1, Signal: "SIGKILL"})
	return nil
}

// Emit sends an event as if written by the worker. It is dropped once the
// output is closed.
func (p *Process) Emit(ev message.Event, mutate ...func(*message.EventMessage)) {
	msg := message.NewEvent(message.Source{ID: p.ID, Type: message.SourceClient}, ev)
	for _, fn := range mutate {
		fn(&msg)
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.outputClosed {
		return
	}
	p.messages <- msg
}

// Disconnect closes the output without exiting.
func (p *Process) Disconnect() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.outputClosed {
		p.outputClosed = true
		close(p.messages)
	}
}

// Exit closes the output and reports status once.
func (p *Process) Exit(status supervisor.ExitStatus) {
	p.Disconnect()
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.hasExited {
		return
	}
	p.hasExited = true
	p.exited <- status
}

func (p *Process) Sent() []message.Command {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]message.Command(nil), p.sent...)
}

func (p *Process) Killed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}

// Launcher hands out fake processes.
type Launcher struct {
	Behavior Behavior
	// ExitOnClose makes processes exit when their input is closed, as real
	// workers do.
	ExitOnClose bool
	// Err makes every launch fail.
	Err error

	mu        sync.Mutex
	processes []*Process
}

func (l *Launcher) Launch(_ context.Context, id string) (supervisor.Process, error) {
	if l.Err != nil {
		return nil, l.Err
	}
	p := NewProcess(id, l.Behavior)
	p.exitOnClose = l.ExitOnClose
	l.mu.Lock()
	l.processes = append(l.processes, p)
	l.mu.Unlock()
	return p, nil
}

func (l *Launcher) Processes() []*Process {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]*Process(nil), l.processes...)
}

// Responsive behaves like a healthy worker whose actions take actionTime.
// Abort stops a running action and exits; an idle worker ignores it.
func Responsive(actionTime time.Duration) Behavior {
	var mu sync.Mutex
	cancels := make(map[*Process]chan struct{})

	return func(p *Process, cmd message.Command) {
		switch c := cmd.(type) {
		case message.InitializeClient:
			p.Emit(message.EventReady)
		case message.ExecuteAction:
			stop := make(chan struct{})
			mu.Lock()
			cancels[p] = stop
			mu.Unlock()

			setAction := func(ev *message.EventMessage) { ev.Action = c.Action }
			p.Emit(message.EventWorking, setAction)
			go func() {
				p.Emit(message.EventActionStarted, setAction)
				start := time.Now()
				select {
				case <-time.After(actionTime):
				case <-stop:
					return
				}
				mu.Lock()
				if cancels[p] != stop {
					mu.Unlock()
					return
				}
				delete(cancels, p)
				mu.Unlock()
				p.Emit(message.EventActionFinished, setAction, func(ev *message.EventMessage) {
					ev.Elapsed = time.Since(start)
				})
				p.Emit(message.EventReady)
			}()
		case message.Abort:
			mu.Lock()
			stop, running := cancels[p]
			delete(cancels, p)
			mu.Unlock()
			if running {
				close(stop)
				p.Emit(message.EventActionAborted)
				go p.Exit(supervisor.ExitStatus{})
			}
		}
	}
}

// Unresponsive ignores Abort so the supervisor has to kill the process.
func Unresponsive() Behavior {
	return func(p *Process, cmd message.Command) {
		if _, ok := cmd.(message.InitializeClient); ok {
			p.Emit(message.EventReady)
		}
	}
}
