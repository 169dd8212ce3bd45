// Package message defines the closed set of messages exchanged between the
// orchestrator components and the worker processes.
//
// Every message starts with a [Header]. Two concrete kinds exist:
// [EventMessage], which reports something that happened, and
// [CommandMessage], which asks a worker to do something. Both travel over the
// in-process bus and across the process boundary as JSON lines.
package message

import (
	"errors"
	"time"
)

// ErrUnrecognized is returned when a payload does not match any known message shape.
var ErrUnrecognized = errors.New("unrecognized message")

// Type discriminates the two message kinds.
type Type string

const (
	TypeEvent   Type = "event"
	TypeCommand Type = "command"
)

// SourceType names the kind of component that emitted a message.
type SourceType string

const (
	SourceClient     SourceType = "client"
	SourceSupervisor SourceType = "supervisor"
	SourcePool       SourceType = "pool"
	SourcePhase      SourceType = "phase"
	SourceRunner     SourceType = "runner"
)

// Source is a plain identity tuple. It never refers to a live component.
type Source struct {
	ID   string     `json:"id"`
	Type SourceType `json:"type"`
}

func (s Source) String() string {
	return string(s.Type) + "#" + s.ID
}

// Header is shared by every message.
type Header struct {
	Timestamp time.Time `json:"timestamp"`
	Type      Type      `json:"type"`
	Source    Source    `json:"source"`
}

// Head returns the header itself so embedding types satisfy Message.
func (h Header) Head() Header { return h }

// Message is implemented by EventMessage and CommandMessage only.
type Message interface {
	Head() Header
	sealed()
}

// Event is a tag from the closed event vocabulary.
type Event string

const (
	EventReady          Event = "Client:Ready"
	EventWorking        Event = "Client:Working"
	EventActionStarted  Event = "Client:ActionStarted"
	EventActionFinished Event = "Client:ActionFinished"
	EventActionAborted  Event = "Client:ActionAborted"
	EventActionErrored  Event = "Client:ActionErrored"
	EventError          Event = "Client:Error"
	EventExited         Event = "Client:Exited"
	EventDisconnected   Event = "Client:Disconnected"
	EventPhaseStarted   Event = "Phase:Started"
	EventPhaseEnded     Event = "Phase:Ended"
)

var knownEvents = map[Event]struct{}{
	EventReady:          {},
	EventWorking:        {},
	EventActionStarted:  {},
	EventActionFinished: {},
	EventActionAborted:  {},
	EventActionErrored:  {},
	EventError:          {},
	EventExited:         {},
	EventDisconnected:   {},
	EventPhaseStarted:   {},
	EventPhaseEnded:     {},
}

// Valid reports whether e belongs to the vocabulary.
func (e Event) Valid() bool {
	_, ok := knownEvents[e]
	return ok
}

// EventMessage reports a lifecycle event. Only the fields relevant to the
// event are populated.
type EventMessage struct {
	Header
	Event    Event         `json:"event"`
	Action   string        `json:"action,omitempty"`
	Phase    string        `json:"phase,omitempty"`
	Reason   string        `json:"reason,omitempty"`
	Elapsed  time.Duration `json:"elapsed,omitempty"`
	ExitCode int           `json:"exit_code,omitempty"`
	Signal   string        `json:"signal,omitempty"`
}

func (EventMessage) sealed() {}

// NewEvent stamps a new event from src.
func NewEvent(src Source, ev Event) EventMessage {
	return EventMessage{
		Header: Header{Timestamp: time.Now(), Type: TypeEvent, Source: src},
		Event:  ev,
	}
}

// WithSource returns a copy of e attributed to src.
func (e EventMessage) WithSource(src Source) EventMessage {
	e.Source = src
	return e
}

// CommandMessage carries one Command to a worker.
type CommandMessage struct {
	Header
	Command Command `json:"-"`
}

func (CommandMessage) sealed() {}

// NewCommand stamps a new command from src.
func NewCommand(src Source, cmd Command) CommandMessage {
	return CommandMessage{
		Header:  Header{Timestamp: time.Now(), Type: TypeCommand, Source: src},
		Command: cmd,
	}
}
