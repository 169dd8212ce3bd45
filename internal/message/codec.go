package message

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/tidwall/gjson"

	"github.com/torosent/symphoner/internal/config"
	"github.com/torosent/symphoner/internal/metrics"
)

const maxLineBytes = 1 << 20

// wireCommand is the flattened JSON form of every Command variant.
type wireCommand struct {
	Name     CommandName            `json:"name"`
	StatsD   *metrics.StatsDConfig  `json:"statsd,omitempty"`
	Tracing  *config.TracingConfig  `json:"tracing,omitempty"`
	Action   string                 `json:"action,omitempty"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Trace    map[string]string      `json:"trace,omitempty"`
}

type wireCommandMessage struct {
	Header
	Command wireCommand `json:"command"`
}

// MarshalJSON nests the command under a "command" key tagged by name.
func (c CommandMessage) MarshalJSON() ([]byte, error) {
	wire := wireCommandMessage{Header: c.Header}
	switch cmd := c.Command.(type) {
	case InitializeClient:
		wire.Command = wireCommand{Name: CommandInitializeClient, StatsD: cmd.StatsD, Tracing: cmd.Tracing}
	case ExecuteAction:
		wire.Command = wireCommand{Name: CommandExecuteAction, Action: cmd.Action, Settings: cmd.Settings, Trace: cmd.Trace}
	case Abort:
		wire.Command = wireCommand{Name: CommandAbort}
	default:
		return nil, fmt.Errorf("marshal command %T: %w", c.Command, ErrUnrecognized)
	}
	return json.Marshal(wire)
}

// Unmarshal decodes a single JSON document into an EventMessage or a
// CommandMessage. Anything else yields ErrUnrecognized.
func Unmarshal(data []byte) (Message, error) {
	if !gjson.ValidBytes(data) {
		return nil, ErrUnrecognized
	}
	switch Type(gjson.GetBytes(data, "type").String()) {
	case TypeEvent:
		var ev EventMessage
		if err := json.Unmarshal(data, &ev); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}
		if !ev.Event.Valid() {
			return nil, ErrUnrecognized
		}
		return ev, nil
	case TypeCommand:
		var wire wireCommandMessage
		if err := json.Unmarshal(data, &wire); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnrecognized, err)
		}
		msg := CommandMessage{Header: wire.Header}
		switch CommandName(gjson.GetBytes(data, "command.name").String()) {
		case CommandInitializeClient:
			msg.Command = InitializeClient{StatsD: wire.Command.StatsD, Tracing: wire.Command.Tracing}
		case CommandExecuteAction:
			msg.Command = ExecuteAction{Action: wire.Command.Action, Settings: wire.Command.Settings, Trace: wire.Command.Trace}
		case CommandAbort:
			msg.Command = Abort{}
		default:
			return nil, ErrUnrecognized
		}
		return msg, nil
	default:
		return nil, ErrUnrecognized
	}
}

// Encoder writes one message per line. It is safe for concurrent use.
type Encoder struct {
	mu sync.Mutex
	w  io.Writer
}

func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

func (e *Encoder) Encode(m Message) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()
	_, err = e.w.Write(data)
	return err
}

// Decoder reads messages written by an Encoder.
type Decoder struct {
	scanner *bufio.Scanner
}

func NewDecoder(r io.Reader) *Decoder {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &Decoder{scanner: scanner}
}

// Decode returns the next message. Lines that are not messages return
// ErrUnrecognized and may be skipped; io.EOF marks the end of the stream.
func (d *Decoder) Decode() (Message, error) {
	for d.scanner.Scan() {
		line := d.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		return Unmarshal(line)
	}
	if err := d.scanner.Err(); err != nil {
		return nil, err
	}
	return nil, io.EOF
}
