package message

import (
	"github.com/torosent/symphoner/internal/config"
	"github.com/torosent/symphoner/internal/metrics"
)

// CommandName identifies a Command variant on the wire.
type CommandName string

const (
	CommandInitializeClient CommandName = "InitializeClient"
	CommandExecuteAction    CommandName = "ExecuteAction"
	CommandAbort            CommandName = "Abort"
)

// Command is one of InitializeClient, ExecuteAction or Abort.
type Command interface {
	Name() CommandName
	command()
}

// InitializeClient configures a fresh worker. A nil StatsD disables metrics
// emission in the worker.
type InitializeClient struct {
	StatsD  *metrics.StatsDConfig `json:"statsd,omitempty"`
	Tracing *config.TracingConfig `json:"tracing,omitempty"`
}

// ExecuteAction asks an idle worker to run one action. Trace holds the W3C
// trace context of the phase that sent it.
type ExecuteAction struct {
	Action   string                 `json:"action"`
	Settings map[string]interface{} `json:"settings,omitempty"`
	Trace    map[string]string      `json:"trace,omitempty"`
}

// Abort asks a running worker to stop its action and exit.
type Abort struct{}

func (InitializeClient) Name() CommandName { return CommandInitializeClient }
func (ExecuteAction) Name() CommandName    { return CommandExecuteAction }
func (Abort) Name() CommandName            { return CommandAbort }

func (InitializeClient) command() {}
func (ExecuteAction) command()    {}
func (Abort) command()            {}
