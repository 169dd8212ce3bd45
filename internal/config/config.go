package config

import (
	"fmt"
	"strings"
	"time"
)

const (
	DefaultIdleTimeout  = time.Minute
	DefaultAbortTimeout = 5 * time.Second
)

type Config struct {
	Phases       []PhaseConfig          `mapstructure:"phases"`
	Settings     map[string]interface{} `mapstructure:"settings"`
	StatsD       StatsDConfig           `mapstructure:"statsd"`
	Tracing      TracingConfig          `mapstructure:"tracing"`
	IdleTimeout  time.Duration          `mapstructure:"idle_timeout"`
	AbortTimeout time.Duration          `mapstructure:"abort_timeout"`
	ActionsDir   string                 `mapstructure:"actions_dir"`
	Thresholds   []string               `mapstructure:"thresholds"`
	JSONOutput   bool                   `mapstructure:"json_output"`
	Progress     bool                   `mapstructure:"progress"`
	LogLevel     string                 `mapstructure:"log_level"`
	LockFile     string                 `mapstructure:"lock_file"`
	ConfigFile   string                 `mapstructure:"-"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type PhaseConfig struct {
	Name         string           `mapstructure:"name"`
	Duration     time.Duration    `mapstructure:"duration"`
	Clients      int              `mapstructure:"clients"`
	ArrivalRate  time.Duration    `mapstructure:"arrival_rate"`
	ArrivalModel ArrivalModel     `mapstructure:"arrival_model"`
	Scenarios    []ScenarioConfig `mapstructure:"scenarios"`
}

type ScenarioConfig struct {
	Probability int    `mapstructure:"probability"`
	Action      string `mapstructure:"action"`
}

type StatsDConfig struct {
	Host       string            `mapstructure:"host"`
	Port       int               `mapstructure:"port"`
	Prefix     string            `mapstructure:"prefix"`
	Suffix     string            `mapstructure:"suffix"`
	GlobalTags map[string]string `mapstructure:"global_tags"`
}

// Enabled reports whether metrics should be shipped to a StatsD server.
func (s StatsDConfig) Enabled() bool {
	return strings.TrimSpace(s.Host) != ""
}

// TracingConfig is also sent to worker processes, hence the JSON tags.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint" json:"endpoint,omitempty"`
	Protocol    string  `mapstructure:"protocol" json:"protocol,omitempty"`
	ServiceName string  `mapstructure:"service_name" json:"service_name,omitempty"`
	SampleRate  float64 `mapstructure:"sample_rate" json:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure" json:"insecure,omitempty"`
	Propagate   *bool   `mapstructure:"propagate" json:"propagate,omitempty"`
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into
// outbound action requests. It defaults to Enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "invalid configuration"
	}
	return "invalid configuration: " + strings.Join(e.issues, "; ")
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if len(c.Phases) == 0 {
		issues = append(issues, "phases: at least one phase is required")
	}
	for i, p := range c.Phases {
		issues = append(issues, validatePhase(i, p)...)
	}
	if c.IdleTimeout < 0 {
		issues = append(issues, "idle_timeout must be >= 0")
	}
	if c.AbortTimeout < 0 {
		issues = append(issues, "abort_timeout must be >= 0")
	}
	if c.StatsD.Port < 0 || c.StatsD.Port > 65535 {
		issues = append(issues, fmt.Sprintf("statsd: port must be between 0 and 65535, got %d", c.StatsD.Port))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", c.Tracing.SampleRate))
	}
	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", c.Tracing.Protocol))
	}
	switch strings.ToLower(c.LogLevel) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log_level: must be debug, info, warn or error, got %q", c.LogLevel))
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validatePhase(idx int, p PhaseConfig) []string {
	var issues []string
	label := fmt.Sprintf("phases[%d]", idx)
	if p.Name != "" {
		label = fmt.Sprintf("phases[%d] (%s)", idx, p.Name)
	}

	if p.Duration <= 0 {
		issues = append(issues, label+": duration must be > 0")
	}
	if p.Clients < 1 {
		issues = append(issues, label+": clients must be >= 1")
	}
	if p.ArrivalRate < 0 {
		issues = append(issues, label+": arrival_rate must be >= 0")
	}
	switch p.ArrivalModel {
	case "", ArrivalModelUniform, ArrivalModelPoisson:
	default:
		issues = append(issues, fmt.Sprintf("%s: arrival_model must be uniform or poisson, got %q", label, p.ArrivalModel))
	}
	if len(p.Scenarios) == 0 {
		issues = append(issues, label+": at least one scenario is required")
	}
	for j, sc := range p.Scenarios {
		if sc.Probability <= 0 {
			issues = append(issues, fmt.Sprintf("%s.scenarios[%d]: probability must be >= 1", label, j))
		}
		if strings.TrimSpace(sc.Action) == "" {
			issues = append(issues, fmt.Sprintf("%s.scenarios[%d]: action is required", label, j))
		}
	}
	return issues
}
