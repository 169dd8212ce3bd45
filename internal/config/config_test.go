package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/symphoner/internal/config"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestLoadWithoutArgumentsRequestsHelp(t *testing.T) {
	_, err := config.NewLoader().Load([]string{})
	if !errors.Is(err, config.ErrHelpRequested) {
		t.Fatalf("Load() error = %v, want ErrHelpRequested", err)
	}
}

func TestLoadDefaults(t *testing.T) {
	cfg, err := config.NewLoader().Load([]string{"--action", "noop", "--duration", "10s"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.IdleTimeout != time.Minute {
		t.Errorf("IdleTimeout = %s, want 1m", cfg.IdleTimeout)
	}
	if cfg.AbortTimeout != 5*time.Second {
		t.Errorf("AbortTimeout = %s, want 5s", cfg.AbortTimeout)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel = %q, want info", cfg.LogLevel)
	}
	if cfg.StatsD.Enabled() {
		t.Errorf("StatsD enabled without host")
	}
	if len(cfg.Phases) != 1 {
		t.Fatalf("Phases len = %d, want 1", len(cfg.Phases))
	}
	p := cfg.Phases[0]
	if p.Clients != 1 || p.Duration != 10*time.Second || p.ArrivalRate != time.Second {
		t.Errorf("unexpected phase %+v", p)
	}
	if p.ArrivalModel != config.ArrivalModelUniform {
		t.Errorf("ArrivalModel = %q, want uniform", p.ArrivalModel)
	}
	if len(p.Scenarios) != 1 || p.Scenarios[0].Action != "noop" || p.Scenarios[0].Probability != 1 {
		t.Errorf("unexpected scenarios %+v", p.Scenarios)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileYAML(t *testing.T) {
	path := writeFile(t, "test.yaml", `
phases:
  - name: warmup
    duration: 30s
    clients: 2
    arrival_rate: 500
    scenarios:
      - probability: 80
        action: actions/browse.yaml
      - probability: 20
        action: actions/checkout.yaml
  - name: peak
    duration: 60000
    clients: 10
    arrival_rate: 100ms
    arrival_model: poisson
    scenarios:
      - distribution: 1
        action: noop
settings:
  base_url: http://localhost:8080
statsd:
  host: 127.0.0.1
  port: 9125
  prefix: shop.
  global_tags:
    env: staging
idle_timeout: 2m
abort_timeout: 1000
thresholds:
  - "action_duration:p95 < 500"
json_output: true
`)

	cfg, err := config.NewLoader().Load([]string{"--config", path})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Phases) != 2 {
		t.Fatalf("Phases len = %d, want 2", len(cfg.Phases))
	}
	warmup := cfg.Phases[0]
	if warmup.Name != "warmup" || warmup.Duration != 30*time.Second || warmup.Clients != 2 {
		t.Errorf("unexpected warmup %+v", warmup)
	}
	if warmup.ArrivalRate != 500*time.Millisecond {
		t.Errorf("ArrivalRate = %s, want 500ms", warmup.ArrivalRate)
	}
	if len(warmup.Scenarios) != 2 || warmup.Scenarios[0].Probability != 80 || warmup.Scenarios[1].Action != "actions/checkout.yaml" {
		t.Errorf("unexpected warmup scenarios %+v", warmup.Scenarios)
	}
	peak := cfg.Phases[1]
	if peak.Duration != time.Minute {
		t.Errorf("peak Duration = %s, want 1m", peak.Duration)
	}
	if peak.ArrivalModel != config.ArrivalModelPoisson {
		t.Errorf("peak ArrivalModel = %q, want poisson", peak.ArrivalModel)
	}
	if peak.Scenarios[0].Probability != 1 {
		t.Errorf("distribution alias not honoured: %+v", peak.Scenarios)
	}
	if cfg.Settings["base_url"] != "http://localhost:8080" {
		t.Errorf("Settings = %v", cfg.Settings)
	}
	if cfg.StatsD.Host != "127.0.0.1" || cfg.StatsD.Port != 9125 || cfg.StatsD.Prefix != "shop." {
		t.Errorf("unexpected statsd %+v", cfg.StatsD)
	}
	if cfg.StatsD.GlobalTags["env"] != "staging" {
		t.Errorf("GlobalTags = %v", cfg.StatsD.GlobalTags)
	}
	if cfg.IdleTimeout != 2*time.Minute || cfg.AbortTimeout != time.Second {
		t.Errorf("timeouts = %s/%s", cfg.IdleTimeout, cfg.AbortTimeout)
	}
	if len(cfg.Thresholds) != 1 || !cfg.JSONOutput {
		t.Errorf("unexpected output settings: %v %v", cfg.Thresholds, cfg.JSONOutput)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate() error = %v", err)
	}
}

func TestLoadConfigFileJSON(t *testing.T) {
	path := writeFile(t, "test.json", `{
		"phases": [{"duration": 1000, "clients": 1, "arrival_rate": 0, "scenarios": [{"probability": 1, "action": "noop"}]}],
		"tracing": {"endpoint": "localhost:4317", "insecure": true, "sample_rate": 0.5}
	}`)

	cfg, err := config.NewLoader().Load([]string{"--config", path, "--log-level", "DEBUG"})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Phases[0].Duration != time.Second {
		t.Errorf("Duration = %s, want 1s", cfg.Phases[0].Duration)
	}
	if !cfg.Tracing.Enabled() || !cfg.Tracing.Insecure || cfg.Tracing.SampleRate != 0.5 {
		t.Errorf("unexpected tracing %+v", cfg.Tracing)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestFlagsOverrideConfigFile(t *testing.T) {
	path := writeFile(t, "test.yaml", `
phases:
  - duration: 5s
    clients: 3
    scenarios:
      - probability: 1
        action: from-file
statsd:
  host: file-host
`)

	cfg, err := config.NewLoader().Load([]string{
		"--config", path,
		"--action", "a=3", "--action", "b",
		"--clients", "4",
		"--duration", "1m",
		"--statsd-host", "flag-host",
		"--statsd-tag", "team=perf",
		"--setting", "user=alice",
	})
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if len(cfg.Phases) != 1 {
		t.Fatalf("Phases len = %d, want 1", len(cfg.Phases))
	}
	scs := cfg.Phases[0].Scenarios
	if len(scs) != 2 || scs[0].Action != "a" || scs[0].Probability != 3 || scs[1].Action != "b" || scs[1].Probability != 1 {
		t.Errorf("unexpected scenarios %+v", scs)
	}
	if cfg.Phases[0].Clients != 4 || cfg.Phases[0].Duration != time.Minute {
		t.Errorf("unexpected phase %+v", cfg.Phases[0])
	}
	if cfg.StatsD.Host != "flag-host" || cfg.StatsD.GlobalTags["team"] != "perf" {
		t.Errorf("unexpected statsd %+v", cfg.StatsD)
	}
	if cfg.Settings["user"] != "alice" {
		t.Errorf("Settings = %v", cfg.Settings)
	}
}

func TestConfigValidationErrors(t *testing.T) {
	cfg := config.Config{
		Phases: []config.PhaseConfig{
			{Name: "bad", Duration: 0, Clients: 0, ArrivalRate: -time.Second, ArrivalModel: "burst"},
			{Duration: time.Second, Clients: 1, Scenarios: []config.ScenarioConfig{{Probability: 0, Action: ""}}},
		},
		IdleTimeout: -1,
		StatsD:      config.StatsDConfig{Port: 70000},
		Tracing:     config.TracingConfig{SampleRate: 2, Protocol: "udp"},
		LogLevel:    "verbose",
	}

	err := cfg.Validate()
	if err == nil {
		t.Fatal("expected validation error")
	}
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %T", err)
	}

	want := []string{
		"phases[0] (bad): duration must be > 0",
		"phases[0] (bad): clients must be >= 1",
		"phases[0] (bad): arrival_rate must be >= 0",
		"arrival_model must be uniform or poisson",
		"phases[0] (bad): at least one scenario is required",
		"phases[1].scenarios[0]: probability must be >= 1",
		"phases[1].scenarios[0]: action is required",
		"idle_timeout must be >= 0",
		"statsd: port",
		"tracing: sample_rate",
		"tracing: protocol",
		"log_level",
	}
	joined := strings.Join(verr.Issues(), "\n")
	for _, w := range want {
		if !strings.Contains(joined, w) {
			t.Errorf("missing issue %q in:\n%s", w, joined)
		}
	}
}

func TestValidateRequiresPhases(t *testing.T) {
	err := config.Config{}.Validate()
	if err == nil || !strings.Contains(err.Error(), "at least one phase") {
		t.Fatalf("expected missing phases error, got %v", err)
	}
}
