package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func TestAsString(t *testing.T) {
	tests := []struct {
		input interface{}
		want  string
	}{
		{"hello", "hello"},
		{123, "123"},
		{true, "true"},
		{nil, ""},
		{[]byte("bytes"), "bytes"},
	}

	for _, tt := range tests {
		got, err := asString(tt.input)
		if err != nil {
			t.Errorf("asString(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asString(%v) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestAsInt(t *testing.T) {
	tests := []struct {
		input interface{}
		want  int
	}{
		{123, 123},
		{"456", 456},
		{int64(789), 789},
		{float64(10.0), 10},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asInt(tt.input)
		if err != nil {
			t.Errorf("asInt(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asInt(%v) = %d, want %d", tt.input, got, tt.want)
		}
	}
}

func TestAsBool(t *testing.T) {
	tests := []struct {
		input interface{}
		want  bool
	}{
		{true, true},
		{"true", true},
		{"1", true},
		{false, false},
		{"false", false},
		{"0", false},
		{nil, false},
	}

	for _, tt := range tests {
		got, err := asBool(tt.input)
		if err != nil {
			t.Errorf("asBool(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asBool(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestAsDuration(t *testing.T) {
	tests := []struct {
		input interface{}
		want  time.Duration
	}{
		{time.Second, time.Second},
		{"1m", time.Minute},
		{"250", 250 * time.Millisecond},
		{10, 10 * time.Millisecond}, // bare numbers are milliseconds
		{float64(1.5), 1500 * time.Microsecond},
		{nil, 0},
	}

	for _, tt := range tests {
		got, err := asDuration(tt.input)
		if err != nil {
			t.Errorf("asDuration(%v) error = %v", tt.input, err)
		}
		if got != tt.want {
			t.Errorf("asDuration(%v) = %v, want %v", tt.input, got, tt.want)
		}
	}
}

func TestApplyConfigSettings(t *testing.T) {
	cfg := &Config{}
	settings := map[string]interface{}{
		"phases": []interface{}{
			map[string]interface{}{
				"duration": "2s",
				"clients":  5,
				"scenarios": []interface{}{
					map[string]interface{}{"probability": 2, "action": "noop"},
				},
			},
		},
		"abort_timeout": "3s",
		"lock_file":     " /tmp/symphoner.lock ",
	}

	if err := applyConfigSettings(cfg, settings); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if len(cfg.Phases) != 1 || cfg.Phases[0].Clients != 5 || cfg.Phases[0].Duration != 2*time.Second {
		t.Errorf("unexpected phases %+v", cfg.Phases)
	}
	if cfg.AbortTimeout != 3*time.Second {
		t.Errorf("AbortTimeout = %s, want 3s", cfg.AbortTimeout)
	}
	if cfg.LockFile != "/tmp/symphoner.lock" {
		t.Errorf("LockFile = %q", cfg.LockFile)
	}
}

func TestApplyConfigSettingsRejectsFractionalCounts(t *testing.T) {
	weighted := map[string]interface{}{
		"duration":  "1s",
		"clients":   1,
		"scenarios": []interface{}{map[string]interface{}{"probability": 1.9, "action": "noop"}},
	}
	crowd := map[string]interface{}{"duration": "1s", "clients": 2.5}

	tests := []struct {
		name  string
		phase map[string]interface{}
		want  string
	}{
		{"probability", weighted, "probability"},
		{"clients", crowd, "clients"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{}
			err := applyConfigSettings(cfg, map[string]interface{}{"phases": []interface{}{tt.phase}})
			if err == nil {
				t.Fatal("expected error for fractional value")
			}
			if !strings.Contains(err.Error(), tt.want) || !strings.Contains(err.Error(), "not a whole number") {
				t.Errorf("error = %v", err)
			}
		})
	}

	cfg := &Config{}
	whole := map[string]interface{}{
		"duration":  "1s",
		"clients":   float64(3),
		"scenarios": []interface{}{map[string]interface{}{"probability": float64(2), "action": "noop"}},
	}
	if err := applyConfigSettings(cfg, map[string]interface{}{"phases": []interface{}{whole}}); err != nil {
		t.Fatalf("applyConfigSettings() error = %v", err)
	}
	if cfg.Phases[0].Clients != 3 || cfg.Phases[0].Scenarios[0].Probability != 2 {
		t.Errorf("unexpected phase %+v", cfg.Phases[0])
	}
}

func TestApplyConfigSettingsRejectsBadPhases(t *testing.T) {
	cfg := &Config{}
	err := applyConfigSettings(cfg, map[string]interface{}{"phases": "not-a-list"})
	if err == nil {
		t.Fatal("expected error for non-list phases")
	}
}

func TestApplyFlagOverrides(t *testing.T) {
	cfg := &Config{IdleTimeout: time.Minute}
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)

	if err := fs.Parse([]string{"--idle-timeout", "10s", "--progress=false", "--threshold", "actions:count > 1"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if err := applyFlagOverrides(cfg, fs); err != nil {
		t.Fatalf("applyFlagOverrides() error = %v", err)
	}
	if cfg.IdleTimeout != 10*time.Second {
		t.Errorf("IdleTimeout = %s, want 10s", cfg.IdleTimeout)
	}
	if cfg.Progress {
		t.Errorf("Progress = true, want false")
	}
	if len(cfg.Thresholds) != 1 {
		t.Errorf("Thresholds = %v", cfg.Thresholds)
	}
	if len(cfg.Phases) != 0 {
		t.Errorf("phases should not be created without --action, got %+v", cfg.Phases)
	}
}

func TestPhaseFromFlagsRejectsBadWeight(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	configureFlags(fs)
	if err := fs.Parse([]string{"--action", "noop=heavy"}); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if _, err := phaseFromFlags(fs); err == nil {
		t.Fatal("expected weight parse error")
	}
}
