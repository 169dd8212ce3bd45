package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (l Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	return l.FromFlags(flagSet)
}

// FromFlags builds a Config from an already parsed flag set, reading the
// file named by --config first.
func (Loader) FromFlags(flagSet *pflag.FlagSet) (*Config, error) {
	configPath := ""
	if f := flagSet.Lookup("config"); f != nil {
		configPath = strings.TrimSpace(f.Value.String())
	}

	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := &Config{
		Settings:     map[string]interface{}{},
		IdleTimeout:  DefaultIdleTimeout,
		AbortTimeout: DefaultAbortTimeout,
		LogLevel:     "info",
		Progress:     true,
		Tracing:      TracingConfig{SampleRate: 1},
		ConfigFile:   configPath,
	}

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	for i := range cfg.Phases {
		if cfg.Phases[i].ArrivalModel == "" {
			cfg.Phases[i].ArrivalModel = ArrivalModelUniform
		}
	}
	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "phases"); ok {
		phases, err := parsePhases(raw)
		if err != nil {
			return fmt.Errorf("phases: %w", err)
		}
		cfg.Phases = phases
	}

	if raw, ok := lookupSetting(settings, "settings"); ok && raw != nil {
		m, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("settings: %w", err)
		}
		cfg.Settings = m
	}

	if raw, ok := lookupSetting(settings, "statsd"); ok {
		statsd, err := parseStatsD(raw)
		if err != nil {
			return fmt.Errorf("statsd: %w", err)
		}
		cfg.StatsD = statsd
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		tracing, err := parseTracing(raw)
		if err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
		cfg.Tracing = tracing
	}

	if raw, ok := lookupSetting(settings, "idletimeout", "idle_timeout", "idle-timeout", "timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("idle_timeout: %w", err)
		}
		cfg.IdleTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "aborttimeout", "abort_timeout", "abort-timeout"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("abort_timeout: %w", err)
		}
		cfg.AbortTimeout = dur
	}

	if raw, ok := lookupSetting(settings, "actionsdir", "actions_dir", "actions-dir"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("actions_dir: %w", err)
		}
		cfg.ActionsDir = strings.TrimSpace(val)
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		val, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = val
	}

	if raw, ok := lookupSetting(settings, "jsonoutput", "json_output", "json-output"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("json_output: %w", err)
		}
		cfg.JSONOutput = val
	}

	if raw, ok := lookupSetting(settings, "progress"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("progress: %w", err)
		}
		cfg.Progress = val
	}

	if raw, ok := lookupSetting(settings, "loglevel", "log_level", "log-level"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
		if val != "" {
			cfg.LogLevel = val
		}
	}

	if raw, ok := lookupSetting(settings, "lockfile", "lock_file", "lock-file"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("lock_file: %w", err)
		}
		cfg.LockFile = strings.TrimSpace(val)
	}

	return nil
}

func parsePhases(value interface{}) ([]PhaseConfig, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	phases := make([]PhaseConfig, 0, len(items))
	for i, item := range items {
		settings, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		phase, err := buildPhase(settings)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		phases = append(phases, phase)
	}
	return phases, nil
}

func buildPhase(settings map[string]interface{}) (PhaseConfig, error) {
	var phase PhaseConfig
	if raw, ok := lookupSetting(settings, "name"); ok {
		val, err := asString(raw)
		if err != nil {
			return PhaseConfig{}, fmt.Errorf("name: %w", err)
		}
		phase.Name = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "duration"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return PhaseConfig{}, fmt.Errorf("duration: %w", err)
		}
		phase.Duration = dur
	}
	if raw, ok := lookupSetting(settings, "clients"); ok {
		val, err := asWholeInt(raw)
		if err != nil {
			return PhaseConfig{}, fmt.Errorf("clients: %w", err)
		}
		phase.Clients = val
	}
	if raw, ok := lookupSetting(settings, "arrivalrate", "arrival_rate", "arrival-rate"); ok {
		dur, err := asDuration(raw)
		if err != nil {
			return PhaseConfig{}, fmt.Errorf("arrival_rate: %w", err)
		}
		phase.ArrivalRate = dur
	}
	if raw, ok := lookupSetting(settings, "arrivalmodel", "arrival_model", "arrival-model"); ok {
		val, err := asString(raw)
		if err != nil {
			return PhaseConfig{}, fmt.Errorf("arrival_model: %w", err)
		}
		phase.ArrivalModel = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if raw, ok := lookupSetting(settings, "scenarios"); ok {
		scenarios, err := parseScenarios(raw)
		if err != nil {
			return PhaseConfig{}, fmt.Errorf("scenarios: %w", err)
		}
		phase.Scenarios = scenarios
	}
	return phase, nil
}

func parseScenarios(value interface{}) ([]ScenarioConfig, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	scenarios := make([]ScenarioConfig, 0, len(items))
	for i, item := range items {
		settings, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		var sc ScenarioConfig
		if raw, ok := lookupSetting(settings, "probability", "distribution", "weight"); ok {
			val, err := asWholeInt(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: probability: %w", i, err)
			}
			sc.Probability = val
		}
		if raw, ok := lookupSetting(settings, "action"); ok {
			val, err := asString(raw)
			if err != nil {
				return nil, fmt.Errorf("index %d: action: %w", i, err)
			}
			sc.Action = strings.TrimSpace(val)
		}
		scenarios = append(scenarios, sc)
	}
	return scenarios, nil
}

func parseStatsD(value interface{}) (StatsDConfig, error) {
	if value == nil {
		return StatsDConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return StatsDConfig{}, err
	}

	var statsd StatsDConfig
	if raw, ok := lookupSetting(settings, "host"); ok {
		val, err := asString(raw)
		if err != nil {
			return StatsDConfig{}, fmt.Errorf("host: %w", err)
		}
		statsd.Host = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "port"); ok {
		val, err := asInt(raw)
		if err != nil {
			return StatsDConfig{}, fmt.Errorf("port: %w", err)
		}
		statsd.Port = val
	}
	if raw, ok := lookupSetting(settings, "prefix"); ok {
		val, err := asString(raw)
		if err != nil {
			return StatsDConfig{}, fmt.Errorf("prefix: %w", err)
		}
		statsd.Prefix = val
	}
	if raw, ok := lookupSetting(settings, "suffix"); ok {
		val, err := asString(raw)
		if err != nil {
			return StatsDConfig{}, fmt.Errorf("suffix: %w", err)
		}
		statsd.Suffix = val
	}
	if raw, ok := lookupSetting(settings, "globaltags", "global_tags", "global-tags"); ok {
		val, err := asStringMap(raw)
		if err != nil {
			return StatsDConfig{}, fmt.Errorf("global_tags: %w", err)
		}
		statsd.GlobalTags = val
	}
	return statsd, nil
}

func parseTracing(value interface{}) (TracingConfig, error) {
	if value == nil {
		return TracingConfig{}, nil
	}
	settings, err := toStringKeyMap(value)
	if err != nil {
		return TracingConfig{}, err
	}

	tracing := TracingConfig{SampleRate: 1}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("endpoint: %w", err)
		}
		tracing.Endpoint = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("protocol: %w", err)
		}
		tracing.Protocol = strings.ToLower(strings.TrimSpace(val))
	}
	if raw, ok := lookupSetting(settings, "servicename", "service_name", "service-name"); ok {
		val, err := asString(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("service_name: %w", err)
		}
		tracing.ServiceName = strings.TrimSpace(val)
	}
	if raw, ok := lookupSetting(settings, "samplerate", "sample_rate", "sample-rate"); ok {
		val, err := asFloat64(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("sample_rate: %w", err)
		}
		tracing.SampleRate = val
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("insecure: %w", err)
		}
		tracing.Insecure = val
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return TracingConfig{}, fmt.Errorf("propagate: %w", err)
		}
		tracing.Propagate = &val
	}
	return tracing, nil
}
