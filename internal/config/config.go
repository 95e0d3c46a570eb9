// Package config loads the YAML-backed runtime configuration for the
// message bus, tool manager, coordinator, and persona subsystems.
package config

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level runtime configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Bus         BusConfig         `yaml:"bus"`
	Tools       ToolsConfig       `yaml:"tools"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
	Personas    []PersonaConfig   `yaml:"personas"`
}

// LoggingConfig configures the slog-based logger in internal/telemetry.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// BusConfig configures the a2a message bus.
type BusConfig struct {
	// QueueCapacity bounds the pending-message heap before Send starts
	// dropping lowest-priority messages.
	QueueCapacity int `yaml:"queue_capacity"`

	// DefaultReplyTimeout is used by RequestReply callers that don't
	// specify their own timeout.
	DefaultReplyTimeout time.Duration `yaml:"default_reply_timeout"`
}

// ToolsConfig configures the tool manager.
type ToolsConfig struct {
	// DefaultTimeout bounds a single tool call when the tool descriptor
	// doesn't set its own.
	DefaultTimeout time.Duration `yaml:"default_timeout"`

	// Breaker configures the default circuit breaker thresholds applied
	// to every loaded tool unless overridden per-tool.
	Breaker BreakerConfig `yaml:"breaker"`

	// Descriptors lists the tools to load at startup, keyed by name.
	Descriptors []ToolDescriptorConfig `yaml:"descriptors"`
}

// BreakerConfig mirrors tools.BreakerConfig in YAML form.
type BreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	OpenTimeout      time.Duration `yaml:"open_timeout"`
}

// ToolDescriptorConfig is the on-disk shape of a tool to load; the
// wiring layer translates it into tools.Descriptor.
type ToolDescriptorConfig struct {
	Name    string         `yaml:"name"`
	Kind    string         `yaml:"kind"`
	Command string         `yaml:"command"`
	Args    []string       `yaml:"args"`
	URL     string         `yaml:"url"`
	Timeout time.Duration  `yaml:"timeout"`
	Env     map[string]string `yaml:"env"`
}

// CoordinatorConfig configures the plan executor and its LLM feedback client.
type CoordinatorConfig struct {
	Provider GenkitProviderConfig `yaml:"provider"`

	// MaxReplanRounds bounds how many times RunTasksWithLLMFeedback will
	// call the re-planner before giving up on remaining tasks.
	MaxReplanRounds int `yaml:"max_replan_rounds"`
}

// GenkitProviderConfig selects and configures the genkit-backed LLM client.
type GenkitProviderConfig struct {
	// Name is one of "anthropic", "openai", "openai_compatible", "google".
	Name                     string `yaml:"name"`
	Model                    string `yaml:"model"`
	APIKey                   string `yaml:"api_key"`
	OpenAICompatibleProvider string `yaml:"openai_compatible_provider"`
	OpenAICompatibleBaseURL  string `yaml:"openai_compatible_base_url"`
}

// PersonaConfig describes a persona to register at startup.
type PersonaConfig struct {
	ID                 string   `yaml:"id"`
	Name               string   `yaml:"name"`
	Capabilities       []string `yaml:"capabilities"`
	MaxConcurrentTasks int      `yaml:"max_concurrent_tasks"`
	AuthToken          string   `yaml:"auth_token"`
}

// Load reads path, expands ${VAR} references against the process
// environment, decodes strict YAML (unknown fields reject), applies
// environment overrides, then defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	var cfg Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := dec.Decode(&struct{}{}); err != io.EOF {
		return nil, fmt.Errorf("parse config: expected a single YAML document")
	}

	applyEnvOverrides(&cfg)
	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}

	if cfg.Bus.QueueCapacity == 0 {
		cfg.Bus.QueueCapacity = 1024
	}
	if cfg.Bus.DefaultReplyTimeout == 0 {
		cfg.Bus.DefaultReplyTimeout = 30 * time.Second
	}

	if cfg.Tools.DefaultTimeout == 0 {
		cfg.Tools.DefaultTimeout = 30 * time.Second
	}
	if cfg.Tools.Breaker.FailureThreshold == 0 {
		cfg.Tools.Breaker.FailureThreshold = 5
	}
	if cfg.Tools.Breaker.SuccessThreshold == 0 {
		cfg.Tools.Breaker.SuccessThreshold = 2
	}
	if cfg.Tools.Breaker.OpenTimeout == 0 {
		cfg.Tools.Breaker.OpenTimeout = 30 * time.Second
	}

	if cfg.Coordinator.Provider.Name == "" {
		cfg.Coordinator.Provider.Name = "anthropic"
	}
	if cfg.Coordinator.MaxReplanRounds == 0 {
		cfg.Coordinator.MaxReplanRounds = 3
	}

	for i := range cfg.Personas {
		if cfg.Personas[i].MaxConcurrentTasks == 0 {
			cfg.Personas[i].MaxConcurrentTasks = 4
		}
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv("ARACI_LOG_LEVEL")); v != "" {
		cfg.Logging.Level = v
	}
	if v := strings.TrimSpace(os.Getenv("ARACI_LLM_API_KEY")); v != "" {
		cfg.Coordinator.Provider.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("ARACI_LLM_PROVIDER")); v != "" {
		cfg.Coordinator.Provider.Name = v
	}
	if v := strings.TrimSpace(os.Getenv("ARACI_BUS_QUEUE_CAPACITY")); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.Bus.QueueCapacity = parsed
		}
	}
}

// ValidationError collects every config problem found at once, rather
// than failing on the first.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "config validation failed:\n- " + strings.Join(e.Issues, "\n- ")
}

func validate(cfg *Config) error {
	var issues []string

	if cfg.Bus.QueueCapacity < 0 {
		issues = append(issues, "bus.queue_capacity must be >= 0")
	}
	if cfg.Tools.Breaker.FailureThreshold < 1 {
		issues = append(issues, "tools.breaker.failure_threshold must be >= 1")
	}
	if cfg.Tools.Breaker.SuccessThreshold < 1 {
		issues = append(issues, "tools.breaker.success_threshold must be >= 1")
	}

	switch strings.ToLower(strings.TrimSpace(cfg.Coordinator.Provider.Name)) {
	case "anthropic", "openai", "openai_compatible", "google":
	default:
		issues = append(issues, fmt.Sprintf("coordinator.provider.name %q must be one of anthropic, openai, openai_compatible, google", cfg.Coordinator.Provider.Name))
	}

	seen := map[string]bool{}
	for i, d := range cfg.Tools.Descriptors {
		if strings.TrimSpace(d.Name) == "" {
			issues = append(issues, fmt.Sprintf("tools.descriptors[%d].name is required", i))
			continue
		}
		if seen[d.Name] {
			issues = append(issues, fmt.Sprintf("tools.descriptors[%d].name %q is duplicated", i, d.Name))
		}
		seen[d.Name] = true
		switch d.Kind {
		case "native", "subprocess_rpc", "executable", "http":
		default:
			issues = append(issues, fmt.Sprintf("tools.descriptors[%d].kind %q must be native, subprocess_rpc, executable, or http", i, d.Kind))
		}
	}

	seenPersonas := map[string]bool{}
	for i, p := range cfg.Personas {
		if strings.TrimSpace(p.ID) == "" {
			issues = append(issues, fmt.Sprintf("personas[%d].id is required", i))
			continue
		}
		if seenPersonas[p.ID] {
			issues = append(issues, fmt.Sprintf("personas[%d].id %q is duplicated", i, p.ID))
		}
		seenPersonas[p.ID] = true
	}

	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}
