// Package config loads the evalloop configuration from YAML with
// environment-variable expansion. CLI flags override loaded values.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the full process configuration
type Config struct {
	Sessions   SessionsConfig   `yaml:"sessions"`
	Evaluation EvaluationConfig `yaml:"evaluation"`
	Source     SourceConfig     `yaml:"source"`
	Sink       SinkConfig       `yaml:"sink"`
	API        APIConfig        `yaml:"api"`
	Browser    BrowserConfig    `yaml:"browser"`
}

// SessionsConfig controls the session pool
type SessionsConfig struct {
	Dir            string `yaml:"dir"`              // Directory of storage-state JSON files
	PerSessionRuns int    `yaml:"per_session_runs"` // Evaluations before rotation
}

// EvaluationConfig controls the retry loop and polling cadence
type EvaluationConfig struct {
	MaxAttempts         int `yaml:"max_attempts"`          // Attempts per prompt before the forced rotation
	PollIntervalSeconds int `yaml:"poll_interval_seconds"` // Wait between empty polls
	IdleTimeoutSeconds  int `yaml:"idle_timeout_seconds"`  // Close the browser after this much idle time (0 disables)
}

// SourceConfig selects and configures the prompt source
type SourceConfig struct {
	CSVPath string `yaml:"csv_path"` // Input CSV (ignored when api.base_url is set)
	Watch   bool   `yaml:"watch"`    // Tail the CSV for appended rows
}

// SinkConfig selects and configures the result sink
type SinkConfig struct {
	OutputPath string `yaml:"output_path"` // .json for grouped JSON, .db/.sqlite for local history
}

// APIConfig configures the remote evaluation API (continuous mode)
type APIConfig struct {
	BaseURL           string `yaml:"base_url"`
	AssistantName     string `yaml:"assistant_name"`
	PlanName          string `yaml:"plan_name"`
	RetryAttempts     int    `yaml:"retry_attempts"`
	RetryDelaySeconds int    `yaml:"retry_delay_seconds"`
	TimeoutSeconds    int    `yaml:"timeout_seconds"`
}

// BrowserConfig configures the automation driver
type BrowserConfig struct {
	Headless                 bool `yaml:"headless"`
	NavigationTimeoutSeconds int  `yaml:"navigation_timeout_seconds"`
	ResponseTimeoutSeconds   int  `yaml:"response_timeout_seconds"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Sessions: SessionsConfig{
			Dir:            "sessions",
			PerSessionRuns: 10,
		},
		Evaluation: EvaluationConfig{
			MaxAttempts:         1,
			PollIntervalSeconds: 5,
			IdleTimeoutSeconds:  300,
		},
		Source: SourceConfig{
			CSVPath: "prompts.csv",
		},
		Sink: SinkConfig{
			OutputPath: "results.json",
		},
		API: APIConfig{
			AssistantName:     "ChatGPT",
			RetryAttempts:     3,
			RetryDelaySeconds: 5,
			TimeoutSeconds:    30,
		},
		Browser: BrowserConfig{
			Headless:                 false,
			NavigationTimeoutSeconds: 60,
			ResponseTimeoutSeconds:   60,
		},
	}
}

// DefaultConfigPath returns ~/.evalloop/config.yaml
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".evalloop", "config.yaml")
	}
	return filepath.Join(home, ".evalloop", "config.yaml")
}

// Load loads config from ~/.evalloop/config.yaml, falling back to
// defaults when the file does not exist
func Load() (*Config, error) {
	path := DefaultConfigPath()
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}
	return LoadFrom(path)
}

// LoadFrom loads config from a specific path
func LoadFrom(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.expandEnv()
	return cfg, nil
}

// Save writes the config to path, creating the directory if needed
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0700); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}

// Validate checks the values the orchestrator depends on
func (c *Config) Validate() error {
	if c.Evaluation.MaxAttempts < 1 {
		return fmt.Errorf("evaluation.max_attempts must be >= 1, got %d", c.Evaluation.MaxAttempts)
	}
	if c.Sessions.PerSessionRuns < 1 {
		return fmt.Errorf("sessions.per_session_runs must be >= 1, got %d", c.Sessions.PerSessionRuns)
	}
	if c.Evaluation.PollIntervalSeconds <= 0 {
		return fmt.Errorf("evaluation.poll_interval_seconds must be > 0, got %d", c.Evaluation.PollIntervalSeconds)
	}
	if c.Evaluation.IdleTimeoutSeconds < 0 {
		return fmt.Errorf("evaluation.idle_timeout_seconds must be >= 0, got %d", c.Evaluation.IdleTimeoutSeconds)
	}
	return nil
}

// PollInterval returns the configured wait between empty polls
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Evaluation.PollIntervalSeconds) * time.Second
}

// IdleTimeout returns the idle browser-release threshold, 0 = disabled
func (c *Config) IdleTimeout() time.Duration {
	return time.Duration(c.Evaluation.IdleTimeoutSeconds) * time.Second
}

// UseAPI reports whether the remote evaluation API drives this run
func (c *Config) UseAPI() bool {
	return c.API.BaseURL != ""
}

func (c *Config) expandEnv() {
	c.Sessions.Dir = os.ExpandEnv(c.Sessions.Dir)
	c.Source.CSVPath = os.ExpandEnv(c.Source.CSVPath)
	c.Sink.OutputPath = os.ExpandEnv(c.Sink.OutputPath)
	c.API.BaseURL = os.ExpandEnv(c.API.BaseURL)
	c.API.AssistantName = os.ExpandEnv(c.API.AssistantName)
	c.API.PlanName = os.ExpandEnv(c.API.PlanName)
}
