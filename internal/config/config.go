package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// BackendURLEnv overrides Backend.BaseURL when set.
const BackendURLEnv = "FLOWSENTRY_BACKEND_URL"

// Config holds all FlowSentry configuration.
type Config struct {
	Backend  BackendConfig  `yaml:"backend"`
	Poll     PollConfig     `yaml:"poll"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Web      WebConfig      `yaml:"web"`
	Alerts   AlertsConfig   `yaml:"alerts"`
	Log      LogConfig      `yaml:"log"`
}

// BackendConfig describes the capture/classification service being polled.
type BackendConfig struct {
	BaseURL string        `yaml:"base_url"` // e.g. "http://localhost:5000/api"
	Timeout time.Duration `yaml:"timeout"`  // per-request timeout
}

// PollConfig holds the two independent polling cadences.
type PollConfig struct {
	StatusInterval time.Duration `yaml:"status_interval"`
	FlowsInterval  time.Duration `yaml:"flows_interval"`
}

// AnalysisConfig holds settings for the DoS heuristic.
type AnalysisConfig struct {
	DoSThreshold int `yaml:"dos_threshold"` // flows per (src, dest:port) group within one batch
}

// WebConfig holds settings for the presentation API.
type WebConfig struct {
	Listen   string `yaml:"listen"`
	PageSize int    `yaml:"page_size"` // flows per page in /api/flows; 0 returns every match
}

// AlertsConfig configures the optional external alert sinks. Empty URLs disable a sink.
type AlertsConfig struct {
	NATSURL      string        `yaml:"nats_url"`
	Subject      string        `yaml:"subject"`
	RedisURL     string        `yaml:"redis_url"`
	RedisChannel string        `yaml:"redis_channel"`
	RedisTTL     time.Duration `yaml:"redis_ttl"` // lifetime of the "<channel>:last" key
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// Defaults returns a Config populated with sensible default values.
func Defaults() Config {
	return Config{
		Backend: BackendConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 5 * time.Second,
		},
		Poll: PollConfig{
			StatusInterval: 5 * time.Second,
			FlowsInterval:  10 * time.Second,
		},
		Analysis: AnalysisConfig{
			DoSThreshold: 10,
		},
		Web: WebConfig{
			Listen: ":8080",
		},
		Alerts: AlertsConfig{
			Subject:      "flowsentry.alerts",
			RedisChannel: "flowsentry:alerts",
			RedisTTL:     time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads a YAML configuration file from path and returns a Config.
// Values not specified in the file retain their defaults. The backend URL
// environment override is applied after the file.
func Load(path string) (Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.ApplyEnv()

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// ApplyEnv applies environment variable overrides.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(BackendURLEnv); v != "" {
		c.Backend.BaseURL = v
	}
}

// Validate checks values that would make the poller misbehave.
func (c Config) Validate() error {
	var errs []error
	if c.Backend.BaseURL == "" {
		errs = append(errs, errors.New("backend.base_url must not be empty"))
	}
	if c.Backend.Timeout <= 0 {
		errs = append(errs, errors.New("backend.timeout must be positive"))
	}
	if c.Poll.StatusInterval <= 0 {
		errs = append(errs, errors.New("poll.status_interval must be positive"))
	}
	if c.Poll.FlowsInterval <= 0 {
		errs = append(errs, errors.New("poll.flows_interval must be positive"))
	}
	if c.Analysis.DoSThreshold <= 0 {
		errs = append(errs, errors.New("analysis.dos_threshold must be positive"))
	}
	if c.Web.PageSize < 0 {
		errs = append(errs, errors.New("web.page_size must not be negative"))
	}
	return errors.Join(errs...)
}
