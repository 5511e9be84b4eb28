package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"replaylens/internal/classify"
)

// Config models replaylens.yml.
type Config struct {
	Server struct {
		Addr       string `yaml:"addr"`
		AuthSecret string `yaml:"auth_secret"`
	} `yaml:"server"`
	Lichess struct {
		BaseURL        string  `yaml:"base_url"`
		Token          string  `yaml:"token"`
		TimeoutSeconds int     `yaml:"timeout_seconds"`
		RequestsPerSec float64 `yaml:"requests_per_sec"`
		Burst          int     `yaml:"burst"`
		MaxRetries     int     `yaml:"max_retries"`
	} `yaml:"lichess"`
	OpenAI struct {
		APIKey  string `yaml:"api_key"`
		BaseURL string `yaml:"base_url"`
		Model   string `yaml:"model"`
	} `yaml:"openai"`
	Capture struct {
		Enabled     bool   `yaml:"enabled"`
		BoardURL    string `yaml:"board_url"`
		ServiceURL  string `yaml:"service_url"`
		SessionName string `yaml:"session_name"`
	} `yaml:"capture"`
	Analysis struct {
		FailureBudget int             `yaml:"failure_budget"`
		Labels        classify.Labels `yaml:"labels"`
	} `yaml:"analysis"`
	Archive struct {
		Enabled   bool   `yaml:"enabled"`
		Workspace string `yaml:"workspace"`
	} `yaml:"archive"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found; generate one with replaylens config init", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when no config file exists, so a
// fresh workspace can serve without a replaylens.yml.
func LoadOptional(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Lichess.BaseURL == "" {
		return fmt.Errorf("config.lichess.base_url is required")
	}
	if c.Lichess.TimeoutSeconds <= 0 {
		return fmt.Errorf("config.lichess.timeout_seconds must be positive")
	}
	if c.Lichess.RequestsPerSec <= 0 {
		return fmt.Errorf("config.lichess.requests_per_sec must be positive")
	}
	if c.Lichess.Burst < 1 {
		return fmt.Errorf("config.lichess.burst must be at least 1")
	}
	if c.Lichess.MaxRetries < 0 {
		return fmt.Errorf("config.lichess.max_retries must not be negative")
	}
	if c.Analysis.FailureBudget < 0 {
		return fmt.Errorf("config.analysis.failure_budget must not be negative")
	}
	labels := c.Analysis.Labels
	if labels.Excellent < labels.Good || labels.Good < labels.Average {
		return fmt.Errorf("config.analysis.labels cutoffs must be ordered excellent >= good >= average")
	}
	if c.Capture.Enabled && c.Capture.ServiceURL == "" {
		return fmt.Errorf("config.capture.service_url is required when capture is enabled")
	}
	if c.Archive.Enabled && c.Archive.Workspace == "" {
		return fmt.Errorf("config.archive.workspace is required when archive is enabled")
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config.logging.level must be one of debug, info, warn, error")
	}
	return nil
}

// LichessTimeout returns the upstream HTTP timeout as a duration.
func (c *Config) LichessTimeout() time.Duration {
	return time.Duration(c.Lichess.TimeoutSeconds) * time.Second
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "replaylens.yml")
}

// GenerateDefault returns default config YAML.
func GenerateDefault() string {
	return defaultTemplate
}

// Default returns the default Config struct.
func Default() *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(defaultTemplate)).Decode(&cfg)
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes. Fields left
// out of the document keep their defaults.
func FromYAML(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid config yaml: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

const defaultTemplate = `server:
  addr: :8080
  auth_secret: ""

lichess:
  base_url: https://lichess.org
  token: ""
  timeout_seconds: 15
  requests_per_sec: 4
  burst: 2
  max_retries: 3

openai:
  api_key: ""
  base_url: ""
  model: gpt-4o-mini

capture:
  enabled: false
  board_url: https://www.chess.com/dynboard?fen=%s&board=green&piece=neo&size=3
  service_url: ""
  session_name: replaylens

analysis:
  failure_budget: 8
  labels:
    excellent: 90
    good: 80
    average: 70
    excellent_text: excellent play
    good_text: good play
    average_text: average play
    unstable_text: unstable play
    weak_text: needs improvement

archive:
  enabled: false
  workspace: .

logging:
  level: info
`
