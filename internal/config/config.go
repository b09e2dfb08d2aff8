package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// FileName is the config file looked up in the working directory.
const FileName = "chorus.yml"

// Config models chorus.yml.
type Config struct {
	API struct {
		URL     string        `yaml:"url"`
		Timeout time.Duration `yaml:"timeout"`
		Token   string        `yaml:"token"`
		APIKey  string        `yaml:"api_key"`
	} `yaml:"api"`
	Client struct {
		CallerLabel    string        `yaml:"caller_label"`
		PollInterval   time.Duration `yaml:"poll_interval"`
		RenderInterval time.Duration `yaml:"render_interval"`
		StaleTime      time.Duration `yaml:"stale_time"`
	} `yaml:"client"`
	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
	Server struct {
		Addr                string        `yaml:"addr"`
		Workspace           string        `yaml:"workspace"`
		LockCleanupInterval time.Duration `yaml:"lock_cleanup_interval"`
	} `yaml:"server"`
}

var levels = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}

// Default returns the settings used when no file is present.
func Default() *Config {
	var cfg Config
	cfg.API.URL = "http://localhost:8000"
	cfg.API.Timeout = 30 * time.Second
	cfg.Client.CallerLabel = "dashboard"
	cfg.Client.PollInterval = 10 * time.Second
	cfg.Client.RenderInterval = time.Second
	cfg.Logging.Level = "warn"
	cfg.Server.Addr = "127.0.0.1:8000"
	cfg.Server.Workspace = "."
	cfg.Server.LockCleanupInterval = 60 * time.Second
	return &cfg
}

// Validate ensures the config is usable.
func (c *Config) Validate() error {
	u, err := url.Parse(c.API.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("config.api.url must be an http(s) URL, got %q", c.API.URL)
	}
	if c.API.Timeout < 0 {
		return fmt.Errorf("config.api.timeout must not be negative")
	}
	if strings.TrimSpace(c.Client.CallerLabel) == "" {
		return fmt.Errorf("config.client.caller_label is required")
	}
	if c.Client.PollInterval <= 0 {
		return fmt.Errorf("config.client.poll_interval must be positive")
	}
	if c.Client.RenderInterval <= 0 {
		return fmt.Errorf("config.client.render_interval must be positive")
	}
	if c.Client.StaleTime < 0 {
		return fmt.Errorf("config.client.stale_time must not be negative")
	}
	if !levels[strings.ToLower(c.Logging.Level)] {
		return fmt.Errorf("config.logging.level must be one of debug, info, warn, error")
	}
	if c.Server.Addr == "" {
		return fmt.Errorf("config.server.addr is required")
	}
	if c.Server.LockCleanupInterval <= 0 {
		return fmt.Errorf("config.server.lock_cleanup_interval must be positive")
	}
	return nil
}

// Path returns the config file path inside dir.
func Path(dir string) string {
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, FileName)
}

// Load reads and validates chorus.yml from dir.
func Load(dir string) (*Config, error) {
	path := Path(dir)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config %s not found", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns the defaults when dir has no chorus.yml.
func LoadOptional(dir string) (*Config, error) {
	return FromFileOptional(Path(dir))
}

// FromFileOptional reads path, falling back to the defaults when it does
// not exist.
func FromFileOptional(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// FromYAML parses raw YAML over the defaults and validates the result.
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
