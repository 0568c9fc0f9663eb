// Package config loads the coordinator's YAML configuration file
// (spec.md §4.15): data directory, HTTP port, executor tuning, and the
// optional notification and messaging-transport toggles. Following the
// teacher's internal/agents/config.go and
// internal/server/server.go:loadNotificationConfig pattern, a missing or
// malformed file is logged and answered with defaults rather than
// treated as fatal — only the messaging transport and notification
// channels are allowed to be silently absent.
package config

import (
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultHTTPPort is used when Config.HTTPPort is zero.
const DefaultHTTPPort = 8420

// DefaultExecutorWorkers is used when Config.ExecutorWorkers is zero.
const DefaultExecutorWorkers = 4

// DefaultDataDir is used when Config.DataDir is empty.
const DefaultDataDir = "./data"

// TierTimeouts overrides the executor's per-model-tier timeouts. A zero
// duration for a tier means "use the executor package default".
type TierTimeouts struct {
	Haiku  time.Duration `yaml:"haiku"`
	Sonnet time.Duration `yaml:"sonnet"`
	Opus   time.Duration `yaml:"opus"`
}

// NotificationToggles controls which notification subscribers the
// coordinator wires up. Neither channel failing to initialize blocks
// startup (spec.md §7.7).
type NotificationToggles struct {
	Toast    bool `yaml:"toast"`
	Terminal bool `yaml:"terminal"`
}

// Config is the coordinator's top-level YAML configuration.
type Config struct {
	DataDir         string              `yaml:"data_dir"`
	HTTPPort        int                 `yaml:"http_port"`
	ExecutorWorkers int                 `yaml:"executor_workers"`
	TierTimeouts    TierTimeouts        `yaml:"tier_timeouts"`
	Notifications   NotificationToggles `yaml:"notifications"`
	NATSURL         string              `yaml:"nats_url"`
}

// Default returns a Config with every field at its documented default.
func Default() Config {
	return Config{
		DataDir:         DefaultDataDir,
		HTTPPort:        DefaultHTTPPort,
		ExecutorWorkers: DefaultExecutorWorkers,
		Notifications:   NotificationToggles{Toast: true, Terminal: true},
	}
}

// Load reads and parses the YAML config at path, filling in documented
// defaults for any zero-valued field. A missing or unparsable file logs
// a warning and returns Default() rather than an error, since the
// coordinator must still start with sane defaults (the teacher's
// loadNotificationConfig does the same for its narrower config file).
func Load(path string) Config {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		log.Printf("[CONFIG] No config file at %s, using defaults", path)
		return cfg
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		log.Printf("[CONFIG] Failed to parse %s: %v, using defaults", path, err)
		return Default()
	}

	applyDefaults(&cfg)
	return cfg
}

// applyDefaults fills any zero-valued field left blank by the YAML
// document (yaml.Unmarshal leaves absent keys at their Go zero value).
func applyDefaults(cfg *Config) {
	if cfg.DataDir == "" {
		cfg.DataDir = DefaultDataDir
	}
	if cfg.HTTPPort == 0 {
		cfg.HTTPPort = DefaultHTTPPort
	}
	if cfg.ExecutorWorkers == 0 {
		cfg.ExecutorWorkers = DefaultExecutorWorkers
	}
}

// MessagingEnabled reports whether NATSURL was configured. An absent
// broker URL disables the messaging transport (A6/§4.19) cleanly,
// never as a fatal error.
func (c Config) MessagingEnabled() bool {
	return c.NATSURL != ""
}
