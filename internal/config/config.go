// Package config loads the engine's YAML configuration.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/plume/internal/nostr"
)

// Retention holds per-table retention targets for the sweeper.
type Retention struct {
	Posts        int `yaml:"posts"`
	Profiles     int `yaml:"profiles"`
	ContactLists int `yaml:"contact_lists"`
	RelayLists   int `yaml:"relay_lists"`
}

// Dispatcher bounds the background persistence queue.
type Dispatcher struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// Config is the engine's full configuration.
type Config struct {
	DBPath        string        `yaml:"db_path"`
	OwnPubkey     string        `yaml:"own_pubkey"`
	DefaultRelays []string      `yaml:"default_relays"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
	FeedWait      time.Duration `yaml:"feed_wait"`
	Retention     Retention     `yaml:"retention"`
	Dispatcher    Dispatcher    `yaml:"dispatcher"`
}

// Default returns the configuration used when no file overrides it.
func Default() Config {
	return Config{
		DBPath:        "plume.db",
		SweepInterval: time.Minute,
		FeedWait:      time.Second,
		Retention: Retention{
			Posts:        500,
			Profiles:     500,
			ContactLists: 250,
			RelayLists:   250,
		},
		Dispatcher: Dispatcher{
			Workers:   2,
			QueueSize: 512,
		},
	}
}

// Load reads a YAML config file over the defaults and validates it.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("validate config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the fields the engine cannot guess a recovery for.
func (c Config) Validate() error {
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if c.OwnPubkey != "" && !nostr.IsValidHexKey(c.OwnPubkey) {
		return fmt.Errorf("own_pubkey %q is not a 64-char hex key", c.OwnPubkey)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("sweep_interval must be positive")
	}
	if c.Retention.Posts < 1 || c.Retention.Profiles < 1 ||
		c.Retention.ContactLists < 1 || c.Retention.RelayLists < 1 {
		return fmt.Errorf("retention targets must be at least 1")
	}
	if c.Dispatcher.Workers < 1 {
		return fmt.Errorf("dispatcher workers must be at least 1")
	}
	if c.Dispatcher.QueueSize < 1 {
		return fmt.Errorf("dispatcher queue_size must be at least 1")
	}
	for _, relay := range c.DefaultRelays {
		if relay == "" {
			return fmt.Errorf("default_relays must not contain empty entries")
		}
	}
	return nil
}
