// Package config loads the tracker's YAML configuration.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServiceID string `yaml:"service_id"`
	CensusURL string `yaml:"census_url"`
	PushURL   string `yaml:"push_url"`

	PollIntervalS   float64 `yaml:"poll_interval_s"`
	FetchTimeoutS   float64 `yaml:"fetch_timeout_s"`
	ReconnectDelayS float64 `yaml:"reconnect_delay_s"`

	DBPath          string `yaml:"db_path"`
	JournalDir      string `yaml:"journal_dir"`
	JournalDisabled bool   `yaml:"journal_disabled"`
}

// Load reads the config file at path, or returns defaults when path is
// empty.
func Load(path string) (Config, error) {
	cfg := defaults()
	if strings.TrimSpace(path) == "" {
		cfg.Normalize()
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, fmt.Errorf("tracker.yaml: %w", err)
	}
	cfg.Normalize()
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("tracker.yaml: %w", err)
	}
	return cfg, nil
}

func defaults() Config {
	return Config{
		ServiceID:       "s:example",
		CensusURL:       "https://census.daybreakgames.com",
		PushURL:         "wss://push.planetside2.com/streaming",
		PollIntervalS:   60,
		FetchTimeoutS:   30,
		ReconnectDelayS: 5,
		DBPath:          "./data/tracker.db",
		JournalDir:      "./data/journal",
	}
}

// Normalize clamps values that would stall or thrash the ingesters.
func (c *Config) Normalize() {
	if c.PollIntervalS < 5 {
		c.PollIntervalS = 5
	}
	if c.FetchTimeoutS <= 0 {
		c.FetchTimeoutS = 30
	}
	if c.ReconnectDelayS <= 0 {
		c.ReconnectDelayS = 5
	}
	c.ServiceID = strings.TrimSpace(c.ServiceID)
	c.CensusURL = strings.TrimRight(strings.TrimSpace(c.CensusURL), "/")
	c.PushURL = strings.TrimSpace(c.PushURL)
}

func (c *Config) Validate() error {
	if c.ServiceID == "" {
		return fmt.Errorf("service_id must not be empty")
	}
	if !strings.HasPrefix(c.ServiceID, "s:") {
		return fmt.Errorf("service_id must start with \"s:\"")
	}
	if c.CensusURL == "" {
		return fmt.Errorf("census_url must not be empty")
	}
	if c.PushURL == "" {
		return fmt.Errorf("push_url must not be empty")
	}
	if c.DBPath == "" {
		return fmt.Errorf("db_path must not be empty")
	}
	if !c.JournalDisabled && c.JournalDir == "" {
		return fmt.Errorf("journal_dir must not be empty unless journal_disabled")
	}
	return nil
}

func (c Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalS * float64(time.Second))
}

func (c Config) FetchTimeout() time.Duration {
	return time.Duration(c.FetchTimeoutS * float64(time.Second))
}

func (c Config) ReconnectDelay() time.Duration {
	return time.Duration(c.ReconnectDelayS * float64(time.Second))
}
