// Package config loads the device-side engine configuration from a YAML file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	ServerURL    string        `yaml:"server_url"`
	QueuePath    string        `yaml:"queue_path"`
	PollInterval time.Duration `yaml:"poll_interval"`
	HTTPTimeout  time.Duration `yaml:"http_timeout"`
	MaxAttempts  int           `yaml:"max_attempts"`
	RetryBase    time.Duration `yaml:"retry_base"`
	RetryMax     time.Duration `yaml:"retry_max"`
}

func Default() Config {
	return Config{
		ServerURL:    "http://localhost:8080",
		QueuePath:    "tip-queue.json",
		PollInterval: 5 * time.Second,
		HTTPTimeout:  30 * time.Second,
		MaxAttempts:  5,
		RetryBase:    30 * time.Second,
		RetryMax:     30 * time.Minute,
	}
}

// Load reads the file over the defaults; a missing file just yields defaults.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.ServerURL == "" {
		return cfg, fmt.Errorf("server_url must not be empty")
	}
	return cfg, nil
}
