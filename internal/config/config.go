package config

import (
	"errors"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Session SessionConfig `yaml:"session"`
	Stream  StreamConfig  `yaml:"stream"`
	Slide   SlideConfig   `yaml:"slide"`
}

type ServerConfig struct {
	Port           int      `yaml:"port"`
	Host           string   `yaml:"host"`
	AllowedOrigins []string `yaml:"allowed_origins"`
}

type SessionConfig struct {
	TTL           time.Duration `yaml:"ttl"`
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

type StreamConfig struct {
	KeepaliveInterval time.Duration `yaml:"keepalive_interval"`
	PollInterval      time.Duration `yaml:"poll_interval"`
	MaxConnections    int           `yaml:"max_connections"`
}

type SlideConfig struct {
	// PollInterval is a hint returned to remote consumers; the server does
	// not enforce it.
	PollInterval time.Duration `yaml:"poll_interval"`
}

func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port: 8080,
			Host: "0.0.0.0",
		},
		Session: SessionConfig{
			TTL:           4 * time.Hour,
			SweepInterval: 30 * time.Minute,
		},
		Stream: StreamConfig{
			KeepaliveInterval: 15 * time.Second,
			PollInterval:      2 * time.Second,
			MaxConnections:    256,
		},
		Slide: SlideConfig{
			PollInterval: 2 * time.Second,
		},
	}
}

// Load reads the config file over the built-in defaults. A missing file is
// not an error: the defaults are a complete working configuration.
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
