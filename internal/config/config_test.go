package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "no-such.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Session.TTL != 4*time.Hour {
		t.Errorf("Session.TTL = %v, want 4h", cfg.Session.TTL)
	}
	if cfg.Session.SweepInterval != 30*time.Minute {
		t.Errorf("Session.SweepInterval = %v, want 30m", cfg.Session.SweepInterval)
	}
	if cfg.Stream.KeepaliveInterval != 15*time.Second || cfg.Stream.PollInterval != 2*time.Second {
		t.Errorf("Stream intervals = %v/%v, want 15s/2s",
			cfg.Stream.KeepaliveInterval, cfg.Stream.PollInterval)
	}
	if cfg.Stream.MaxConnections != 256 {
		t.Errorf("Stream.MaxConnections = %d, want 256", cfg.Stream.MaxConnections)
	}
}

func TestLoadOverlaysFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
server:
  port: 9001
  allowed_origins:
    - https://present.example.com
stream:
  max_connections: 8
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Server.Port != 9001 {
		t.Errorf("Server.Port = %d, want 9001", cfg.Server.Port)
	}
	if len(cfg.Server.AllowedOrigins) != 1 || cfg.Server.AllowedOrigins[0] != "https://present.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.Server.AllowedOrigins)
	}
	if cfg.Stream.MaxConnections != 8 {
		t.Errorf("Stream.MaxConnections = %d, want 8", cfg.Stream.MaxConnections)
	}
	// Untouched keys keep their defaults.
	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want default", cfg.Server.Host)
	}
	if cfg.Session.TTL != 4*time.Hour {
		t.Errorf("Session.TTL = %v, want default 4h", cfg.Session.TTL)
	}
}

func TestLoadMalformedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("server: [not, a, map]"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err == nil {
		t.Fatal("Load accepted malformed yaml")
	}
}
