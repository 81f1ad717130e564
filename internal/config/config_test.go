package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfigValid(t *testing.T) {
	if err := Validate(DefaultConfig()); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestValidateRejects(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"empty artifact url", func(c *Config) { c.Paths.ArtifactURL = "" }},
		{"absolute stage prefix", func(c *Config) { c.Paths.HTMLRaceDir = "/html/race" }},
		{"escaping stage prefix", func(c *Config) { c.Paths.RaceIDDir = "../race_id" }},
		{"race url without verb", func(c *Config) { c.Source.RaceURL = "https://db.netkeiba.com/race/" }},
		{"non-http template", func(c *Config) { c.Source.HorseURL = "ftp://db.netkeiba.com/horse/%s" }},
		{"negative delay", func(c *Config) { c.Fetcher.Delay = -time.Second }},
		{"empty user agent", func(c *Config) { c.Fetcher.UserAgent = "" }},
		{"mongo without database", func(c *Config) {
			c.Storage.MongoURI = "mongodb://localhost:27017"
			c.Storage.MongoDatabase = ""
		}},
		{"bad log level", func(c *Config) { c.Logging.Level = "trace" }},
		{"bad metrics port", func(c *Config) {
			c.Metrics.Enabled = true
			c.Metrics.Port = 0
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := Validate(cfg); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "keibastalk.yaml")
	content := `
paths:
  artifact_url: ` + filepath.Join(dir, "data") + `
fetcher:
  delay: 2s
  user_agent: keibastalk-test
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Fetcher.Delay != 2*time.Second {
		t.Errorf("expected delay 2s, got %s", cfg.Fetcher.Delay)
	}
	if cfg.Fetcher.UserAgent != "keibastalk-test" {
		t.Errorf("expected user agent override, got %q", cfg.Fetcher.UserAgent)
	}
	if cfg.Paths.HTMLRaceDir != "html/race" {
		t.Errorf("expected default html_race_dir, got %q", cfg.Paths.HTMLRaceDir)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing explicit config file")
	}
}
