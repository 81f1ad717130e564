package config

import (
	"fmt"
	"strings"
)

// Validate checks the configuration for invalid values.
func Validate(cfg *Config) error {
	if cfg.Paths.ArtifactURL == "" {
		return fmt.Errorf("paths.artifact_url must be set")
	}
	stages := map[string]string{
		"paths.kaisai_date_dir": cfg.Paths.KaisaiDateDir,
		"paths.race_id_dir":     cfg.Paths.RaceIDDir,
		"paths.horse_id_dir":    cfg.Paths.HorseIDDir,
		"paths.jockey_id_dir":   cfg.Paths.JockeyIDDir,
		"paths.trainer_id_dir":  cfg.Paths.TrainerIDDir,
		"paths.html_race_dir":   cfg.Paths.HTMLRaceDir,
		"paths.html_horse_dir":  cfg.Paths.HTMLHorseDir,
		"paths.raw_table_dir":   cfg.Paths.RawTableDir,
	}
	for key, prefix := range stages {
		if prefix == "" {
			return fmt.Errorf("%s must be set", key)
		}
		if strings.HasPrefix(prefix, "/") || strings.Contains(prefix, "..") {
			return fmt.Errorf("%s must be a relative prefix, got %q", key, prefix)
		}
	}
	if cfg.Paths.OutputDir == "" {
		return fmt.Errorf("paths.output_dir must be set")
	}
	if cfg.Paths.MappingDir == "" {
		return fmt.Errorf("paths.mapping_dir must be set")
	}

	templates := map[string]string{
		"source.calendar_url":  cfg.Source.CalendarURL,
		"source.race_list_url": cfg.Source.RaceListURL,
		"source.race_url":      cfg.Source.RaceURL,
		"source.horse_url":     cfg.Source.HorseURL,
	}
	for key, tmpl := range templates {
		if !strings.Contains(tmpl, "%") {
			return fmt.Errorf("%s must be a format template, got %q", key, tmpl)
		}
		if !strings.HasPrefix(tmpl, "http://") && !strings.HasPrefix(tmpl, "https://") {
			return fmt.Errorf("%s must be an http(s) URL template, got %q", key, tmpl)
		}
	}
	if cfg.Source.RaceListSelector == "" {
		return fmt.Errorf("source.race_list_selector must be set")
	}

	if cfg.Fetcher.UserAgent == "" {
		return fmt.Errorf("fetcher.user_agent must be set")
	}
	if cfg.Fetcher.Delay < 0 {
		return fmt.Errorf("fetcher.delay must be >= 0")
	}
	if cfg.Fetcher.RequestTimeout <= 0 {
		return fmt.Errorf("fetcher.request_timeout must be > 0")
	}
	if cfg.Fetcher.MaxBodySize <= 0 {
		return fmt.Errorf("fetcher.max_body_size must be > 0")
	}
	if cfg.Fetcher.MaxRedirects < 0 {
		return fmt.Errorf("fetcher.max_redirects must be >= 0")
	}
	if cfg.Browser.NavigationTimeout <= 0 {
		return fmt.Errorf("browser.navigation_timeout must be > 0")
	}

	if cfg.Storage.MongoURI != "" && cfg.Storage.MongoDatabase == "" {
		return fmt.Errorf("storage.mongo_database must be set when storage.mongo_uri is")
	}

	validLogLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLogLevels[cfg.Logging.Level] {
		return fmt.Errorf("logging.level must be debug/info/warn/error, got %q", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "text" && cfg.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json', got %q", cfg.Logging.Format)
	}

	if cfg.Metrics.Enabled {
		if cfg.Metrics.Port < 1 || cfg.Metrics.Port > 65535 {
			return fmt.Errorf("metrics.port must be 1-65535, got %d", cfg.Metrics.Port)
		}
	}

	return nil
}
