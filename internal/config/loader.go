package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from file and environment.
// Priority (highest to lowest): env vars > config file > defaults.
func Load(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	setDefaults(v, cfg)

	v.SetEnvPrefix("KEIBASTALK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("keibastalk")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(home, ".keibastalk"))
		}
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok || configPath != "" {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return cfg, nil
}

// setDefaults registers default values in viper so env overrides work
// for keys absent from the config file.
func setDefaults(v *viper.Viper, cfg *Config) {
	v.SetDefault("paths.artifact_url", cfg.Paths.ArtifactURL)
	v.SetDefault("paths.kaisai_date_dir", cfg.Paths.KaisaiDateDir)
	v.SetDefault("paths.race_id_dir", cfg.Paths.RaceIDDir)
	v.SetDefault("paths.horse_id_dir", cfg.Paths.HorseIDDir)
	v.SetDefault("paths.jockey_id_dir", cfg.Paths.JockeyIDDir)
	v.SetDefault("paths.trainer_id_dir", cfg.Paths.TrainerIDDir)
	v.SetDefault("paths.html_race_dir", cfg.Paths.HTMLRaceDir)
	v.SetDefault("paths.html_horse_dir", cfg.Paths.HTMLHorseDir)
	v.SetDefault("paths.raw_table_dir", cfg.Paths.RawTableDir)
	v.SetDefault("paths.output_dir", cfg.Paths.OutputDir)
	v.SetDefault("paths.mapping_dir", cfg.Paths.MappingDir)

	v.SetDefault("source.calendar_url", cfg.Source.CalendarURL)
	v.SetDefault("source.race_list_url", cfg.Source.RaceListURL)
	v.SetDefault("source.race_url", cfg.Source.RaceURL)
	v.SetDefault("source.horse_url", cfg.Source.HorseURL)
	v.SetDefault("source.race_list_selector", cfg.Source.RaceListSelector)
	v.SetDefault("source.payout_encoding", cfg.Source.PayoutEncoding)

	v.SetDefault("fetcher.user_agent", cfg.Fetcher.UserAgent)
	v.SetDefault("fetcher.delay", cfg.Fetcher.Delay)
	v.SetDefault("fetcher.request_timeout", cfg.Fetcher.RequestTimeout)
	v.SetDefault("fetcher.follow_redirects", cfg.Fetcher.FollowRedirects)
	v.SetDefault("fetcher.max_redirects", cfg.Fetcher.MaxRedirects)
	v.SetDefault("fetcher.max_body_size", cfg.Fetcher.MaxBodySize)

	v.SetDefault("browser.headless", cfg.Browser.Headless)
	v.SetDefault("browser.stealth", cfg.Browser.Stealth)
	v.SetDefault("browser.bin", cfg.Browser.Bin)
	v.SetDefault("browser.navigation_timeout", cfg.Browser.NavigationTimeout)

	v.SetDefault("storage.mongo_uri", cfg.Storage.MongoURI)
	v.SetDefault("storage.mongo_database", cfg.Storage.MongoDatabase)

	v.SetDefault("logging.level", cfg.Logging.Level)
	v.SetDefault("logging.format", cfg.Logging.Format)

	v.SetDefault("metrics.enabled", cfg.Metrics.Enabled)
	v.SetDefault("metrics.port", cfg.Metrics.Port)
	v.SetDefault("metrics.path", cfg.Metrics.Path)
}
