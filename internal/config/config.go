package config

import (
	"time"
)

// Version is set at build time via ldflags.
var Version = "dev"

// Config is the root configuration for keibastalk.
type Config struct {
	Paths   PathsConfig   `mapstructure:"paths"   yaml:"paths"`
	Source  SourceConfig  `mapstructure:"source"  yaml:"source"`
	Fetcher FetcherConfig `mapstructure:"fetcher" yaml:"fetcher"`
	Browser BrowserConfig `mapstructure:"browser" yaml:"browser"`
	Storage StorageConfig `mapstructure:"storage" yaml:"storage"`
	Logging LoggingConfig `mapstructure:"logging" yaml:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics" yaml:"metrics"`
}

// PathsConfig locates every artifact the pipeline reads or writes.
// The stage fields are prefixes inside the artifact bucket.
type PathsConfig struct {
	ArtifactURL   string `mapstructure:"artifact_url"    yaml:"artifact_url"`
	KaisaiDateDir string `mapstructure:"kaisai_date_dir" yaml:"kaisai_date_dir"`
	RaceIDDir     string `mapstructure:"race_id_dir"     yaml:"race_id_dir"`
	HorseIDDir    string `mapstructure:"horse_id_dir"    yaml:"horse_id_dir"`
	JockeyIDDir   string `mapstructure:"jockey_id_dir"   yaml:"jockey_id_dir"`
	TrainerIDDir  string `mapstructure:"trainer_id_dir"  yaml:"trainer_id_dir"`
	HTMLRaceDir   string `mapstructure:"html_race_dir"   yaml:"html_race_dir"`
	HTMLHorseDir  string `mapstructure:"html_horse_dir"  yaml:"html_horse_dir"`
	RawTableDir   string `mapstructure:"raw_table_dir"   yaml:"raw_table_dir"`
	OutputDir     string `mapstructure:"output_dir"      yaml:"output_dir"`
	MappingDir    string `mapstructure:"mapping_dir"     yaml:"mapping_dir"`
}

// SourceConfig describes the remote racing database. URL fields are
// fmt templates.
type SourceConfig struct {
	CalendarURL      string `mapstructure:"calendar_url"       yaml:"calendar_url"`  // year, month
	RaceListURL      string `mapstructure:"race_list_url"      yaml:"race_list_url"` // kaisai_date
	RaceURL          string `mapstructure:"race_url"           yaml:"race_url"`      // race_id
	HorseURL         string `mapstructure:"horse_url"          yaml:"horse_url"`     // horse_id
	RaceListSelector string `mapstructure:"race_list_selector" yaml:"race_list_selector"`
	PayoutEncoding   string `mapstructure:"payout_encoding"    yaml:"payout_encoding"`
}

// FetcherConfig controls the HTTP page fetcher.
type FetcherConfig struct {
	UserAgent       string        `mapstructure:"user_agent"       yaml:"user_agent"`
	Delay           time.Duration `mapstructure:"delay"            yaml:"delay"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"  yaml:"request_timeout"`
	FollowRedirects bool          `mapstructure:"follow_redirects" yaml:"follow_redirects"`
	MaxRedirects    int           `mapstructure:"max_redirects"    yaml:"max_redirects"`
	MaxBodySize     int64         `mapstructure:"max_body_size"    yaml:"max_body_size"`
}

// BrowserConfig controls the headless browser used for listing pages.
type BrowserConfig struct {
	Headless          bool          `mapstructure:"headless"           yaml:"headless"`
	Stealth           bool          `mapstructure:"stealth"            yaml:"stealth"`
	Bin               string        `mapstructure:"bin"                yaml:"bin"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout" yaml:"navigation_timeout"`
}

// StorageConfig controls optional output sinks besides the TSV files.
type StorageConfig struct {
	MongoURI      string `mapstructure:"mongo_uri"      yaml:"mongo_uri"`
	MongoDatabase string `mapstructure:"mongo_database" yaml:"mongo_database"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level"  yaml:"level"`
	Format string `mapstructure:"format" yaml:"format"`
}

// MetricsConfig controls the Prometheus metrics endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Port    int    `mapstructure:"port"    yaml:"port"`
	Path    string `mapstructure:"path"    yaml:"path"`
}

// DefaultConfig returns a Config with the layout used by the notebooks:
// everything under ./data, one second between requests.
func DefaultConfig() *Config {
	return &Config{
		Paths: PathsConfig{
			ArtifactURL:   "./data",
			KaisaiDateDir: "kaisai_date",
			RaceIDDir:     "race_id",
			HorseIDDir:    "horse_id",
			JockeyIDDir:   "jockey_id",
			TrainerIDDir:  "trainer_id",
			HTMLRaceDir:   "html/race",
			HTMLHorseDir:  "html/horse",
			RawTableDir:   "raw_csv",
			OutputDir:     "./data/df_csv",
			MappingDir:    "./configs/mapping",
		},
		Source: SourceConfig{
			CalendarURL:      "https://race.netkeiba.com/top/calendar.html?year=%d&month=%d",
			RaceListURL:      "https://race.netkeiba.com/top/race_list.html?kaisai_date=%s",
			RaceURL:          "https://db.netkeiba.com/race/%s",
			HorseURL:         "https://db.netkeiba.com/horse/%s",
			RaceListSelector: ".RaceList_DataItem",
			PayoutEncoding:   "euc-jp",
		},
		Fetcher: FetcherConfig{
			UserAgent:       "Mozilla/5.0",
			Delay:           1 * time.Second,
			RequestTimeout:  30 * time.Second,
			FollowRedirects: true,
			MaxRedirects:    10,
			MaxBodySize:     10 * 1024 * 1024, // 10MB
		},
		Browser: BrowserConfig{
			Headless:          true,
			NavigationTimeout: 30 * time.Second,
		},
		Storage: StorageConfig{
			MongoDatabase: "keiba",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
			Path:    "/metrics",
		},
	}
}
