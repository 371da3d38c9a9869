package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Twitch  TwitchConfig  `yaml:"twitch"`
	Store   StoreConfig   `yaml:"store"`
	Harvest HarvestConfig `yaml:"harvest"`
}

// TwitchConfig holds Helix API credentials and endpoints.
type TwitchConfig struct {
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`
	AuthURL      string `yaml:"auth_url"`
	APIURL       string `yaml:"api_url"`
}

// StoreConfig holds storage settings.
type StoreConfig struct {
	Path string `yaml:"path"`
}

// HarvestConfig holds the cycle batch sizes, staleness threshold and gateway
// retry parameters. None of these affect correctness beyond scaling
// throughput.
type HarvestConfig struct {
	MentionBatchSize   int    `yaml:"mention_batch_size"`
	RefreshBatchSize   int    `yaml:"refresh_batch_size"`
	TopCategories      int    `yaml:"top_categories"`
	StreamsPerCategory int    `yaml:"streams_per_category"`
	VideosPerChannel   int    `yaml:"videos_per_channel"`
	StalenessAgeRaw    string `yaml:"staleness_age"`
	DiscoveryInterval  int    `yaml:"discovery_interval"`
	MaxRetries         int    `yaml:"max_retries"`
	RequestTimeoutRaw  string `yaml:"request_timeout"`
	FetchVideosAfter   string `yaml:"fetch_videos_after"`
}

// StalenessAge returns the parsed staleness threshold.
func (h HarvestConfig) StalenessAge() (time.Duration, error) {
	if h.StalenessAgeRaw == "" {
		return 168 * time.Hour, nil
	}
	return time.ParseDuration(h.StalenessAgeRaw)
}

// RequestTimeout returns the parsed per-request timeout.
func (h HarvestConfig) RequestTimeout() (time.Duration, error) {
	if h.RequestTimeoutRaw == "" {
		return 15 * time.Second, nil
	}
	return time.ParseDuration(h.RequestTimeoutRaw)
}

// VideoCutoff returns the optional publish-date floor below which videos are
// never fetched, or the zero time when unset.
func (h HarvestConfig) VideoCutoff() (time.Time, error) {
	if h.FetchVideosAfter == "" {
		return time.Time{}, nil
	}
	return time.Parse(time.RFC3339, h.FetchVideosAfter)
}

// envVarPattern matches ${VAR} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR} placeholders with environment variable values.
// Returns an error if any referenced variable is not set.
func expandEnvVars(data []byte) ([]byte, error) {
	var missing []string

	result := envVarPattern.ReplaceAllFunc(data, func(match []byte) []byte {
		varName := envVarPattern.FindSubmatch(match)[1]
		val, ok := os.LookupEnv(string(varName))
		if !ok {
			missing = append(missing, string(varName))
			return match
		}
		return []byte(val)
	})

	if len(missing) > 0 {
		return nil, fmt.Errorf("missing required environment variables: %s", strings.Join(missing, ", "))
	}
	return result, nil
}

// Load reads and parses a config file from the given path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse parses config from raw YAML bytes, expanding env vars and validating.
func Parse(data []byte) (*Config, error) {
	expanded, err := expandEnvVars(data)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(expanded, &cfg); err != nil {
		return nil, fmt.Errorf("parsing config YAML: %w", err)
	}

	applyDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.Twitch.AuthURL == "" {
		cfg.Twitch.AuthURL = "https://id.twitch.tv/oauth2"
	}
	if cfg.Twitch.APIURL == "" {
		cfg.Twitch.APIURL = "https://api.twitch.tv/helix"
	}
	if cfg.Store.Path == "" {
		cfg.Store.Path = "~/.collabnet/collabnet.db"
	}
	if cfg.Harvest.MentionBatchSize == 0 {
		cfg.Harvest.MentionBatchSize = 500
	}
	if cfg.Harvest.RefreshBatchSize == 0 {
		cfg.Harvest.RefreshBatchSize = 50
	}
	if cfg.Harvest.TopCategories == 0 {
		cfg.Harvest.TopCategories = 50
	}
	if cfg.Harvest.StreamsPerCategory == 0 {
		cfg.Harvest.StreamsPerCategory = 50
	}
	if cfg.Harvest.VideosPerChannel == 0 {
		cfg.Harvest.VideosPerChannel = 100
	}
	if cfg.Harvest.StalenessAgeRaw == "" {
		cfg.Harvest.StalenessAgeRaw = "168h"
	}
	if cfg.Harvest.DiscoveryInterval == 0 {
		cfg.Harvest.DiscoveryInterval = 10
	}
	if cfg.Harvest.MaxRetries == 0 {
		cfg.Harvest.MaxRetries = 3
	}
	if cfg.Harvest.RequestTimeoutRaw == "" {
		cfg.Harvest.RequestTimeoutRaw = "15s"
	}
}

func validate(cfg *Config) error {
	if cfg.Twitch.ClientID == "" || cfg.Twitch.ClientSecret == "" {
		return fmt.Errorf("twitch client_id and client_secret are required")
	}

	if _, err := time.ParseDuration(cfg.Harvest.StalenessAgeRaw); err != nil {
		return fmt.Errorf("invalid staleness_age %q: %w", cfg.Harvest.StalenessAgeRaw, err)
	}
	if _, err := time.ParseDuration(cfg.Harvest.RequestTimeoutRaw); err != nil {
		return fmt.Errorf("invalid request_timeout %q: %w", cfg.Harvest.RequestTimeoutRaw, err)
	}
	if cfg.Harvest.FetchVideosAfter != "" {
		if _, err := time.Parse(time.RFC3339, cfg.Harvest.FetchVideosAfter); err != nil {
			return fmt.Errorf("invalid fetch_videos_after %q: %w", cfg.Harvest.FetchVideosAfter, err)
		}
	}

	if cfg.Harvest.DiscoveryInterval < 0 {
		return fmt.Errorf("discovery_interval must be >= 0, got %d", cfg.Harvest.DiscoveryInterval)
	}
	for name, v := range map[string]int{
		"mention_batch_size":   cfg.Harvest.MentionBatchSize,
		"refresh_batch_size":   cfg.Harvest.RefreshBatchSize,
		"top_categories":       cfg.Harvest.TopCategories,
		"streams_per_category": cfg.Harvest.StreamsPerCategory,
		"videos_per_channel":   cfg.Harvest.VideosPerChannel,
		"max_retries":          cfg.Harvest.MaxRetries,
	} {
		if v < 1 {
			return fmt.Errorf("%s must be >= 1, got %d", name, v)
		}
	}

	return nil
}
