// Package config provides configuration loading from YAML files.
package config

import (
	"os"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/osa030/trackbox/internal/infra/media"
)

// Config represents the application configuration.
type Config struct {
	Server     ServerConfig            `yaml:"server"`
	Playback   PlaybackConfig          `yaml:"playback"`
	Player     PlayerConfig            `yaml:"player"`
	MiniPlayer MiniPlayerConfig        `yaml:"mini_player"`
	Catalog    CatalogConfig           `yaml:"catalog"`
	Filters    map[string]FilterConfig `yaml:"filters"`
	Media      media.ResolverConfig    `yaml:"media"`
	Settings   SettingsConfig          `yaml:"settings"`
	Billing    BillingConfig           `yaml:"billing"`
	Logging    LoggingConfig           `yaml:"logging"`
}

// ServerConfig represents control server configuration.
type ServerConfig struct {
	Addr         string `yaml:"addr" default:":8090"`
	ControlToken string `yaml:"control_token"` // Empty disables token checks
	MetricsPath  string `yaml:"metrics_path" default:"/metrics"`
}

// PlaybackConfig represents playback session configuration.
type PlaybackConfig struct {
	BufferThreshold time.Duration   `yaml:"buffer_threshold" default:"5s" validate:"gt=0"`
	UpdateInterval  time.Duration   `yaml:"update_interval" default:"100ms" validate:"gt=0"`
	AudioMode       media.AudioMode `yaml:"audio_mode"`
}

// PlayerConfig represents full player configuration.
type PlayerConfig struct {
	PrefetchNext bool    `yaml:"prefetch_next" default:"true"`
	SeekBarWidth float64 `yaml:"seek_bar_width" default:"300" validate:"gt=0"`
}

// MiniPlayerConfig represents mini-player gesture configuration.
type MiniPlayerConfig struct {
	DismissThreshold float64 `yaml:"dismiss_threshold" default:"100" validate:"gt=0"`
	FadeDistance     float64 `yaml:"fade_distance" default:"200" validate:"gt=0"`
	DirectionRatio   float64 `yaml:"direction_ratio" default:"2" validate:"gte=1"`
}

// CatalogConfig represents playlist data source configuration.
type CatalogConfig struct {
	Sources []SourceConfig `yaml:"sources" validate:"required,min=1,dive"`
}

// SourceConfig represents a single catalog source configuration.
type SourceConfig struct {
	Type        string         `yaml:"type" validate:"required,oneof=file supabase database"`
	DisplayName string         `yaml:"display_name"`
	Settings    map[string]any `yaml:"settings"`
}

// FilterConfig represents an access filter's configuration.
type FilterConfig struct {
	Enabled  bool           `yaml:"enabled"`
	Settings map[string]any `yaml:"settings,omitempty"`
}

// SettingsConfig represents persisted settings configuration.
type SettingsConfig struct {
	Path string `yaml:"path" default:"trackbox-settings.db" validate:"required"`
}

// BillingConfig represents billing configuration.
type BillingConfig struct {
	Enabled       bool          `yaml:"enabled"`
	BaseURL       string        `yaml:"base_url" default:"https://api.revenuecat.com/v1" validate:"required,url"`
	APIKey        string        `yaml:"api_key" validate:"required_if=Enabled true"`
	AppUserID     string        `yaml:"app_user_id" validate:"required_if=Enabled true"`
	EntitlementID string        `yaml:"entitlement_id" default:"premium"`
	Timeout       time.Duration `yaml:"timeout" default:"10s"`
	MaxRetries    int           `yaml:"max_retries" default:"3" validate:"gte=0,lte=10"`
}

// LoggingConfig represents logger configuration.
type LoggingConfig struct {
	Output string `yaml:"output" default:"stdout"`
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn warning error"`
	File   string `yaml:"file"`
}

// Load loads configuration from a YAML file.
// Environment variables take precedence over file values for sensitive fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config file")
	}
	return Parse(data)
}

// Parse parses configuration from YAML bytes.
// Defaults are applied first so an explicit false in the file wins over a
// default of true.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, errors.Wrap(err, "failed to set defaults")
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, errors.Wrap(err, "failed to parse config file")
	}

	// Override with environment variables
	cfg.overrideFromEnv()

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "config validation failed")
	}

	return &cfg, nil
}

// overrideFromEnv overrides config values with environment variables.
func (c *Config) overrideFromEnv() {
	if v := os.Getenv("TRACKBOX_CONTROL_TOKEN"); v != "" {
		c.Server.ControlToken = v
	}
	if v := os.Getenv("SUPABASE_API_KEY"); v != "" {
		for i := range c.Catalog.Sources {
			if c.Catalog.Sources[i].Type == "supabase" {
				if c.Catalog.Sources[i].Settings == nil {
					c.Catalog.Sources[i].Settings = map[string]any{}
				}
				c.Catalog.Sources[i].Settings["api_key"] = v
			}
		}
	}
	if v := os.Getenv("REVENUECAT_API_KEY"); v != "" {
		c.Billing.APIKey = v
	}
	if v := os.Getenv("AWS_S3_ENDPOINT"); v != "" {
		c.Media.S3.Endpoint = v
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(err, "struct validation failed")
	}

	if c.Playback.UpdateInterval > c.Playback.BufferThreshold {
		return errors.Newf("update_interval (%s) must not exceed buffer_threshold (%s)",
			c.Playback.UpdateInterval, c.Playback.BufferThreshold)
	}

	return nil
}

// SourceTypes returns the configured catalog source types in order.
func (c *Config) SourceTypes() []string {
	types := make([]string, 0, len(c.Catalog.Sources))
	for _, s := range c.Catalog.Sources {
		types = append(types, s.Type)
	}
	return types
}

// IsFilterEnabled checks if a filter is enabled.
func (c *Config) IsFilterEnabled(filterName string) bool {
	if f, ok := c.Filters[filterName]; ok {
		return f.Enabled
	}
	return false
}

// FilterSettings returns the settings for a filter.
func (c *Config) FilterSettings(filterName string) map[string]any {
	if f, ok := c.Filters[filterName]; ok {
		return f.Settings
	}
	return nil
}
