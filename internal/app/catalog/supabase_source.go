package catalog

import (
	"context"
	"time"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/infra/supabase"
)

// SupabaseSourceConfig represents the configuration for SupabaseSource.
type SupabaseSourceConfig struct {
	URL        string        `yaml:"url" mapstructure:"url" validate:"required,url"`
	APIKey     string        `yaml:"api_key" mapstructure:"api_key" validate:"required"`
	Table      string        `yaml:"table" mapstructure:"table" default:"modules"`
	Timeout    time.Duration `yaml:"timeout" mapstructure:"timeout" default:"10s"`
	MaxRetries int           `yaml:"max_retries" mapstructure:"max_retries" default:"3" validate:"gte=1,lte=10"`
}

// SupabaseSource reads the catalog from a Supabase project.
type SupabaseSource struct {
	client *supabase.Client
}

// NewSupabaseSource creates a new Supabase source.
func NewSupabaseSource(ctx context.Context, settings map[string]any) (*SupabaseSource, error) {
	var config SupabaseSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	client, err := supabase.New(ctx, supabase.Config{
		URL:          config.URL,
		APIKey:       config.APIKey,
		ModulesTable: config.Table,
		Timeout:      config.Timeout,
		MaxRetries:   config.MaxRetries,
	})
	if err != nil {
		return nil, err
	}
	return &SupabaseSource{client: client}, nil
}

// Name returns the source type name.
func (s *SupabaseSource) Name() string {
	return "supabase"
}

// FetchModules retrieves modules from the REST API.
func (s *SupabaseSource) FetchModules(ctx context.Context) ([]module.Module, error) {
	return s.client.FetchModules(ctx)
}
