package catalog

import (
	"context"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/infra/store"
)

// DatabaseSourceConfig represents the configuration for DatabaseSource.
type DatabaseSourceConfig struct {
	Backend     string `yaml:"backend" mapstructure:"backend" default:"sqlite" validate:"oneof=sqlite postgres"`
	DSN         string `yaml:"dsn" mapstructure:"dsn" validate:"required"`
	AutoMigrate bool   `yaml:"auto_migrate" mapstructure:"auto_migrate"`
}

// DatabaseSource reads the catalog from a SQL database.
type DatabaseSource struct {
	store *store.Store
}

// NewDatabaseSource creates a new database source and connects to it.
func NewDatabaseSource(settings map[string]any) (*DatabaseSource, error) {
	var config DatabaseSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	s, err := store.Open(store.Config{
		Backend:     config.Backend,
		DSN:         config.DSN,
		AutoMigrate: config.AutoMigrate,
	})
	if err != nil {
		return nil, err
	}
	return &DatabaseSource{store: s}, nil
}

// Name returns the source type name.
func (s *DatabaseSource) Name() string {
	return "database"
}

// FetchModules queries the catalog tables.
func (s *DatabaseSource) FetchModules(ctx context.Context) ([]module.Module, error) {
	return s.store.FetchModules(ctx)
}

// Close closes the database connection.
func (s *DatabaseSource) Close() error {
	return s.store.Close()
}
