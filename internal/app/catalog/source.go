// Package catalog provides module catalog data sources and loading.
package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"

	"github.com/osa030/trackbox/internal/domain/module"
)

// Source is the interface for catalog data sources.
type Source interface {
	// FetchModules retrieves all modules with their tracks in display order.
	FetchModules(ctx context.Context) ([]module.Module, error)

	// Name returns the source type name (used in config).
	Name() string
}

// decodeSettings decodes a settings map into config, applies defaults and
// validates the result.
func decodeSettings(settings map[string]any, config any) error {
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:           config,
		TagName:          "mapstructure",
		WeaklyTypedInput: true,
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}
	return nil
}
