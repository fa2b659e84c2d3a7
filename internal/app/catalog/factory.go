package catalog

import (
	"context"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackbox/internal/infra/config"
)

// NewChainFromConfig creates a source chain from configuration.
func NewChainFromConfig(ctx context.Context, cfg *config.Config) (*Chain, error) {
	if len(cfg.Catalog.Sources) == 0 {
		return nil, errors.New("no catalog sources configured")
	}

	var sources []SourceWithMetadata

	for i, scfg := range cfg.Catalog.Sources {
		var source Source
		var err error
		zlog.Debug().Msgf("creating catalog source: index=%d type=%s", i+1, scfg.Type)
		switch scfg.Type {
		case "file":
			source, err = NewFileSource(scfg.Settings)

		case "supabase":
			source, err = NewSupabaseSource(ctx, scfg.Settings)

		case "database":
			source, err = NewDatabaseSource(scfg.Settings)

		default:
			err = errors.Newf("unsupported source type: %s", scfg.Type)
		}

		if err != nil {
			_ = NewChain(sources).Close()
			return nil, errors.Wrapf(err, "failed to create source (index %d, type %s)", i, scfg.Type)
		}

		displayName := scfg.DisplayName
		if displayName == "" {
			displayName = scfg.Type
		}
		sources = append(sources, SourceWithMetadata{
			Source:      source,
			DisplayName: displayName,
		})

		zlog.Info().Msgf("registered catalog source: index=%d type=%s display_name=%s", i+1, scfg.Type, displayName)
	}

	return NewChain(sources), nil
}
