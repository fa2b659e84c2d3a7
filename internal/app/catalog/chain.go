package catalog

import (
	"context"
	"io"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackbox/internal/domain/module"
)

// SourceWithMetadata wraps a source with its metadata.
type SourceWithMetadata struct {
	Source      Source
	DisplayName string
}

// Chain tries multiple sources in order until one returns modules.
type Chain struct {
	sources []SourceWithMetadata
}

// NewChain creates a new source chain.
func NewChain(sources []SourceWithMetadata) *Chain {
	return &Chain{
		sources: sources,
	}
}

// FetchModules returns the modules of the first source that succeeds with a
// non-empty result. Later sources act as fallbacks. An empty result is
// returned only when every source failed or was empty and at least one
// succeeded.
func (c *Chain) FetchModules(ctx context.Context) ([]module.Module, error) {
	var (
		lastErr   error
		succeeded bool
	)
	for i, sm := range c.sources {
		zlog.Debug().Msgf("catalog: trying source: index=%d total=%d name=%s type=%s",
			i+1, len(c.sources), sm.DisplayName, sm.Source.Name())

		modules, err := sm.Source.FetchModules(ctx)
		if err != nil {
			zlog.Warn().Msgf("catalog: source failed, trying next: source=%s error=%v", sm.DisplayName, err)
			lastErr = err
			continue
		}
		succeeded = true

		if len(modules) == 0 {
			zlog.Debug().Msgf("catalog: source returned no modules: source=%s", sm.DisplayName)
			continue
		}

		zlog.Info().Msgf("catalog: source returned modules: source=%s count=%d", sm.DisplayName, len(modules))
		return modules, nil
	}

	if succeeded {
		return []module.Module{}, nil
	}
	if lastErr == nil {
		return nil, errors.New("no catalog sources configured")
	}
	return nil, errors.Wrap(lastErr, "all catalog sources failed")
}

// Name returns the chain name.
func (c *Chain) Name() string {
	return "source_chain"
}

// Sources returns the sources in the chain.
func (c *Chain) Sources() []SourceWithMetadata {
	return c.sources
}

// Close releases sources that hold resources.
func (c *Chain) Close() error {
	var errs error
	for _, sm := range c.sources {
		if closer, ok := sm.Source.(io.Closer); ok {
			if err := closer.Close(); err != nil {
				errs = errors.CombineErrors(errs, err)
			}
		}
	}
	return errs
}
