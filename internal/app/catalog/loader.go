package catalog

import (
	"context"

	zlog "github.com/rs/zerolog/log"
	"github.com/samber/lo"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

// Result is the outcome of a catalog load. On failure Catalog is empty,
// never nil, and Failed is set.
type Result struct {
	Catalog *module.Catalog
	Failed  bool
	Err     error
}

// Loader fetches the catalog from a source and sanitizes it.
type Loader struct {
	source Source
}

// NewLoader creates a new loader.
func NewLoader(source Source) *Loader {
	return &Loader{source: source}
}

// Load fetches and sanitizes the catalog. Modules without an ID and
// duplicate module or track IDs are dropped, keeping the first occurrence.
func (l *Loader) Load(ctx context.Context) Result {
	modules, err := l.source.FetchModules(ctx)
	if err != nil {
		zlog.Error().Msgf("catalog: load failed: source=%s error=%v", l.source.Name(), err)
		return Result{Catalog: module.NewCatalog(nil), Failed: true, Err: err}
	}

	modules = sanitize(modules)
	zlog.Info().Msgf("catalog: loaded: source=%s modules=%d", l.source.Name(), len(modules))
	return Result{Catalog: module.NewCatalog(modules)}
}

func sanitize(modules []module.Module) []module.Module {
	valid := lo.Filter(modules, func(m module.Module, _ int) bool {
		if m.ID == "" {
			zlog.Warn().Msgf("catalog: dropping module without id: name=%s", m.Name)
			return false
		}
		return true
	})
	for _, dup := range lo.FindDuplicatesBy(valid, func(m module.Module) string { return m.ID }) {
		zlog.Warn().Msgf("catalog: duplicate module id: module_id=%s", dup.ID)
	}
	valid = lo.UniqBy(valid, func(m module.Module) string { return m.ID })

	for i := range valid {
		tracks := valid[i].Tracks
		for _, dup := range lo.FindDuplicatesBy(tracks, func(t track.Track) string { return t.ID }) {
			zlog.Warn().Msgf("catalog: duplicate track id: module_id=%s track_id=%s", valid[i].ID, dup.ID)
		}
		valid[i].Tracks = lo.UniqBy(tracks, func(t track.Track) string { return t.ID })
	}
	return valid
}
