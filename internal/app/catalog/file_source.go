package catalog

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"gopkg.in/yaml.v3"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

// FileSourceConfig represents the configuration for FileSource.
type FileSourceConfig struct {
	Path string `yaml:"path" mapstructure:"path" validate:"required"`
}

// FileSource reads the catalog from a YAML document. Relative media paths
// are resolved against the document's directory.
type FileSource struct {
	config *FileSourceConfig
}

type fileDocument struct {
	Modules []fileModule `yaml:"modules"`
}

type fileModule struct {
	ID      string      `yaml:"id"`
	Name    string      `yaml:"name"`
	Image   string      `yaml:"image"`
	Premium bool        `yaml:"premium"`
	Tracks  []fileTrack `yaml:"tracks"`
}

type fileTrack struct {
	ID        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Media     string        `yaml:"media"`
	Duration  time.Duration `yaml:"duration"`
	Thumbnail string        `yaml:"thumbnail"`
}

// NewFileSource creates a new file source.
func NewFileSource(settings map[string]any) (*FileSource, error) {
	var config FileSourceConfig
	if err := decodeSettings(settings, &config); err != nil {
		return nil, err
	}
	return &FileSource{config: &config}, nil
}

// Name returns the source type name.
func (s *FileSource) Name() string {
	return "file"
}

// FetchModules parses the catalog document.
func (s *FileSource) FetchModules(_ context.Context) ([]module.Module, error) {
	data, err := os.ReadFile(s.config.Path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to read catalog file: path=%s", s.config.Path)
	}

	var doc fileDocument
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, errors.Wrapf(err, "failed to parse catalog file: path=%s", s.config.Path)
	}

	dir := filepath.Dir(s.config.Path)
	modules := make([]module.Module, 0, len(doc.Modules))
	for _, fm := range doc.Modules {
		m := module.Module{
			ID:       fm.ID,
			Name:     fm.Name,
			ImageRef: resolveRef(dir, fm.Image),
			Premium:  fm.Premium,
			Tracks:   make([]track.Track, 0, len(fm.Tracks)),
		}
		for _, ft := range fm.Tracks {
			m.Tracks = append(m.Tracks, track.Track{
				ID:           ft.ID,
				ModuleID:     fm.ID,
				Name:         ft.Name,
				MediaRef:     resolveRef(dir, ft.Media),
				Duration:     ft.Duration,
				ThumbnailRef: resolveRef(dir, ft.Thumbnail),
			})
		}
		modules = append(modules, m)
	}
	return modules, nil
}

// resolveRef joins a relative local path to dir. URLs and absolute paths
// are returned unchanged.
func resolveRef(dir, ref string) string {
	if ref == "" || filepath.IsAbs(ref) {
		return ref
	}
	if u, err := url.Parse(ref); err == nil && u.Scheme != "" {
		return ref
	}
	return filepath.Join(dir, ref)
}
