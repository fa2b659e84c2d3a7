package access

import (
	"context"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

// MediaRefFilter rejects tracks without a media reference.
type MediaRefFilter struct{}

func (f *MediaRefFilter) Name() string {
	return "media_ref_filter"
}

func (f *MediaRefFilter) Description() string {
	return "Rejects tracks that have no playable media reference"
}

func (f *MediaRefFilter) ReturnCodes() []string {
	return []string{CodeMissingMedia}
}

func (f *MediaRefFilter) Check(_ context.Context, _ *module.Module, t track.Track) Result {
	if !t.HasMedia() {
		return Reject(CodeMissingMedia)
	}
	return Accept()
}
