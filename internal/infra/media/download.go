package media

import (
	"context"
	"io"
	"sync"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const downloadChunkSize = 32 * 1024

// download copies a media stream into memory in the background so the
// handle can report how much of the track is playable.
type download struct {
	mu       sync.Mutex
	data     []byte
	total    int64 // -1 when unknown
	complete bool
	err      error

	cancel context.CancelFunc
	done   chan struct{}
}

// startDownload starts copying rc. onDone is called once with the full
// contents or the error that stopped the copy.
func startDownload(rc io.ReadCloser, total int64, onDone func(data []byte, err error)) *download {
	ctx, cancel := context.WithCancel(context.Background())
	d := &download{
		total:  total,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	if total > 0 {
		d.data = make([]byte, 0, total)
	}

	go func() {
		defer close(d.done)
		data, err := d.run(ctx, rc)
		onDone(data, err)
	}()

	// Unblock a pending Read when stopped.
	go func() {
		select {
		case <-ctx.Done():
			rc.Close()
		case <-d.done:
		}
	}()

	return d
}

func (d *download) run(ctx context.Context, rc io.ReadCloser) ([]byte, error) {
	defer rc.Close()

	buf := make([]byte, downloadChunkSize)
	for {
		n, err := rc.Read(buf)
		if n > 0 {
			d.mu.Lock()
			d.data = append(d.data, buf[:n]...)
			d.mu.Unlock()
		}
		if errors.Is(err, io.EOF) {
			d.mu.Lock()
			d.complete = true
			data := d.data
			d.mu.Unlock()
			return data, nil
		}
		if err != nil {
			if ctx.Err() != nil {
				err = ctx.Err()
			}
			d.mu.Lock()
			d.err = err
			d.mu.Unlock()
			zlog.Debug().Err(err).Msg("media: download stopped")
			return nil, errors.Wrap(err, "failed to download media")
		}
	}
}

// fraction returns the downloaded share of the media in [0, 1].
func (d *download) fraction() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.complete {
		return 1
	}
	if d.total <= 0 {
		return 0
	}
	f := float64(len(d.data)) / float64(d.total)
	if f > 1 {
		return 1
	}
	return f
}

// finished reports whether every byte of the media has arrived.
func (d *download) finished() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.complete
}

// failed returns the error that stopped the download, if any.
func (d *download) failed() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.err
}

// stop cancels the download and waits for the copy to end.
func (d *download) stop() {
	d.cancel()
	<-d.done
}
