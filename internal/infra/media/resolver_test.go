package media

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeS3 struct {
	objects map[string]string
	calls   atomic.Int32
}

func (f *fakeS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls.Add(1)
	body, ok := f.objects[aws.ToString(in.Bucket)+"/"+aws.ToString(in.Key)]
	if !ok {
		return nil, errors.New("NoSuchKey")
	}
	return &s3.GetObjectOutput{
		Body:          io.NopCloser(strings.NewReader(body)),
		ContentLength: aws.Int64(int64(len(body))),
	}, nil
}

func newTestResolver(t *testing.T, opts ...ResolverOption) *Resolver {
	t.Helper()
	r, err := NewResolver(ResolverConfig{CacheEntries: 2, HTTPTimeout: 5 * time.Second}, opts...)
	require.NoError(t, err)
	return r
}

func readAll(t *testing.T, rc io.ReadCloser) string {
	t.Helper()
	defer rc.Close()
	data, err := io.ReadAll(rc)
	require.NoError(t, err)
	return string(data)
}

func TestResolver_OpenFile(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "intro.mp3")
	require.NoError(t, os.WriteFile(p, []byte("ID3audio"), 0o644))

	r := newTestResolver(t)

	for _, ref := range []string{p, "file://" + p} {
		rc, size, err := r.Open(context.Background(), ref)
		require.NoError(t, err, ref)
		assert.Equal(t, int64(8), size)
		assert.Equal(t, "ID3audio", readAll(t, rc))
	}
}

func TestResolver_OpenFileMissing(t *testing.T) {
	r := newTestResolver(t)

	_, _, err := r.Open(context.Background(), filepath.Join(t.TempDir(), "missing.mp3"))

	assert.Error(t, err)
}

func TestResolver_OpenHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Path != "/audio/a.mp3" {
			http.NotFound(w, req)
			return
		}
		_, _ = w.Write([]byte("remote-bytes"))
	}))
	defer srv.Close()

	r := newTestResolver(t, WithHTTPClient(srv.Client()))

	rc, size, err := r.Open(context.Background(), srv.URL+"/audio/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(12), size)
	assert.Equal(t, "remote-bytes", readAll(t, rc))

	_, _, err = r.Open(context.Background(), srv.URL+"/audio/missing.mp3")
	assert.ErrorContains(t, err, "status=404")
}

func TestResolver_OpenS3(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"audio/calm/breathing.mp3": "s3-bytes"}}
	r := newTestResolver(t, WithS3Client(client))

	rc, size, err := r.Open(context.Background(), "s3://audio/calm/breathing.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(8), size)
	assert.Equal(t, "s3-bytes", readAll(t, rc))

	_, _, err = r.Open(context.Background(), "s3://audio")
	assert.True(t, errors.Is(err, ErrUnsupportedRef))
}

func TestResolver_UnsupportedScheme(t *testing.T) {
	r := newTestResolver(t)

	_, _, err := r.Open(context.Background(), "ftp://example.com/a.mp3")

	assert.True(t, errors.Is(err, ErrUnsupportedRef))
}

func TestResolver_PrefetchServesFromCache(t *testing.T) {
	client := &fakeS3{objects: map[string]string{"audio/a.mp3": "aaaa"}}
	r := newTestResolver(t, WithS3Client(client))
	ctx := context.Background()

	require.NoError(t, r.Prefetch(ctx, "s3://audio/a.mp3"))
	require.NoError(t, r.Prefetch(ctx, "s3://audio/a.mp3"))
	assert.True(t, r.Cached("s3://audio/a.mp3"))

	rc, size, err := r.Open(ctx, "s3://audio/a.mp3")
	require.NoError(t, err)
	assert.Equal(t, int64(4), size)
	assert.Equal(t, "aaaa", readAll(t, rc))
	assert.Equal(t, int32(1), client.calls.Load())
}

func TestResolver_CacheEvictsOldest(t *testing.T) {
	r := newTestResolver(t)

	r.Store("a", []byte("1"))
	r.Store("b", []byte("2"))
	r.Store("c", []byte("3"))

	assert.False(t, r.Cached("a"))
	assert.True(t, r.Cached("b"))
	assert.True(t, r.Cached("c"))
}

type slowReader struct {
	chunks []string
}

func (s *slowReader) Read(p []byte) (int, error) {
	if len(s.chunks) == 0 {
		return 0, io.EOF
	}
	n := copy(p, s.chunks[0])
	s.chunks = s.chunks[1:]
	return n, nil
}

func (s *slowReader) Close() error { return nil }

func TestDownload_Complete(t *testing.T) {
	done := make(chan []byte, 1)
	d := startDownload(&slowReader{chunks: []string{"ab", "cd"}}, 4, func(data []byte, err error) {
		assert.NoError(t, err)
		done <- data
	})

	select {
	case data := <-done:
		assert.Equal(t, "abcd", string(data))
	case <-time.After(time.Second):
		t.Fatal("download did not complete")
	}
	d.stop()

	assert.Equal(t, 1.0, d.fraction())
	assert.True(t, d.finished())
	assert.NoError(t, d.failed())
}

func TestDownload_UnknownSize(t *testing.T) {
	done := make(chan struct{})
	d := startDownload(&slowReader{chunks: []string{"ab", "cd"}}, -1, func(data []byte, err error) {
		assert.NoError(t, err)
		assert.Equal(t, "abcd", string(data))
		close(done)
	})

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("download did not complete")
	}
	d.stop()

	assert.True(t, d.finished())
	assert.Equal(t, 1.0, d.fraction())
}

type blockingReader struct {
	closed chan struct{}
}

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.closed
	return 0, io.ErrClosedPipe
}

func (b *blockingReader) Close() error {
	select {
	case <-b.closed:
	default:
		close(b.closed)
	}
	return nil
}

func TestDownload_Stop(t *testing.T) {
	var gotErr atomic.Bool
	d := startDownload(&blockingReader{closed: make(chan struct{})}, 100, func(_ []byte, err error) {
		gotErr.Store(err != nil)
	})

	d.stop()

	assert.True(t, gotErr.Load())
	assert.Equal(t, 0.0, d.fraction())
	assert.False(t, d.finished())
	assert.Error(t, d.failed())
}
