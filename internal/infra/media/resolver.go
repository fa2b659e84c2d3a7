package media

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cockroachdb/errors"
	lru "github.com/hashicorp/golang-lru/v2"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

// ErrUnsupportedRef is returned for media references with an unknown scheme.
var ErrUnsupportedRef = errors.New("unsupported media reference")

// S3Config configures s3:// references.
type S3Config struct {
	Region    string `yaml:"region" default:"us-east-1"`
	Endpoint  string `yaml:"endpoint"`   // Custom endpoint for S3-compatible storage
	PathStyle bool   `yaml:"path_style"` // Use path-style addressing
}

// ResolverConfig configures a Resolver.
type ResolverConfig struct {
	CacheEntries int           `yaml:"cache_entries" default:"8" validate:"min=1"`
	HTTPTimeout  time.Duration `yaml:"http_timeout" default:"30s"`
	S3           S3Config      `yaml:"s3"`
}

// S3API is the subset of the S3 client used by the resolver.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// ResolverOption configures optional Resolver dependencies.
type ResolverOption func(*Resolver)

// WithS3Client sets the S3 client instead of building one from the default
// AWS configuration.
func WithS3Client(client S3API) ResolverOption {
	return func(r *Resolver) {
		r.s3 = client
	}
}

// WithHTTPClient sets the HTTP client used for http(s) references.
func WithHTTPClient(client *http.Client) ResolverOption {
	return func(r *Resolver) {
		r.http = client
	}
}

// Resolver opens media references and keeps recently fetched media in an
// in-memory LRU cache.
type Resolver struct {
	config ResolverConfig
	http   *http.Client
	cache  *lru.Cache[string, []byte]
	group  singleflight.Group

	s3Once sync.Once
	s3     S3API
	s3Err  error
}

// NewResolver creates a new resolver.
func NewResolver(config ResolverConfig, opts ...ResolverOption) (*Resolver, error) {
	if config.CacheEntries <= 0 {
		config.CacheEntries = 8
	}
	cache, err := lru.New[string, []byte](config.CacheEntries)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create media cache")
	}

	r := &Resolver{
		config: config,
		http:   &http.Client{Timeout: config.HTTPTimeout},
		cache:  cache,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Open returns a reader for ref and its size in bytes, or -1 when unknown.
func (r *Resolver) Open(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	if data, ok := r.cache.Get(ref); ok {
		zlog.Debug().Msgf("media: cache hit: ref=%s bytes=%d", ref, len(data))
		return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
	}

	u, err := url.Parse(ref)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to parse media reference: ref=%s", ref)
	}

	switch u.Scheme {
	case "":
		return openFile(ref)
	case "file":
		return openFile(u.Path)
	case "http", "https":
		return r.openHTTP(ctx, ref)
	case "s3":
		return r.openS3(ctx, u)
	default:
		return nil, 0, errors.Wrapf(ErrUnsupportedRef, "scheme=%s", u.Scheme)
	}
}

// Fetch returns the full contents of ref, from the cache when present.
func (r *Resolver) Fetch(ctx context.Context, ref string) ([]byte, error) {
	if data, ok := r.cache.Get(ref); ok {
		return data, nil
	}

	v, err, _ := r.group.Do(ref, func() (any, error) {
		rc, _, err := r.Open(ctx, ref)
		if err != nil {
			return nil, err
		}
		defer rc.Close()

		data, err := io.ReadAll(rc)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read media: ref=%s", ref)
		}
		r.cache.Add(ref, data)
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

// Prefetch warms the cache for ref.
func (r *Resolver) Prefetch(ctx context.Context, ref string) error {
	if r.cache.Contains(ref) {
		return nil
	}
	data, err := r.Fetch(ctx, ref)
	if err != nil {
		return err
	}
	zlog.Debug().Msgf("media: prefetched: ref=%s bytes=%d", ref, len(data))
	return nil
}

// Store adds fully downloaded media to the cache.
func (r *Resolver) Store(ref string, data []byte) {
	r.cache.Add(ref, data)
}

// Cached reports whether ref is in the cache.
func (r *Resolver) Cached(ref string) bool {
	return r.cache.Contains(ref)
}

func openFile(path string) (io.ReadCloser, int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to open media file: path=%s", path)
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, 0, errors.Wrapf(err, "failed to stat media file: path=%s", path)
	}
	return f, info.Size(), nil
}

func (r *Resolver) openHTTP(ctx context.Context, ref string) (io.ReadCloser, int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, ref, nil)
	if err != nil {
		return nil, 0, errors.Wrap(err, "failed to create media request")
	}

	resp, err := r.http.Do(req)
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to fetch media: url=%s", ref)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, 0, errors.Newf("failed to fetch media: url=%s status=%d", ref, resp.StatusCode)
	}
	return resp.Body, resp.ContentLength, nil
}

func (r *Resolver) openS3(ctx context.Context, u *url.URL) (io.ReadCloser, int64, error) {
	client, err := r.s3Client(ctx)
	if err != nil {
		return nil, 0, err
	}

	bucket := u.Host
	key := strings.TrimPrefix(u.Path, "/")
	if bucket == "" || key == "" {
		return nil, 0, errors.Wrapf(ErrUnsupportedRef, "s3 reference needs bucket and key: ref=%s", u.String())
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, errors.Wrapf(err, "failed to get object: bucket=%s key=%s", bucket, key)
	}

	size := int64(-1)
	if out.ContentLength != nil {
		size = *out.ContentLength
	}
	return out.Body, size, nil
}

func (r *Resolver) s3Client(ctx context.Context) (S3API, error) {
	r.s3Once.Do(func() {
		if r.s3 != nil {
			return
		}
		cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(r.config.S3.Region))
		if err != nil {
			r.s3Err = errors.Wrap(err, "failed to load AWS configuration")
			return
		}
		r.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
			if r.config.S3.Endpoint != "" {
				o.BaseEndpoint = aws.String(r.config.S3.Endpoint)
			}
			o.UsePathStyle = r.config.S3.PathStyle
		})
		zlog.Info().Msgf("media: s3 client initialized: region=%s endpoint=%s", r.config.S3.Region, r.config.S3.Endpoint)
	})
	return r.s3, r.s3Err
}
