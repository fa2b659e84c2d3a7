// Package supabase provides a client for the Supabase REST API serving the
// module catalog.
package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

const moduleSelect = "id,name,image_url,is_premium,position,tracks(id,title,audio_url,duration_seconds,thumbnail_url,position)"

// Config represents Supabase client configuration.
type Config struct {
	URL          string        // Project URL, e.g. https://xyz.supabase.co
	APIKey       string        // Anon or service key
	ModulesTable string        // Defaults to "modules"
	Timeout      time.Duration // Defaults to 10s
	MaxRetries   int           // Defaults to 3
}

// Client is a Supabase REST client.
type Client struct {
	baseURL      string
	apiKey       string
	modulesTable string
	httpClient   *http.Client
	maxRetries   int
	retryDelay   time.Duration
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("supabase: status %d: %s", e.StatusCode, e.Message)
}

type moduleRow struct {
	ID       string     `json:"id"`
	Name     string     `json:"name"`
	ImageURL string     `json:"image_url"`
	Premium  bool       `json:"is_premium"`
	Position int        `json:"position"`
	Tracks   []trackRow `json:"tracks"`
}

type trackRow struct {
	ID              string  `json:"id"`
	Title           string  `json:"title"`
	AudioURL        string  `json:"audio_url"`
	DurationSeconds float64 `json:"duration_seconds"`
	ThumbnailURL    string  `json:"thumbnail_url"`
	Position        int     `json:"position"`
}

type apiError struct {
	Message string `json:"message"`
	Code    string `json:"code"`
}

// New creates a new Supabase client. Requests carry the key both as the
// apikey header and as a bearer token. A base *http.Client can be supplied
// through ctx with the oauth2.HTTPClient key.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, errors.New("supabase API key is required")
	}
	if cfg.ModulesTable == "" {
		cfg.ModulesTable = "modules"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.APIKey, TokenType: "Bearer"})
	httpClient := oauth2.NewClient(ctx, ts)
	httpClient.Timeout = cfg.Timeout

	return &Client{
		baseURL:      strings.TrimRight(cfg.URL, "/"),
		apiKey:       cfg.APIKey,
		modulesTable: cfg.ModulesTable,
		httpClient:   httpClient,
		maxRetries:   cfg.MaxRetries,
		retryDelay:   500 * time.Millisecond,
	}, nil
}

// FetchModules retrieves all modules with their tracks, both in position order.
func (c *Client) FetchModules(ctx context.Context) ([]module.Module, error) {
	params := url.Values{}
	params.Set("select", moduleSelect)
	params.Set("order", "position.asc")
	reqURL := fmt.Sprintf("%s/rest/v1/%s?%s", c.baseURL, c.modulesTable, params.Encode())

	var rows []moduleRow
	err := c.retry(ctx, func() error {
		return c.getJSON(ctx, reqURL, &rows)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to fetch modules")
	}

	modules := make([]module.Module, 0, len(rows))
	for _, r := range rows {
		modules = append(modules, r.toModule())
	}
	zlog.Debug().Msgf("supabase: fetched modules: count=%d", len(modules))
	return modules, nil
}

func (c *Client) getJSON(ctx context.Context, reqURL string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("apikey", c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var apiErr apiError
		msg := strings.TrimSpace(string(body))
		if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Message != "" {
			msg = apiErr.Message
		}
		return &StatusError{StatusCode: resp.StatusCode, Message: msg}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return errors.Wrap(err, "failed to parse response")
	}
	return nil
}

// retry retries an operation with linear backoff.
func (c *Client) retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for i := 0; i < c.maxRetries; i++ {
		err := fn()
		if err == nil {
			return nil
		}
		lastErr = err

		if !isRetryable(err) {
			return err
		}

		if i < c.maxRetries-1 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(c.retryDelay * time.Duration(i+1)):
			}
		}
	}
	return errors.Wrap(lastErr, "max retries exceeded")
}

// isRetryable reports rate limiting and server errors.
func isRetryable(err error) bool {
	var se *StatusError
	if !errors.As(err, &se) {
		return false
	}
	return se.StatusCode == http.StatusTooManyRequests || se.StatusCode >= 500
}

func (r moduleRow) toModule() module.Module {
	rows := make([]trackRow, len(r.Tracks))
	copy(rows, r.Tracks)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Position < rows[j].Position })

	tracks := make([]track.Track, 0, len(rows))
	for _, t := range rows {
		tracks = append(tracks, track.Track{
			ID:           t.ID,
			ModuleID:     r.ID,
			Name:         t.Title,
			MediaRef:     t.AudioURL,
			Duration:     time.Duration(t.DurationSeconds * float64(time.Second)),
			ThumbnailRef: t.ThumbnailURL,
		})
	}
	return module.Module{
		ID:       r.ID,
		Name:     r.Name,
		ImageRef: r.ImageURL,
		Premium:  r.Premium,
		Tracks:   tracks,
	}
}
