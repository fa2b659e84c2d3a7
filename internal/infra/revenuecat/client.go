// Package revenuecat provides a billing client for the RevenueCat REST API.
package revenuecat

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
	"golang.org/x/oauth2"

	"github.com/osa030/trackbox/internal/app/billing"
)

// DefaultBaseURL is the RevenueCat v1 API endpoint.
const DefaultBaseURL = "https://api.revenuecat.com/v1"

// ErrNoReceiptProvider is returned by PurchasePackage when no store receipt
// provider was configured.
var ErrNoReceiptProvider = errors.New("purchases require a store receipt provider")

// ReceiptProvider obtains a store receipt (fetch token) for a package.
// Returning billing.ErrPurchaseCancelled aborts the purchase.
type ReceiptProvider func(ctx context.Context, pkg billing.Package) (string, error)

// Config represents RevenueCat client configuration.
type Config struct {
	BaseURL    string
	APIKey     string
	AppUserID  string
	Platform   string // X-Platform header, e.g. "ios", "android", "stripe"
	Timeout    time.Duration
	MaxRetries int
}

// Client is a RevenueCat API client. It implements billing.Client.
type Client struct {
	baseURL    string
	appUserID  string
	platform   string
	httpClient *http.Client
	maxRetries int
	retryDelay time.Duration
	receipts   ReceiptProvider
}

// Option configures optional client behavior.
type Option func(*Client)

// WithReceiptProvider sets the receipt provider used by PurchasePackage.
func WithReceiptProvider(p ReceiptProvider) Option {
	return func(c *Client) {
		c.receipts = p
	}
}

// StatusError is returned for non-2xx responses.
type StatusError struct {
	StatusCode int
	Code       int
	Message    string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("revenuecat: status %d (code %d): %s", e.StatusCode, e.Code, e.Message)
}

type apiError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type subscriberResponse struct {
	RequestDate time.Time `json:"request_date"`
	Subscriber  struct {
		OriginalAppUserID string                       `json:"original_app_user_id"`
		Entitlements      map[string]entitlementRecord `json:"entitlements"`
	} `json:"subscriber"`
}

type entitlementRecord struct {
	ExpiresDate       *time.Time `json:"expires_date"`
	ProductIdentifier string     `json:"product_identifier"`
	PurchaseDate      time.Time  `json:"purchase_date"`
}

type offeringsResponse struct {
	CurrentOfferingID string `json:"current_offering_id"`
	Offerings         []struct {
		Identifier  string `json:"identifier"`
		Description string `json:"description"`
		Packages    []struct {
			Identifier                string `json:"identifier"`
			PlatformProductIdentifier string `json:"platform_product_identifier"`
		} `json:"packages"`
	} `json:"offerings"`
}

type receiptRequest struct {
	AppUserID  string `json:"app_user_id"`
	FetchToken string `json:"fetch_token"`
	ProductID  string `json:"product_id"`
}

var _ billing.Client = (*Client)(nil)

// New creates a new RevenueCat client. A base *http.Client can be supplied
// through ctx with the oauth2.HTTPClient key.
func New(ctx context.Context, cfg Config, opts ...Option) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("revenuecat API key is required")
	}
	if cfg.AppUserID == "" {
		return nil, errors.New("revenuecat app user id is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
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

	c := &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		appUserID:  cfg.AppUserID,
		platform:   cfg.Platform,
		httpClient: httpClient,
		maxRetries: cfg.MaxRetries,
		retryDelay: time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// GetCustomerInfo retrieves the subscriber's entitlements.
func (c *Client) GetCustomerInfo(ctx context.Context) (*billing.CustomerInfo, error) {
	var resp subscriberResponse
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(c.appUserID), nil, &resp)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get customer info")
	}
	return resp.toCustomerInfo(c.appUserID), nil
}

// GetOfferings retrieves the offerings configured for the subscriber.
func (c *Client) GetOfferings(ctx context.Context) (*billing.Offerings, error) {
	var resp offeringsResponse
	err := c.retry(ctx, func() error {
		return c.do(ctx, http.MethodGet, "/subscribers/"+url.PathEscape(c.appUserID)+"/offerings", nil, &resp)
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to get offerings")
	}

	out := &billing.Offerings{CurrentID: resp.CurrentOfferingID}
	for _, o := range resp.Offerings {
		off := billing.Offering{ID: o.Identifier, Description: o.Description}
		for _, p := range o.Packages {
			off.Packages = append(off.Packages, billing.Package{
				ID:        p.Identifier,
				Type:      packageType(p.Identifier),
				ProductID: p.PlatformProductIdentifier,
			})
		}
		out.All = append(out.All, off)
	}
	return out, nil
}

// PurchasePackage posts the store receipt for pkg and returns the updated
// customer info.
func (c *Client) PurchasePackage(ctx context.Context, pkg billing.Package) (*billing.CustomerInfo, error) {
	if c.receipts == nil {
		return nil, ErrNoReceiptProvider
	}
	token, err := c.receipts(ctx, pkg)
	if err != nil {
		return nil, err
	}

	body := receiptRequest{AppUserID: c.appUserID, FetchToken: token, ProductID: pkg.ProductID}
	var resp subscriberResponse
	// Receipt posts are not retried.
	if err := c.do(ctx, http.MethodPost, "/receipts", body, &resp); err != nil {
		return nil, errors.Wrapf(err, "failed to purchase package: package_id=%s", pkg.ID)
	}
	zlog.Info().Msgf("revenuecat: purchase recorded: package_id=%s product_id=%s", pkg.ID, pkg.ProductID)
	return resp.toCustomerInfo(c.appUserID), nil
}

// RestorePurchases refreshes the customer info from the server.
func (c *Client) RestorePurchases(ctx context.Context) (*billing.CustomerInfo, error) {
	info, err := c.GetCustomerInfo(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "failed to restore purchases")
	}
	zlog.Info().Msgf("revenuecat: purchases restored: entitlements=%d", len(info.Entitlements))
	return info, nil
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return errors.Wrap(err, "failed to encode request")
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return errors.Wrap(err, "failed to create request")
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.platform != "" {
		req.Header.Set("X-Platform", c.platform)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return errors.Wrap(err, "failed to send request")
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return errors.Wrap(err, "failed to read response body")
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		se := &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(data))}
		var apiErr apiError
		if err := json.Unmarshal(data, &apiErr); err == nil && apiErr.Message != "" {
			se.Code = apiErr.Code
			se.Message = apiErr.Message
		}
		return se
	}

	if err := json.Unmarshal(data, out); err != nil {
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

func (r subscriberResponse) toCustomerInfo(appUserID string) *billing.CustomerInfo {
	now := r.RequestDate
	if now.IsZero() {
		now = time.Now()
	}
	info := &billing.CustomerInfo{
		AppUserID:    appUserID,
		Entitlements: make(map[string]billing.Entitlement, len(r.Subscriber.Entitlements)),
		RequestedAt:  now,
	}
	for id, e := range r.Subscriber.Entitlements {
		info.Entitlements[id] = billing.Entitlement{
			ID:        id,
			ProductID: e.ProductIdentifier,
			IsActive:  e.ExpiresDate == nil || e.ExpiresDate.After(now),
			WillRenew: e.ExpiresDate != nil,
			ExpiresAt: e.ExpiresDate,
		}
	}
	return info
}

// packageType derives the package type from RevenueCat's reserved
// identifiers such as "$rc_monthly".
func packageType(identifier string) string {
	if t, ok := strings.CutPrefix(identifier, "$rc_"); ok {
		return strings.ToUpper(t)
	}
	return "CUSTOM"
}
