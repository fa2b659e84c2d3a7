package access

import (
	"context"
	"sync"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	zlog "github.com/rs/zerolog/log"

	"github.com/osa030/trackbox/internal/app/billing"
	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

// PremiumConfig represents the configuration for PremiumFilter.
type PremiumConfig struct {
	EntitlementID string        `yaml:"entitlement_id" mapstructure:"entitlement_id" default:"premium" validate:"required"`
	CacheTTL      time.Duration `yaml:"cache_ttl" mapstructure:"cache_ttl" default:"5m" validate:"gte=0"`
}

// CustomerInfoGetter is the part of the billing client the filter needs.
type CustomerInfoGetter interface {
	GetCustomerInfo(ctx context.Context) (*billing.CustomerInfo, error)
}

// PremiumFilter rejects tracks of premium modules unless the customer holds
// an active entitlement. Customer info is cached for CacheTTL.
type PremiumFilter struct {
	billing CustomerInfoGetter
	now     func() time.Time
	config  *PremiumConfig

	mu        sync.Mutex
	info      *billing.CustomerInfo
	fetchedAt time.Time
}

// NewPremiumFilter creates a new premium filter with default settings.
// A nil billing client rejects every premium module.
func NewPremiumFilter(client CustomerInfoGetter, now func() time.Time) *PremiumFilter {
	if now == nil {
		now = time.Now
	}
	config := &PremiumConfig{}
	_ = defaults.Set(config)
	return &PremiumFilter{billing: client, now: now, config: config}
}

func (f *PremiumFilter) Name() string {
	return "premium_filter"
}

func (f *PremiumFilter) Description() string {
	return "Requires an active premium entitlement for premium modules"
}

func (f *PremiumFilter) ReturnCodes() []string {
	return []string{CodePremiumRequired, CodeBillingUnavailable}
}

// ValidateConfig decodes and validates the filter settings.
func (f *PremiumFilter) ValidateConfig(settings map[string]any) error {
	var config PremiumConfig

	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		Result:     &config,
		TagName:    "mapstructure",
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
	})
	if err != nil {
		return errors.Wrap(err, "failed to create decoder")
	}
	if err := decoder.Decode(settings); err != nil {
		return errors.Wrap(err, "failed to decode settings")
	}
	if err := defaults.Set(&config); err != nil {
		return errors.Wrap(err, "failed to set defaults")
	}
	if err := validator.New().Struct(config); err != nil {
		return errors.Wrap(err, "validation failed")
	}

	f.config = &config
	zlog.Info().Msgf("premium filter config: %+v", config)
	return nil
}

func (f *PremiumFilter) Check(ctx context.Context, m *module.Module, _ track.Track) Result {
	if m == nil || !m.Premium {
		return Accept()
	}
	if f.billing == nil {
		return Reject(CodePremiumRequired)
	}

	info, err := f.customerInfo(ctx)
	if err != nil {
		zlog.Warn().Msgf("premium filter: customer info unavailable: module=%s error=%v", m.ID, err)
		return Reject(CodeBillingUnavailable)
	}
	if !billing.IsPremium(info, f.config.EntitlementID, f.now()) {
		return Reject(CodePremiumRequired)
	}
	return Accept()
}

// Invalidate drops the cached customer info, e.g. after a purchase.
func (f *PremiumFilter) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.info = nil
}

func (f *PremiumFilter) customerInfo(ctx context.Context) (*billing.CustomerInfo, error) {
	f.mu.Lock()
	if f.info != nil && f.now().Sub(f.fetchedAt) < f.config.CacheTTL {
		info := f.info
		f.mu.Unlock()
		return info, nil
	}
	f.mu.Unlock()

	info, err := f.billing.GetCustomerInfo(ctx)
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.info = info
	f.fetchedAt = f.now()
	f.mu.Unlock()
	return info, nil
}
