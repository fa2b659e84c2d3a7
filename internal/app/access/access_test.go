package access

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/osa030/trackbox/internal/app/billing"
	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

type stubBilling struct {
	info  *billing.CustomerInfo
	err   error
	calls int
}

func (s *stubBilling) GetCustomerInfo(context.Context) (*billing.CustomerInfo, error) {
	s.calls++
	return s.info, s.err
}

func premiumInfo(expires *time.Time) *billing.CustomerInfo {
	return &billing.CustomerInfo{Entitlements: map[string]billing.Entitlement{
		"premium": {ID: "premium", IsActive: true, ExpiresAt: expires},
	}}
}

func TestMediaRefFilter_Check(t *testing.T) {
	f := &MediaRefFilter{}
	m := &module.Module{ID: "calm"}

	assert.Equal(t, Accept(), f.Check(context.Background(), m, track.Track{ID: "A", MediaRef: "a.mp3"}))
	assert.Equal(t, Reject(CodeMissingMedia), f.Check(context.Background(), m, track.Track{ID: "A"}))
}

func TestPremiumFilter_Check(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)

	tests := []struct {
		name     string
		premium  bool
		billing  *stubBilling
		expected Result
	}{
		{
			name:     "free module",
			premium:  false,
			billing:  &stubBilling{err: errors.New("never called")},
			expected: Accept(),
		},
		{
			name:     "premium with entitlement",
			premium:  true,
			billing:  &stubBilling{info: premiumInfo(nil)},
			expected: Accept(),
		},
		{
			name:     "premium expired",
			premium:  true,
			billing:  &stubBilling{info: premiumInfo(&past)},
			expected: Reject(CodePremiumRequired),
		},
		{
			name:     "premium without entitlements",
			premium:  true,
			billing:  &stubBilling{info: &billing.CustomerInfo{}},
			expected: Reject(CodePremiumRequired),
		},
		{
			name:     "billing error",
			premium:  true,
			billing:  &stubBilling{err: errors.New("timeout")},
			expected: Reject(CodeBillingUnavailable),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewPremiumFilter(tt.billing, func() time.Time { return now })
			m := &module.Module{ID: "focus", Premium: tt.premium}
			assert.Equal(t, tt.expected, f.Check(context.Background(), m, track.Track{ID: "F1", MediaRef: "f.mp3"}))
		})
	}
}

func TestPremiumFilter_NilBilling(t *testing.T) {
	f := NewPremiumFilter(nil, nil)
	m := &module.Module{ID: "focus", Premium: true}
	assert.Equal(t, Reject(CodePremiumRequired), f.Check(context.Background(), m, track.Track{}))
}

func TestPremiumFilter_CachesCustomerInfo(t *testing.T) {
	now := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	stub := &stubBilling{info: premiumInfo(nil)}
	f := NewPremiumFilter(stub, func() time.Time { return clock })
	require.NoError(t, f.ValidateConfig(map[string]any{"cache_ttl": "1m"}))
	m := &module.Module{ID: "focus", Premium: true}

	f.Check(context.Background(), m, track.Track{})
	f.Check(context.Background(), m, track.Track{})
	assert.Equal(t, 1, stub.calls)

	clock = now.Add(2 * time.Minute)
	f.Check(context.Background(), m, track.Track{})
	assert.Equal(t, 2, stub.calls)

	f.Invalidate()
	f.Check(context.Background(), m, track.Track{})
	assert.Equal(t, 3, stub.calls)
}

func TestPremiumFilter_ValidateConfig(t *testing.T) {
	f := NewPremiumFilter(nil, nil)

	require.NoError(t, f.ValidateConfig(map[string]any{"entitlement_id": "pro"}))
	assert.Equal(t, "pro", f.config.EntitlementID)
	assert.Equal(t, 5*time.Minute, f.config.CacheTTL)

	assert.Error(t, f.ValidateConfig(map[string]any{"cache_ttl": "soon"}))
}

func TestChain_Execute(t *testing.T) {
	chain := NewChain(&MediaRefFilter{})
	chain.Add(NewPremiumFilter(nil, nil))
	ctx := context.Background()

	free := &module.Module{ID: "calm"}
	premium := &module.Module{ID: "focus", Premium: true}

	assert.Equal(t, Accept(), chain.Execute(ctx, free, track.Track{MediaRef: "a.mp3"}))
	assert.Equal(t, CodeMissingMedia, chain.Execute(ctx, premium, track.Track{}).Code, "first rejection wins")
	assert.Equal(t, CodePremiumRequired, chain.Execute(ctx, premium, track.Track{MediaRef: "f.mp3"}).Code)
	assert.Len(t, chain.Filters(), 2)
}
