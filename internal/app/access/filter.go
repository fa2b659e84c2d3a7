// Package access provides the filter chain deciding whether a track may be
// opened.
package access

import (
	"context"

	"github.com/osa030/trackbox/internal/domain/module"
	"github.com/osa030/trackbox/internal/domain/track"
)

// Result codes.
const (
	CodeMissingMedia       = "missing_media"
	CodePremiumRequired    = "premium_required"
	CodeBillingUnavailable = "billing_unavailable"
)

// Result represents the result of a filter check.
type Result struct {
	Accepted bool
	Code     string // e.g., "missing_media", "premium_required"
}

// Accept returns an accepted result.
func Accept() Result {
	return Result{Accepted: true}
}

// Reject returns a rejected result with the given code.
func Reject(code string) Result {
	return Result{Accepted: false, Code: code}
}

// Filter is the interface for access filters.
type Filter interface {
	// Name returns the filter name (used in config).
	Name() string
	// Description returns a human-readable description.
	Description() string
	// ReturnCodes returns the codes this filter can return.
	ReturnCodes() []string
	// Check performs the filter check.
	Check(ctx context.Context, m *module.Module, t track.Track) Result
}

// Chain executes filters in sequence.
type Chain struct {
	filters []Filter
}

// NewChain creates a new filter chain.
func NewChain(filters ...Filter) *Chain {
	return &Chain{
		filters: filters,
	}
}

// Add adds a filter to the chain.
func (c *Chain) Add(f Filter) {
	c.filters = append(c.filters, f)
}

// Execute runs all filters in sequence.
// Returns immediately if any filter rejects the track.
func (c *Chain) Execute(ctx context.Context, m *module.Module, t track.Track) Result {
	for _, f := range c.filters {
		result := f.Check(ctx, m, t)
		if !result.Accepted {
			return result
		}
	}
	return Accept()
}

// Filters returns all filters in the chain.
func (c *Chain) Filters() []Filter {
	return c.filters
}
