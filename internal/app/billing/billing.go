// Package billing defines the in-app purchase collaborator and premium
// entitlement rules.
package billing

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
)

// DefaultEntitlementID is the entitlement that unlocks premium modules.
const DefaultEntitlementID = "premium"

var (
	// ErrPurchaseCancelled is returned when the user aborts a purchase.
	ErrPurchaseCancelled = errors.New("purchase cancelled")
	// ErrPackageNotFound is returned when a package is not part of any offering.
	ErrPackageNotFound = errors.New("package not found")
)

// Package is a purchasable product inside an offering.
type Package struct {
	ID          string `json:"identifier"`
	Type        string `json:"package_type"`
	ProductID   string `json:"product_id"`
	PriceString string `json:"price_string"`
}

// Offering is a named group of packages presented together.
type Offering struct {
	ID          string    `json:"identifier"`
	Description string    `json:"description"`
	Packages    []Package `json:"packages"`
}

// Offerings is the set of offerings available to the current user.
type Offerings struct {
	CurrentID string     `json:"current_offering_id"`
	All       []Offering `json:"offerings"`
}

// Current returns the current offering.
func (o *Offerings) Current() (*Offering, bool) {
	if o == nil {
		return nil, false
	}
	for i := range o.All {
		if o.All[i].ID == o.CurrentID {
			return &o.All[i], true
		}
	}
	return nil, false
}

// FindPackage looks up a package by ID across all offerings.
func (o *Offerings) FindPackage(packageID string) (Package, error) {
	if o != nil {
		for _, off := range o.All {
			for _, p := range off.Packages {
				if p.ID == packageID {
					return p, nil
				}
			}
		}
	}
	return Package{}, errors.Wrapf(ErrPackageNotFound, "package_id=%s", packageID)
}

// Entitlement is an access right granted by a purchase.
type Entitlement struct {
	ID        string     `json:"identifier"`
	ProductID string     `json:"product_identifier"`
	IsActive  bool       `json:"is_active"`
	WillRenew bool       `json:"will_renew"`
	ExpiresAt *time.Time `json:"expires_date"` // nil for lifetime purchases
}

// ActiveAt reports whether the entitlement grants access at now.
func (e Entitlement) ActiveAt(now time.Time) bool {
	if !e.IsActive {
		return false
	}
	return e.ExpiresAt == nil || e.ExpiresAt.After(now)
}

// CustomerInfo is the purchase state of a user.
type CustomerInfo struct {
	AppUserID    string                 `json:"app_user_id"`
	Entitlements map[string]Entitlement `json:"entitlements"`
	RequestedAt  time.Time              `json:"request_date"`
}

// Client is the billing collaborator.
type Client interface {
	GetOfferings(ctx context.Context) (*Offerings, error)
	PurchasePackage(ctx context.Context, pkg Package) (*CustomerInfo, error)
	RestorePurchases(ctx context.Context) (*CustomerInfo, error)
	GetCustomerInfo(ctx context.Context) (*CustomerInfo, error)
}

// IsPremium reports whether info holds an active, unexpired entitlement.
func IsPremium(info *CustomerInfo, entitlementID string, now time.Time) bool {
	if info == nil {
		return false
	}
	e, ok := info.Entitlements[entitlementID]
	if !ok {
		return false
	}
	return e.ActiveAt(now)
}
