package dividend

import (
	"fmt"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/fixedpoint"
)

// FeePolicy deducts the platform's cut from a gross payout. The service
// rounds the returned net amount to 7 digits before persisting it.
type FeePolicy interface {
	Apply(gross decimal.Decimal) decimal.Decimal
}

// NoFee passes gross payouts through untouched.
type NoFee struct{}

// Apply returns the gross amount unchanged.
func (NoFee) Apply(gross decimal.Decimal) decimal.Decimal {
	return gross
}

// RateFeePolicy deducts a fixed fraction of the gross amount.
type RateFeePolicy struct {
	rate decimal.Decimal
}

// NewRateFeePolicy creates a policy deducting rate (for example "0.01"
// for 1%). The rate must lie in [0, 1).
func NewRateFeePolicy(rate string) (*RateFeePolicy, error) {
	parsed, err := fixedpoint.Parse(rate)
	if err != nil {
		return nil, fmt.Errorf("fee rate: %w", err)
	}
	if parsed.IsNegative() || parsed.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return nil, fmt.Errorf("fee rate %s outside [0, 1)", rate)
	}
	return &RateFeePolicy{rate: parsed}, nil
}

// Apply returns gross minus the configured fraction.
func (p *RateFeePolicy) Apply(gross decimal.Decimal) decimal.Decimal {
	return gross.Sub(gross.Mul(p.rate))
}

// Rate returns the configured fee fraction.
func (p *RateFeePolicy) Rate() decimal.Decimal {
	return p.rate
}
