package stub

import (
	"context"
	"fmt"

	"pi-launchpad/internal/staking"
)

// Provider implements staking.Provider for testing.
type Provider struct {
	// Positions holds per-user staking data keyed by launchID|userID.
	Positions map[string]*staking.Data

	// Default is returned for users with no configured position.
	// When nil, unknown users get a zero stake that still shares the
	// platform-wide total of the configured positions.
	Default *staking.Data

	// Err, when set, is returned by every call.
	Err error
}

// NewProvider creates a new stub staking provider.
func NewProvider() *Provider {
	return &Provider{
		Positions: make(map[string]*staking.Data),
	}
}

func positionKey(launchID, userID string) string {
	return fmt.Sprintf("%s|%s", launchID, userID)
}

// StakingData retrieves the configured position for the user.
func (p *Provider) StakingData(_ context.Context, launchID, userID string) (*staking.Data, error) {
	if p.Err != nil {
		return nil, p.Err
	}

	if data, ok := p.Positions[positionKey(launchID, userID)]; ok {
		copied := *data
		return &copied, nil
	}

	if p.Default != nil {
		copied := *p.Default
		return &copied, nil
	}

	return &staking.Data{
		StakedPi:    "0.0000000",
		SumStakedPi: "0.0000000",
	}, nil
}

// SetPosition configures the staking data returned for one user.
func (p *Provider) SetPosition(launchID, userID string, data *staking.Data) {
	p.Positions[positionKey(launchID, userID)] = data
}
