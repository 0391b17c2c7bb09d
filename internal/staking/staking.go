package staking

import "context"

// Data is one user's staking position for one launch window.
type Data struct {
	// StakedPi is the user's locked stake, 7-decimal string.
	StakedPi string

	// SumStakedPi is the platform-wide staked total across all
	// participants of the launch, 7-decimal string.
	SumStakedPi string

	// QualifiesForBaseline reports whether the user meets the platform's
	// baseline criteria and receives the flat power floor.
	QualifiesForBaseline bool
}

// Provider supplies staking state from the platform staking service.
type Provider interface {
	// StakingData retrieves the user's staking position for a launch.
	StakingData(ctx context.Context, launchID, userID string) (*Data, error)
}
