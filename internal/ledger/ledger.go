package ledger

import (
	"context"
	"fmt"
)

// Asset identifies a token on the ledger by code and issuing account.
type Asset struct {
	Code   string
	Issuer string
}

// String returns the canonical CODE:ISSUER form.
func (a Asset) String() string {
	return fmt.Sprintf("%s:%s", a.Code, a.Issuer)
}

// Client defines the ledger query interface.
type Client interface {
	// HoldersOfAsset retrieves one page of accounts holding the asset with
	// a positive balance. An empty cursor starts from the first holder; the
	// returned NextCursor is empty once the last page has been served.
	HoldersOfAsset(ctx context.Context, asset Asset, cursor string, limit int) (*HoldersPage, error)

	// GetAccount retrieves basic account state by public key.
	// Returns nil if the account does not exist on the ledger.
	GetAccount(ctx context.Context, publicKey string) (*Account, error)
}

// Holder is one account holding an asset, with its asset-specific balance.
type Holder struct {
	PublicKey string
	Balance   string // 7-decimal string
}

// HoldersPage is one page of holders plus the cursor for the following page.
type HoldersPage struct {
	Holders    []Holder
	NextCursor string
}

// Account represents ledger account state.
type Account struct {
	PublicKey string
	Sequence  string
	Balances  []Balance
}

// Balance is one asset balance line on an account.
type Balance struct {
	AssetCode   string
	AssetIssuer string
	Amount      string // 7-decimal string
}

// BalanceOf returns the account's balance of the given asset, or "" if the
// account holds no trustline for it.
func (a *Account) BalanceOf(asset Asset) string {
	for _, b := range a.Balances {
		if b.AssetCode == asset.Code && b.AssetIssuer == asset.Issuer {
			return b.Amount
		}
	}
	return ""
}
