package stub

import (
	"context"

	"pi-launchpad/internal/ledger"
)

// Client implements ledger.Client for testing.
type Client struct {
	Holders  map[string][]ledger.Holder // keyed by Asset.String()
	Accounts map[string]*ledger.Account

	// Err, when set, is returned by every call. Lets tests exercise
	// ledger failures mid-pagination.
	Err error
}

// NewClient creates a new stub ledger client.
func NewClient() *Client {
	return &Client{
		Holders:  make(map[string][]ledger.Holder),
		Accounts: make(map[string]*ledger.Account),
	}
}

// HoldersOfAsset pages through the configured holders in insertion order.
// The cursor is the public key of the last holder already served.
func (c *Client) HoldersOfAsset(_ context.Context, asset ledger.Asset, cursor string, limit int) (*ledger.HoldersPage, error) {
	if c.Err != nil {
		return nil, c.Err
	}

	all := c.Holders[asset.String()]

	start := 0
	if cursor != "" {
		for i, h := range all {
			if h.PublicKey == cursor {
				start = i + 1
				break
			}
		}
	}

	end := len(all)
	if limit > 0 && start+limit < end {
		end = start + limit
	}

	page := &ledger.HoldersPage{}
	if start < end {
		page.Holders = append(page.Holders, all[start:end]...)
	}
	if end < len(all) {
		page.NextCursor = all[end-1].PublicKey
	}

	return page, nil
}

// GetAccount retrieves an account from the stub store.
// Returns nil when the account is not configured, matching the ledger.
func (c *Client) GetAccount(_ context.Context, publicKey string) (*ledger.Account, error) {
	if c.Err != nil {
		return nil, c.Err
	}
	return c.Accounts[publicKey], nil
}

// AddHolder appends a holder of the asset to the stub store.
func (c *Client) AddHolder(asset ledger.Asset, publicKey, balance string) {
	key := asset.String()
	c.Holders[key] = append(c.Holders[key], ledger.Holder{
		PublicKey: publicKey,
		Balance:   balance,
	})
}

// AddAccount adds an account to the stub store.
func (c *Client) AddAccount(account *ledger.Account) {
	c.Accounts[account.PublicKey] = account
}
