package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements Client against a Horizon-style HTTP API.
type HTTPClient struct {
	baseURL     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithMaxDelay sets maximum retry delay.
func WithMaxDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.maxDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ClientOption {
	return func(c *HTTPClient) {
		c.client = client
	}
}

// NewHTTPClient creates a new ledger HTTP client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// errNotFound marks a 404 response inside the retry loop.
type errNotFound struct{ path string }

func (e *errNotFound) Error() string {
	return fmt.Sprintf("resource not found: %s", e.path)
}

// get performs a GET with retries and exponential backoff, decoding the
// JSON body into result. 404 responses are not retried.
func (c *HTTPClient) get(ctx context.Context, path string, query url.Values, result interface{}) error {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		respBody, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		// Handle rate limiting
		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		// Missing resources are definitive, not transient
		if resp.StatusCode == http.StatusNotFound {
			return &errNotFound{path: path}
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(respBody, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}

		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// HoldersOfAsset retrieves one page of accounts holding the asset.
func (c *HTTPClient) HoldersOfAsset(ctx context.Context, asset Asset, cursor string, limit int) (*HoldersPage, error) {
	query := url.Values{}
	query.Set("asset", asset.String())
	if cursor != "" {
		query.Set("cursor", cursor)
	}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}

	var result accountsPageResult
	if err := c.get(ctx, "/accounts", query, &result); err != nil {
		return nil, err
	}

	page := &HoldersPage{}
	for _, rec := range result.Embedded.Records {
		balance := assetBalance(rec.Balances, asset)
		if balance == "" {
			continue
		}
		page.Holders = append(page.Holders, Holder{
			PublicKey: rec.AccountID,
			Balance:   balance,
		})
	}

	// A short page means the account stream is exhausted.
	if n := len(result.Embedded.Records); n > 0 && (limit <= 0 || n >= limit) {
		page.NextCursor = result.Embedded.Records[n-1].PagingToken
	}

	return page, nil
}

// GetAccount retrieves account state by public key.
// Returns nil if the account does not exist.
func (c *HTTPClient) GetAccount(ctx context.Context, publicKey string) (*Account, error) {
	var result accountResult
	err := c.get(ctx, "/accounts/"+url.PathEscape(publicKey), nil, &result)
	if err != nil {
		var nf *errNotFound
		if errors.As(err, &nf) {
			return nil, nil
		}
		return nil, err
	}

	account := &Account{
		PublicKey: result.AccountID,
		Sequence:  result.Sequence,
	}
	for _, b := range result.Balances {
		account.Balances = append(account.Balances, Balance{
			AssetCode:   b.AssetCode,
			AssetIssuer: b.AssetIssuer,
			Amount:      b.Balance,
		})
	}

	return account, nil
}

func assetBalance(balances []balanceResult, asset Asset) string {
	for _, b := range balances {
		if b.AssetCode == asset.Code && b.AssetIssuer == asset.Issuer {
			return b.Balance
		}
	}
	return ""
}

// accountsPageResult is the raw response for the paginated accounts query.
type accountsPageResult struct {
	Embedded struct {
		Records []accountResult `json:"records"`
	} `json:"_embedded"`
}

// accountResult is the raw response for a single account.
type accountResult struct {
	AccountID   string          `json:"account_id"`
	PagingToken string          `json:"paging_token"`
	Sequence    string          `json:"sequence"`
	Balances    []balanceResult `json:"balances"`
}

type balanceResult struct {
	Balance     string `json:"balance"`
	AssetType   string `json:"asset_type"`
	AssetCode   string `json:"asset_code"`
	AssetIssuer string `json:"asset_issuer"`
}
