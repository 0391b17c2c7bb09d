package staking

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// Default configuration values. The staking lookup sits on the commit
// request path, so its timeout is tighter than the ledger client's.
const (
	DefaultTimeout    = 10 * time.Second
	DefaultMaxRetries = 2
	DefaultRetryDelay = 500 * time.Millisecond
)

// HTTPProvider implements Provider against the staking service HTTP API.
type HTTPProvider struct {
	baseURL    string
	client     *http.Client
	maxRetries int
	retryDelay time.Duration
}

// ProviderOption configures HTTPProvider.
type ProviderOption func(*HTTPProvider)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ProviderOption {
	return func(p *HTTPProvider) {
		p.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ProviderOption {
	return func(p *HTTPProvider) {
		p.maxRetries = n
	}
}

// WithRetryDelay sets the delay between retries.
func WithRetryDelay(d time.Duration) ProviderOption {
	return func(p *HTTPProvider) {
		p.retryDelay = d
	}
}

// WithHTTPClient sets custom http.Client.
func WithHTTPClient(client *http.Client) ProviderOption {
	return func(p *HTTPProvider) {
		p.client = client
	}
}

// NewHTTPProvider creates a new staking service client.
func NewHTTPProvider(baseURL string, opts ...ProviderOption) *HTTPProvider {
	p := &HTTPProvider{
		baseURL:    baseURL,
		client:     &http.Client{Timeout: DefaultTimeout},
		maxRetries: DefaultMaxRetries,
		retryDelay: DefaultRetryDelay,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// stakingResult is the raw staking service response.
type stakingResult struct {
	StakedPi             string `json:"staked_pi"`
	SumStakedPi          string `json:"sum_staked_pi"`
	QualifiesForBaseline bool   `json:"qualifies_for_baseline"`
}

// StakingData retrieves the user's staking position for a launch.
func (p *HTTPProvider) StakingData(ctx context.Context, launchID, userID string) (*Data, error) {
	u := fmt.Sprintf("%s/launches/%s/users/%s/staking",
		p.baseURL, url.PathEscape(launchID), url.PathEscape(userID))

	var lastErr error

	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(p.retryDelay):
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
		if err != nil {
			return nil, fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		resp, err := p.client.Do(req)
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

		if resp.StatusCode == http.StatusTooManyRequests {
			lastErr = fmt.Errorf("rate limited (429)")
			continue
		}

		if resp.StatusCode != http.StatusOK {
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(respBody))
			continue
		}

		var result stakingResult
		if err := json.Unmarshal(respBody, &result); err != nil {
			return nil, fmt.Errorf("unmarshal response: %w", err)
		}

		return &Data{
			StakedPi:             result.StakedPi,
			SumStakedPi:          result.SumStakedPi,
			QualifiesForBaseline: result.QualifiesForBaseline,
		}, nil
	}

	return nil, fmt.Errorf("max retries exceeded: %w", lastErr)
}
