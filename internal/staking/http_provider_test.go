package staking

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPProvider_StakingData(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/launches/launch1/users/user1/staking" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		resp := map[string]interface{}{
			"staked_pi":              "120.0000000",
			"sum_staked_pi":          "100000.0000000",
			"qualifies_for_baseline": true,
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL)
	ctx := context.Background()

	data, err := provider.StakingData(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("StakingData: %v", err)
	}

	if data.StakedPi != "120.0000000" {
		t.Errorf("expected staked 120.0000000, got %s", data.StakedPi)
	}

	if data.SumStakedPi != "100000.0000000" {
		t.Errorf("expected sum 100000.0000000, got %s", data.SumStakedPi)
	}

	if !data.QualifiesForBaseline {
		t.Error("expected baseline qualification")
	}
}

func TestHTTPProvider_Retry(t *testing.T) {
	var attempts atomic.Int32

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		count := attempts.Add(1)
		if count < 2 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}

		resp := map[string]interface{}{
			"staked_pi":     "1.0000000",
			"sum_staked_pi": "1.0000000",
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL,
		WithMaxRetries(2),
		WithRetryDelay(10*time.Millisecond),
	)
	ctx := context.Background()

	data, err := provider.StakingData(ctx, "launch1", "user1")
	if err != nil {
		t.Fatalf("StakingData: %v", err)
	}

	if data.QualifiesForBaseline {
		t.Error("expected baseline to default false")
	}

	if attempts.Load() != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts.Load())
	}
}

func TestHTTPProvider_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL,
		WithMaxRetries(1),
		WithRetryDelay(5*time.Millisecond),
	)
	ctx := context.Background()

	if _, err := provider.StakingData(ctx, "launch1", "user1"); err == nil {
		t.Fatal("expected error after exhausted retries")
	}
}

func TestHTTPProvider_ContextCancellation(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(100 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	provider := NewHTTPProvider(server.URL)
	ctx, cancel := context.WithCancel(context.Background())
	cancel() // Cancel immediately

	if _, err := provider.StakingData(ctx, "launch1", "user1"); err == nil {
		t.Fatal("expected error from cancelled context")
	}
}
