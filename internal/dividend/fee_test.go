package dividend

import (
	"testing"

	"github.com/shopspring/decimal"

	"pi-launchpad/internal/fixedpoint"
)

func TestNoFee(t *testing.T) {
	gross := fixedpoint.MustParse("123.4567890")
	if got := (NoFee{}).Apply(gross); !got.Equal(gross) {
		t.Errorf("NoFee must pass gross through, got %s", got)
	}
}

func TestRateFeePolicy(t *testing.T) {
	fee, err := NewRateFeePolicy("0.015")
	if err != nil {
		t.Fatalf("NewRateFeePolicy: %v", err)
	}

	got := fee.Apply(decimal.NewFromInt(1000))
	if want := decimal.NewFromInt(985); !got.Equal(want) {
		t.Errorf("expected 985, got %s", got)
	}

	if !fee.Rate().Equal(fixedpoint.MustParse("0.015")) {
		t.Errorf("unexpected rate %s", fee.Rate())
	}
}

func TestRateFeePolicy_ZeroRate(t *testing.T) {
	fee, err := NewRateFeePolicy("0")
	if err != nil {
		t.Fatalf("NewRateFeePolicy: %v", err)
	}

	gross := fixedpoint.MustParse("42.0000000")
	if got := fee.Apply(gross); !got.Equal(gross) {
		t.Errorf("zero rate must not deduct, got %s", got)
	}
}

func TestNewRateFeePolicy_Bounds(t *testing.T) {
	for _, rate := range []string{"0", "0.5", "0.9999999"} {
		if _, err := NewRateFeePolicy(rate); err != nil {
			t.Errorf("rate %q should be accepted: %v", rate, err)
		}
	}

	for _, rate := range []string{"-0.01", "1", "1.5", "abc", ""} {
		if _, err := NewRateFeePolicy(rate); err == nil {
			t.Errorf("rate %q should be rejected", rate)
		}
	}
}
