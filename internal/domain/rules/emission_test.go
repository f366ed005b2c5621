package rules

import "testing"

func TestEmissionMultiplierTiers(t *testing.T) {
	cases := []struct {
		balance float64
		want    float64
	}{
		{250_000, 1},
		{200_001, 1},
		{200_000, 2},
		{180_000, 2},
		{150_000, 3},
		{120_000, 3},
		{100_000, 4},
		{60_000, 4},
		{50_000, 5},
		{10_000, 5},
		{0, 5},
	}

	for _, tc := range cases {
		if got := EmissionMultiplier(tc.balance); got != tc.want {
			t.Fatalf("EmissionMultiplier(%v) = %v, want %v", tc.balance, got, tc.want)
		}
	}
}

func TestEmissionMultiplierIsMonotonicNonIncreasing(t *testing.T) {
	prev := EmissionMultiplier(0)
	for balance := float64(0); balance <= 260_000; balance += 500 {
		got := EmissionMultiplier(balance)
		if got > prev {
			t.Fatalf("rate rose from %v to %v at balance %v", prev, got, balance)
		}
		prev = got
	}
}

func TestNextRateRaise(t *testing.T) {
	cases := []struct {
		balance float64
		want    float64
	}{
		{250_000, 50_000},
		{180_000, 30_000},
		{120_000, 20_000},
		{60_000, 10_000},
		{50_000, 0},
		{0, 0},
	}

	for _, tc := range cases {
		if got := NextRateRaise(tc.balance); got != tc.want {
			t.Fatalf("NextRateRaise(%v) = %v, want %v", tc.balance, got, tc.want)
		}
	}
}
