package rules

import "testing"

func TestBusinessBonusTiers(t *testing.T) {
	cases := []struct {
		sum    float64
		rate   float64
		cap    float64
		capped bool
	}{
		{0, 5, 500, true},
		{500, 5, 500, true},
		{501, 10, 2500, true},
		{2500, 10, 2500, true},
		{2501, 15, 5000, true},
		{5000, 15, 5000, true},
		{5001, 20, 0, false},
		{100_000, 20, 0, false},
	}

	for _, tc := range cases {
		tier := BusinessBonus(tc.sum)
		if tier.Rate != tc.rate || tier.Cap != tc.cap || tier.Capped != tc.capped {
			t.Fatalf("BusinessBonus(%v) = %+v, want rate=%v cap=%v capped=%v",
				tc.sum, tier, tc.rate, tc.cap, tc.capped)
		}
	}
}
