package rules

// Emission tier boundaries over the tech account's remaining ROST reserve.
// The rate is the number of USDT one ROST costs; it grows as the reserve
// drains.
const (
	emissionTier1Floor = 200_000
	emissionTier2Floor = 150_000
	emissionTier3Floor = 100_000
	emissionTier4Floor = 50_000
)

// EmissionMultiplier returns the current ROST exchange rate as a decreasing
// step function of the reserve balance. Each tier is a half-open range
// (floor, ceiling]; at or below 50 000 the rate is pinned at 5.
func EmissionMultiplier(techPoolBalance float64) float64 {
	switch {
	case techPoolBalance > emissionTier1Floor:
		return 1
	case techPoolBalance > emissionTier2Floor:
		return 2
	case techPoolBalance > emissionTier3Floor:
		return 3
	case techPoolBalance > emissionTier4Floor:
		return 4
	default:
		return 5
	}
}

// NextRateRaise returns how many ROST must leave the reserve before the rate
// rises to the next tier, or 0 when the rate is already at its maximum.
func NextRateRaise(techPoolBalance float64) float64 {
	switch {
	case techPoolBalance > emissionTier1Floor:
		return techPoolBalance - emissionTier1Floor
	case techPoolBalance > emissionTier2Floor:
		return techPoolBalance - emissionTier2Floor
	case techPoolBalance > emissionTier3Floor:
		return techPoolBalance - emissionTier3Floor
	case techPoolBalance > emissionTier4Floor:
		return techPoolBalance - emissionTier4Floor
	default:
		return 0
	}
}
