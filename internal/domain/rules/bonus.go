package rules

// BonusTier describes the business-pool bonus multiplier for a given
// accumulated pool sum. Cap is only meaningful when Capped is true.
type BonusTier struct {
	Rate   float64
	Cap    float64
	Capped bool
}

// BusinessBonus returns the bonus tier for an accumulated business-pool sum.
func BusinessBonus(businessPoolSum float64) BonusTier {
	switch {
	case businessPoolSum < 501:
		return BonusTier{Rate: 5, Cap: 500, Capped: true}
	case businessPoolSum <= 2500:
		return BonusTier{Rate: 10, Cap: 2500, Capped: true}
	case businessPoolSum <= 5000:
		return BonusTier{Rate: 15, Cap: 5000, Capped: true}
	default:
		return BonusTier{Rate: 20}
	}
}
