package enums

type PullTransactionType string

const (
	// PullBusiness and PullCashBox are pool credits produced by the
	// investment split; the remaining types are pool-bound payouts.
	PullBusiness            PullTransactionType = "BUSINESS"
	PullCashBox             PullTransactionType = "CASH_BOX"
	PullCashBoxTopup        PullTransactionType = "CASH_BOX_TOPUP"
	PullCashBoxTopupTechAcc PullTransactionType = "CASH_BOX_TOPUP_TECH_ACC"
	PullReferral            PullTransactionType = "REFERRAL"
)
