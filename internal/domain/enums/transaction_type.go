package enums

type TransactionType string

const (
	TransactionReinvest       TransactionType = "REINVEST"
	TransactionInvest         TransactionType = "INVEST"
	TransactionTopup          TransactionType = "TOPUP"
	TransactionDeposit        TransactionType = "DEPOSIT"
	TransactionManualWithdraw TransactionType = "MANUAL_WITHDRAW"
	TransactionAutoWithdraw   TransactionType = "AUTO_WITHDRAW"
	TransactionTransfer       TransactionType = "TRANSFER"
	TransactionSwap           TransactionType = "SWAP"
)
