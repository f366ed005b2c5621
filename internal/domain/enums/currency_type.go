package enums

type CurrencyType string

const (
	CurrencyUSDT CurrencyType = "USDT"
	CurrencyROST CurrencyType = "ROST"
)
