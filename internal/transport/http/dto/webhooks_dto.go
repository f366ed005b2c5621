package dto

// WalletTopupWebhookRequest is the indexer's report of a confirmed deposit
// to a subscribed wallet address.
type WalletTopupWebhookRequest struct {
	Address string  `json:"address"`
	Amount  float64 `json:"amount"`
	TxHash  string  `json:"tx_hash"`
}

// UsdtTransferWebhookRequest is the indexer's report of a confirmed
// transfer between two subscribed wallet addresses.
type UsdtTransferWebhookRequest struct {
	FromAddress string  `json:"from_address"`
	ToAddress   string  `json:"to_address"`
	Amount      float64 `json:"amount"`
	TxHash      string  `json:"tx_hash"`
}

type WebhookResponse struct {
	Status string `json:"status"`
}
