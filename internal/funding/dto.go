package funding

import "github.com/shopspring/decimal"

// FundRequest is the body of a wallet funding call. Amount accepts a JSON
// number or string.
type FundRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// FundResponse acknowledges an accepted funding intent. The wallet is
// credited later by the reconciler.
type FundResponse struct {
	Message       string `json:"message"`
	WalletRef     string `json:"wallet_ref"`
	TransactionID string `json:"transaction_id"`
	Status        string `json:"status"`
	Amount        string `json:"amount"`
}
