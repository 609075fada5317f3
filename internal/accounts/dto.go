package accounts

import (
	"time"

	"github.com/shopspring/decimal"
)

// AmountRequest is the body of deposit and withdraw calls. Amount accepts a
// JSON number or string.
type AmountRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

// TransferRequest is the body of an account transfer.
type TransferRequest struct {
	FromAccountID int64           `json:"from_account_id"`
	ToAccountID   int64           `json:"to_account_id"`
	Amount        decimal.Decimal `json:"amount"`
}

// MovementResponse reports a deposit or withdrawal.
type MovementResponse struct {
	AccountID     int64  `json:"account_id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// TransferResponse reports the caller's side of a transfer.
type TransferResponse struct {
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// BalanceResponse is returned by the balance endpoint.
type BalanceResponse struct {
	AccountID int64     `json:"account_id"`
	Balance   string    `json:"balance"`
	Timestamp time.Time `json:"timestamp"`
}

// HoldingResponse describes one provisioned ledger row.
type HoldingResponse struct {
	ID        int64  `json:"id"`
	Reference string `json:"reference"`
	Balance   string `json:"balance"`
}

// ProvisionResponse is returned after provisioning a user.
type ProvisionResponse struct {
	UserID  int64           `json:"user_id"`
	Account HoldingResponse `json:"account"`
	Wallet  HoldingResponse `json:"wallet"`
}
