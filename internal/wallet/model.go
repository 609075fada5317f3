package wallet

import (
	"time"

	"github.com/shopspring/decimal"
)

// Balance encapsulates available funds for a wallet.
type Balance struct {
	WalletID  int64
	WalletRef string
	Amount    decimal.Decimal
	AsOf      time.Time
}

// Result reports a wallet debit and the record describing it. RecordID is
// empty when the record could not be written.
type Result struct {
	WalletID      int64
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	RecordID      string
}

// TransferInput captures a wallet-to-wallet transfer request.
type TransferInput struct {
	FromWalletID int64
	ToWalletID   int64
	UserID       int64
	Amount       decimal.Decimal
}

// TransferResult reports both legs of a wallet transfer.
type TransferResult struct {
	FromBalanceBefore decimal.Decimal
	FromBalanceAfter  decimal.Decimal
	ToBalanceBefore   decimal.Decimal
	ToBalanceAfter    decimal.Decimal
	RecipientID       int64
	RecordID          string
}
