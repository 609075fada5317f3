package txlog

import (
	"time"

	"github.com/shopspring/decimal"
)

const moneyScale = 2

// RecordResponse is the API view of a transaction record.
type RecordResponse struct {
	ID            string    `json:"id"`
	UserID        int64     `json:"user_id"`
	Type          string    `json:"type"`
	Amount        string    `json:"amount"`
	Status        string    `json:"status"`
	FromAccountID *int64    `json:"from_account_id,omitempty"`
	ToAccountID   *int64    `json:"to_account_id,omitempty"`
	FromWalletID  *int64    `json:"from_wallet_id,omitempty"`
	ToWalletID    *int64    `json:"to_wallet_id,omitempty"`
	WalletRef     string    `json:"wallet_ref,omitempty"`
	BalanceBefore *string   `json:"balance_before,omitempty"`
	BalanceAfter  *string   `json:"balance_after,omitempty"`
	FailureReason string    `json:"failure_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// PaginationResponse describes the page returned by the history endpoint.
type PaginationResponse struct {
	Page       int `json:"page"`
	Limit      int `json:"limit"`
	TotalPages int `json:"total_pages"`
}

// HistoryResponse wraps a page of records.
type HistoryResponse struct {
	Total int64 `json:"total"`
	Data  struct {
		Transactions []RecordResponse  `json:"transactions"`
		Pagination   PaginationResponse `json:"pagination"`
	} `json:"data"`
}

// ToResponse converts a record into its API view.
func ToResponse(rec Record) RecordResponse {
	return RecordResponse{
		ID:            rec.ID,
		UserID:        rec.UserID,
		Type:          string(rec.Type),
		Amount:        rec.Amount.StringFixed(moneyScale),
		Status:        string(rec.Status),
		FromAccountID: rec.FromAccountID,
		ToAccountID:   rec.ToAccountID,
		FromWalletID:  rec.FromWalletID,
		ToWalletID:    rec.ToWalletID,
		WalletRef:     rec.WalletRef,
		BalanceBefore: fixed(rec.BalanceBefore),
		BalanceAfter:  fixed(rec.BalanceAfter),
		FailureReason: rec.FailureReason,
		CreatedAt:     rec.CreatedAt,
		UpdatedAt:     rec.UpdatedAt,
	}
}

func fixed(v decimal.NullDecimal) *string {
	if !v.Valid {
		return nil
	}
	s := v.Decimal.StringFixed(moneyScale)
	return &s
}
