package txlog

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Type classifies a transaction record.
type Type string

const (
	TypeDeposit        Type = "DEPOSIT"
	TypeWithdraw       Type = "WITHDRAW"
	TypeTransfer       Type = "TRANSFER"
	TypeWalletTransfer Type = "WALLET_TRANSFER"
	TypeWalletWithdraw Type = "WALLET_WITHDRAW"
	TypeWalletFund     Type = "wallet_fund"
)

// Status is the lifecycle state of a record. Synchronous operations are
// written as successful; wallet funding moves through the settlement states.
type Status string

const (
	StatusSuccessful Status = "successful"
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether no further transition is allowed.
func (s Status) Terminal() bool {
	switch s {
	case StatusSuccessful, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// CanTransitionTo reports whether a transition from s to next is allowed.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusPending:
		return next == StatusProcessing
	case StatusProcessing:
		return next == StatusProcessing || next == StatusCompleted || next == StatusFailed
	default:
		return false
	}
}

// ValidType reports whether t is a known record type.
func ValidType(t Type) bool {
	switch t {
	case TypeDeposit, TypeWithdraw, TypeTransfer, TypeWalletTransfer, TypeWalletWithdraw, TypeWalletFund:
		return true
	default:
		return false
	}
}

// ValidStatus reports whether s is a known status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusSuccessful, StatusPending, StatusProcessing, StatusCompleted, StatusFailed:
		return true
	default:
		return false
	}
}

// Record is one entry of the transaction log.
type Record struct {
	ID            string
	UserID        int64
	Type          Type
	Amount        decimal.Decimal
	Status        Status
	FromAccountID *int64
	ToAccountID   *int64
	FromWalletID  *int64
	ToWalletID    *int64
	WalletRef     string
	BalanceBefore decimal.NullDecimal
	BalanceAfter  decimal.NullDecimal
	FailureReason string
	ClaimedAt     *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Filter selects records for Find. Zero values leave a dimension unbounded.
type Filter struct {
	UserID int64
	Type   Type
	Status Status
	Since  time.Time
	Until  time.Time
	Page   int
	Limit  int
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
	MaxLimit     = 100
)

// Normalize applies pagination defaults and bounds.
func (f Filter) Normalize() Filter {
	if f.Page < 1 {
		f.Page = DefaultPage
	}
	if f.Limit < 1 {
		f.Limit = DefaultLimit
	}
	if f.Limit > MaxLimit {
		f.Limit = MaxLimit
	}
	return f
}

func (f Filter) skip() int {
	return (f.Page - 1) * f.Limit
}

// Page is one page of Find results, newest first.
type Page struct {
	Records []Record
	Total   int64
	Page    int
	Limit   int
}

// TotalPages returns the number of pages needed for Total records.
func (p Page) TotalPages() int {
	if p.Limit <= 0 {
		return 0
	}
	return int((p.Total + int64(p.Limit) - 1) / int64(p.Limit))
}

// DueQuery selects wallet_fund records ready for settlement: pending records
// created at or before CreatedBefore and processing records whose claim is
// at or before ClaimedBefore.
type DueQuery struct {
	CreatedBefore time.Time
	ClaimedBefore time.Time
	Limit         int
}

// Store is the append-only transaction log.
type Store interface {
	// Append assigns an ID and timestamps when absent and stores rec.
	Append(ctx context.Context, rec *Record) error
	Find(ctx context.Context, f Filter) (Page, error)
	// Due lists settlement candidates oldest first.
	Due(ctx context.Context, q DueQuery) ([]Record, error)
	// Claim atomically moves a due wallet_fund record to processing. It
	// reports false when another worker holds it or it is no longer due.
	Claim(ctx context.Context, id string, at, staleBefore time.Time) (Record, bool, error)
	// UpdateStatus finalizes a processing record. Repeating the transition a
	// record already went through is a no-op.
	UpdateStatus(ctx context.Context, id string, to Status, reason string) error
}

// ID returns a pointer to v for the optional identifier fields of Record.
func ID(v int64) *int64 {
	return &v
}
