package accounts

import (
	"context"
	"log/slog"
	"strconv"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/notification"
	"github.com/congo-pay/bankee/internal/txlog"
)

// Service exposes account operations backed by the ledger.
type Service struct {
	store    ledger.Store
	journal  *txlog.Journal
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService builds an account service. notifier, logger and m may be nil.
func NewService(store ledger.Store, journal *txlog.Journal, notifier notification.Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, journal: journal, notifier: notifier, logger: logger, metrics: m}
}

// Result reports a single-row balance change and the record describing it.
// RecordID is empty when the record could not be written.
type Result struct {
	AccountID     int64
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	RecordID      string
}

// TransferResult reports both legs of an account transfer.
type TransferResult struct {
	From     ledger.Movement
	To       ledger.Movement
	RecordID string
}

// TransferInput captures an account-to-account transfer request.
type TransferInput struct {
	FromAccountID int64
	ToAccountID   int64
	UserID        int64
	Amount        decimal.Decimal
}

// Deposit credits amount to an account owned by userID.
func (s *Service) Deposit(ctx context.Context, accountID, userID int64, amount decimal.Decimal) (Result, error) {
	if err := checkIDs(userID, accountID); err != nil {
		return Result{}, err
	}
	m, err := ledger.Credit(ctx, s.store, ledger.KindAccount, accountID, userID, amount)
	s.metrics.ObserveOperation("deposit", err)
	if err != nil {
		return Result{}, err
	}

	rec, ok := s.journal.Record(ctx, txlog.Record{
		UserID:        userID,
		Type:          txlog.TypeDeposit,
		Amount:        amount,
		Status:        txlog.StatusSuccessful,
		ToAccountID:   txlog.ID(accountID),
		BalanceBefore: decimal.NewNullDecimal(m.Before),
		BalanceAfter:  decimal.NewNullDecimal(m.After),
	})
	return Result{AccountID: accountID, BalanceBefore: m.Before, BalanceAfter: m.After, RecordID: recordID(rec, ok)}, nil
}

// Withdraw debits amount from an account owned by userID.
func (s *Service) Withdraw(ctx context.Context, accountID, userID int64, amount decimal.Decimal) (Result, error) {
	if err := checkIDs(userID, accountID); err != nil {
		return Result{}, err
	}
	m, err := ledger.Debit(ctx, s.store, ledger.KindAccount, accountID, userID, amount)
	s.metrics.ObserveOperation("withdraw", err)
	if err != nil {
		return Result{}, err
	}

	rec, ok := s.journal.Record(ctx, txlog.Record{
		UserID:        userID,
		Type:          txlog.TypeWithdraw,
		Amount:        amount,
		Status:        txlog.StatusSuccessful,
		FromAccountID: txlog.ID(accountID),
		BalanceBefore: decimal.NewNullDecimal(m.Before),
		BalanceAfter:  decimal.NewNullDecimal(m.After),
	})
	return Result{AccountID: accountID, BalanceBefore: m.Before, BalanceAfter: m.After, RecordID: recordID(rec, ok)}, nil
}

// Transfer moves amount from an account owned by the caller to any other
// account. Only the debit leg is journaled.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if err := checkIDs(in.UserID, in.FromAccountID, in.ToAccountID); err != nil {
		return TransferResult{}, err
	}
	t, err := ledger.Move(ctx, s.store, ledger.KindAccount, in.FromAccountID, in.ToAccountID, in.UserID, in.Amount)
	s.metrics.ObserveOperation("transfer", err)
	if err != nil {
		return TransferResult{}, err
	}

	rec, ok := s.journal.Record(ctx, txlog.Record{
		UserID:        in.UserID,
		Type:          txlog.TypeTransfer,
		Amount:        in.Amount,
		Status:        txlog.StatusSuccessful,
		FromAccountID: txlog.ID(in.FromAccountID),
		ToAccountID:   txlog.ID(in.ToAccountID),
		BalanceBefore: decimal.NewNullDecimal(t.From.Before),
		BalanceAfter:  decimal.NewNullDecimal(t.From.After),
	})

	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindTransfer,
		Destination: strconv.FormatInt(t.To.Row.UserID, 10),
		Body:        "you received " + in.Amount.StringFixed(ledger.Scale),
		Attributes: map[string]string{
			"to_account_id":   strconv.FormatInt(in.ToAccountID, 10),
			"from_account_id": strconv.FormatInt(in.FromAccountID, 10),
			"amount":          in.Amount.StringFixed(ledger.Scale),
		},
	})
	return TransferResult{From: t.From, To: t.To, RecordID: recordID(rec, ok)}, nil
}

// Balance returns the committed balance of an account owned by userID.
func (s *Service) Balance(ctx context.Context, accountID, userID int64) (decimal.Decimal, error) {
	if err := checkIDs(userID, accountID); err != nil {
		return decimal.Decimal{}, err
	}
	row, err := s.store.Get(ctx, ledger.KindAccount, accountID, userID)
	if err != nil {
		return decimal.Decimal{}, err
	}
	return row.Balance, nil
}

// Provision creates the account and wallet of a newly registered user.
func (s *Service) Provision(ctx context.Context, userID int64) (ledger.Holdings, error) {
	if err := checkIDs(userID); err != nil {
		return ledger.Holdings{}, err
	}
	h, err := s.store.Provision(ctx, userID)
	s.metrics.ObserveOperation("provision", err)
	return h, err
}

// checkIDs rejects non-positive identifiers. A zero owner would disable the
// ownership predicate.
func checkIDs(ids ...int64) error {
	for _, id := range ids {
		if id <= 0 {
			return apperr.Invalid("identifiers must be positive")
		}
	}
	return nil
}

func recordID(rec txlog.Record, stored bool) string {
	if !stored {
		return ""
	}
	return rec.ID
}
