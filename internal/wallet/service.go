package wallet

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/notification"
	"github.com/congo-pay/bankee/internal/txlog"
)

// Service exposes wallet operations backed by the ledger. Funding is handled
// separately and settled by the reconciler.
type Service struct {
	store    ledger.Store
	journal  *txlog.Journal
	notifier notification.Notifier
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewService builds a wallet service instance.
func NewService(store ledger.Store, journal *txlog.Journal, notifier notification.Notifier, logger *slog.Logger, m *metrics.Metrics) *Service {
	return &Service{store: store, journal: journal, notifier: notifier, logger: logger, metrics: m}
}

// Withdraw debits amount from a wallet owned by userID.
func (s *Service) Withdraw(ctx context.Context, walletID, userID int64, amount decimal.Decimal) (Result, error) {
	if userID <= 0 || walletID <= 0 {
		return Result{}, apperr.Invalid("identifiers must be positive")
	}
	m, err := ledger.Debit(ctx, s.store, ledger.KindWallet, walletID, userID, amount)
	s.metrics.ObserveOperation("wallet_withdraw", err)
	if err != nil {
		return Result{}, err
	}

	rec, ok := s.journal.Record(ctx, txlog.Record{
		UserID:        userID,
		Type:          txlog.TypeWalletWithdraw,
		Amount:        amount,
		Status:        txlog.StatusSuccessful,
		FromWalletID:  txlog.ID(walletID),
		WalletRef:     m.Row.Ref,
		BalanceBefore: decimal.NewNullDecimal(m.Before),
		BalanceAfter:  decimal.NewNullDecimal(m.After),
	})
	res := Result{WalletID: walletID, BalanceBefore: m.Before, BalanceAfter: m.After}
	if ok {
		res.RecordID = rec.ID
	}
	return res, nil
}

// Transfer moves amount from a wallet owned by the caller to any other
// wallet. Only the debit leg is journaled.
func (s *Service) Transfer(ctx context.Context, in TransferInput) (TransferResult, error) {
	if in.UserID <= 0 || in.FromWalletID <= 0 || in.ToWalletID <= 0 {
		return TransferResult{}, apperr.Invalid("identifiers must be positive")
	}
	t, err := ledger.Move(ctx, s.store, ledger.KindWallet, in.FromWalletID, in.ToWalletID, in.UserID, in.Amount)
	s.metrics.ObserveOperation("wallet_transfer", err)
	if err != nil {
		return TransferResult{}, err
	}

	rec, ok := s.journal.Record(ctx, txlog.Record{
		UserID:        in.UserID,
		Type:          txlog.TypeWalletTransfer,
		Amount:        in.Amount,
		Status:        txlog.StatusSuccessful,
		FromWalletID:  txlog.ID(in.FromWalletID),
		ToWalletID:    txlog.ID(in.ToWalletID),
		WalletRef:     t.From.Row.Ref,
		BalanceBefore: decimal.NewNullDecimal(t.From.Before),
		BalanceAfter:  decimal.NewNullDecimal(t.From.After),
	})

	notification.Deliver(ctx, s.notifier, s.logger, notification.Message{
		Kind:        notification.KindTransfer,
		Destination: strconv.FormatInt(t.To.Row.UserID, 10),
		Body:        "your wallet received " + in.Amount.StringFixed(ledger.Scale),
		Attributes: map[string]string{
			"to_wallet_id": strconv.FormatInt(in.ToWalletID, 10),
			"wallet_ref":   t.To.Row.Ref,
			"amount":       in.Amount.StringFixed(ledger.Scale),
		},
	})

	res := TransferResult{
		FromBalanceBefore: t.From.Before,
		FromBalanceAfter:  t.From.After,
		ToBalanceBefore:   t.To.Before,
		ToBalanceAfter:    t.To.After,
		RecipientID:       t.To.Row.UserID,
	}
	if ok {
		res.RecordID = rec.ID
	}
	return res, nil
}

// Balance returns the committed balance of a wallet owned by userID.
func (s *Service) Balance(ctx context.Context, walletID, userID int64) (Balance, error) {
	if userID <= 0 || walletID <= 0 {
		return Balance{}, apperr.Invalid("identifiers must be positive")
	}
	row, err := s.store.Get(ctx, ledger.KindWallet, walletID, userID)
	if err != nil {
		return Balance{}, err
	}
	return Balance{WalletID: row.ID, WalletRef: row.Ref, Amount: row.Balance, AsOf: time.Now().UTC()}, nil
}
