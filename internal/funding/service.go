package funding

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/txlog"
)

// Service accepts wallet funding intents. It never touches balances; the
// reconciler settles accepted intents in the background.
type Service struct {
	ledger  ledger.Store
	log     txlog.Store
	metrics *metrics.Metrics
}

// NewService prepares a funding service.
func NewService(ledgerStore ledger.Store, log txlog.Store, m *metrics.Metrics) (*Service, error) {
	if ledgerStore == nil || log == nil {
		return nil, fmt.Errorf("funding: ledger and log stores are required")
	}
	return &Service{ledger: ledgerStore, log: log, metrics: m}, nil
}

// FundingResult represents the domain outcome of a funding intake.
type FundingResult struct {
	WalletRef string
	RecordID  string
	Status    txlog.Status
	Amount    decimal.Decimal
}

// Fund records a pending wallet_fund intent for a wallet owned by userID.
// The record append is the only effect, so its failure is returned.
func (s *Service) Fund(ctx context.Context, walletID, userID int64, amount decimal.Decimal) (FundingResult, error) {
	res, err := s.fund(ctx, walletID, userID, amount)
	s.metrics.ObserveOperation("wallet_fund", err)
	return res, err
}

func (s *Service) fund(ctx context.Context, walletID, userID int64, amount decimal.Decimal) (FundingResult, error) {
	if userID <= 0 || walletID <= 0 {
		return FundingResult{}, apperr.Invalid("identifiers must be positive")
	}
	if err := ledger.ValidateAmount(amount); err != nil {
		return FundingResult{}, err
	}
	if _, err := s.ledger.Get(ctx, ledger.KindWallet, walletID, userID); err != nil {
		return FundingResult{}, err
	}

	rec := &txlog.Record{
		UserID:     userID,
		Type:       txlog.TypeWalletFund,
		Amount:     amount,
		Status:     txlog.StatusPending,
		ToWalletID: txlog.ID(walletID),
		WalletRef:  ledger.NewFundingReference(),
	}
	if err := s.log.Append(ctx, rec); err != nil {
		if !apperr.Classified(err) {
			err = fmt.Errorf("%w: append funding record: %v", apperr.ErrStoreUnavailable, err)
		}
		return FundingResult{}, err
	}
	return FundingResult{WalletRef: rec.WalletRef, RecordID: rec.ID, Status: rec.Status, Amount: amount}, nil
}
