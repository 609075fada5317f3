package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/apperr"
)

// Scale is the number of fractional digits balances are stored with.
const Scale = 2

// maxAmount bounds amounts and balances below the NUMERIC(20,2) column limit.
var maxAmount = decimal.New(1, 18)

// Movement describes one balance change applied under a row lock.
type Movement struct {
	Row    Row
	Before decimal.Decimal
	After  decimal.Decimal
}

// Transfer captures both legs of a move between two rows of the same kind.
type Transfer struct {
	From Movement
	To   Movement
}

// Settlement is the outcome of applying a pending funding to a wallet.
// Applied is false when the funding had already been settled earlier.
type Settlement struct {
	Movement
	Applied bool
}

// ValidateAmount rejects non-positive amounts and amounts that cannot be
// stored at Scale without rounding.
func ValidateAmount(amount decimal.Decimal) error {
	if !amount.IsPositive() {
		return apperr.Invalid("amount must be positive")
	}
	if !amount.Equal(amount.Truncate(Scale)) {
		return apperr.Invalid("amount supports at most %d decimal places", Scale)
	}
	if amount.GreaterThanOrEqual(maxAmount) {
		return apperr.Invalid("amount too large")
	}
	return nil
}

// Credit adds amount to the row owned by owner.
func Credit(ctx context.Context, s Store, kind Kind, id, owner int64, amount decimal.Decimal) (Movement, error) {
	if err := ValidateAmount(amount); err != nil {
		return Movement{}, err
	}

	var m Movement
	err := s.WithTx(ctx, func(tx Tx) error {
		row, err := tx.Lock(ctx, kind, id, owner)
		if err != nil {
			return err
		}
		m, err = apply(ctx, tx, row, amount)
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Debit subtracts amount from the row owned by owner. The balance check runs
// while the row lock is held.
func Debit(ctx context.Context, s Store, kind Kind, id, owner int64, amount decimal.Decimal) (Movement, error) {
	if err := ValidateAmount(amount); err != nil {
		return Movement{}, err
	}

	var m Movement
	err := s.WithTx(ctx, func(tx Tx) error {
		row, err := tx.Lock(ctx, kind, id, owner)
		if err != nil {
			return err
		}
		if row.Balance.LessThan(amount) {
			return fmt.Errorf("%s %d: %w", kind, id, apperr.ErrInsufficientFunds)
		}
		m, err = apply(ctx, tx, row, amount.Neg())
		return err
	})
	if err != nil {
		return Movement{}, err
	}
	return m, nil
}

// Move transfers amount from fromID (which must belong to owner) to toID
// (any owner). Rows are locked in ascending id order so that opposite
// transfers over the same pair cannot deadlock.
func Move(ctx context.Context, s Store, kind Kind, fromID, toID, owner int64, amount decimal.Decimal) (Transfer, error) {
	if err := ValidateAmount(amount); err != nil {
		return Transfer{}, err
	}
	if fromID == toID {
		return Transfer{}, apperr.Invalid("source and destination must differ")
	}

	var out Transfer
	err := s.WithTx(ctx, func(tx Tx) error {
		locked := make(map[int64]Row, 2)
		for _, id := range lockOrder(fromID, toID) {
			predicate := AnyOwner
			if id == fromID {
				predicate = owner
			}
			row, err := tx.Lock(ctx, kind, id, predicate)
			if err != nil {
				return err
			}
			locked[id] = row
		}

		from := locked[fromID]
		if from.Balance.LessThan(amount) {
			return fmt.Errorf("%s %d: %w", kind, fromID, apperr.ErrInsufficientFunds)
		}

		var err error
		if out.From, err = apply(ctx, tx, from, amount.Neg()); err != nil {
			return err
		}
		out.To, err = apply(ctx, tx, locked[toID], amount)
		return err
	})
	if err != nil {
		return Transfer{}, err
	}
	return out, nil
}

// Settle credits a pending funding identified by reference to the wallet
// owned by owner, at most once. The settlement marker is written in the same
// transaction as the credit.
func Settle(ctx context.Context, s Store, walletID, owner int64, reference string, amount decimal.Decimal) (Settlement, error) {
	if err := ValidateAmount(amount); err != nil {
		return Settlement{}, err
	}
	if reference == "" {
		return Settlement{}, apperr.Invalid("settlement reference is required")
	}

	var out Settlement
	err := s.WithTx(ctx, func(tx Tx) error {
		row, err := tx.Lock(ctx, KindWallet, walletID, owner)
		if err != nil {
			return err
		}
		fresh, err := tx.MarkSettled(ctx, reference, walletID, amount)
		if err != nil {
			return err
		}
		if !fresh {
			out = Settlement{Movement: Movement{Row: row, Before: row.Balance, After: row.Balance}}
			return nil
		}
		m, err := apply(ctx, tx, row, amount)
		if err != nil {
			return err
		}
		out = Settlement{Movement: m, Applied: true}
		return nil
	})
	if err != nil {
		return Settlement{}, err
	}
	return out, nil
}

func apply(ctx context.Context, tx Tx, row Row, delta decimal.Decimal) (Movement, error) {
	m := Movement{Row: row, Before: row.Balance, After: row.Balance.Add(delta)}
	if m.After.GreaterThanOrEqual(maxAmount) {
		return Movement{}, apperr.Invalid("resulting balance exceeds the supported range")
	}
	if err := tx.SetBalance(ctx, row.Kind, row.ID, m.After); err != nil {
		return Movement{}, err
	}
	m.Row.Balance = m.After
	return m, nil
}

func lockOrder(a, b int64) [2]int64 {
	if a < b {
		return [2]int64{a, b}
	}
	return [2]int64{b, a}
}
