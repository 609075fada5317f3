package ledger

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"
)

// Kind selects which balance pool a ledger row belongs to.
type Kind string

const (
	KindAccount Kind = "account"
	KindWallet  Kind = "wallet"
)

// AnyOwner disables the ownership predicate when locking or reading a row.
const AnyOwner int64 = 0

// Row is a balance-bearing ledger entity. Ref is the account number for
// accounts and the wallet reference for wallets.
type Row struct {
	Kind    Kind
	ID      int64
	UserID  int64
	Ref     string
	Balance decimal.Decimal
}

// Holdings groups the rows provisioned for a single user.
type Holdings struct {
	Account Row
	Wallet  Row
}

// Store is the transactional boundary around the relational ledger.
type Store interface {
	// WithTx runs fn inside one isolated transaction. Any error returned by fn
	// rolls the transaction back before it is surfaced.
	WithTx(ctx context.Context, fn func(tx Tx) error) error
	// Get reads committed state without taking a lock.
	Get(ctx context.Context, kind Kind, id, owner int64) (Row, error)
	// Provision creates the account and wallet for a new user.
	Provision(ctx context.Context, userID int64) (Holdings, error)
}

// Tx is a lockable transaction handle. Writes are visible to later reads of
// the same handle and to nobody else until commit.
type Tx interface {
	// Lock selects the row for update. owner must match unless it is AnyOwner.
	Lock(ctx context.Context, kind Kind, id, owner int64) (Row, error)
	SetBalance(ctx context.Context, kind Kind, id int64, balance decimal.Decimal) error
	// MarkSettled records that the funding identified by reference has been
	// applied. It reports false when the marker already existed.
	MarkSettled(ctx context.Context, reference string, walletID int64, amount decimal.Decimal) (bool, error)
}

func (k Kind) table() string {
	switch k {
	case KindAccount:
		return "accounts"
	case KindWallet:
		return "wallets"
	default:
		panic(fmt.Sprintf("ledger: unknown kind %q", string(k)))
	}
}

func (k Kind) refColumn() string {
	if k == KindWallet {
		return "wallet_ref"
	}
	return "account_number"
}

func (k Kind) valid() bool {
	return k == KindAccount || k == KindWallet
}
