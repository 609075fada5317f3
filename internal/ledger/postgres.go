package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/apperr"
)

const (
	pgLockNotAvailable  = "55P03"
	pgDeadlockDetected  = "40P01"
	pgQueryCanceled     = "57014"
	pgUniqueViolation   = "23505"
	pgCheckViolation    = "23514"
	pgConnectionFailure = "08006"
	pgNumericOutOfRange = "22003"
)

// PostgresStore keeps authoritative balances in PostgreSQL and serializes
// writers with row locks.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a Postgres-backed ledger store. A positive
// lockTimeout bounds every row-lock wait inside WithTx.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

// WithTx implements Store.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin ledger tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	if s.lockTimeout > 0 {
		// SET does not accept bind parameters.
		stmt := fmt.Sprintf("SET LOCAL lock_timeout = '%dms'", s.lockTimeout.Milliseconds())
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return classify(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	if err := fn(&pgTx{tx: tx}); err != nil {
		_ = tx.Rollback(ctx)
		return classify(err)
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit ledger tx: %w", err))
	}
	return nil
}

// Get implements Store.
func (s *PostgresStore) Get(ctx context.Context, kind Kind, id, owner int64) (Row, error) {
	query, args, err := selectRow(kind, id, owner)
	if err != nil {
		return Row{}, err
	}
	row, err := scanRow(kind, id, s.db.QueryRow(ctx, query, args...))
	if err != nil {
		return Row{}, classify(err)
	}
	return row, nil
}

// Provision implements Store.
func (s *PostgresStore) Provision(ctx context.Context, userID int64) (Holdings, error) {
	if userID <= 0 {
		return Holdings{}, apperr.Invalid("user id must be positive")
	}

	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return Holdings{}, classify(fmt.Errorf("begin provision tx: %w", err))
	}
	defer tx.Rollback(ctx) // nolint:errcheck

	account := Row{Kind: KindAccount, UserID: userID, Ref: NewReference(AccountPrefix)}
	if err := tx.QueryRow(ctx, `INSERT INTO accounts (user_id, account_number, balance)
        VALUES ($1, $2, 0) RETURNING id, balance`, userID, account.Ref).Scan(&account.ID, &account.Balance); err != nil {
		return Holdings{}, classify(fmt.Errorf("insert account: %w", err))
	}

	wallet := Row{Kind: KindWallet, UserID: userID, Ref: NewReference(WalletPrefix)}
	if err := tx.QueryRow(ctx, `INSERT INTO wallets (user_id, wallet_ref, balance)
        VALUES ($1, $2, 0) RETURNING id, balance`, userID, wallet.Ref).Scan(&wallet.ID, &wallet.Balance); err != nil {
		return Holdings{}, classify(fmt.Errorf("insert wallet: %w", err))
	}

	if err := tx.Commit(ctx); err != nil {
		return Holdings{}, classify(fmt.Errorf("commit provision tx: %w", err))
	}
	return Holdings{Account: account, Wallet: wallet}, nil
}

type pgTx struct {
	tx pgx.Tx
}

func (t *pgTx) Lock(ctx context.Context, kind Kind, id, owner int64) (Row, error) {
	query, args, err := selectRow(kind, id, owner)
	if err != nil {
		return Row{}, err
	}
	return scanRow(kind, id, t.tx.QueryRow(ctx, query+" FOR UPDATE", args...))
}

func (t *pgTx) SetBalance(ctx context.Context, kind Kind, id int64, balance decimal.Decimal) error {
	if !kind.valid() {
		return apperr.Invalid("unknown ledger kind %q", string(kind))
	}
	query := fmt.Sprintf(`UPDATE %s SET balance = $1, updated_at = now() WHERE id = $2`, kind.table())
	tag, err := t.tx.Exec(ctx, query, balance, id)
	if err != nil {
		return fmt.Errorf("update %s %d: %w", kind, id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
	}
	return nil
}

func (t *pgTx) MarkSettled(ctx context.Context, reference string, walletID int64, amount decimal.Decimal) (bool, error) {
	tag, err := t.tx.Exec(ctx, `INSERT INTO wallet_settlements (reference, wallet_id, amount)
        VALUES ($1, $2, $3) ON CONFLICT (reference) DO NOTHING`, reference, walletID, amount)
	if err != nil {
		return false, fmt.Errorf("insert settlement %s: %w", reference, err)
	}
	return tag.RowsAffected() == 1, nil
}

func selectRow(kind Kind, id, owner int64) (string, []any, error) {
	if !kind.valid() {
		return "", nil, apperr.Invalid("unknown ledger kind %q", string(kind))
	}
	query := fmt.Sprintf(`SELECT id, user_id, %s, balance FROM %s WHERE id = $1`, kind.refColumn(), kind.table())
	args := []any{id}
	if owner != AnyOwner {
		query += ` AND user_id = $2`
		args = append(args, owner)
	}
	return query, args, nil
}

func scanRow(kind Kind, id int64, row pgx.Row) (Row, error) {
	r := Row{Kind: kind}
	if err := row.Scan(&r.ID, &r.UserID, &r.Ref, &r.Balance); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Row{}, fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
		}
		return Row{}, fmt.Errorf("select %s %d: %w", kind, id, err)
	}
	return r, nil
}

// classify folds driver errors into the error taxonomy. Errors that already
// carry a sentinel pass through untouched.
func classify(err error) error {
	if err == nil || apperr.Classified(err) {
		return err
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgLockNotAvailable, pgDeadlockDetected, pgQueryCanceled:
			return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
		case pgUniqueViolation:
			return fmt.Errorf("%w (constraint %s)", apperr.Conflict("resource already exists"), pgErr.ConstraintName)
		case pgCheckViolation:
			return fmt.Errorf("%w (constraint %s)", apperr.ErrInsufficientFunds, pgErr.ConstraintName)
		case pgNumericOutOfRange:
			return fmt.Errorf("%w (%s)", apperr.Invalid("resulting balance exceeds the supported range"), pgErr.Message)
		case pgConnectionFailure:
			return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
		}
		return err
	}

	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return fmt.Errorf("%w: %v", apperr.ErrTimeout, err)
	}

	var connectErr *pgconn.ConnectError
	var netErr net.Error
	if errors.As(err, &connectErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", apperr.ErrStoreUnavailable, err)
	}
	return err
}
