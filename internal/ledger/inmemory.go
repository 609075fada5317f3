package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/apperr"
)

const defaultMemoryLockTimeout = 5 * time.Second

type settlement struct {
	walletID int64
	amount   decimal.Decimal
}

// inMemoryStore mirrors the Postgres semantics closely enough for unit tests:
// row locks serialize writers, staged writes are invisible until commit and
// a lock wait is bounded by lockTimeout.
type inMemoryStore struct {
	mu          sync.Mutex
	rows        map[string]Row
	locks       map[string]chan struct{}
	settled     map[string]settlement
	nextID      map[Kind]int64
	lockTimeout time.Duration
	failNext    error
}

// NewInMemory creates a concurrency-safe in-memory ledger store useful for
// unit tests. A non-positive lockTimeout falls back to five seconds.
func NewInMemory(lockTimeout time.Duration) Store {
	if lockTimeout <= 0 {
		lockTimeout = defaultMemoryLockTimeout
	}
	return &inMemoryStore{
		rows:        make(map[string]Row),
		locks:       make(map[string]chan struct{}),
		settled:     make(map[string]settlement),
		nextID:      map[Kind]int64{KindAccount: 0, KindWallet: 0},
		lockTimeout: lockTimeout,
	}
}

func rowKey(kind Kind, id int64) string {
	return fmt.Sprintf("%s/%d", kind, id)
}

func settlementKey(reference string) string {
	return "settlement/" + reference
}

func (s *inMemoryStore) WithTx(ctx context.Context, fn func(tx Tx) error) error {
	tx := &memTx{store: s, held: map[string]struct{}{}, staged: map[string]Row{}, settlements: map[string]settlement{}}
	defer tx.release()

	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failNext != nil {
		err := s.failNext
		s.failNext = nil
		return err
	}
	for key, row := range tx.staged {
		s.rows[key] = row
	}
	for ref, st := range tx.settlements {
		s.settled[ref] = st
	}
	return nil
}

func (s *inMemoryStore) Get(_ context.Context, kind Kind, id, owner int64) (Row, error) {
	if !kind.valid() {
		return Row{}, apperr.Invalid("unknown ledger kind %q", string(kind))
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	row, ok := s.rows[rowKey(kind, id)]
	if !ok || (owner != AnyOwner && row.UserID != owner) {
		return Row{}, fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
	}
	return row, nil
}

func (s *inMemoryStore) Provision(_ context.Context, userID int64) (Holdings, error) {
	if userID <= 0 {
		return Holdings{}, apperr.Invalid("user id must be positive")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, row := range s.rows {
		if row.UserID == userID {
			return Holdings{}, apperr.Conflict("user %d already provisioned", userID)
		}
	}
	h := Holdings{
		Account: s.insertLocked(Row{Kind: KindAccount, UserID: userID, Ref: NewReference(AccountPrefix), Balance: decimal.Zero}),
		Wallet:  s.insertLocked(Row{Kind: KindWallet, UserID: userID, Ref: NewReference(WalletPrefix), Balance: decimal.Zero}),
	}
	return h, nil
}

func (s *inMemoryStore) insertLocked(row Row) Row {
	if row.ID == 0 {
		s.nextID[row.Kind]++
		row.ID = s.nextID[row.Kind]
	} else if row.ID > s.nextID[row.Kind] {
		s.nextID[row.Kind] = row.ID
	}
	s.rows[rowKey(row.Kind, row.ID)] = row
	return row
}

// acquire blocks until the named lock is free, the lock timeout elapses or
// ctx is done.
func (s *inMemoryStore) acquire(ctx context.Context, key string) error {
	s.mu.Lock()
	ch, ok := s.locks[key]
	if !ok {
		ch = make(chan struct{}, 1)
		s.locks[key] = ch
	}
	s.mu.Unlock()

	timer := time.NewTimer(s.lockTimeout)
	defer timer.Stop()
	select {
	case ch <- struct{}{}:
		return nil
	case <-timer.C:
		return fmt.Errorf("%w: %s", apperr.ErrTimeout, key)
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return fmt.Errorf("%w: %s", apperr.ErrTimeout, key)
		}
		return ctx.Err()
	}
}

func (s *inMemoryStore) releaseLock(key string) {
	s.mu.Lock()
	ch := s.locks[key]
	s.mu.Unlock()
	<-ch
}

type memTx struct {
	store       *inMemoryStore
	held        map[string]struct{}
	staged      map[string]Row
	settlements map[string]settlement
}

func (t *memTx) lockKey(ctx context.Context, key string) error {
	if _, ok := t.held[key]; ok {
		return nil
	}
	if err := t.store.acquire(ctx, key); err != nil {
		return err
	}
	t.held[key] = struct{}{}
	return nil
}

func (t *memTx) Lock(ctx context.Context, kind Kind, id, owner int64) (Row, error) {
	if !kind.valid() {
		return Row{}, apperr.Invalid("unknown ledger kind %q", string(kind))
	}
	key := rowKey(kind, id)
	if row, ok := t.staged[key]; ok {
		if owner != AnyOwner && row.UserID != owner {
			return Row{}, fmt.Errorf("%s %d: %w", kind, id, apperr.ErrNotFound)
		}
		return row, nil
	}
	// Postgres only locks rows that match the predicate.
	if _, err := t.store.Get(ctx, kind, id, owner); err != nil {
		return Row{}, err
	}
	if err := t.lockKey(ctx, key); err != nil {
		return Row{}, err
	}
	row, err := t.store.Get(ctx, kind, id, owner)
	if err != nil {
		return Row{}, err
	}
	t.staged[key] = row
	return row, nil
}

func (t *memTx) SetBalance(ctx context.Context, kind Kind, id int64, balance decimal.Decimal) error {
	if balance.IsNegative() {
		return fmt.Errorf("%w: %s %d balance would be negative", apperr.ErrInsufficientFunds, kind, id)
	}
	row, err := t.Lock(ctx, kind, id, AnyOwner)
	if err != nil {
		return err
	}
	row.Balance = balance
	t.staged[rowKey(kind, id)] = row
	return nil
}

func (t *memTx) MarkSettled(ctx context.Context, reference string, walletID int64, amount decimal.Decimal) (bool, error) {
	if _, ok := t.settlements[reference]; ok {
		return false, nil
	}
	if err := t.lockKey(ctx, settlementKey(reference)); err != nil {
		return false, err
	}
	t.store.mu.Lock()
	_, exists := t.store.settled[reference]
	t.store.mu.Unlock()
	if exists {
		return false, nil
	}
	t.settlements[reference] = settlement{walletID: walletID, amount: amount}
	return true, nil
}

func (t *memTx) release() {
	for key := range t.held {
		t.store.releaseLock(key)
	}
	t.held = map[string]struct{}{}
}
