//go:build integration

package ledger_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/infra"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/logging"
)

// setupLedger starts a disposable PostgreSQL container, applies the embedded
// migrations and returns a store backed by it.
func setupLedger(t *testing.T) ledger.Store {
	t.Helper()
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx,
		"postgres:16-alpine",
		tcpostgres.WithDatabase("bankee"),
		tcpostgres.WithUsername("bankee"),
		tcpostgres.WithPassword("bankee"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		require.NoError(t, testcontainers.TerminateContainer(container))
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	require.NoError(t, infra.Migrate(dsn, logging.Discard()))

	pool, err := infra.NewPostgresPool(ctx, dsn, "bankee-integration")
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	return ledger.NewPostgresStore(pool, 2*time.Second)
}

func TestIntegration_PostgresStore_Postings(t *testing.T) {
	store := setupLedger(t)
	ctx := context.Background()

	alice, err := store.Provision(ctx, 1)
	require.NoError(t, err)
	bob, err := store.Provision(ctx, 2)
	require.NoError(t, err)

	_, err = store.Provision(ctx, 1)
	assert.True(t, errors.Is(err, apperr.ErrConflict), "second provision: %v", err)

	mv, err := ledger.Credit(ctx, store, ledger.KindAccount, alice.Account.ID, 1, ledger.Amount("100"))
	require.NoError(t, err)
	assert.Equal(t, "100.00", mv.After.StringFixed(ledger.Scale))

	_, err = ledger.Debit(ctx, store, ledger.KindAccount, alice.Account.ID, 1, ledger.Amount("100.01"))
	assert.True(t, errors.Is(err, apperr.ErrInsufficientFunds), "overdraw: %v", err)

	_, err = ledger.Credit(ctx, store, ledger.KindAccount, alice.Account.ID, 2, ledger.Amount("1"))
	assert.True(t, errors.Is(err, apperr.ErrNotFound), "foreign owner: %v", err)

	tr, err := ledger.Move(ctx, store, ledger.KindAccount, alice.Account.ID, bob.Account.ID, 1, ledger.Amount("40.50"))
	require.NoError(t, err)
	assert.Equal(t, "59.50", tr.From.After.StringFixed(ledger.Scale))
	assert.Equal(t, "40.50", tr.To.After.StringFixed(ledger.Scale))

	row, err := store.Get(ctx, ledger.KindAccount, bob.Account.ID, ledger.AnyOwner)
	require.NoError(t, err)
	assert.Equal(t, "40.50", row.Balance.StringFixed(ledger.Scale))
}

func TestIntegration_PostgresStore_SettleOnce(t *testing.T) {
	store := setupLedger(t)
	ctx := context.Background()

	h, err := store.Provision(ctx, 5)
	require.NoError(t, err)
	reference := ledger.NewFundingReference()

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		applied int
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := ledger.Settle(ctx, store, h.Wallet.ID, 5, reference, ledger.Amount("12.25"))
			assert.NoError(t, err)
			if res.Applied {
				mu.Lock()
				applied++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, applied)
	row, err := store.Get(ctx, ledger.KindWallet, h.Wallet.ID, 5)
	require.NoError(t, err)
	assert.Equal(t, "12.25", row.Balance.StringFixed(ledger.Scale))
}

func TestIntegration_PostgresStore_OppositeTransfersDoNotDeadlock(t *testing.T) {
	store := setupLedger(t)
	ctx := context.Background()

	a, err := store.Provision(ctx, 10)
	require.NoError(t, err)
	b, err := store.Provision(ctx, 11)
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, store, ledger.KindWallet, a.Wallet.ID, 10, ledger.Amount("100"))
	require.NoError(t, err)
	_, err = ledger.Credit(ctx, store, ledger.KindWallet, b.Wallet.ID, 11, ledger.Amount("100"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := ledger.Move(ctx, store, ledger.KindWallet, a.Wallet.ID, b.Wallet.ID, 10, ledger.Amount("1"))
			assert.NoError(t, err)
		}()
		go func() {
			defer wg.Done()
			_, err := ledger.Move(ctx, store, ledger.KindWallet, b.Wallet.ID, a.Wallet.ID, 11, ledger.Amount("1"))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	ra, err := store.Get(ctx, ledger.KindWallet, a.Wallet.ID, ledger.AnyOwner)
	require.NoError(t, err)
	rb, err := store.Get(ctx, ledger.KindWallet, b.Wallet.ID, ledger.AnyOwner)
	require.NoError(t, err)
	assert.Equal(t, "200.00", ra.Balance.Add(rb.Balance).StringFixed(ledger.Scale))
}
