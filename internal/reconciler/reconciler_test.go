package reconciler

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/logging"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/notification"
	"github.com/congo-pay/bankee/internal/txlog"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []notification.Message
}

func (n *captureNotifier) Send(_ context.Context, msg notification.Message) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, msg)
	return nil
}

func (n *captureNotifier) messages() []notification.Message {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notification.Message(nil), n.sent...)
}

type harness struct {
	ledger   ledger.Store
	log      txlog.Store
	notifier *captureNotifier
	metrics  *metrics.Metrics
	now      time.Time
}

func newHarness() *harness {
	return &harness{
		ledger:   ledger.NewInMemory(2 * time.Second),
		log:      txlog.NewInMemory(),
		notifier: &captureNotifier{},
		metrics:  metrics.New(),
		now:      time.Now().UTC(),
	}
}

func (h *harness) reconciler() *Reconciler {
	r := New(h.ledger, h.log, Config{Interval: time.Second, Grace: time.Minute, ClaimTTL: 5 * time.Minute}, logging.Discard(), h.notifier, h.metrics)
	r.now = func() time.Time { return h.now }
	return r
}

func (h *harness) wallet(id, owner int64, balance string) {
	ledger.Seed(h.ledger, ledger.Row{Kind: ledger.KindWallet, ID: id, UserID: owner, Balance: ledger.Amount(balance)})
}

func (h *harness) fund(t *testing.T, walletID, owner int64, amount string, age time.Duration) txlog.Record {
	t.Helper()
	rec := &txlog.Record{
		UserID:     owner,
		Type:       txlog.TypeWalletFund,
		Amount:     ledger.Amount(amount),
		Status:     txlog.StatusPending,
		ToWalletID: txlog.ID(walletID),
		WalletRef:  ledger.NewFundingReference(),
		CreatedAt:  h.now.Add(-age),
	}
	require.NoError(t, h.log.Append(context.Background(), rec))
	return *rec
}

func (h *harness) balance(t *testing.T, walletID int64) string {
	t.Helper()
	row, err := h.ledger.Get(context.Background(), ledger.KindWallet, walletID, ledger.AnyOwner)
	require.NoError(t, err)
	return row.Balance.StringFixed(ledger.Scale)
}

func (h *harness) status(t *testing.T, id string) txlog.Record {
	t.Helper()
	rec, ok := txlog.Lookup(h.log, id)
	require.True(t, ok, "record %s", id)
	return rec
}

func TestRunOnceSettlesDueFunding(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "10")
	rec := h.fund(t, 3, 9, "30", 2*time.Minute)

	report, err := h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Claimed: 1, Completed: 1}, report)

	assert.Equal(t, "40.00", h.balance(t, 3))
	assert.Equal(t, txlog.StatusCompleted, h.status(t, rec.ID).Status)

	sent := h.notifier.messages()
	require.Len(t, sent, 1)
	assert.Equal(t, notification.KindFundingSettled, sent[0].Kind)
	assert.Equal(t, "9", sent[0].Destination)
	assert.Equal(t, "40.00", sent[0].Attributes["balance"])

	expected := `
# HELP bankee_reconciler_records_total Funding records handled by the reconciler, by outcome.
# TYPE bankee_reconciler_records_total counter
bankee_reconciler_records_total{outcome="completed"} 1
`
	require.NoError(t, testutil.GatherAndCompare(h.metrics.Registry(), strings.NewReader(expected), "bankee_reconciler_records_total"))

	report, err = h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned, "completed records are never rescanned")
	assert.Equal(t, "40.00", h.balance(t, 3))
}

func TestRunOnceRespectsGraceWindow(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "0")
	rec := h.fund(t, 3, 9, "30", 10*time.Second)

	report, err := h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)
	assert.Equal(t, txlog.StatusPending, h.status(t, rec.ID).Status)
	assert.Equal(t, "0.00", h.balance(t, 3))

	h.now = h.now.Add(time.Minute)
	report, err = h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, "30.00", h.balance(t, 3))
}

func TestRunOnceMissingWalletFailsOnlyThatRecord(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "0")
	h.wallet(4, 9, "0")
	good := h.fund(t, 3, 9, "30", 3*time.Minute)
	orphan := h.fund(t, 4, 9, "15", 2*time.Minute)
	ledger.Remove(h.ledger, ledger.KindWallet, 4)

	report, err := h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Claimed: 2, Completed: 1, Failed: 1}, report)

	assert.Equal(t, txlog.StatusCompleted, h.status(t, good.ID).Status)
	failed := h.status(t, orphan.ID)
	assert.Equal(t, txlog.StatusFailed, failed.Status)
	assert.Contains(t, failed.FailureReason, "not found")
	assert.Equal(t, "30.00", h.balance(t, 3))
}

func TestRunOnceRejectsRecordWithoutWallet(t *testing.T) {
	h := newHarness()
	rec := &txlog.Record{
		UserID:    9,
		Type:      txlog.TypeWalletFund,
		Amount:    ledger.Amount("5"),
		Status:    txlog.StatusPending,
		CreatedAt: h.now.Add(-time.Hour),
	}
	require.NoError(t, h.log.Append(context.Background(), rec))

	report, err := h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, txlog.StatusFailed, h.status(t, rec.ID).Status)
}

func TestConcurrentPassesCreditOnce(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "0")
	for i := 0; i < 10; i++ {
		h.fund(t, 3, 9, "1.10", 2*time.Minute)
	}

	var wg sync.WaitGroup
	reports := make([]Report, 4)
	for i := range reports {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			report, err := h.reconciler().RunOnce(context.Background())
			assert.NoError(t, err)
			reports[i] = report
		}(i)
	}
	wg.Wait()

	completed := 0
	for _, r := range reports {
		completed += r.Completed
	}
	assert.Equal(t, 10, completed)
	assert.Equal(t, "11.00", h.balance(t, 3))
	assert.Equal(t, 10, ledger.Settlements(h.ledger))
}

func TestLostCompletionIsReclaimedWithoutSecondCredit(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "0")
	rec := h.fund(t, 3, 9, "30", 2*time.Minute)

	txlog.FailNextUpdate(h.log, errors.New("log store unreachable"))
	report, err := h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 1, Claimed: 1, Skipped: 1}, report)
	assert.Equal(t, txlog.StatusProcessing, h.status(t, rec.ID).Status)
	assert.Equal(t, "30.00", h.balance(t, 3))

	// the claim is still fresh
	report, err = h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Zero(t, report.Scanned)

	h.now = h.now.Add(6 * time.Minute)
	report, err = h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Completed)
	assert.Equal(t, txlog.StatusCompleted, h.status(t, rec.ID).Status)
	assert.Equal(t, "30.00", h.balance(t, 3))
	assert.Equal(t, 1, ledger.Settlements(h.ledger))
}

func TestFailedLedgerCommitMarksRecordFailed(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "12")
	rec := h.fund(t, 3, 9, "30", 2*time.Minute)

	ledger.FailNextCommit(h.ledger, errors.New("connection lost during commit"))
	report, err := h.reconciler().RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	got := h.status(t, rec.ID)
	assert.Equal(t, txlog.StatusFailed, got.Status)
	assert.Equal(t, "internal server error", got.FailureReason)
	assert.Equal(t, "12.00", h.balance(t, 3))
	assert.Zero(t, ledger.Settlements(h.ledger))
}

// slowLedger advances the harness clock on the first settlement and runs
// onSecond right before the second one starts.
type slowLedger struct {
	ledger.Store
	h        *harness
	calls    int
	onSecond func()
}

func (s *slowLedger) WithTx(ctx context.Context, fn func(tx ledger.Tx) error) error {
	s.calls++
	switch s.calls {
	case 1:
		s.h.now = s.h.now.Add(10 * time.Minute)
	case 2:
		s.onSecond()
	}
	return s.Store.WithTx(ctx, fn)
}

func TestClaimIsStampedWhenTaken(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "0")
	first := h.fund(t, 3, 9, "10", 3*time.Minute)
	second := h.fund(t, 3, 9, "10", 2*time.Minute)

	var rival Report
	slow := &slowLedger{Store: h.ledger, h: h}
	slow.onSecond = func() {
		var err error
		rival, err = h.reconciler().RunOnce(context.Background())
		require.NoError(t, err)
	}

	r := New(slow, h.log, Config{Interval: time.Second, Grace: time.Minute, ClaimTTL: 5 * time.Minute}, logging.Discard(), h.notifier, h.metrics)
	r.now = func() time.Time { return h.now }

	report, err := r.RunOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Report{Scanned: 2, Claimed: 2, Completed: 2}, report)
	assert.Equal(t, Report{}, rival, "a claim taken mid-pass must not look stale to another worker")

	assert.Equal(t, txlog.StatusCompleted, h.status(t, first.ID).Status)
	assert.Equal(t, txlog.StatusCompleted, h.status(t, second.ID).Status)
	assert.Equal(t, "20.00", h.balance(t, 3))
	assert.Equal(t, 2, ledger.Settlements(h.ledger))
}

func TestStartSchedulesPasses(t *testing.T) {
	h := newHarness()
	h.wallet(3, 9, "0")
	rec := h.fund(t, 3, 9, "30", 2*time.Minute)

	r := New(h.ledger, h.log, Config{Interval: time.Second, Grace: time.Minute}, logging.Discard(), h.notifier, h.metrics)
	require.NoError(t, r.Start(context.Background()))
	require.Error(t, r.Start(context.Background()), "double start")

	require.Eventually(t, func() bool {
		got, _ := txlog.Lookup(h.log, rec.ID)
		return got.Status == txlog.StatusCompleted
	}, 5*time.Second, 50*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, r.Stop(ctx))
	require.NoError(t, r.Stop(ctx), "stop is idempotent")
	assert.Equal(t, "30.00", h.balance(t, 3))
}
