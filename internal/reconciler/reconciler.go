package reconciler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/notification"
	"github.com/congo-pay/bankee/internal/txlog"
)

const (
	DefaultInterval  = time.Minute
	DefaultGrace     = time.Minute
	DefaultClaimTTL  = 5 * time.Minute
	DefaultBatchSize = 500
)

// Settlement outcomes reported to metrics.
const (
	OutcomeCompleted   = "completed"
	OutcomeFailed      = "failed"
	OutcomeSkipped     = "skipped"
	OutcomeUnfinalized = "unfinalized"
)

// Config tunes the settlement pass.
type Config struct {
	Interval  time.Duration
	Grace     time.Duration
	ClaimTTL  time.Duration
	BatchSize int
}

func (c Config) withDefaults() Config {
	if c.Interval <= 0 {
		c.Interval = DefaultInterval
	}
	if c.Grace < 0 {
		c.Grace = DefaultGrace
	}
	if c.ClaimTTL <= 0 {
		c.ClaimTTL = DefaultClaimTTL
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	return c
}

// Report summarizes one pass.
type Report struct {
	Scanned   int
	Claimed   int
	Completed int
	Failed    int
	Skipped   int
}

// Reconciler settles pending wallet_fund records against the ledger.
type Reconciler struct {
	ledger   ledger.Store
	log      txlog.Store
	cfg      Config
	logger   *slog.Logger
	notifier notification.Notifier
	metrics  *metrics.Metrics
	now      func() time.Time

	mu   sync.Mutex
	cron *cron.Cron
}

// New builds a reconciler. notifier and m may be nil.
func New(ledgerStore ledger.Store, log txlog.Store, cfg Config, logger *slog.Logger, notifier notification.Notifier, m *metrics.Metrics) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{
		ledger:   ledgerStore,
		log:      log,
		cfg:      cfg.withDefaults(),
		logger:   logger,
		notifier: notifier,
		metrics:  m,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Start schedules a pass every Interval. Passes never overlap within one
// process; ctx bounds every pass.
func (r *Reconciler) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cron != nil {
		return errors.New("reconciler already started")
	}

	logger := cronLogger{logger: r.logger}
	c := cron.New(
		cron.WithLogger(logger),
		cron.WithChain(cron.Recover(logger), cron.SkipIfStillRunning(logger)),
	)
	c.Schedule(cron.Every(r.cfg.Interval), cron.FuncJob(func() { r.pass(ctx) }))
	c.Start()
	r.cron = c

	r.logger.Info("reconciler started",
		slog.Duration("interval", r.cfg.Interval),
		slog.Duration("grace", r.cfg.Grace),
		slog.Duration("claim_ttl", r.cfg.ClaimTTL),
	)
	return nil
}

// Stop halts scheduling and waits for a running pass until ctx is done.
func (r *Reconciler) Stop(ctx context.Context) error {
	r.mu.Lock()
	c := r.cron
	r.cron = nil
	r.mu.Unlock()
	if c == nil {
		return nil
	}

	select {
	case <-c.Stop().Done():
		r.logger.Info("reconciler stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (r *Reconciler) pass(ctx context.Context) {
	if ctx.Err() != nil {
		return
	}
	report, err := r.RunOnce(ctx)
	if err != nil {
		r.logger.Error("reconcile pass failed", slog.Any("error", err))
		return
	}
	if report.Scanned > 0 {
		r.logger.Info("reconcile pass finished",
			slog.Int("scanned", report.Scanned),
			slog.Int("claimed", report.Claimed),
			slog.Int("completed", report.Completed),
			slog.Int("failed", report.Failed),
			slog.Int("skipped", report.Skipped),
		)
	}
}

// RunOnce performs a single settlement pass. Per-record failures are
// recorded on the record and never abort the pass; only a failed scan is
// returned as an error.
func (r *Reconciler) RunOnce(ctx context.Context) (Report, error) {
	start := time.Now()
	defer func() { r.metrics.ObservePass(time.Since(start)) }()

	now := r.now()
	due, err := r.log.Due(ctx, txlog.DueQuery{
		CreatedBefore: now.Add(-r.cfg.Grace),
		ClaimedBefore: now.Add(-r.cfg.ClaimTTL),
		Limit:         r.cfg.BatchSize,
	})
	if err != nil {
		return Report{}, fmt.Errorf("list due fundings: %w", err)
	}

	report := Report{Scanned: len(due)}
	for i, candidate := range due {
		if ctx.Err() != nil {
			report.Skipped += len(due) - i
			break
		}
		outcome := r.settle(ctx, candidate.ID)
		switch outcome {
		case OutcomeCompleted:
			report.Claimed++
			report.Completed++
		case OutcomeFailed:
			report.Claimed++
			report.Failed++
		case OutcomeUnfinalized:
			report.Claimed++
			report.Skipped++
		default:
			report.Skipped++
		}
		r.metrics.Settlement(outcome)
	}
	return report, nil
}

// settle claims and applies one record. The claim is stamped when it is
// taken, so a long pass never hands out claims that are already stale.
func (r *Reconciler) settle(ctx context.Context, id string) string {
	at := r.now()
	rec, ok, err := r.log.Claim(ctx, id, at, at.Add(-r.cfg.ClaimTTL))
	if err != nil {
		r.logger.Warn("claim failed", slog.String("record_id", id), slog.Any("error", err))
		return OutcomeSkipped
	}
	if !ok {
		return OutcomeSkipped
	}

	if rec.ToWalletID == nil {
		return r.fail(ctx, rec, apperr.Invalid("record has no target wallet"))
	}
	result, err := ledger.Settle(ctx, r.ledger, *rec.ToWalletID, rec.UserID, rec.ID, rec.Amount)
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		// interrupted by shutdown; the claim expires and the record is retried
		r.logger.Warn("settlement interrupted", slog.String("record_id", rec.ID), slog.Any("error", err))
		return OutcomeUnfinalized
	}
	if err != nil {
		return r.fail(ctx, rec, err)
	}
	if !result.Applied {
		r.logger.Info("funding already settled, finalizing record", slog.String("record_id", rec.ID))
	}

	if err := r.log.UpdateStatus(ctx, rec.ID, txlog.StatusCompleted, ""); err != nil {
		r.logger.Error("settled funding left processing",
			slog.String("record_id", rec.ID),
			slog.Any("error", err),
		)
		return OutcomeUnfinalized
	}

	if result.Applied {
		r.notify(ctx, rec, txlog.StatusCompleted, result.After.StringFixed(ledger.Scale), "")
	}
	return OutcomeCompleted
}

func (r *Reconciler) fail(ctx context.Context, rec txlog.Record, cause error) string {
	reason := apperr.Message(cause)
	r.logger.Warn("funding settlement failed",
		slog.String("record_id", rec.ID),
		slog.Int64("user_id", rec.UserID),
		slog.Any("error", cause),
	)
	if err := r.log.UpdateStatus(ctx, rec.ID, txlog.StatusFailed, reason); err != nil {
		r.logger.Error("failed funding left processing",
			slog.String("record_id", rec.ID),
			slog.Any("error", err),
		)
		return OutcomeUnfinalized
	}
	r.notify(ctx, rec, txlog.StatusFailed, "", reason)
	return OutcomeFailed
}

func (r *Reconciler) notify(ctx context.Context, rec txlog.Record, status txlog.Status, balance, reason string) {
	attrs := map[string]string{
		"record_id":  rec.ID,
		"wallet_ref": rec.WalletRef,
		"amount":     rec.Amount.StringFixed(ledger.Scale),
		"status":     string(status),
	}
	if balance != "" {
		attrs["balance"] = balance
	}
	if reason != "" {
		attrs["reason"] = reason
	}
	notification.Deliver(ctx, r.notifier, r.logger, notification.Message{
		Kind:        notification.KindFundingSettled,
		Destination: strconv.FormatInt(rec.UserID, 10),
		Body:        "wallet funding " + string(status),
		Attributes:  attrs,
	})
}

// cronLogger routes scheduler logs into slog.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, slog.Any("error", err))...)
}
