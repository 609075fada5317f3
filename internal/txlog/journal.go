package txlog

import (
	"context"
	"log/slog"
	"strconv"
	"time"

	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/notification"
)

const journalTimeout = 5 * time.Second

// Journal appends records for mutations the ledger has already committed.
// An append failure never reaches the caller; it is logged, counted and
// sent to the operator channel as an audit gap.
type Journal struct {
	store    Store
	logger   *slog.Logger
	notifier notification.Notifier
	metrics  *metrics.Metrics
}

// NewJournal builds a journal over store. notifier and m may be nil.
func NewJournal(store Store, logger *slog.Logger, notifier notification.Notifier, m *metrics.Metrics) *Journal {
	return &Journal{store: store, logger: logger, notifier: notifier, metrics: m}
}

// Record appends rec and reports whether it was stored. It is detached from
// ctx cancellation because the money movement it describes already happened.
func (j *Journal) Record(ctx context.Context, rec Record) (Record, bool) {
	appendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), journalTimeout)
	defer cancel()

	err := j.store.Append(appendCtx, &rec)
	if err == nil {
		return rec, true
	}

	j.metrics.AuditGap()
	attrs := []any{
		slog.String("record_id", rec.ID),
		slog.String("type", string(rec.Type)),
		slog.Int64("user_id", rec.UserID),
		slog.String("amount", rec.Amount.String()),
		slog.Any("error", err),
	}
	if rec.BalanceBefore.Valid {
		attrs = append(attrs, slog.String("balance_before", rec.BalanceBefore.Decimal.String()))
	}
	if rec.BalanceAfter.Valid {
		attrs = append(attrs, slog.String("balance_after", rec.BalanceAfter.Decimal.String()))
	}
	if j.logger != nil {
		j.logger.Error("transaction record append failed after commit", attrs...)
	}

	if j.notifier != nil {
		msg := notification.Message{
			Kind:        notification.KindAuditGap,
			Destination: notification.DestinationOperators,
			Body:        "committed " + string(rec.Type) + " has no transaction record",
			Attributes: map[string]string{
				"record_id": rec.ID,
				"user_id":   strconv.FormatInt(rec.UserID, 10),
				"amount":    rec.Amount.String(),
				"error":     err.Error(),
			},
			OccurredAt: time.Now().UTC(),
		}
		if nerr := j.notifier.Send(appendCtx, msg); nerr != nil && j.logger != nil {
			j.logger.Error("audit gap notification failed", slog.String("record_id", rec.ID), slog.Any("error", nerr))
		}
	}
	return rec, false
}
