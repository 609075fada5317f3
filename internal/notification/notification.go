package notification

import (
	"context"
	"log/slog"
	"time"
)

const (
	// KindTransfer announces a completed account or wallet transfer to the recipient.
	KindTransfer = "transfer_received"
	// KindFundingSettled reports the outcome of a settled wallet funding.
	KindFundingSettled = "funding_settled"
	// KindAuditGap alerts operators that a committed mutation has no transaction record.
	KindAuditGap = "audit_gap"
)

// DestinationOperators addresses the operator channel rather than an end user.
const DestinationOperators = "operators"

// Message describes a notification payload.
type Message struct {
	Kind        string            `json:"kind"`
	Destination string            `json:"destination"`
	Body        string            `json:"body"`
	Attributes  map[string]string `json:"attributes,omitempty"`
	OccurredAt  time.Time         `json:"occurred_at"`
}

// Notifier delivers notifications to downstream systems.
type Notifier interface {
	Send(ctx context.Context, message Message) error
}

// LoggerNotifier writes notifications to the logger. Operator alerts are
// logged at warn level so they surface in log-based alerting.
type LoggerNotifier struct {
	logger *slog.Logger
}

// NewLoggerNotifier constructs a logging notifier.
func NewLoggerNotifier(logger *slog.Logger) *LoggerNotifier {
	return &LoggerNotifier{logger: logger}
}

// Send writes the message to the structured logger.
func (n *LoggerNotifier) Send(ctx context.Context, message Message) error {
	if n == nil || n.logger == nil {
		return nil
	}
	level := slog.LevelInfo
	if message.Destination == DestinationOperators {
		level = slog.LevelWarn
	}
	n.logger.Log(ctx, level, "notification",
		"kind", message.Kind,
		"destination", message.Destination,
		"body", message.Body,
		"attributes", message.Attributes,
	)
	return nil
}

// Deliver sends message through n and logs instead of returning a failure.
// Callers use it after a ledger commit, when the outcome is already final.
func Deliver(ctx context.Context, n Notifier, logger *slog.Logger, message Message) {
	if n == nil {
		return
	}
	if message.OccurredAt.IsZero() {
		message.OccurredAt = time.Now().UTC()
	}
	if err := n.Send(ctx, message); err != nil && logger != nil {
		logger.Warn("notification delivery failed",
			slog.String("kind", message.Kind),
			slog.String("destination", message.Destination),
			slog.Any("error", err),
		)
	}
}
