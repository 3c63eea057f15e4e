package events

import (
	"context"
	"log/slog"
	"time"
)

const (
	KindFundRequestCreated   = "fund_request.created"
	KindFundRequestApproved  = "fund_request.approved"
	KindFundRequestRejected  = "fund_request.rejected"
	KindFundRequestCancelled = "fund_request.cancelled"
	KindLedgerSettled        = "ledger.settled"
	KindLedgerPosted         = "ledger.posted"
)

// Event describes a ledger-side fact for downstream consumers such as the
// statement exporter. Key is the partitioning key, usually a wallet id.
type Event struct {
	Kind       string         `json:"kind"`
	Key        string         `json:"key"`
	OccurredAt time.Time      `json:"occurred_at"`
	Payload    map[string]any `json:"payload"`
}

// Publisher hands events to a downstream system.
type Publisher interface {
	Publish(ctx context.Context, event Event) error
}

// LoggerPublisher writes events to the structured logger; used when no broker
// is configured.
type LoggerPublisher struct {
	logger *slog.Logger
}

// NewLoggerPublisher constructs a logging publisher.
func NewLoggerPublisher(logger *slog.Logger) *LoggerPublisher {
	return &LoggerPublisher{logger: logger}
}

// Publish writes the event to the structured logger.
func (p *LoggerPublisher) Publish(_ context.Context, event Event) error {
	if p == nil || p.logger == nil {
		return nil
	}
	p.logger.Info("event", "kind", event.Kind, "key", event.Key, "payload", event.Payload)
	return nil
}

// Emit publishes best-effort: failures are logged and never returned, since
// the ledger write they describe has already committed.
func Emit(ctx context.Context, p Publisher, logger *slog.Logger, kind, key string, payload map[string]any) {
	if p == nil {
		return
	}
	ev := Event{Kind: kind, Key: key, OccurredAt: time.Now().UTC(), Payload: payload}
	if err := p.Publish(ctx, ev); err != nil && logger != nil {
		logger.Warn("publish event failed", slog.String("kind", kind), slog.String("key", key), slog.Any("error", err))
	}
}
