// Package events carries ledger domain events out of the process after the
// storage transaction that produced them has committed.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/gigledger/escrow/internal/metrics"
	"github.com/gigledger/escrow/internal/worker"
)

const (
	PaymentVerified     = "payment.verified"
	PaymentFailed       = "payment.failed"
	MilestoneReleased   = "milestone.released"
	WithdrawalRequested = "withdrawal.requested"
	WithdrawalProcessed = "withdrawal.processed"
)

type Event struct {
	Type        string         `json:"type"`
	AggregateID string         `json:"aggregate_id"`
	OccurredAt  time.Time      `json:"occurred_at"`
	Data        map[string]any `json:"data,omitempty"`
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
}

const publishTimeout = 5 * time.Second

// Bus hands events to a Publisher, on the worker pool when one is given and
// inline otherwise. A nil *Bus drops events.
type Bus struct {
	pub  Publisher
	pool *worker.Pool
	log  *slog.Logger
}

func NewBus(pub Publisher, pool *worker.Pool, log *slog.Logger) *Bus {
	if log == nil {
		log = slog.Default()
	}
	return &Bus{pub: pub, pool: pool, log: log}
}

func (b *Bus) Emit(e Event) {
	if b == nil || b.pub == nil {
		return
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = time.Now().UTC()
	}
	if b.pool != nil && b.pool.Submit(func() { b.publish(e) }) {
		return
	}
	b.publish(e)
}

func (b *Bus) publish(e Event) {
	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.pub.Publish(ctx, e); err != nil {
		metrics.EventsPublishedTotal.WithLabelValues(e.Type, "error").Inc()
		b.log.Error("publish event failed", "type", e.Type, "aggregate_id", e.AggregateID, "err", err)
		return
	}
	metrics.EventsPublishedTotal.WithLabelValues(e.Type, "ok").Inc()
}
