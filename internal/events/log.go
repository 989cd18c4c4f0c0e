package events

import (
	"context"
	"log/slog"
)

// LogPublisher is used when no broker is configured.
type LogPublisher struct {
	log *slog.Logger
}

func NewLogPublisher(log *slog.Logger) *LogPublisher {
	if log == nil {
		log = slog.Default()
	}
	return &LogPublisher{log: log}
}

func (p *LogPublisher) Publish(ctx context.Context, e Event) error {
	p.log.InfoContext(ctx, "ledger event", "type", e.Type, "aggregate_id", e.AggregateID, "data", e.Data)
	return nil
}
