// Package ingest holds the consumer-side handlers that move events from the
// streams into durable storage. Handlers return nil only after a successful
// store write; the group consumer acknowledges entries on nil, which is what
// gives the pipeline its at-least-once guarantee.
package ingest

import (
	"context"
	"fmt"

	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/domain"
	"github.com/hangarhq/hangar/internal/repository"
	"github.com/hangarhq/hangar/internal/stream"
)

// LogIngestor batches log events into the log store.
type LogIngestor struct {
	logs   repository.LogRepository
	logger *slog.Logger
}

// NewLogIngestor wires a log batch handler.
func NewLogIngestor(logs repository.LogRepository, logger *slog.Logger) *LogIngestor {
	return &LogIngestor{logs: logs, logger: logger}
}

// Handle persists one consumed batch. Entries with no deployment id are
// dropped as malformed; everything else is written in a single batch insert.
// The insert may run more than once for the same entries under redelivery,
// which the log store tolerates as duplicate rows.
func (i *LogIngestor) Handle(ctx context.Context, msgs []redis.XMessage) error {
	events := make([]domain.LogEvent, 0, len(msgs))
	for _, msg := range msgs {
		event := stream.DecodeLogEvent(msg)
		if event.DeploymentID == "" {
			i.logger.Warn("dropping malformed log entry", "stream_id", msg.ID)
			continue
		}
		events = append(events, event)
	}
	if len(events) == 0 {
		return nil
	}
	if err := i.logs.InsertLogEvents(ctx, events); err != nil {
		return fmt.Errorf("insert log events: %w", err)
	}
	return nil
}
