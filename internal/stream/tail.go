package stream

import (
	"context"
	"errors"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/domain"
)

// Tailer follows the log stream from its current tip without joining a
// consumer group. It backs the live websocket feed; durable persistence is
// the ingestion consumer's job, so the tailer never acknowledges anything.
type Tailer struct {
	client *redis.Client
	stream string
	logger *slog.Logger
}

// NewTailer returns a log stream follower.
func NewTailer(client *redis.Client, streamName string, logger *slog.Logger) *Tailer {
	return &Tailer{client: client, stream: streamName, logger: logger}
}

// Run invokes emit for every new log event until the context is cancelled.
func (t *Tailer) Run(ctx context.Context, emit func(domain.LogEvent)) {
	lastID := "$"
	for {
		if ctx.Err() != nil {
			return
		}
		streams, err := t.client.XRead(ctx, &redis.XReadArgs{
			Streams: []string{t.stream, lastID},
			Count:   100,
			Block:   5 * time.Second,
		}).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			t.logger.Warn("log tail read failed", "stream", t.stream, "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Second):
			}
			continue
		}
		for _, s := range streams {
			for _, msg := range s.Messages {
				lastID = msg.ID
				emit(DecodeLogEvent(msg))
			}
		}
	}
}
