package stream

import (
	"context"
	"fmt"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
	"github.com/sethvargo/go-retry"

	"github.com/hangarhq/hangar/internal/domain"
)

// Adder is the subset of the redis client the publisher needs.
type Adder interface {
	XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd
}

const (
	defaultPublishAttempts = 4
	defaultPublishBackoff  = 200 * time.Millisecond
)

// Publisher emits log and status events onto their streams. Sends are
// bounded-retry with exponential backoff; when every attempt fails the event
// is appended to a local spool file so a later drain can replay it instead of
// losing it.
type Publisher struct {
	client       Adder
	logStream    string
	statusStream string
	spool        *Spool
	logger       *slog.Logger
	maxAttempts  uint64
	baseBackoff  time.Duration
}

// NewPublisher constructs a Publisher. The spool may be nil, in which case an
// exhausted retry surfaces as an error to the caller.
func NewPublisher(client Adder, logStream, statusStream string, spool *Spool, logger *slog.Logger) *Publisher {
	return &Publisher{
		client:       client,
		logStream:    logStream,
		statusStream: statusStream,
		spool:        spool,
		logger:       logger,
		maxAttempts:  defaultPublishAttempts,
		baseBackoff:  defaultPublishBackoff,
	}
}

// PublishLog emits one build output line onto the log channel.
func (p *Publisher) PublishLog(ctx context.Context, event domain.LogEvent) error {
	return p.publish(ctx, p.logStream, logValues(event))
}

// PublishStatus emits a lifecycle transition onto the status channel.
func (p *Publisher) PublishStatus(ctx context.Context, event domain.StatusEvent) error {
	return p.publish(ctx, p.statusStream, statusValues(event))
}

func (p *Publisher) publish(ctx context.Context, streamName string, values map[string]any) error {
	backoff := retry.WithMaxRetries(p.maxAttempts, retry.NewExponential(p.baseBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := p.client.XAdd(ctx, &redis.XAddArgs{Stream: streamName, Values: values}).Err(); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	})
	if err == nil {
		return nil
	}
	if p.spool != nil {
		if spoolErr := p.spool.Append(streamName, values); spoolErr == nil {
			p.logger.Warn("stream publish failed, event spooled", "stream", streamName, "error", err)
			return nil
		} else {
			err = fmt.Errorf("publish failed (%w) and spool append failed: %v", err, spoolErr)
		}
	}
	p.logger.Error("stream publish failed", "stream", streamName, "error", err)
	return err
}

// Drain replays spooled events onto their streams. Called on worker start so
// events stranded by an earlier outage are not lost.
func (p *Publisher) Drain(ctx context.Context) (int, error) {
	if p.spool == nil {
		return 0, nil
	}
	return p.spool.Drain(ctx, p.client)
}
