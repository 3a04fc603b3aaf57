package stream

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"log/slog"

	redis "github.com/redis/go-redis/v9"
)

// Handler processes one delivered batch. The batch is acknowledged only when
// the handler returns nil; an error leaves the entries pending so they are
// redelivered after restart or claimed by another group member.
type Handler func(ctx context.Context, msgs []redis.XMessage) error

// GroupClient is the slice of the redis client the consumer needs.
// Satisfied by *redis.Client.
type GroupClient interface {
	XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd
	XReadGroup(ctx context.Context, a *redis.XReadGroupArgs) *redis.XStreamSliceCmd
	XAck(ctx context.Context, stream, group string, ids ...string) *redis.IntCmd
	XAutoClaim(ctx context.Context, a *redis.XAutoClaimArgs) *redis.XAutoClaimCmd
	XClaimJustID(ctx context.Context, a *redis.XClaimArgs) *redis.StringSliceCmd
}

// GroupConsumer is a durable consumer-group reader with manual offset
// acknowledgment. While a batch is being handled, a heartbeat goroutine
// re-claims the in-flight entries to reset their idle time so a slow store
// write does not get them stolen by another consumer.
type GroupConsumer struct {
	client       GroupClient
	stream       string
	group        string
	name         string
	batchSize    int64
	blockTimeout time.Duration
	heartbeat    time.Duration
	claimMinIdle time.Duration
	logger       *slog.Logger
}

// GroupOptions configures a GroupConsumer.
type GroupOptions struct {
	Stream       string
	Group        string
	Consumer     string
	BatchSize    int
	BlockTimeout time.Duration
	Heartbeat    time.Duration
	ClaimMinIdle time.Duration
}

// NewGroupConsumer constructs a consumer-group reader for one stream.
func NewGroupConsumer(client GroupClient, opts GroupOptions, logger *slog.Logger) (*GroupConsumer, error) {
	if client == nil {
		return nil, errors.New("nil redis client")
	}
	if opts.Stream == "" || opts.Group == "" || opts.Consumer == "" {
		return nil, errors.New("stream, group and consumer names are required")
	}
	batch := int64(opts.BatchSize)
	if batch <= 0 {
		batch = 100
	}
	block := opts.BlockTimeout
	if block <= 0 {
		block = 5 * time.Second
	}
	heartbeat := opts.Heartbeat
	if heartbeat <= 0 {
		heartbeat = 3 * time.Second
	}
	claimIdle := opts.ClaimMinIdle
	if claimIdle <= 0 {
		claimIdle = time.Minute
	}
	return &GroupConsumer{
		client:       client,
		stream:       opts.Stream,
		group:        opts.Group,
		name:         opts.Consumer,
		batchSize:    batch,
		blockTimeout: block,
		heartbeat:    heartbeat,
		claimMinIdle: claimIdle,
		logger:       logger,
	}, nil
}

// Run reads batches until the context is cancelled.
func (c *GroupConsumer) Run(ctx context.Context, handle Handler) error {
	if err := c.ensureGroup(ctx); err != nil {
		return err
	}
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		// Pick up entries stranded by a crashed group member first.
		stale, err := c.claimStale(ctx)
		if err != nil && ctx.Err() == nil {
			c.logger.Warn("claim stale entries failed", "stream", c.stream, "error", err)
		}
		if len(stale) > 0 {
			c.process(ctx, stale, handle)
			continue
		}

		msgs, err := c.readBatch(ctx)
		if err != nil {
			if errors.Is(err, redis.Nil) || ctx.Err() != nil {
				continue
			}
			c.logger.Warn("stream read failed", "stream", c.stream, "error", err)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(time.Second):
			}
			continue
		}
		if len(msgs) > 0 {
			c.process(ctx, msgs, handle)
		}
	}
}

func (c *GroupConsumer) ensureGroup(ctx context.Context) error {
	err := c.client.XGroupCreateMkStream(ctx, c.stream, c.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s on %s: %w", c.group, c.stream, err)
	}
	return nil
}

func (c *GroupConsumer) readBatch(ctx context.Context) ([]redis.XMessage, error) {
	streams, err := c.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    c.group,
		Consumer: c.name,
		Streams:  []string{c.stream, ">"},
		Count:    c.batchSize,
		Block:    c.blockTimeout,
	}).Result()
	if err != nil {
		return nil, err
	}
	var msgs []redis.XMessage
	for _, s := range streams {
		msgs = append(msgs, s.Messages...)
	}
	return msgs, nil
}

func (c *GroupConsumer) claimStale(ctx context.Context) ([]redis.XMessage, error) {
	msgs, _, err := c.client.XAutoClaim(ctx, &redis.XAutoClaimArgs{
		Stream:   c.stream,
		Group:    c.group,
		Consumer: c.name,
		MinIdle:  c.claimMinIdle,
		Start:    "0-0",
		Count:    c.batchSize,
	}).Result()
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// process handles one batch under a heartbeat and acknowledges it only after
// the handler succeeded. Offset advancement after the side effect is the sole
// ordering guarantee between "observed" and "durable".
func (c *GroupConsumer) process(ctx context.Context, msgs []redis.XMessage, handle Handler) {
	ids := make([]string, 0, len(msgs))
	for _, m := range msgs {
		ids = append(ids, m.ID)
	}

	hbCtx, stopHeartbeat := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.keepAlive(hbCtx, ids)
	}()

	err := handle(ctx, msgs)
	stopHeartbeat()
	<-done

	if err != nil {
		c.logger.Error("batch processing failed, leaving entries pending",
			"stream", c.stream, "count", len(ids), "error", err)
		return
	}
	if err := c.client.XAck(ctx, c.stream, c.group, ids...).Err(); err != nil {
		// Entries stay pending and will be reprocessed; the handler side
		// effect must therefore be duplicate-tolerant.
		c.logger.Warn("ack failed", "stream", c.stream, "count", len(ids), "error", err)
	}
}

// keepAlive resets the idle time of in-flight entries so the group does not
// reassign them while a slow storage write is underway.
func (c *GroupConsumer) keepAlive(ctx context.Context, ids []string) {
	ticker := time.NewTicker(c.heartbeat)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			err := c.client.XClaimJustID(ctx, &redis.XClaimArgs{
				Stream:   c.stream,
				Group:    c.group,
				Consumer: c.name,
				MinIdle:  0,
				Messages: ids,
			}).Err()
			if err != nil && ctx.Err() == nil {
				c.logger.Warn("heartbeat claim failed", "stream", c.stream, "error", err)
			}
		}
	}
}
