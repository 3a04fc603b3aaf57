package stream

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// fakeGroupClient serves queued batches, then cancels the run context so the
// read loop terminates.
type fakeGroupClient struct {
	mu       sync.Mutex
	batches  [][]redis.XMessage
	stale    [][]redis.XMessage
	groupErr error
	acked    [][]string
	claimed  [][]string
	cancel   context.CancelFunc
}

func (f *fakeGroupClient) XGroupCreateMkStream(ctx context.Context, stream, group, start string) *redis.StatusCmd {
	cmd := redis.NewStatusCmd(ctx)
	if f.groupErr != nil {
		cmd.SetErr(f.groupErr)
		return cmd
	}
	cmd.SetVal("OK")
	return cmd
}

func (f *fakeGroupClient) XReadGroup(ctx context.Context, _ *redis.XReadGroupArgs) *redis.XStreamSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewXStreamSliceCmd(ctx)
	if len(f.batches) == 0 {
		f.cancel()
		cmd.SetErr(redis.Nil)
		return cmd
	}
	msgs := f.batches[0]
	f.batches = f.batches[1:]
	cmd.SetVal([]redis.XStream{{Stream: "logs", Messages: msgs}})
	return cmd
}

func (f *fakeGroupClient) XAck(ctx context.Context, _, _ string, ids ...string) *redis.IntCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = append(f.acked, ids)
	cmd := redis.NewIntCmd(ctx)
	cmd.SetVal(int64(len(ids)))
	return cmd
}

func (f *fakeGroupClient) XAutoClaim(ctx context.Context, _ *redis.XAutoClaimArgs) *redis.XAutoClaimCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewXAutoClaimCmd(ctx)
	if len(f.stale) == 0 {
		cmd.SetVal(nil, "0-0")
		return cmd
	}
	msgs := f.stale[0]
	f.stale = f.stale[1:]
	cmd.SetVal(msgs, "0-0")
	return cmd
}

func (f *fakeGroupClient) XClaimJustID(ctx context.Context, a *redis.XClaimArgs) *redis.StringSliceCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.claimed = append(f.claimed, a.Messages)
	cmd := redis.NewStringSliceCmd(ctx)
	cmd.SetVal(a.Messages)
	return cmd
}

func (f *fakeGroupClient) ackedBatches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acked
}

func (f *fakeGroupClient) claimCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.claimed)
}

func testMessages(ids ...string) []redis.XMessage {
	msgs := make([]redis.XMessage, 0, len(ids))
	for _, id := range ids {
		msgs = append(msgs, redis.XMessage{ID: id, Values: map[string]any{"deployment_id": "dep-1"}})
	}
	return msgs
}

func runConsumer(t *testing.T, client *fakeGroupClient, opts GroupOptions, handle Handler) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.cancel = cancel

	c, err := NewGroupConsumer(client, opts, discardLogger())
	if err != nil {
		t.Fatalf("NewGroupConsumer: %v", err)
	}
	return c.Run(ctx, handle)
}

func defaultOptions() GroupOptions {
	return GroupOptions{Stream: "logs", Group: "log-ingest", Consumer: "c1"}
}

func TestRunAcksExactlyTheDeliveredEntries(t *testing.T) {
	client := &fakeGroupClient{batches: [][]redis.XMessage{testMessages("1-0", "2-0")}}

	var handled [][]redis.XMessage
	err := runConsumer(t, client, defaultOptions(), func(_ context.Context, msgs []redis.XMessage) error {
		handled = append(handled, msgs)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if len(handled) != 1 || len(handled[0]) != 2 {
		t.Fatalf("handled batches = %v", handled)
	}
	acked := client.ackedBatches()
	if len(acked) != 1 {
		t.Fatalf("expected one ack call, got %d", len(acked))
	}
	if len(acked[0]) != 2 || acked[0][0] != "1-0" || acked[0][1] != "2-0" {
		t.Fatalf("acked ids = %v", acked[0])
	}
}

func TestRunLeavesEntriesPendingOnHandlerError(t *testing.T) {
	client := &fakeGroupClient{batches: [][]redis.XMessage{testMessages("1-0")}}

	err := runConsumer(t, client, defaultOptions(), func(_ context.Context, _ []redis.XMessage) error {
		return errors.New("store write failed")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if acked := client.ackedBatches(); len(acked) != 0 {
		t.Fatalf("failed batch must stay pending, but acked = %v", acked)
	}
}

func TestRunProcessesStaleEntriesBeforeNewOnes(t *testing.T) {
	client := &fakeGroupClient{
		stale:   [][]redis.XMessage{testMessages("1-0")},
		batches: [][]redis.XMessage{testMessages("2-0")},
	}

	var order []string
	err := runConsumer(t, client, defaultOptions(), func(_ context.Context, msgs []redis.XMessage) error {
		order = append(order, msgs[0].ID)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if len(order) != 2 || order[0] != "1-0" || order[1] != "2-0" {
		t.Fatalf("processing order = %v, want stale entry first", order)
	}
	if acked := client.ackedBatches(); len(acked) != 2 {
		t.Fatalf("expected both batches acked, got %v", acked)
	}
}

func TestRunHeartbeatsWhileHandlerIsSlow(t *testing.T) {
	client := &fakeGroupClient{batches: [][]redis.XMessage{testMessages("1-0")}}

	opts := defaultOptions()
	opts.Heartbeat = 5 * time.Millisecond
	err := runConsumer(t, client, opts, func(_ context.Context, _ []redis.XMessage) error {
		time.Sleep(50 * time.Millisecond)
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}

	if client.claimCount() == 0 {
		t.Fatalf("expected in-flight entries to be re-claimed during a slow handler")
	}
	if acked := client.ackedBatches(); len(acked) != 1 {
		t.Fatalf("slow batch should still be acked once, got %v", acked)
	}
}

func TestRunToleratesExistingGroup(t *testing.T) {
	client := &fakeGroupClient{
		groupErr: errors.New("BUSYGROUP Consumer Group name already exists"),
		batches:  [][]redis.XMessage{testMessages("1-0")},
	}

	err := runConsumer(t, client, defaultOptions(), func(_ context.Context, _ []redis.XMessage) error {
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	if acked := client.ackedBatches(); len(acked) != 1 {
		t.Fatalf("expected one acked batch, got %v", acked)
	}
}

func TestRunFailsOnGroupCreateError(t *testing.T) {
	client := &fakeGroupClient{groupErr: errors.New("connection refused")}
	client.cancel = func() {}

	c, err := NewGroupConsumer(client, defaultOptions(), discardLogger())
	if err != nil {
		t.Fatalf("NewGroupConsumer: %v", err)
	}
	if err := c.Run(context.Background(), func(_ context.Context, _ []redis.XMessage) error {
		return nil
	}); err == nil {
		t.Fatalf("expected group creation error to surface")
	}
}
