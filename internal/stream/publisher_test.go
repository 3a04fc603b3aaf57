package stream

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/hangarhq/hangar/internal/domain"
)

type fakeAdder struct {
	mu       sync.Mutex
	added    []redis.XAddArgs
	failures int
}

func (f *fakeAdder) XAdd(ctx context.Context, args *redis.XAddArgs) *redis.StringCmd {
	f.mu.Lock()
	defer f.mu.Unlock()
	cmd := redis.NewStringCmd(ctx)
	if f.failures > 0 {
		f.failures--
		cmd.SetErr(errors.New("connection refused"))
		return cmd
	}
	f.added = append(f.added, *args)
	cmd.SetVal("1-0")
	return cmd
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastPublisher(client Adder, spool *Spool) *Publisher {
	p := NewPublisher(client, "logs", "status", spool, discardLogger())
	p.baseBackoff = time.Millisecond
	return p
}

func TestPublishLogReachesStream(t *testing.T) {
	adder := &fakeAdder{}
	p := fastPublisher(adder, nil)

	err := p.PublishLog(context.Background(), domain.LogEvent{
		DeploymentID: "dep-1",
		Timestamp:    time.Now().UTC(),
		Level:        domain.LogLevelInfo,
		Text:         "cloning",
	})
	if err != nil {
		t.Fatalf("PublishLog returned error: %v", err)
	}
	if len(adder.added) != 1 || adder.added[0].Stream != "logs" {
		t.Fatalf("added = %v", adder.added)
	}
	if adder.added[0].Values.(map[string]any)["deployment_id"] != "dep-1" {
		t.Fatalf("values = %v", adder.added[0].Values)
	}
}

func TestPublishRetriesTransientFailure(t *testing.T) {
	adder := &fakeAdder{failures: 2}
	p := fastPublisher(adder, nil)

	err := p.PublishStatus(context.Background(), domain.StatusEvent{
		DeploymentID: "dep-1",
		Status:       domain.StatusReady,
		Timestamp:    time.Now().UTC(),
	})
	if err != nil {
		t.Fatalf("PublishStatus returned error after retries: %v", err)
	}
	if len(adder.added) != 1 {
		t.Fatalf("expected one successful add, got %d", len(adder.added))
	}
}

func TestPublishSpoolsOnExhaustedRetries(t *testing.T) {
	spoolPath := filepath.Join(t.TempDir(), "spool")
	spool, err := NewSpool(spoolPath)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	adder := &fakeAdder{failures: 100}
	p := fastPublisher(adder, spool)

	err = p.PublishLog(context.Background(), domain.LogEvent{
		DeploymentID: "dep-1",
		Timestamp:    time.Now().UTC(),
		Level:        domain.LogLevelError,
		Text:         "boom",
	})
	if err != nil {
		t.Fatalf("exhausted publish with spool should not error, got: %v", err)
	}

	data, readErr := os.ReadFile(spoolPath)
	if readErr != nil || len(data) == 0 {
		t.Fatalf("spool file empty after fallback (err=%v)", readErr)
	}
}

func TestPublishWithoutSpoolSurfacesError(t *testing.T) {
	adder := &fakeAdder{failures: 100}
	p := fastPublisher(adder, nil)

	err := p.PublishLog(context.Background(), domain.LogEvent{DeploymentID: "dep-1"})
	if err == nil {
		t.Fatalf("expected error when retries exhausted and no spool configured")
	}
}

func TestDrainReplaysSpooledEvents(t *testing.T) {
	spoolPath := filepath.Join(t.TempDir(), "spool")
	spool, err := NewSpool(spoolPath)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}

	failing := &fakeAdder{failures: 100}
	p := fastPublisher(failing, spool)
	for i := 0; i < 3; i++ {
		if err := p.PublishLog(context.Background(), domain.LogEvent{
			DeploymentID: "dep-1",
			Timestamp:    time.Now().UTC(),
			Level:        domain.LogLevelInfo,
			Text:         "line",
		}); err != nil {
			t.Fatalf("PublishLog: %v", err)
		}
	}

	healthy := &fakeAdder{}
	p2 := fastPublisher(healthy, spool)
	replayed, err := p2.Drain(context.Background())
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if replayed != 3 || len(healthy.added) != 3 {
		t.Fatalf("replayed = %d, added = %d, want 3", replayed, len(healthy.added))
	}

	// A second drain over the truncated file is a no-op.
	again, err := p2.Drain(context.Background())
	if err != nil || again != 0 {
		t.Fatalf("second drain = (%d, %v), want (0, nil)", again, err)
	}
}

func TestDrainSkipsCorruptLines(t *testing.T) {
	spoolPath := filepath.Join(t.TempDir(), "spool")
	spool, err := NewSpool(spoolPath)
	if err != nil {
		t.Fatalf("NewSpool: %v", err)
	}
	if err := spool.Append("logs", map[string]any{"deployment_id": "dep-1"}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	f, err := os.OpenFile(spoolPath, os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		t.Fatalf("open spool: %v", err)
	}
	if _, err := f.WriteString("{not json\n"); err != nil {
		t.Fatalf("write corrupt line: %v", err)
	}
	f.Close()

	healthy := &fakeAdder{}
	replayed, err := spool.Drain(context.Background(), healthy)
	if err != nil {
		t.Fatalf("Drain returned error: %v", err)
	}
	if replayed != 1 {
		t.Fatalf("replayed = %d, want 1", replayed)
	}
}
