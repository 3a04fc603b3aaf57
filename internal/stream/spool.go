package stream

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	redis "github.com/redis/go-redis/v9"
)

// Spool is an append-only local file holding events that could not be
// published. One JSON object per line.
type Spool struct {
	mu   sync.Mutex
	path string
}

type spooledEvent struct {
	Stream string         `json:"stream"`
	Values map[string]any `json:"values"`
}

// NewSpool creates the spool directory if needed.
func NewSpool(path string) (*Spool, error) {
	if path == "" {
		return nil, fmt.Errorf("spool path cannot be empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &Spool{path: path}, nil
}

// Append durably records one event for a later drain.
func (s *Spool) Append(streamName string, values map[string]any) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	line, err := json.Marshal(spooledEvent{Stream: streamName, Values: values})
	if err != nil {
		return fmt.Errorf("marshal spooled event: %w", err)
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open spool: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(line, '\n')); err != nil {
		return fmt.Errorf("write spool: %w", err)
	}
	return f.Sync()
}

// Drain replays every spooled event and truncates the file when all of them
// were republished. A partial failure leaves the file intact so nothing is
// dropped; duplicates on the next drain are acceptable under at-least-once
// semantics.
func (s *Spool) Drain(ctx context.Context, client Adder) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.Open(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("open spool: %w", err)
	}

	var events []spooledEvent
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		var ev spooledEvent
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue // skip corrupt lines rather than wedging the drain
		}
		events = append(events, ev)
	}
	scanErr := scanner.Err()
	f.Close()
	if scanErr != nil {
		return 0, fmt.Errorf("read spool: %w", scanErr)
	}

	replayed := 0
	for _, ev := range events {
		if err := client.XAdd(ctx, &redis.XAddArgs{Stream: ev.Stream, Values: ev.Values}).Err(); err != nil {
			return replayed, fmt.Errorf("replay spooled event: %w", err)
		}
		replayed++
	}
	if err := os.Truncate(s.path, 0); err != nil {
		return replayed, fmt.Errorf("truncate spool: %w", err)
	}
	return replayed, nil
}
