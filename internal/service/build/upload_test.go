package build

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/hangarhq/hangar/internal/domain"
)

type fakePublisher struct {
	mu       sync.Mutex
	logs     []domain.LogEvent
	statuses []domain.StatusEvent
}

func (f *fakePublisher) PublishLog(_ context.Context, event domain.LogEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.logs = append(f.logs, event)
	return nil
}

func (f *fakePublisher) PublishStatus(_ context.Context, event domain.StatusEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses = append(f.statuses, event)
	return nil
}

type fakeStore struct {
	mu      sync.Mutex
	objects map[string]string
	failKey string
}

func (f *fakeStore) Put(_ context.Context, key, _ string, body io.Reader) error {
	if f.failKey != "" && key == f.failKey {
		return errors.New("store unavailable")
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.objects == nil {
		f.objects = make(map[string]string)
	}
	f.objects[key] = string(data)
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(full, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestUploadDirUploadsAllFilesUnderPrefix(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html":        "<html></html>",
		"assets/app.js":     "console.log(1)",
		"assets/css/m.css":  "body{}",
		"nested/deep/p.txt": "x",
	})

	store := &fakeStore{}
	emitter := NewEmitter(&fakePublisher{}, "dep-1", discardLogger())

	result, err := UploadDir(context.Background(), store, emitter, root, "__outputs", "acme")
	if err != nil {
		t.Fatalf("UploadDir returned error: %v", err)
	}
	if result.Uploaded != 4 || result.Failed != 0 {
		t.Fatalf("UploadDir result = %+v, want 4 uploaded, 0 failed", result)
	}
	if got := store.objects["__outputs/acme/index.html"]; got != "<html></html>" {
		t.Fatalf("index.html stored as %q", got)
	}
	if _, ok := store.objects["__outputs/acme/assets/css/m.css"]; !ok {
		t.Fatalf("nested file missing from store: %v", store.objects)
	}
}

func TestUploadDirToleratesSingleFailure(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"index.html": "<html></html>",
		"bad.bin":    "payload",
	})

	store := &fakeStore{failKey: "__outputs/acme/bad.bin"}
	publisher := &fakePublisher{}
	emitter := NewEmitter(publisher, "dep-1", discardLogger())

	result, err := UploadDir(context.Background(), store, emitter, root, "__outputs", "acme")
	if err != nil {
		t.Fatalf("UploadDir returned error: %v", err)
	}
	if result.Uploaded != 1 || result.Failed != 1 {
		t.Fatalf("UploadDir result = %+v, want 1 uploaded, 1 failed", result)
	}

	var sawFailureLog bool
	for _, event := range publisher.logs {
		if event.Level == domain.LogLevelError {
			sawFailureLog = true
		}
	}
	if !sawFailureLog {
		t.Fatalf("expected an error log event for the failed upload")
	}
}
