package build

import (
	"context"
	"testing"
	"time"
)

func TestRunShellSplitsStdoutAndStderr(t *testing.T) {
	var stdout, stderr []string
	err := RunShell(context.Background(), "echo out-line; echo err-line 1>&2", t.TempDir(), nil,
		func(line string) { stdout = append(stdout, line) },
		func(line string) { stderr = append(stderr, line) },
	)
	if err != nil {
		t.Fatalf("RunShell returned error: %v", err)
	}
	if len(stdout) != 1 || stdout[0] != "out-line" {
		t.Fatalf("stdout lines = %v", stdout)
	}
	if len(stderr) != 1 || stderr[0] != "err-line" {
		t.Fatalf("stderr lines = %v", stderr)
	}
}

func TestRunShellPassesExtraEnv(t *testing.T) {
	var stdout []string
	err := RunShell(context.Background(), "echo $BUILD_FLAG", t.TempDir(),
		map[string]string{"BUILD_FLAG": "enabled"},
		func(line string) { stdout = append(stdout, line) },
		func(string) {},
	)
	if err != nil {
		t.Fatalf("RunShell returned error: %v", err)
	}
	if len(stdout) != 1 || stdout[0] != "enabled" {
		t.Fatalf("stdout lines = %v", stdout)
	}
}

func TestRunShellReportsExitFailure(t *testing.T) {
	err := RunShell(context.Background(), "exit 3", t.TempDir(), nil,
		func(string) {}, func(string) {})
	if err == nil {
		t.Fatalf("expected error for non-zero exit")
	}
}

func TestRunShellHonorsContextCancel(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	start := time.Now()
	err := RunShell(ctx, "sleep 5", t.TempDir(), nil, func(string) {}, func(string) {})
	if err == nil {
		t.Fatalf("expected error after context deadline")
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("RunShell did not stop promptly after cancellation")
	}
}
