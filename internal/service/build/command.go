package build

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
)

// LineFunc receives one line of subprocess output.
type LineFunc func(line string)

// RunShell executes a shell command pipeline in dir with extra environment
// variables, multiplexing stdout and stderr line-by-line into the provided
// callbacks. It returns the command error (including non-zero exits) after
// both streams are fully drained.
func RunShell(ctx context.Context, command, dir string, extraEnv map[string]string, onStdout, onStderr LineFunc) error {
	if command == "" {
		return fmt.Errorf("command cannot be empty")
	}
	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for key, value := range extraEnv {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attach stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attach stderr: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanLines(stdout, onStdout)
	}()
	go func() {
		defer wg.Done()
		scanLines(stderr, onStderr)
	}()
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("command %q failed: %w", command, err)
	}
	return nil
}

func scanLines(r io.Reader, emit LineFunc) {
	if emit == nil {
		emit = func(string) {}
	}
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		emit(scanner.Text())
	}
}
