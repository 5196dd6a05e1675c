package backend

import (
	"context"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// closeGrace bounds how long a session close waits for the backend process
// to exit on its own after stdin closes.
const closeGrace = 2 * time.Second

// stderrTailSize bounds the stderr capture kept for crash diagnostics.
const stderrTailSize = 2048

// ExecTransport runs a backend as a local child process, one process per
// session. The process is expected to exit when its stdin closes; a
// lingering process is killed after a short grace period.
type ExecTransport struct {
	path string
	args []string
}

// NewExecTransport builds a transport for a backend executable.
func NewExecTransport(path string, args ...string) *ExecTransport {
	return &ExecTransport{path: path, args: args}
}

// Open starts the backend process with its stdio wired to the session.
// The process is killed when ctx ends.
func (t *ExecTransport) Open(ctx context.Context) (*Session, error) {
	cmd := exec.CommandContext(ctx, t.path, t.args...)
	cmd.WaitDelay = closeGrace

	stderr := &tailBuffer{limit: stderrTailSize}
	cmd.Stderr = stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdin: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("pipe stdout: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", t.path, err)
	}

	stop := func() error {
		_ = stdin.Close()

		done := make(chan error, 1)
		go func() { done <- cmd.Wait() }()
		select {
		case err := <-done:
			return err
		case <-time.After(closeGrace):
			_ = cmd.Process.Kill()
			return <-done
		}
	}

	return NewSession(stdin, stdout, stop, stderr.String), nil
}

// Close is a no-op: exec sessions hold no shared state.
func (t *ExecTransport) Close(ctx context.Context) error { return nil }

func (t *ExecTransport) String() string {
	if len(t.args) == 0 {
		return "exec " + t.path
	}
	return "exec " + t.path + " " + strings.Join(t.args, " ")
}

// tailBuffer keeps the last limit bytes written to it. The backend process
// writes from its own goroutine, so access is locked.
type tailBuffer struct {
	mu    sync.Mutex
	buf   []byte
	limit int
}

func (b *tailBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	if len(b.buf) > b.limit {
		b.buf = b.buf[len(b.buf)-b.limit:]
	}
	return len(p), nil
}

func (b *tailBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return strings.TrimSpace(string(b.buf))
}
