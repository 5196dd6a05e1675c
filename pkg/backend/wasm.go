package backend

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"
	"github.com/tetratelabs/wazero/sys"
)

// WasmTransport runs a backend compiled to a WASI command module. The
// module is compiled once and instantiated fresh for every session, with
// the session's pipes as its stdio. Modules get no filesystem access:
// the wasm transport suits advisory and simulation backends.
type WasmTransport struct {
	path string

	mu       sync.Mutex
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
}

// NewWasmTransport builds a transport for a WASI module file. The module
// is read and compiled lazily on the first session.
func NewWasmTransport(path string) *WasmTransport {
	return &WasmTransport{path: path}
}

func (t *WasmTransport) compile(ctx context.Context) (wazero.Runtime, wazero.CompiledModule, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.compiled != nil {
		return t.runtime, t.compiled, nil
	}

	moduleBytes, err := os.ReadFile(t.path)
	if err != nil {
		return nil, nil, fmt.Errorf("read module: %w", err)
	}

	cfg := wazero.NewRuntimeConfig().WithCloseOnContextDone(true)
	runtime := wazero.NewRuntimeWithConfig(ctx, cfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, runtime); err != nil {
		_ = runtime.Close(ctx)
		return nil, nil, fmt.Errorf("instantiate WASI: %w", err)
	}

	compiled, err := runtime.CompileModule(ctx, moduleBytes)
	if err != nil {
		_ = runtime.Close(ctx)
		return nil, nil, fmt.Errorf("compile module: %w", err)
	}

	t.runtime = runtime
	t.compiled = compiled
	return runtime, compiled, nil
}

// Open instantiates the module and wires its stdio to the session. The
// module's main loop is expected to exit on stdin EOF; a lingering
// instance is closed through its context after a grace period.
func (t *WasmTransport) Open(ctx context.Context) (*Session, error) {
	runtime, compiled, err := t.compile(ctx)
	if err != nil {
		return nil, err
	}

	stdinR, stdinW := io.Pipe()
	stdoutR, stdoutW := io.Pipe()
	stderr := &tailBuffer{limit: stderrTailSize}

	modCfg := wazero.NewModuleConfig().
		WithName(""). // anonymous: one compiled module, many instances
		WithArgs(filepath.Base(t.path)).
		WithStdin(stdinR).
		WithStdout(stdoutW).
		WithStderr(stderr).
		WithSysWalltime().
		WithSysNanotime().
		WithRandSource(crand.Reader)

	runCtx, cancel := context.WithCancel(ctx)
	done := make(chan error, 1)

	go func() {
		mod, err := runtime.InstantiateModule(runCtx, compiled, modCfg)
		if mod != nil {
			_ = mod.Close(runCtx)
		}
		// Readers must not outlive the instance.
		_ = stdoutW.Close()
		_ = stdinR.Close()
		done <- normalizeExit(err)
	}()

	stop := func() error {
		_ = stdinW.Close()

		select {
		case err := <-done:
			cancel()
			return err
		case <-time.After(closeGrace):
			cancel()
			return <-done
		}
	}

	return NewSession(stdinW, stdoutR, stop, stderr.String), nil
}

// Close releases the runtime and the compiled module.
func (t *WasmTransport) Close(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.runtime == nil {
		return nil
	}
	err := t.runtime.Close(ctx)
	t.runtime = nil
	t.compiled = nil
	return err
}

func (t *WasmTransport) String() string {
	return "wasm " + t.path
}

// normalizeExit maps a clean WASI exit to success. Modules report exit
// codes through proc_exit, which wazero surfaces as an error even for 0.
func normalizeExit(err error) error {
	var exitErr *sys.ExitError
	if errors.As(err, &exitErr) {
		if exitErr.ExitCode() == 0 {
			return nil
		}
		return fmt.Errorf("backend exited with code %d", exitErr.ExitCode())
	}
	return err
}
