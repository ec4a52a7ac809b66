package cli

import (
	"bytes"
	stdcontext "context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

// lockedBuffer is shared by the logger, the monitor goroutine and the output
// pumps, so it needs its own lock.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func executeCommand(t *testing.T, stdin string, args ...string) (string, string, error) {
	t.Helper()
	root, _ := newRootCommand()
	var stdout, stderr lockedBuffer
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetIn(strings.NewReader(stdin))
	root.SetArgs(args)
	err := root.ExecuteContext(stdcontext.Background())
	return stdout.String(), stderr.String(), err
}

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("requires a POSIX shell")
	}
}

func writeWatchFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "procwatch.yaml")
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write watch file: %v", err)
	}
	return path
}

func exitCodeOf(t *testing.T, err error) int {
	t.Helper()
	var exit *exitError
	if !errors.As(err, &exit) {
		t.Fatalf("expected exitError, got %T: %v", err, err)
	}
	return exit.code
}

func TestRootCommandFlagsFromEnv(t *testing.T) {
	t.Setenv("PROCWATCH_LOG_LEVEL", "debug")
	t.Setenv("PROCWATCH_LOG_FORMAT", "json")
	t.Setenv("PROCWATCH_METRICS_ADDR", "127.0.0.1:9464")

	_, ctx := newRootCommand()
	if got := *ctx.logLevel; got != "debug" {
		t.Fatalf("unexpected log level: %q", got)
	}
	if got := *ctx.logFormat; got != "json" {
		t.Fatalf("unexpected log format: %q", got)
	}
	if got := *ctx.metricsAddr; got != "127.0.0.1:9464" {
		t.Fatalf("unexpected metrics addr: %q", got)
	}
	if ctx.runID == "" {
		t.Fatalf("expected a run id")
	}
}

func TestRootCommandDefaults(t *testing.T) {
	t.Setenv("PROCWATCH_LOG_LEVEL", "")
	t.Setenv("PROCWATCH_LOG_FORMAT", "")
	t.Setenv("PROCWATCH_METRICS_ADDR", "")

	root, ctx := newRootCommand()
	if got := *ctx.logLevel; got != "info" {
		t.Fatalf("unexpected log level: %q", got)
	}
	if got := *ctx.logFormat; got != logFormatAuto {
		t.Fatalf("unexpected log format: %q", got)
	}
	if got := *ctx.metricsAddr; got != "" {
		t.Fatalf("unexpected metrics addr: %q", got)
	}

	var names []string
	for _, cmd := range root.Commands() {
		names = append(names, cmd.Name())
	}
	for _, want := range []string{"attach", "config", "run", "up"} {
		found := false
		for _, name := range names {
			if name == want {
				found = true
			}
		}
		if !found {
			t.Fatalf("missing %q command in %v", want, names)
		}
	}
}

func TestRootRejectsInvalidLogLevel(t *testing.T) {
	path := writeWatchFile(t, "processes:\n  a:\n    command: [\"true\"]\n")
	_, _, err := executeCommand(t, "", "--log-level", "loud", "config", "-f", path)
	if err == nil || !strings.Contains(err.Error(), "invalid log level") {
		t.Fatalf("expected invalid log level error, got %v", err)
	}
}

func TestRunIDIsAttachedToLogs(t *testing.T) {
	requireShell(t)
	_, stderr, err := executeCommand(t, "", "--log-format", "json", "run", "--", "/bin/sh", "-c", "exit 0")
	if err != nil {
		t.Fatalf("run returned error: %v", err)
	}
	if !strings.Contains(stderr, `"run_id":"`) {
		t.Fatalf("expected run_id in logs, got %q", stderr)
	}
}

func TestExitErrorMessage(t *testing.T) {
	plain := &exitError{code: 3}
	if got := plain.Error(); got != "exit status 3" {
		t.Fatalf("unexpected message: %q", got)
	}

	cause := errors.New("worker killed")
	wrapped := &exitError{code: 137, err: cause}
	if got := wrapped.Error(); got != "worker killed" {
		t.Fatalf("unexpected message: %q", got)
	}
	if !errors.Is(wrapped, cause) {
		t.Fatalf("expected exitError to unwrap to its cause")
	}
}
