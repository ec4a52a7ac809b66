package watchdog_test

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/neilotoole/slogt"

	"github.com/Paintersrp/procwatch/internal/watchdog"
)

var processIndex atomic.Int32

// fakeProcess reports itself alive until exitAt (never, when zero) or until
// it is killed.
type fakeProcess struct {
	name    string
	exitAt  time.Time
	killErr error

	stdout io.Reader
	stdin  bytes.Buffer

	kills  atomic.Int32
	killed atomic.Bool
}

func newFakeProcess(lifetime time.Duration) *fakeProcess {
	p := &fakeProcess{
		name:   fmt.Sprintf("Process #%d", processIndex.Add(1)),
		stdout: bytes.NewReader(nil),
	}
	if lifetime > 0 {
		p.exitAt = time.Now().Add(lifetime)
	}
	return p
}

func (p *fakeProcess) Stdout() io.Reader { return p.stdout }
func (p *fakeProcess) Stderr() io.Reader { return bytes.NewReader(nil) }
func (p *fakeProcess) Stdin() io.Writer  { return &p.stdin }

func (p *fakeProcess) Wait() (int, error) {
	for {
		if code, err := p.ExitCode(); err == nil {
			return code, nil
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func (p *fakeProcess) ExitCode() (int, error) {
	if p.killed.Load() {
		return 137, nil
	}
	if !p.exitAt.IsZero() && time.Now().After(p.exitAt) {
		return 0, nil
	}
	return 0, watchdog.ErrNotExited
}

func (p *fakeProcess) Kill() error {
	p.kills.Add(1)
	if p.killErr != nil {
		return p.killErr
	}
	p.killed.Store(true)
	return nil
}

func (p *fakeProcess) String() string { return p.name }

// slowReader yields one byte per Read call.
type slowReader struct {
	data []byte
}

func (r *slowReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	if len(p) == 0 {
		return 0, nil
	}
	p[0] = r.data[0]
	r.data = r.data[1:]
	return 1, nil
}

// manualClock is a settable time source.
type manualClock struct {
	mu  sync.Mutex
	now time.Time
}

func newManualClock() *manualClock {
	return &manualClock{now: time.Unix(1_700_000_000, 0)}
}

func (c *manualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *manualClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// eventLog records watchdog events for later inspection.
type eventLog struct {
	mu     sync.Mutex
	events []watchdog.Event
}

func (l *eventLog) hook(e watchdog.Event) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.events = append(l.events, e)
}

func (l *eventLog) count(t watchdog.EventType) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.events {
		if e.Type == t {
			n++
		}
	}
	return n
}

func newTestWatchdog(t *testing.T, opts ...watchdog.Option) *watchdog.Watchdog {
	t.Helper()
	opts = append([]watchdog.Option{watchdog.WithLogger(slogt.New(t, slogt.Text()))}, opts...)
	w := watchdog.New(opts...)
	t.Cleanup(func() {
		// The monitor logs through t, so it must be gone before the test ends.
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := w.WaitIdle(ctx); err != nil {
			t.Errorf("watchdog still running after test: %d processes watched", w.Len())
		}
	})
	return w
}

var errKillRefused = errors.New("operation not permitted")
