package watchdog

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"
)

// WatchedProcess is the handle returned by [Watchdog.Watch]. It behaves like
// the process it wraps and additionally owns the deadline the watchdog
// enforces.
//
// Reading from Stdout extends the deadline, so a process that keeps producing
// output is never killed. Stderr and Stdin are passed through untouched.
type WatchedProcess struct {
	process Process
	timeout time.Duration
	now     func() time.Time
	onBeat  func(*WatchedProcess)

	// Unix nanoseconds; written by heartbeats from any goroutine.
	validTo atomic.Int64

	stdout *heartbeatReader
}

func newWatchedProcess(p Process, timeout time.Duration, now func() time.Time, onBeat func(*WatchedProcess)) *WatchedProcess {
	if now == nil {
		now = time.Now
	}
	wp := &WatchedProcess{
		process: p,
		timeout: timeout,
		now:     now,
		onBeat:  onBeat,
	}
	wp.stdout = newHeartbeatReader(p.Stdout(), wp.HeartBeat)
	wp.reset()
	return wp
}

// HeartBeat moves the deadline to now plus the timeout.
func (w *WatchedProcess) HeartBeat() {
	w.reset()
	if w.onBeat != nil {
		w.onBeat(w)
	}
}

func (w *WatchedProcess) reset() {
	w.validTo.Store(w.now().Add(w.timeout).UnixNano())
}

// ValidTo returns the instant after which the process may be killed.
func (w *WatchedProcess) ValidTo() time.Time {
	return time.Unix(0, w.validTo.Load())
}

// Timeout returns the inactivity timeout the process was watched with.
func (w *WatchedProcess) Timeout() time.Duration {
	return w.timeout
}

// expired reports whether the deadline lies strictly before now.
func (w *WatchedProcess) expired(now time.Time) bool {
	return w.validTo.Load() < now.UnixNano()
}

// Stdout returns the standard output of the process. Every read that returns
// data counts as a heartbeat. The returned reader also implements
// io.ByteReader and io.Closer.
func (w *WatchedProcess) Stdout() io.Reader {
	return w.stdout
}

func (w *WatchedProcess) Stderr() io.Reader {
	return w.process.Stderr()
}

func (w *WatchedProcess) Stdin() io.Writer {
	return w.process.Stdin()
}

func (w *WatchedProcess) Wait() (int, error) {
	return w.process.Wait()
}

func (w *WatchedProcess) ExitCode() (int, error) {
	return w.process.ExitCode()
}

func (w *WatchedProcess) Kill() error {
	return w.process.Kill()
}

// Unwrap returns the underlying process handle.
func (w *WatchedProcess) Unwrap() Process {
	return w.process
}

// Equal reports whether other refers to the same underlying process, whether
// it is the raw handle or another proxy around it.
func (w *WatchedProcess) Equal(other Process) bool {
	if other == nil {
		return false
	}
	return identity(w) == identity(other)
}

func (w *WatchedProcess) String() string {
	return fmt.Sprintf("WatchedProcess{process=%v, timeout=%s, validTo=%s}",
		w.process, w.timeout, w.ValidTo().Format(time.RFC3339Nano))
}
