package watchdog

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"time"
)

// DefaultPollInterval is the delay between two monitor passes. It bounds how
// long an expired process can survive past its deadline.
const DefaultPollInterval = 100 * time.Millisecond

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithLogger sets the logger used for watch and kill reports.
func WithLogger(log *slog.Logger) Option {
	return func(w *Watchdog) {
		if log != nil {
			w.log = log
		}
	}
}

// WithPollInterval overrides DefaultPollInterval.
func WithPollInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		if d > 0 {
			w.pollInterval = d
		}
	}
}

// WithClock replaces time.Now for deadline computations.
func WithClock(now func() time.Time) Option {
	return func(w *Watchdog) {
		if now != nil {
			w.now = now
		}
	}
}

// WithEventHook installs a callback invoked synchronously for every event.
// The hook runs on the goroutine that caused the event, including the monitor
// goroutine, and must not block or call back into the Watchdog.
func WithEventHook(hook func(Event)) Option {
	return func(w *Watchdog) {
		w.hook = hook
	}
}

// Watchdog kills watched processes whose deadline has passed.
//
// The zero value is not usable; construct one with New. All methods are safe
// for concurrent use.
type Watchdog struct {
	log          *slog.Logger
	pollInterval time.Duration
	now          func() time.Time
	hook         func(Event)

	mu        sync.Mutex
	processes map[Process]*WatchedProcess
	running   bool
	// Closed when the current monitor goroutine exits.
	idle chan struct{}
}

// New returns an idle Watchdog. No goroutine is started until the first call
// to Watch.
func New(opts ...Option) *Watchdog {
	w := &Watchdog{
		log:          slog.Default(),
		pollInterval: DefaultPollInterval,
		now:          time.Now,
		processes:    make(map[Process]*WatchedProcess),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Watch starts supervising p. Unless a heartbeat arrives, p is killed once
// timeout has elapsed.
//
// Watching a handle that is already watched replaces the previous entry: the
// deadline restarts from now with the new timeout and the previously returned
// WatchedProcess is no longer tracked. The replaced entry is reported as
// EventUnwatched.
//
// Watch panics if p is nil or its dynamic type is not comparable.
func (w *Watchdog) Watch(p Process, timeout time.Duration) *WatchedProcess {
	if p == nil {
		panic("watchdog: Watch called with a nil process")
	}
	raw := identity(p)
	if !reflect.TypeOf(raw).Comparable() {
		panic(fmt.Sprintf("watchdog: process type %T is not comparable", raw))
	}
	wp := newWatchedProcess(raw, timeout, w.now, w.beat)

	w.mu.Lock()
	old, replaced := w.processes[raw]
	w.processes[raw] = wp
	start := !w.running
	if start {
		w.running = true
		w.idle = make(chan struct{})
	}
	idle := w.idle
	w.mu.Unlock()

	if replaced {
		w.log.Debug("Process watched again; previous entry dropped", "process", raw)
		w.emit(EventUnwatched, old, nil)
	}
	w.log.Debug("Process watched", "process", raw, "timeout", timeout)
	w.emit(EventWatched, wp, nil)

	if start {
		go w.monitor(idle)
	}
	return wp
}

// Unwatch stops supervising p, which may be the raw handle or the
// WatchedProcess returned by Watch. Once Unwatch returns, the watchdog never
// kills p. Unwatching an unknown process does nothing.
func (w *Watchdog) Unwatch(p Process) {
	raw := identity(p)

	w.mu.Lock()
	wp, ok := w.processes[raw]
	if ok {
		delete(w.processes, raw)
	}
	w.mu.Unlock()

	if ok {
		w.log.Debug("Process unwatched", "process", raw)
		w.emit(EventUnwatched, wp, nil)
	}
}

// HeartBeat extends the deadline of p exactly as [WatchedProcess.HeartBeat]
// would. It does nothing if p is not watched, including when it was already
// killed or unwatched.
func (w *Watchdog) HeartBeat(p Process) {
	if wp, ok := w.Lookup(p); ok {
		wp.HeartBeat()
	}
}

// Lookup returns the entry currently watching p.
func (w *Watchdog) Lookup(p Process) (*WatchedProcess, bool) {
	raw := identity(p)

	w.mu.Lock()
	defer w.mu.Unlock()
	wp, ok := w.processes[raw]
	return wp, ok
}

// Len returns the number of watched processes.
func (w *Watchdog) Len() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.processes)
}

// Running reports whether a monitor goroutine is active.
func (w *Watchdog) Running() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.running
}

// WaitIdle blocks until the monitor goroutine has exited or ctx is done.
// It returns immediately when the watchdog is already idle.
func (w *Watchdog) WaitIdle(ctx context.Context) error {
	w.mu.Lock()
	running, idle := w.running, w.idle
	w.mu.Unlock()
	if !running {
		return nil
	}

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *Watchdog) monitor(idle chan struct{}) {
	defer close(idle)

	for !w.stopWhenEmpty() {
		now := w.now()

		for _, wp := range w.snapshot() {
			if !isAlive(wp.process) {
				if w.removeExited(wp) {
					w.log.Debug("Process exited", "process", wp.process)
					w.emit(EventExited, wp, nil)
				}
				continue
			}

			if wp.expired(now) && w.removeExpired(wp, now) {
				w.kill(wp)
			}
		}

		time.Sleep(w.pollInterval)
	}

	w.emit(EventIdle, nil, nil)
}

// stopWhenEmpty clears the running flag if nothing is watched. The check and
// the clear happen under the lock Watch uses to insert, so a concurrent Watch
// either lands before the check or starts a fresh monitor.
func (w *Watchdog) stopWhenEmpty() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if len(w.processes) > 0 {
		return false
	}
	w.running = false
	return true
}

func (w *Watchdog) snapshot() []*WatchedProcess {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*WatchedProcess, 0, len(w.processes))
	for _, wp := range w.processes {
		out = append(out, wp)
	}
	return out
}

// removeExited drops wp unless it was unwatched or replaced meanwhile.
func (w *Watchdog) removeExited(wp *WatchedProcess) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processes[wp.process] != wp {
		return false
	}
	delete(w.processes, wp.process)
	return true
}

// removeExpired drops wp if it is still the current entry and its deadline,
// re-read under the lock, is still before now. Only the caller that removed
// the entry may kill the process.
func (w *Watchdog) removeExpired(wp *WatchedProcess, now time.Time) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.processes[wp.process] != wp || !wp.expired(now) {
		return false
	}
	delete(w.processes, wp.process)
	return true
}

// kill emits EventExpired before signalling the process.
func (w *Watchdog) kill(wp *WatchedProcess) {
	w.log.Info("Killing process", "process", wp.process, "timeout", wp.timeout, "valid_to", wp.ValidTo())
	w.emit(EventExpired, wp, nil)
	if err := safeKill(wp.process); err != nil {
		w.log.Warn("Failed to kill process", "process", wp.process, "err", err)
		w.emit(EventKillFailed, wp, err)
	}
}

// beat reports a heartbeat only for the current entry. Proxies that were
// replaced, unwatched or removed still move their own deadline but nothing
// the monitor reads.
func (w *Watchdog) beat(wp *WatchedProcess) {
	if w.hook == nil {
		return
	}
	w.mu.Lock()
	current := w.processes[wp.process] == wp
	w.mu.Unlock()
	if current {
		w.emit(EventHeartBeat, wp, nil)
	}
}

func (w *Watchdog) emit(t EventType, wp *WatchedProcess, err error) {
	if w.hook == nil {
		return
	}
	w.hook(Event{
		Timestamp: w.now(),
		Type:      t,
		Process:   wp,
		Err:       err,
	})
}

// safeKill reports a panicking Kill as an error.
func safeKill(p Process) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("kill panicked: %v", r)
		}
	}()
	return p.Kill()
}
