package cli

import (
	"bufio"
	stdcontext "context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	units "github.com/docker/go-units"

	"github.com/Paintersrp/procwatch/internal/config"
	"github.com/Paintersrp/procwatch/internal/metrics"
	"github.com/Paintersrp/procwatch/internal/probe"
	"github.com/Paintersrp/procwatch/internal/runtime/process"
	"github.com/Paintersrp/procwatch/internal/watchdog"
)

type outcome string

const (
	outcomeExited      outcome = "exited"
	outcomeFailed      outcome = "failed"
	outcomeKilled      outcome = "killed"
	outcomeInterrupted outcome = "interrupted"
)

const (
	// killedExitCode mirrors a shell reporting death by SIGKILL.
	killedExitCode      = 137
	interruptedExitCode = 130
)

// drainTimeout bounds how long output is copied after the child exited.
// Grandchildren can keep the pipes open indefinitely.
var drainTimeout = time.Second

type result struct {
	Name     string
	Pid      int
	Outcome  outcome
	ExitCode int
	Runtime  time.Duration
	Err      error
}

func (r result) ok() bool {
	return r.Outcome == outcomeExited
}

// exitStatus is the status procwatch itself exits with for r.
func (r result) exitStatus() int {
	switch r.Outcome {
	case outcomeKilled:
		return killedExitCode
	case outcomeInterrupted:
		return interruptedExitCode
	case outcomeFailed:
		if r.ExitCode <= 0 {
			return 1
		}
	}
	return r.ExitCode
}

type streams struct {
	stdout io.Writer
	stderr io.Writer
	// stdin is forwarded to the child and closed at EOF. Nil closes the
	// child's stdin right away.
	stdin  io.Reader
	prefix string
}

// watchSpec is how a process is kept alive: output within timeout, or a
// passing probe.
type watchSpec struct {
	timeout       time.Duration
	prober        probe.Prober
	probeInterval time.Duration
	probeTimeout  time.Duration
}

func newWatchSpec(timeout time.Duration, spec *config.ProbeSpec) (watchSpec, error) {
	w := watchSpec{timeout: timeout}
	if spec == nil {
		return w, nil
	}
	prober, err := probe.New(spec)
	if err != nil {
		return w, err
	}
	w.prober = prober
	w.probeInterval = spec.Interval.Duration
	w.probeTimeout = spec.Timeout.Duration
	return w, nil
}

// startProbe heartbeats wp while the probe passes. The returned func stops
// the probe and waits for it.
func (s *supervisor) startProbe(ctx stdcontext.Context, wp *watchdog.WatchedProcess, w watchSpec, name string) func() {
	if w.prober == nil {
		return func() {}
	}
	probeCtx, cancel := stdcontext.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		probe.Heartbeat(probeCtx, w.prober, w.probeInterval, w.probeTimeout, func() {
			s.dog.HeartBeat(wp)
		}, s.log.With("process", name))
	}()
	return func() {
		cancel()
		<-done
	}
}

type supervisor struct {
	dog  *watchdog.Watchdog
	log  *slog.Logger
	poll time.Duration

	mu      sync.Mutex
	expired map[*watchdog.WatchedProcess]struct{}
}

func newSupervisor(log *slog.Logger, poll time.Duration) *supervisor {
	if poll <= 0 {
		poll = watchdog.DefaultPollInterval
	}
	s := &supervisor{
		log:     log,
		poll:    poll,
		expired: make(map[*watchdog.WatchedProcess]struct{}),
	}
	observe := metrics.Observer(processName)
	s.dog = watchdog.New(
		watchdog.WithLogger(log),
		watchdog.WithPollInterval(poll),
		watchdog.WithEventHook(func(evt watchdog.Event) {
			observe(evt)
			s.record(evt)
		}),
	)
	return s
}

func processName(wp *watchdog.WatchedProcess) string {
	if named, ok := wp.Unwrap().(interface{ Name() string }); ok {
		return named.Name()
	}
	return ""
}

// record remembers expired entries. EventExpired fires before the kill, so
// it is always recorded by the time the killed child is reaped. A failed kill
// leaves the child running, so its entry is forgotten again.
func (s *supervisor) record(evt watchdog.Event) {
	if evt.Process == nil {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	switch evt.Type {
	case watchdog.EventExpired:
		s.expired[evt.Process] = struct{}{}
	case watchdog.EventKillFailed:
		delete(s.expired, evt.Process)
	}
}

func (s *supervisor) wasKilled(wp *watchdog.WatchedProcess) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.expired[wp]
	return ok
}

// supervise watches p until it exits or ctx is cancelled, copying its output
// through the heartbeat stream and running the probe, if any. Cancelling ctx
// stops the child gracefully.
func (s *supervisor) supervise(ctx stdcontext.Context, p *process.Process, w watchSpec, out streams) result {
	started := time.Now()
	wp := s.dog.Watch(p, w.timeout)
	stopProbe := s.startProbe(ctx, wp, w, p.Name())

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		pump(out.stdout, wp.Stdout(), out.prefix)
	}()
	go func() {
		defer wg.Done()
		pump(out.stderr, wp.Stderr(), out.prefix)
	}()
	feedStdin(wp.Stdin(), out.stdin)

	interrupted := false
	select {
	case <-p.Done():
	case <-ctx.Done():
		interrupted = true
		s.dog.Unwatch(wp)
		s.log.Info("Stopping process", "process", p)
		stopCtx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 2*process.StopGracePeriod)
		if err := p.Stop(stopCtx); err != nil {
			s.log.Debug("Process stop reported an error", "process", p, "err", err)
		}
		cancel()
	}

	code, waitErr := p.Wait()
	stopProbe()
	if !drain(&wg, drainTimeout) {
		s.log.Debug("Output still open after exit; closing pipes", "process", p)
	}
	_ = p.Close()
	wg.Wait()
	s.dog.Unwatch(wp)

	res := result{
		Name:     p.Name(),
		Pid:      p.Pid(),
		ExitCode: code,
		Runtime:  time.Since(started),
		Err:      waitErr,
	}
	switch {
	case s.wasKilled(wp):
		res.Outcome = outcomeKilled
	case interrupted:
		res.Outcome = outcomeInterrupted
	case waitErr != nil || code != 0:
		res.Outcome = outcomeFailed
	default:
		res.Outcome = outcomeExited
	}

	s.log.Info("Process finished",
		"process", res.Name,
		"pid", res.Pid,
		"outcome", res.Outcome,
		"exit_code", res.ExitCode,
		"runtime", units.HumanDuration(res.Runtime),
	)
	return res
}

// close waits for the monitor goroutine so nothing logs after the command
// returned.
func (s *supervisor) close() {
	ctx, cancel := stdcontext.WithTimeout(stdcontext.Background(), 3*s.poll+time.Second)
	defer cancel()
	if err := s.dog.WaitIdle(ctx); err != nil {
		s.log.Warn("Watchdog still running", "err", err)
	}
}

func pump(dst io.Writer, src io.Reader, prefix string) {
	if prefix == "" {
		_, _ = io.Copy(dst, src)
		return
	}
	scanner := bufio.NewScanner(src)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fmt.Fprintf(dst, "%s | %s\n", prefix, scanner.Text())
	}
	// An oversized line stops the scanner; keep the pipe flowing.
	_, _ = io.Copy(dst, src)
}

func feedStdin(dst io.Writer, src io.Reader) {
	closeStdin := func() {
		if c, ok := dst.(io.Closer); ok {
			_ = c.Close()
		}
	}
	if src == nil {
		closeStdin()
		return
	}
	go func() {
		_, _ = io.Copy(dst, src)
		closeStdin()
	}()
}

func drain(wg *sync.WaitGroup, timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}

type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}
