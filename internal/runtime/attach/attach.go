// Package attach adopts processes that were started elsewhere so the
// watchdog can enforce a deadline on them.
//
// The exit status of a process that is not our child cannot be observed, so
// an adopted process reports -1 once it is gone. It has no standard streams
// either: Stdout and Stderr are empty and Stdin discards writes.
package attach

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	gopsprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/Paintersrp/procwatch/internal/watchdog"
)

// PollInterval is how often Wait checks whether the process is still there.
const PollInterval = 100 * time.Millisecond

// Process is a handle to a foreign PID. It implements watchdog.Process and
// is safe for concurrent use.
type Process struct {
	pid  int
	name string

	// mu serialises access to proc, which caches status without locking.
	mu   sync.Mutex
	proc *gopsprocess.Process
}

var _ watchdog.Process = (*Process)(nil)

// Attach looks up pid and returns a handle to it.
func Attach(pid int) (*Process, error) {
	if pid <= 0 {
		return nil, fmt.Errorf("attach: invalid pid %d", pid)
	}
	proc, err := gopsprocess.NewProcess(int32(pid))
	if err != nil {
		return nil, fmt.Errorf("attach to pid %d: %w", pid, err)
	}
	name, err := proc.Name()
	if err != nil || name == "" {
		name = fmt.Sprintf("pid-%d", pid)
	}
	return &Process{pid: pid, name: name, proc: proc}, nil
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.pid
}

// Name returns the executable name reported by the OS.
func (p *Process) Name() string {
	return p.name
}

func (p *Process) Stdout() io.Reader { return strings.NewReader("") }
func (p *Process) Stderr() io.Reader { return strings.NewReader("") }
func (p *Process) Stdin() io.Writer  { return io.Discard }

// running treats zombies as gone: they no longer execute and only wait for
// their parent to reap them.
func (p *Process) running() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	ok, err := p.proc.IsRunning()
	if err != nil || !ok {
		return false
	}
	statuses, err := p.proc.Status()
	if err != nil {
		return true
	}
	for _, s := range statuses {
		if s == gopsprocess.Zombie {
			return false
		}
	}
	return true
}

// ExitCode returns watchdog.ErrNotExited while the process is running and
// -1 afterwards.
func (p *Process) ExitCode() (int, error) {
	if p.running() {
		return 0, fmt.Errorf("pid %d: %w", p.pid, watchdog.ErrNotExited)
	}
	return -1, nil
}

// Wait polls until the process is gone.
func (p *Process) Wait() (int, error) {
	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()
	for p.running() {
		<-ticker.C
	}
	return -1, nil
}

// Kill terminates the process. A process that is already gone is not an
// error.
func (p *Process) Kill() error {
	if !p.running() {
		return nil
	}
	p.mu.Lock()
	err := p.proc.Kill()
	p.mu.Unlock()
	if err != nil {
		if errors.Is(err, gopsprocess.ErrorProcessNotRunning) || !p.running() {
			return nil
		}
		return fmt.Errorf("kill pid %d: %w", p.pid, err)
	}
	return nil
}

func (p *Process) String() string {
	return fmt.Sprintf("%s[%d]", p.name, p.pid)
}
