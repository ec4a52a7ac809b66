//go:build !windows

package process

import (
	"context"
	"errors"
	"fmt"
	"syscall"
	"time"
)

// StopGracePeriod is how long Stop waits after SIGTERM before escalating.
const StopGracePeriod = 2 * time.Second

// Kill sends SIGKILL to the process group. Killing a process that already
// exited is not an error.
func (p *Process) Kill() error {
	if p.exited() {
		return nil
	}
	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGKILL); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("kill process group %s: %w", p.name, err)
	}
	return nil
}

// Stop asks the process group to terminate and kills it if it is still
// running after StopGracePeriod.
func (p *Process) Stop(ctx context.Context) error {
	if p.exited() {
		return p.exitError()
	}

	if err := syscall.Kill(-p.cmd.Process.Pid, syscall.SIGTERM); err != nil && !errors.Is(err, syscall.ESRCH) {
		return fmt.Errorf("signal process group %s: %w", p.name, err)
	}

	select {
	case <-p.waitDone:
		return p.exitError()
	case <-time.After(StopGracePeriod):
	case <-ctx.Done():
		return ctx.Err()
	}

	if err := p.Kill(); err != nil {
		return err
	}
	select {
	case <-p.waitDone:
		return p.exitError()
	case <-ctx.Done():
		return ctx.Err()
	}
}
