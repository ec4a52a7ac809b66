//go:build windows

package process

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"
)

// StopGracePeriod is how long Stop waits after an interrupt before escalating.
const StopGracePeriod = 2 * time.Second

// Kill terminates the top-level process.
func (p *Process) Kill() error {
	if p.exited() {
		return nil
	}
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("kill process %s: %w", p.name, err)
	}
	return nil
}

func (p *Process) Stop(ctx context.Context) error {
	if p.exited() {
		return p.exitError()
	}
	// Attempt a graceful shutdown first.
	_ = p.cmd.Process.Signal(os.Interrupt)

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
