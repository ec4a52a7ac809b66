package probe

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
)

type commandProber struct {
	command []string
}

func newCommandProber(command []string) (Prober, error) {
	if len(command) == 0 || command[0] == "" {
		return nil, errors.New("probe: command requires an executable")
	}
	return &commandProber{command: append([]string(nil), command...)}, nil
}

// Probe passes when the command exits 0 before ctx is done.
func (p *commandProber) Probe(ctx context.Context) error {
	// Output goes to the null device: no copy goroutine can outlive ctx.
	cmd := exec.CommandContext(ctx, p.command[0], p.command[1:]...)
	err := cmd.Run()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return fmt.Errorf("exit %d", exitErr.ExitCode())
	}
	return fmt.Errorf("command failed: %w", err)
}
