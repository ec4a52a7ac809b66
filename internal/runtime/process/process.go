package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"sync"

	"github.com/Paintersrp/procwatch/internal/watchdog"
)

// Spec describes a command to launch.
type Spec struct {
	// Name identifies the process in logs and errors. Defaults to the
	// executable.
	Name    string
	Command []string
	// Env is appended to the current environment.
	Env     map[string]string
	Workdir string
}

// Process is a running (or finished) local command. It implements
// watchdog.Process.
type Process struct {
	name string
	cmd  *exec.Cmd

	stdout *os.File
	stderr *os.File
	stdin  *os.File

	waitDone chan struct{}
	// Written once by the reaper before waitDone is closed.
	exitCode int
	waitErr  error

	closeOnce sync.Once
}

var _ watchdog.Process = (*Process)(nil)

// Start launches the command described by spec. The context only bounds the
// start itself; use Kill or Stop to end the process.
func Start(ctx context.Context, spec Spec) (*Process, error) {
	if len(spec.Command) == 0 {
		return nil, errors.New("process requires a command")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	name := spec.Name
	if name == "" {
		name = spec.Command[0]
	}

	cmd := exec.Command(spec.Command[0], spec.Command[1:]...)
	if spec.Workdir != "" {
		cmd.Dir = spec.Workdir
	}
	cmd.Env = buildEnv(spec.Env)

	// The pipes are plain files so that reaping the child never closes the
	// read ends underneath a reader, as exec.Cmd's own pipes would.
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		return nil, fmt.Errorf("process %s stdout: %w", name, err)
	}
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW)
		return nil, fmt.Errorf("process %s stderr: %w", name, err)
	}
	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW)
		return nil, fmt.Errorf("process %s stdin: %w", name, err)
	}
	cmd.Stdout = stdoutW
	cmd.Stderr = stderrW
	cmd.Stdin = stdinR

	configureCmdSysProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		closeAll(stdoutR, stdoutW, stderrR, stderrW, stdinR, stdinW)
		return nil, fmt.Errorf("start process %s: %w", name, err)
	}
	// The child owns its copies now.
	closeAll(stdoutW, stderrW, stdinR)

	p := &Process{
		name:     name,
		cmd:      cmd,
		stdout:   stdoutR,
		stderr:   stderrR,
		stdin:    stdinW,
		waitDone: make(chan struct{}),
	}
	go p.reap()
	return p, nil
}

func buildEnv(overrides map[string]string) []string {
	env := os.Environ()
	if len(overrides) == 0 {
		return env
	}
	keys := make([]string, 0, len(overrides))
	for k := range overrides {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		env = append(env, fmt.Sprintf("%s=%s", k, overrides[k]))
	}
	return env
}

func closeAll(files ...*os.File) {
	for _, f := range files {
		_ = f.Close()
	}
}

func (p *Process) reap() {
	err := p.cmd.Wait()
	code := -1
	if state := p.cmd.ProcessState; state != nil {
		code = state.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// A non-zero exit is reported through the exit code.
		err = nil
	}
	p.exitCode = code
	p.waitErr = err
	close(p.waitDone)
}

// Name returns the display name of the process.
func (p *Process) Name() string {
	return p.name
}

// Pid returns the OS process id.
func (p *Process) Pid() int {
	return p.cmd.Process.Pid
}

func (p *Process) Stdout() io.Reader {
	return p.stdout
}

func (p *Process) Stderr() io.Reader {
	return p.stderr
}

func (p *Process) Stdin() io.Writer {
	return p.stdin
}

// Wait blocks until the process exits. A process terminated by a signal
// reports -1.
func (p *Process) Wait() (int, error) {
	<-p.waitDone
	return p.exitCode, p.waitErr
}

// ExitCode returns watchdog.ErrNotExited while the process is running.
func (p *Process) ExitCode() (int, error) {
	select {
	case <-p.waitDone:
		return p.exitCode, p.waitErr
	default:
		return 0, fmt.Errorf("process %s: %w", p.name, watchdog.ErrNotExited)
	}
}

// Done is closed once the process has exited and been reaped.
func (p *Process) Done() <-chan struct{} {
	return p.waitDone
}

func (p *Process) exited() bool {
	select {
	case <-p.waitDone:
		return true
	default:
		return false
	}
}

func (p *Process) exitError() error {
	if p.waitErr != nil {
		return fmt.Errorf("process %s: %w", p.name, p.waitErr)
	}
	return nil
}

// Close releases the parent's ends of the stdio pipes. Call it once the
// output has been drained.
func (p *Process) Close() error {
	var errs []error
	p.closeOnce.Do(func() {
		for _, f := range []*os.File{p.stdout, p.stderr, p.stdin} {
			if err := f.Close(); err != nil && !errors.Is(err, os.ErrClosed) {
				errs = append(errs, err)
			}
		}
	})
	return errors.Join(errs...)
}

func (p *Process) String() string {
	if p.cmd.Process == nil {
		return p.name
	}
	return fmt.Sprintf("%s[%d]", p.name, p.cmd.Process.Pid)
}
