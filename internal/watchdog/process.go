package watchdog

import (
	"errors"
	"io"
)

// ErrNotExited is returned by [Process.ExitCode] while the process is still
// running.
var ErrNotExited = errors.New("process has not exited")

// Process is the handle the watchdog supervises. It is normally produced by a
// runtime that launched or adopted an OS process.
//
// Implementations must be comparable (typically pointer types): the watchdog
// uses the handle value itself as its identity.
type Process interface {
	// Stdout is the stream of bytes the process writes to its standard output.
	Stdout() io.Reader
	// Stderr is the stream of bytes the process writes to its standard error.
	Stderr() io.Reader
	// Stdin feeds the standard input of the process.
	Stdin() io.Writer

	// Wait blocks until the process exits and returns its exit code.
	Wait() (int, error)
	// ExitCode returns the exit code without blocking. It must return an error
	// matching ErrNotExited while the process is running.
	ExitCode() (int, error)
	// Kill forcibly terminates the process.
	Kill() error
}

// unwrapper is implemented by handles that decorate another handle.
type unwrapper interface {
	Unwrap() Process
}

// identity returns the innermost handle behind p, which is the key the
// watchdog stores entries under.
func identity(p Process) Process {
	for {
		u, ok := p.(unwrapper)
		if !ok {
			return p
		}
		inner := u.Unwrap()
		if inner == nil {
			return p
		}
		p = inner
	}
}

// isAlive reports whether p is still running. Any result other than
// ErrNotExited means the process is gone.
func isAlive(p Process) bool {
	_, err := p.ExitCode()
	return errors.Is(err, ErrNotExited)
}
