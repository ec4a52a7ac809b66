package watchdog

import (
	"bytes"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

type stubProcess struct {
	stdout   io.Reader
	stderr   io.Reader
	stdin    bytes.Buffer
	exitCode int
	exitErr  error
	killErr  error
	killed   int
}

func (s *stubProcess) Stdout() io.Reader      { return s.stdout }
func (s *stubProcess) Stderr() io.Reader      { return s.stderr }
func (s *stubProcess) Stdin() io.Writer       { return &s.stdin }
func (s *stubProcess) Wait() (int, error)     { return s.exitCode, s.exitErr }
func (s *stubProcess) ExitCode() (int, error) { return s.exitCode, s.exitErr }
func (s *stubProcess) Kill() error {
	s.killed++
	return s.killErr
}

type steppingClock struct {
	now time.Time
}

func (c *steppingClock) Now() time.Time { return c.now }

func TestWatchedProcess_deadline(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	wp := newWatchedProcess(&stubProcess{}, time.Second, clock.Now, nil)

	require.Equal(t, time.Second, wp.Timeout())
	require.Equal(t, clock.now.Add(time.Second), wp.ValidTo())

	clock.now = clock.now.Add(700 * time.Millisecond)
	wp.HeartBeat()
	require.Equal(t, clock.now.Add(time.Second), wp.ValidTo())

	require.False(t, wp.expired(clock.now.Add(time.Second)))
	require.True(t, wp.expired(clock.now.Add(time.Second+time.Nanosecond)))
}

func TestWatchedProcess_readsHeartBeat(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	stub := &stubProcess{stdout: strings.NewReader("hello")}
	wp := newWatchedProcess(stub, time.Second, clock.Now, nil)
	start := wp.ValidTo()

	clock.now = clock.now.Add(300 * time.Millisecond)
	b, err := wp.Stdout().(io.ByteReader).ReadByte()
	require.NoError(t, err)
	require.Equal(t, byte('h'), b)
	require.Equal(t, start.Add(300*time.Millisecond), wp.ValidTo())

	// A single-byte read has exactly the effect of one HeartBeat.
	clock.now = clock.now.Add(300 * time.Millisecond)
	expected := &WatchedProcess{timeout: time.Second, now: clock.Now}
	expected.HeartBeat()
	buf := make([]byte, 1)
	n, err := wp.Stdout().Read(buf)
	require.NoError(t, err)
	require.Equal(t, 1, n)
	require.Equal(t, expected.ValidTo(), wp.ValidTo())

	rest, err := io.ReadAll(wp.Stdout())
	require.NoError(t, err)
	require.Equal(t, "llo", string(rest))

	// EOF does not count as activity.
	before := wp.ValidTo()
	clock.now = clock.now.Add(time.Minute)
	n, err = wp.Stdout().Read(buf)
	require.Zero(t, n)
	require.ErrorIs(t, err, io.EOF)
	_, err = wp.Stdout().(io.ByteReader).ReadByte()
	require.ErrorIs(t, err, io.EOF)
	require.Equal(t, before, wp.ValidTo())
}

type closeTracker struct {
	io.Reader
	closed bool
}

func (c *closeTracker) Close() error {
	c.closed = true
	return nil
}

func TestWatchedProcess_closeDoesNotHeartBeat(t *testing.T) {
	clock := &steppingClock{now: time.Unix(1_700_000_000, 0)}
	stdout := &closeTracker{Reader: strings.NewReader("x")}
	wp := newWatchedProcess(&stubProcess{stdout: stdout}, time.Second, clock.Now, nil)
	before := wp.ValidTo()

	clock.now = clock.now.Add(time.Minute)
	require.NoError(t, wp.Stdout().(io.Closer).Close())
	require.True(t, stdout.closed)
	require.Equal(t, before, wp.ValidTo())
}

func TestWatchedProcess_passThrough(t *testing.T) {
	stub := &stubProcess{
		stdout:  strings.NewReader(""),
		stderr:  strings.NewReader("warning"),
		exitErr: ErrNotExited,
		killErr: errors.New("denied"),
	}
	wp := newWatchedProcess(stub, time.Second, nil, nil)
	before := wp.ValidTo()

	stderr, err := io.ReadAll(wp.Stderr())
	require.NoError(t, err)
	require.Equal(t, "warning", string(stderr))

	_, err = wp.Stdin().Write([]byte("input"))
	require.NoError(t, err)
	require.Equal(t, "input", stub.stdin.String())

	_, err = wp.ExitCode()
	require.ErrorIs(t, err, ErrNotExited)
	_, err = wp.Wait()
	require.ErrorIs(t, err, ErrNotExited)

	require.EqualError(t, wp.Kill(), "denied")
	require.Equal(t, 1, stub.killed)

	// None of the above count as activity.
	require.Equal(t, before, wp.ValidTo())
}

func TestWatchedProcess_nilStdoutReadsEOF(t *testing.T) {
	wp := newWatchedProcess(&stubProcess{}, time.Second, nil, nil)
	_, err := wp.Stdout().Read(make([]byte, 4))
	require.ErrorIs(t, err, io.EOF)
}

func TestWatchedProcess_identity(t *testing.T) {
	a := &stubProcess{}
	b := &stubProcess{}

	wa := newWatchedProcess(a, time.Second, nil, nil)
	wa2 := newWatchedProcess(a, 2*time.Second, nil, nil)
	wb := newWatchedProcess(b, time.Second, nil, nil)

	require.True(t, wa.Equal(a))
	require.True(t, wa.Equal(wa2))
	require.False(t, wa.Equal(b))
	require.False(t, wa.Equal(wb))
	require.False(t, wa.Equal(nil))

	require.Same(t, a, identity(wa))
	require.Same(t, a, identity(a))
}

func TestIsAlive(t *testing.T) {
	require.True(t, isAlive(&stubProcess{exitErr: ErrNotExited}))
	require.False(t, isAlive(&stubProcess{exitCode: 3}))
	// Errors other than ErrNotExited mean the process is gone.
	require.False(t, isAlive(&stubProcess{exitErr: errors.New("no such process")}))
}

func TestWatchedProcess_String(t *testing.T) {
	wp := newWatchedProcess(&stubProcess{}, 1500*time.Millisecond, nil, nil)
	s := wp.String()
	require.True(t, strings.HasPrefix(s, "WatchedProcess{process="), s)
	require.Contains(t, s, "timeout=1.5s")
}
