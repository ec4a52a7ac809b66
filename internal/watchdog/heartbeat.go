package watchdog

import (
	"io"
)

// heartbeatReader forwards reads to the underlying stream and reports every
// read that produced data.
type heartbeatReader struct {
	r    io.Reader
	beat func()
}

func newHeartbeatReader(r io.Reader, beat func()) *heartbeatReader {
	if r == nil {
		r = eofReader{}
	}
	return &heartbeatReader{r: r, beat: beat}
}

func (h *heartbeatReader) Read(p []byte) (int, error) {
	n, err := h.r.Read(p)
	if n > 0 {
		h.beat()
	}
	return n, err
}

// ReadByte reads a single byte and counts as one heartbeat when it succeeds.
func (h *heartbeatReader) ReadByte() (byte, error) {
	if br, ok := h.r.(io.ByteReader); ok {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		h.beat()
		return b, nil
	}

	var buf [1]byte
	for {
		n, err := h.r.Read(buf[:])
		if n == 1 {
			h.beat()
			return buf[0], nil
		}
		if err != nil {
			return 0, err
		}
	}
}

// Close closes the underlying stream when it supports closing. It does not
// count as activity.
func (h *heartbeatReader) Close() error {
	if c, ok := h.r.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

type eofReader struct{}

func (eofReader) Read([]byte) (int, error) { return 0, io.EOF }
