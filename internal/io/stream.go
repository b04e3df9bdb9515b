package io

import (
	"io"
	"sync/atomic"
)

const streamChunkSize = 64 * 1024

// StreamBuffer accumulates bytes from a reader such as standard input in
// the background.
type StreamBuffer struct {
	buf  growBuffer
	done atomic.Bool
	err  atomic.Pointer[error]
}

// NewStreamBuffer starts copying r into memory. The copy runs until r
// returns EOF or an error.
func NewStreamBuffer(r io.Reader) *StreamBuffer {
	s := &StreamBuffer{}
	go s.fill(r)
	return s
}

func (s *StreamBuffer) fill(r io.Reader) {
	chunk := make([]byte, streamChunkSize)
	for {
		n, err := r.Read(chunk)
		if n > 0 {
			s.buf.append(chunk[:n])
		}
		if err != nil {
			if err != io.EOF {
				s.err.Store(&err)
			}
			s.done.Store(true)
			return
		}
	}
}

// Size returns the number of bytes received so far.
func (s *StreamBuffer) Size() int64 {
	return s.buf.size()
}

// ReadRange returns a read-only view of bytes from start to end.
func (s *StreamBuffer) ReadRange(start, end int64) ([]byte, error) {
	return s.buf.readRange(start, end), nil
}

// Done reports whether the reader has been drained.
func (s *StreamBuffer) Done() bool {
	return s.done.Load()
}

// Err returns the read error that ended the stream, if any.
func (s *StreamBuffer) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

// Close is a no-op; the fill goroutine ends when the reader does.
func (s *StreamBuffer) Close() error {
	return nil
}
