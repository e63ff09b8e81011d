package main

import (
	"io"
	"sync/atomic"

	"github.com/soypat/ctcp/internal"
)

// ringCapacity is the size of the staging buffer between stdin and the
// cTCP input source.
const ringCapacity = 1 << 16

// stdinInput adapts an io.Reader to ctcp.InputSource, staging bytes
// through a ring buffer rather than a plain bufio.Reader so a short read
// from a pipe or terminal doesn't stall the connection's own segment
// sizing; it tracks the total number of bytes handed off so a progress
// bar can report upload progress without a second pass over the stream.
type stdinInput struct {
	src       io.Reader
	ring      internal.Ring
	scratch   []byte
	srcEOF    bool
	totalRead int64
}

func newStdinInput(r io.Reader) *stdinInput {
	return &stdinInput{
		src:     r,
		ring:    internal.Ring{Buf: make([]byte, ringCapacity)},
		scratch: make([]byte, ringCapacity),
	}
}

func (s *stdinInput) Read(buf []byte) (int, error) {
	if s.ring.Buffered() == 0 {
		s.refill()
		if s.ring.Buffered() == 0 {
			if s.srcEOF {
				return 0, io.EOF
			}
			return 0, nil
		}
	}
	n, err := s.ring.Read(buf)
	if err != nil {
		return 0, nil // ring reports io.EOF for "nothing buffered", not source exhaustion
	}
	atomic.AddInt64(&s.totalRead, int64(n))
	return n, nil
}

// refill performs one best-effort read from the underlying source into
// whatever room the ring currently has.
func (s *stdinInput) refill() {
	if s.srcEOF {
		return
	}
	free := s.ring.Free()
	if free == 0 {
		return
	}
	if free > len(s.scratch) {
		free = len(s.scratch)
	}
	n, err := s.src.Read(s.scratch[:free])
	if n > 0 {
		s.ring.Write(s.scratch[:n])
	}
	if err != nil {
		// Any read error, not only io.EOF, is treated as end of stream:
		// ctcp has no representation for a failed input source short of EOF.
		s.srcEOF = true
	}
}

func (s *stdinInput) TotalRead() int64 {
	return atomic.LoadInt64(&s.totalRead)
}
