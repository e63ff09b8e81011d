package main

import (
	"bufio"
	"os"
)

// stdoutSink implements ctcp.OutputSink by writing delivered bytes
// straight to the daemon's stdout, for a receive-and-print deployment of
// ctcpd; a real deployment would instead hand bytes to whatever
// application-level listener owns the connection.
type stdoutSink struct {
	w *bufio.Writer
}

func newStdoutSink() *stdoutSink {
	return &stdoutSink{w: bufio.NewWriterSize(os.Stdout, 1<<16)}
}

func (s *stdoutSink) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, s.w.Flush() // FIN: flush whatever is buffered
	}
	return s.w.Write(buf)
}

func (s *stdoutSink) BufferSpace() int {
	return s.w.Available() + 1<<16 // never meaningfully back-pressures a local pipe
}

// noInput is an ctcp.InputSource that never has application data to send:
// ctcpd only receives, it never originates a byte stream.
type noInput struct{}

func (noInput) Read(buf []byte) (int, error) { return 0, nil }
