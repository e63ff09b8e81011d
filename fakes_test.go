package ctcp

import "io"

// fakeInput is a scripted InputSource: a queue of chunks, each returned on
// its own Read call, with io.EOF surfacing only once eof is set and the
// queue has drained.
type fakeInput struct {
	chunks [][]byte
	eof    bool
}

func (f *fakeInput) Read(buf []byte) (int, error) {
	if len(f.chunks) == 0 {
		if f.eof {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(buf, f.chunks[0])
	f.chunks = f.chunks[1:]
	return n, nil
}

// fakeOutput is an OutputSink backed by an in-memory byte slice, with a
// settable buffer space ceiling so downstream back-pressure can be
// exercised deterministically.
type fakeOutput struct {
	data    []byte
	space   int
	eofSeen bool
}

func newFakeOutput(space int) *fakeOutput {
	return &fakeOutput{space: space}
}

func (f *fakeOutput) Write(buf []byte) (int, error) {
	if len(buf) == 0 {
		f.eofSeen = true
		return 0, nil
	}
	f.data = append(f.data, buf...)
	return len(buf), nil
}

func (f *fakeOutput) BufferSpace() int { return f.space }

// fakeEndpoint records every datagram handed to Send, optionally dropping
// or short-sending according to a caller-installed hook.
type fakeEndpoint struct {
	sent   [][]byte
	closed bool
	onSend func(datagram []byte) (n int, err error)
}

func (f *fakeEndpoint) Send(datagram []byte) (int, error) {
	cp := append([]byte(nil), datagram...)
	f.sent = append(f.sent, cp)
	if f.onSend != nil {
		return f.onSend(cp)
	}
	return len(datagram), nil
}

func (f *fakeEndpoint) Close() error {
	f.closed = true
	return nil
}

// fakeClock is a manually advanced Clock.
type fakeClock struct{ ms int64 }

func (c *fakeClock) NowMillis() int64 { return c.ms }
func (c *fakeClock) advance(d int64)  { c.ms += d }
