package ctcp

import (
	"errors"
	"io"
	"log/slog"
	"sync"

	"github.com/rs/xid"
)

// Connection is the per-connection reliable-transport state engine: it
// owns one tx-substate and one rx-substate, drives reads from the input
// source, admits inbound segments, emits outbound segments and pure-ACK
// control segments, and runs the TIME_WAIT lifecycle. Unlike a full TCP
// state machine, it starts directly in the data-transfer phase; there is
// no connection-establishment handshake to drive.
//
// The engine's own algorithms assume the single-threaded, cooperative
// event model of spec.md §5 (OnReadable/OnSegment/MakeProgress mutually
// exclusive in time). A Go caller is free to run its read loop and its
// tick loop on separate goroutines, though, so mu serializes the three
// entry points against each other rather than requiring every caller to
// hand-roll that serialization itself.
type Connection struct {
	logger

	ID xid.ID // assigned by Registry.Register, exported for metrics/log correlation

	mu sync.Mutex

	cfg      Config
	clock    Clock
	endpoint DatagramEndpoint
	input    InputSource
	output   OutputSink

	tx txSubstate
	rx rxSubstate

	inTimeWait        bool
	timeWaitStartedAt int64 // meaningful only while inTimeWait
	destroyed         bool
	destroyErr        error

	readBuf []byte // scratch for InputSource.Read, len == cfg.MaxSegData
	sendBuf []byte // scratch for encoding, len == sizeHeader+cfg.MaxSegData
}

// NewConnection creates a connection state engine in the data-transfer
// phase: no handshake is modeled, both sides are already addressable via
// endpoint.
func NewConnection(cfg Config, endpoint DatagramEndpoint, input InputSource, output OutputSink, clock Clock, log *slog.Logger) (*Connection, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	c := &Connection{
		logger:   logger{log: log},
		cfg:      cfg,
		clock:    clock,
		endpoint: endpoint,
		input:    input,
		output:   output,
		readBuf:  make([]byte, cfg.MaxSegData),
		sendBuf:  make([]byte, sizeHeader+cfg.MaxSegData),
	}
	return c, nil
}

func (c *Connection) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

func (c *Connection) DestroyErr() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyErr
}

func (c *Connection) RxCounters() (truncated, outOfWindow, invalidCksum uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rx.truncated, c.rx.outOfWindow, c.rx.invalidCksum
}

// PendingBytes returns the number of application bytes currently sitting
// in the unacked queue, i.e. read from the input source but not yet
// acknowledged by the peer. Exported for progress reporting (cmd/ctcpcat).
func (c *Connection) PendingBytes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	n := 0
	for i := 0; i < c.tx.unacked.len(); i++ {
		n += len(c.tx.unacked.at(i).data)
	}
	return n
}

// EOFAcked reports whether this side's FIN has been sent and acknowledged,
// i.e. every byte this side ever had to send has left the unacked queue.
func (c *Connection) EOFAcked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tx.eofSeen && c.tx.unacked.empty()
}

func (c *Connection) destroy(err error) {
	if c.destroyed {
		return
	}
	c.destroyed = true
	c.destroyErr = err
	c.logerr("ctcp: connection destroyed", slog.String("conn", c.ID.String()), slog.String("err", errstr(err)))
	c.endpoint.Close()
}

func errstr(err error) string {
	if err == nil {
		return "<nil>"
	}
	return err.Error()
}

// OnReadable repeatedly drains the input source up to MaxSegData bytes
// per segment, queues a FIN once EOF is observed, then drives the send
// path.
func (c *Connection) OnReadable() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	for {
		n, err := c.input.Read(c.readBuf)
		if n > 0 {
			data := append([]byte(nil), c.readBuf[:n]...)
			seg := &outboundSegment{
				seq:     Add(c.tx.lastSeqnoRead, 1),
				lastSeq: Add(c.tx.lastSeqnoRead, Size(n)),
				data:    data,
			}
			c.tx.lastSeqnoRead += Value(n)
			c.tx.unacked.push(seg)
			c.trace("ctcp: queued data", slog.Int("n", n), slog.Uint64("seq", uint64(seg.seq)))
		}
		if errors.Is(err, io.EOF) {
			if !c.tx.eofSeen {
				fin := &outboundSegment{
					seq:     Add(c.tx.lastSeqnoRead, 1),
					lastSeq: Add(c.tx.lastSeqnoRead, 1),
					fin:     true,
				}
				c.tx.unacked.push(fin)
				c.tx.eofSeen = true
				c.debug("ctcp: EOF, queued FIN", slog.Uint64("seq", uint64(fin.seq)))
			}
			break
		}
		if n == 0 {
			break // nothing available right now
		}
	}
	return c.trySendWindow()
}

// trySendWindow walks the unacked queue from the head, sending new
// segments and retransmitting a timed-out head.
func (c *Connection) trySendWindow() error {
	if c.destroyed {
		return nil
	}
	q := &c.tx.unacked
	lastAllowable := c.lastAllowableSeqno()
	for i := 0; i < q.len(); i++ {
		seg := q.at(i)
		if less(lastAllowable, seg.lastSeq) {
			break // this and every later segment are outside the window
		}
		switch {
		case seg.numXmits == 0:
			if err := c.sendOne(seg); err != nil {
				return err
			}
		case i == 0:
			now := c.clock.NowMillis()
			if now-seg.lastSendAt > c.cfg.RTTimeout.Milliseconds() {
				c.debug("ctcp: retransmit", slog.Uint64("seq", uint64(seg.seq)), slog.Int("xmit", seg.numXmits+1))
				if err := c.sendOne(seg); err != nil {
					return err
				}
			}
		default:
			// in flight, not yet the head: only the oldest unacked drives the timer.
		}
	}
	return nil
}

// lastAllowableSeqno computes last_ackno_rxed - 1 + send_window, with the
// +1 correction spec.md §4.4.2 calls for while last_ackno_rxed == 0 (no ACK
// received yet): that correction cancels the "-1" entirely, so the usable
// window is exactly send_window wide and the very first segment is still
// admitted.
func (c *Connection) lastAllowableSeqno() Value {
	base := c.tx.lastAcknoRxed
	correction := Size(1)
	if base == 0 {
		correction = 0
	}
	return Add(base, c.cfg.SendWindow) - Value(correction)
}

// sendOne serializes and transmits seg, stamping it with the current
// ackno/window rather than whatever was true when it was first queued.
func (c *Connection) sendOne(seg *outboundSegment) error {
	if seg.numXmits >= c.cfg.MaxNumXmits {
		c.destroy(ErrPeerUnresponsive)
		return ErrPeerUnresponsive
	}
	flags := FlagACK
	if seg.fin {
		flags |= FlagFIN
	}
	ws := wireSegment{
		seq:    seg.seq,
		ack:    Add(c.rx.lastSeqnoAccepted, 1),
		flags:  flags,
		window: uint16(c.cfg.RecvWindow),
	}
	n, err := encodeSegment(c.sendBuf, ws, seg.data)
	if err != nil {
		return err
	}
	sent, err := c.endpoint.Send(c.sendBuf[:n])
	now := c.clock.NowMillis()
	if err != nil {
		c.destroy(ErrEndpointFatal)
		return ErrEndpointFatal
	}
	if sent < int(n) {
		// A short send still counts as an attempt: the retransmit timer
		// governs the next try rather than leaving the segment's metadata
		// untouched.
		seg.numXmits++
		seg.lastSendAt = now
		return nil
	}
	c.tx.lastSeqnoSent += Value(sent)
	seg.numXmits++
	seg.lastSendAt = now
	return nil
}

// OnSegment validates, admits, reorders and delivers a received
// datagram.
func (c *Connection) OnSegment(raw []byte, actualLen int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return nil
	}
	seg, payload, err := decodeSegment(raw, actualLen)
	if err != nil {
		switch {
		case errors.Is(err, errShortBuffer):
			c.rx.truncated++
		case errors.Is(err, errBadChecksum):
			c.rx.invalidCksum++
		}
		c.debug("ctcp: dropped segment", slog.String("reason", errstr(err)))
		return nil
	}
	dataLen := len(payload)
	if dataLen > 0 {
		smallest := Add(c.rx.lastSeqnoAccepted, 1)
		largest := Add(c.rx.lastSeqnoAccepted, c.cfg.RecvWindow)
		segLast := Add(seg.seq, Size(dataLen)-1)
		if less(seg.seq, smallest) || less(largest, segLast) {
			c.rx.outOfWindow++
			c.debug("ctcp: out of window", slog.Uint64("seq", uint64(seg.seq)))
			return c.emitPureACK()
		}
	}
	if seg.flags.Has(FlagACK) {
		// Cumulative ACK semantics are the peer's responsibility to uphold;
		// this side accepts whatever ackno arrives, even a non-advancing one.
		c.tx.lastAcknoRxed = seg.ack
	}
	if dataLen > 0 || seg.flags.Has(FlagFIN) {
		p := &pendingSegment{seq: seg.seq, dataLen: dataLen, fin: seg.flags.Has(FlagFIN)}
		if dataLen > 0 {
			p.data = append([]byte(nil), payload...)
		}
		c.rx.pendingOutput.insert(p) // duplicate rejection handled internally
	}
	if err := c.flushOutput(); err != nil {
		return err
	}
	c.tx.unacked.dropAcked(c.tx.lastAcknoRxed)
	return nil
}

// flushOutput delivers whatever contiguous prefix of pendingOutput is now
// available, advancing lastSeqnoAccepted as it goes.
func (c *Connection) flushOutput() error {
	delivered := false
	for {
		h := c.rx.pendingOutput.peek()
		if h == nil {
			break
		}
		if h.seq != Add(c.rx.lastSeqnoAccepted, 1) {
			break // gap: stop, do not deliver out of order (applies to a bare FIN too)
		}
		if h.dataLen > 0 {
			space := c.output.BufferSpace()
			if space < h.dataLen {
				break // back-pressure: retry on next tick or next event
			}
			if _, err := c.output.Write(h.data); err != nil {
				c.destroy(ErrEndpointFatal)
				return ErrEndpointFatal
			}
			c.rx.lastSeqnoAccepted += Value(h.dataLen)
			delivered = true
		}
		if h.fin && !c.rx.finSeen {
			c.rx.finSeen = true
			c.rx.lastSeqnoAccepted++
			c.output.Write(nil) // zero-length record signals EOF to the consumer
			delivered = true
		}
		c.rx.pendingOutput.popFront()
	}
	if delivered {
		return c.emitPureACK()
	}
	return nil
}

// emitPureACK sends a header-only control segment, fire-and-forget.
func (c *Connection) emitPureACK() error {
	ws := wireSegment{
		seq:    0,
		ack:    Add(c.rx.lastSeqnoAccepted, 1),
		flags:  FlagACK,
		window: uint16(c.cfg.RecvWindow),
	}
	n, err := encodeSegment(c.sendBuf, ws, nil)
	if err != nil {
		return err
	}
	_, err = c.endpoint.Send(c.sendBuf[:n])
	if err != nil {
		c.destroy(ErrEndpointFatal)
		return ErrEndpointFatal
	}
	return nil
}

// eligibleForTeardown reports whether both halves of the connection have
// fully closed: the peer's FIN has been delivered in order, this side's
// own FIN has been sent, and nothing remains unacked or undelivered.
func (c *Connection) eligibleForTeardown() bool {
	return c.rx.finSeen && c.tx.eofSeen && c.tx.unacked.empty() && c.rx.pendingOutput.empty()
}

// advanceLifecycle runs the TIME_WAIT bookkeeping, returning true once
// the connection should be torn down.
func (c *Connection) advanceLifecycle(now int64) bool {
	if c.destroyed {
		return true
	}
	if !c.eligibleForTeardown() {
		c.inTimeWait = false
		return false
	}
	if !c.inTimeWait {
		c.inTimeWait = true
		c.timeWaitStartedAt = now
		c.debug("ctcp: entering TIME_WAIT", slog.String("conn", c.ID.String()))
		return false
	}
	if now-c.timeWaitStartedAt >= 2*c.cfg.MSL.Milliseconds() {
		c.destroy(nil)
		return true
	}
	return false
}

// MakeProgress is the connection's "make progress" routine invoked by the
// timer driver: flush deliverable output, send/retransmit, then advance
// (or conclude) TIME_WAIT.
func (c *Connection) MakeProgress(now int64) (shouldRemove bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.destroyed {
		return true
	}
	if err := c.flushOutput(); err != nil {
		return c.destroyed
	}
	if err := c.trySendWindow(); err != nil {
		return c.destroyed
	}
	return c.advanceLifecycle(now)
}
