// Package ctcp implements a reliable, in-order byte-stream transport over an
// unreliable datagram substrate: a sliding-window sender with timed
// retransmission, a reordering receiver, Internet-checksum framing, coupled
// ACK/flow-control feedback and a graceful two-sided shutdown.
//
// The package deliberately knows nothing about how datagrams reach the wire,
// how application bytes are read or written, or how many connections a
// process juggles beyond the bookkeeping in [Registry]. Those are the job of
// the [DatagramEndpoint], [InputSource] and [OutputSink] interfaces, which a
// caller supplies. See cmd/ctcpd for a UDP-backed wiring of all three.
package ctcp
