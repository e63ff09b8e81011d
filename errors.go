package ctcp

import "errors"

// Sentinel errors returned by the core engine. Matched by callers with
// errors.Is; the engine itself never wraps these further.
var (
	errShortBuffer    = errors.New("ctcp: buffer shorter than declared segment length")
	errBufferTooSmall = errors.New("ctcp: supplied buffer too small for header")
	errBadChecksum    = errors.New("ctcp: checksum mismatch")
	errZeroWindow     = errors.New("ctcp: window size must be non-zero")
	errInvalidConfig  = errors.New("ctcp: invalid configuration")

	// ErrPeerUnresponsive is returned (and logged) when a segment has been
	// transmitted MaxNumXmits times, its first send included, without
	// being acknowledged and is due to be sent again. The
	// connection is destroyed when this occurs.
	ErrPeerUnresponsive = errors.New("ctcp: peer unresponsive, retransmit limit reached")

	// ErrEndpointFatal is returned when the datagram substrate or output
	// sink reports a fatal (-1) condition. The connection is destroyed.
	ErrEndpointFatal = errors.New("ctcp: endpoint reported fatal error")
)
