package ctcp

// txSubstate is the send-side half of a connection's data model.
type txSubstate struct {
	lastAcknoRxed Value // ackno of the most recent ACK received; 0 until the first ACK arrives
	lastSeqnoRead Value // seqno of the last byte ingested from the input source
	lastSeqnoSent Value // cumulative datagram bytes sent (headers and retransmissions included)
	eofSeen       bool
	unacked       unackedQueue
}

// rxSubstate is the receive-side half of a connection's data model.
type rxSubstate struct {
	lastSeqnoAccepted Value // last in-sequence byte delivered to the output sink
	finSeen           bool  // FIN delivered in order, not merely received

	truncated    uint64
	outOfWindow  uint64
	invalidCksum uint64

	pendingOutput reorderBuffer
}
