package main

import (
	"net"

	"github.com/soypat/ctcp"
)

// udpEndpoint implements ctcp.DatagramEndpoint over a shared *net.UDPConn,
// sending only to one fixed peer address: one cTCP connection per UDP
// peer, the socket itself demultiplexes nothing.
type udpEndpoint struct {
	conn *net.UDPConn
	peer *net.UDPAddr
}

func (e *udpEndpoint) Send(datagram []byte) (int, error) {
	return e.conn.WriteToUDP(datagram, e.peer)
}

func (e *udpEndpoint) Close() error {
	// The listening socket is shared across peers and closed by main, not
	// per-connection; nothing to release here.
	return nil
}

var _ ctcp.DatagramEndpoint = (*udpEndpoint)(nil)
