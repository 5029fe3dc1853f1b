package relay

import "time"

// Wire-facing timeouts and protocol constants. These are fixed and not
// runtime-configurable; embedders that need different values fork them.
const (
	// TCPTimeout bounds the outbound connect phase of a TCP session.
	TCPTimeout = 5 * time.Second

	// TCPKeepAlive is the keepalive probe interval on forwarded
	// connections; TCPKeepAliveProbe missed probes mark the peer dead.
	TCPKeepAlive      = 15 * time.Second
	TCPKeepAliveProbe = 3

	// UDPTimeout is the idle window after which a UDP session is evicted.
	UDPTimeout = 30 * time.Second

	// ProxyProtocolVersion is the only PROXY protocol version emitted.
	ProxyProtocolVersion = 2

	// ProxyProtocolTimeout bounds the PROXY header write on a fresh
	// outbound connection.
	ProxyProtocolTimeout = 5 * time.Second
)

const (
	// handshakeTimeout bounds the TLS (and WebSocket upgrade) client
	// handshake. Same bound as the connect phase.
	handshakeTimeout = 5 * time.Second

	// stopGraceTimeout is how long Stop waits for in-flight sessions to
	// unwind after cancellation before giving up on the wait.
	stopGraceTimeout = 5 * time.Second

	udpBufferSize = 64 * 1024

	// udpSocketBuf is the kernel buffer size requested for UDP sockets.
	udpSocketBuf = 1 << 20
)
