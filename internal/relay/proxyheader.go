package relay

import (
	"net"
	"time"

	proxyproto "github.com/pires/go-proxyproto"
)

// writeProxyHeader emits the version-2 PROXY preamble on a fresh
// outbound connection: src is the original client address as observed
// by the listener, dst the listener's local address. The header must be
// fully flushed before any payload byte crosses; a write failure or a
// timeout kills the session.
func writeProxyHeader(conn net.Conn, src, dst net.Addr) error {
	header := proxyproto.HeaderProxyFromAddrs(ProxyProtocolVersion, src, dst)

	if err := conn.SetWriteDeadline(time.Now().Add(ProxyProtocolTimeout)); err != nil {
		return &ProxyHeaderError{Err: err}
	}
	defer conn.SetWriteDeadline(time.Time{})

	if _, err := header.WriteTo(conn); err != nil {
		return &ProxyHeaderError{Err: err}
	}
	return nil
}
