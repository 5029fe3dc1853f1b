//go:build linux || darwin || freebsd

package relay

import (
	"net"
	"syscall"

	"golang.org/x/sys/unix"
)

// setUDPBuffers widens the kernel buffers on a UDP socket so datagram
// bursts survive scheduling hiccups. Best effort; failures are ignored.
func setUDPBuffers(conn net.PacketConn) {
	sc, ok := conn.(interface {
		SyscallConn() (syscall.RawConn, error)
	})
	if !ok {
		return
	}
	rc, err := sc.SyscallConn()
	if err != nil {
		return
	}
	_ = rc.Control(func(fd uintptr) {
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_RCVBUF, udpSocketBuf)
		_ = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_SNDBUF, udpSocketBuf)
	})
}
