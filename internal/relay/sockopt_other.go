//go:build !linux && !darwin && !freebsd

package relay

import "net"

func setUDPBuffers(conn net.PacketConn) {}
