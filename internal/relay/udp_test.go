package relay

import (
	"bytes"
	"context"
	"net"
	"testing"
	"time"
)

// startUDPEcho runs a datagram echo backend on a random loopback port.
func startUDPEcho(t *testing.T) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("udp echo listen: %v", err)
	}
	t.Cleanup(func() { pc.Close() })
	go func() {
		buf := make([]byte, 64*1024)
		for {
			n, addr, err := pc.ReadFrom(buf)
			if err != nil {
				return
			}
			pc.WriteTo(buf[:n], addr)
		}
	}()
	return pc.LocalAddr().String()
}

func udpRoundTrip(t *testing.T, conn net.Conn, payload []byte) []byte {
	t.Helper()
	conn.SetDeadline(time.Now().Add(3 * time.Second))
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("udp write: %v", err)
	}
	buf := make([]byte, 64*1024)
	n, err := conn.Read(buf)
	if err != nil {
		t.Fatalf("udp read: %v", err)
	}
	return buf[:n]
}

func TestUDPRelayEndToEnd(t *testing.T) {
	backend := startUDPEcho(t)
	reg := NewRegistry()
	opts := Options{Remote: backend, Host: backend, UDP: true}

	addr, err := reg.Start(opts)
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer reg.Stop(opts.Key())

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	payload := []byte("datagram")
	if got := udpRoundTrip(t, conn, payload); !bytes.Equal(got, payload) {
		t.Errorf("udp echo mismatch: got %q want %q", got, payload)
	}
}

func countSessions(r *udpRelay) int {
	n := 0
	r.sessions.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// newTestUDPRelay builds a udpRelay with a short idle window, bypassing
// the registry so eviction is observable without waiting 30 seconds.
func newTestUDPRelay(t *testing.T, backend string, idle time.Duration) (*udpRelay, string) {
	t.Helper()
	target, err := Resolve(backend, "", false)
	if err != nil {
		t.Fatalf("resolve backend: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{
		key:    NewKey(backend, backend, "", false, false),
		opts:   Options{Remote: backend, Host: backend, UDP: true},
		target: target,
		ctx:    ctx,
		cancel: cancel,
	}
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	r := newUDPRelay(h, pc)
	r.idle = idle
	r.run()
	t.Cleanup(func() {
		cancel()
		r.close()
	})
	return r, pc.LocalAddr().String()
}

func TestUDPSessionReuse(t *testing.T) {
	backend := startUDPEcho(t)
	r, addr := newTestUDPRelay(t, backend, UDPTimeout)

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		payload := []byte{byte('a' + i)}
		if got := udpRoundTrip(t, conn, payload); !bytes.Equal(got, payload) {
			t.Fatalf("datagram %d mismatch: got %q", i, got)
		}
	}

	if got := countSessions(r); got != 1 {
		t.Errorf("repeated datagrams from one source must share a session, got %d", got)
	}
}

func TestUDPSessionEviction(t *testing.T) {
	backend := startUDPEcho(t)
	r, addr := newTestUDPRelay(t, backend, 200*time.Millisecond)

	conn, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial relay: %v", err)
	}
	defer conn.Close()

	payload := []byte("ping")
	if got := udpRoundTrip(t, conn, payload); !bytes.Equal(got, payload) {
		t.Fatalf("echo mismatch: got %q", got)
	}
	if got := countSessions(r); got != 1 {
		t.Fatalf("expected one live session, got %d", got)
	}

	// Idle past the eviction window; the downstream loop or the sweep
	// must drop the entry.
	deadline := time.Now().Add(3 * time.Second)
	for countSessions(r) != 0 {
		if time.Now().After(deadline) {
			t.Fatal("idle session was never evicted")
		}
		time.Sleep(50 * time.Millisecond)
	}

	// A fresh datagram after eviction builds a new session and still works.
	if got := udpRoundTrip(t, conn, payload); !bytes.Equal(got, payload) {
		t.Errorf("post-eviction echo mismatch: got %q", got)
	}
	if got := countSessions(r); got != 1 {
		t.Errorf("expected a fresh session after eviction, got %d", got)
	}
}

func TestUDPSessionsAreIndependent(t *testing.T) {
	backend := startUDPEcho(t)
	r, addr := newTestUDPRelay(t, backend, UDPTimeout)

	conn1, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn1.Close()
	conn2, err := net.Dial("udp", addr)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn2.Close()

	if got := udpRoundTrip(t, conn1, []byte("one")); string(got) != "one" {
		t.Errorf("conn1 echo mismatch: %q", got)
	}
	if got := udpRoundTrip(t, conn2, []byte("two")); string(got) != "two" {
		t.Errorf("conn2 echo mismatch: %q", got)
	}
	if got := countSessions(r); got != 2 {
		t.Errorf("distinct sources must get distinct sessions, got %d", got)
	}
}
