package relay

import (
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"gorealm/internal/obs"
)

// udpRelay simulates flow state over a connectionless transport: each
// client source address gets its own session with a dedicated outbound
// socket, and sessions idle for longer than the eviction window are
// dropped from the table.
type udpRelay struct {
	h    *Handle
	pc   net.PacketConn
	idle time.Duration

	log       zerolog.Logger
	sessions  sync.Map // client address string -> *udpSession
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// udpSession is one client-address flow. The outbound socket is owned
// exclusively by this session; reply datagrams are routed back through
// the shared listener socket.
type udpSession struct {
	relay      *udpRelay
	clientAddr net.Addr
	outbound   *net.UDPConn

	lastActive atomic.Int64 // unix nanos
	closeOnce  sync.Once
}

func newUDPRelay(h *Handle, pc net.PacketConn) *udpRelay {
	setUDPBuffers(pc)
	return &udpRelay{
		h:    h,
		pc:   pc,
		idle: UDPTimeout,
		log: log.With().
			Str("remote", h.key.Remote).
			Str("listen_addr", pc.LocalAddr().String()).
			Str("proto", "udp").
			Logger(),
	}
}

func (r *udpRelay) run() {
	r.wg.Add(1)
	go r.readLoop()
}

// readLoop is the single reader of the listener socket. The read
// deadline doubles as the sweep tick for idle eviction, so a quiet
// relay still cleans its table.
func (r *udpRelay) readLoop() {
	defer r.wg.Done()
	buf := make([]byte, udpBufferSize)
	for {
		_ = r.pc.SetReadDeadline(time.Now().Add(r.idle))
		n, clientAddr, err := r.pc.ReadFrom(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				select {
				case <-r.h.ctx.Done():
					return
				default:
					r.evictIdle()
					continue
				}
			}
			if !errors.Is(err, net.ErrClosed) {
				r.log.Warn().Err(err).Msg("UDP read failed, relay loop exiting")
			}
			return
		}

		sess, err := r.sessionFor(clientAddr)
		if err != nil {
			obs.SessionErrors.WithLabelValues(errorKind(err)).Inc()
			r.log.Warn().Err(err).Str("client_addr", clientAddr.String()).Msg("Failed to open UDP session")
			continue
		}
		sess.touch()
		if _, err := sess.outbound.Write(buf[:n]); err != nil {
			r.log.Debug().Err(err).Str("client_addr", clientAddr.String()).Msg("UDP upstream write failed")
			sess.close()
			continue
		}
		obs.BytesRelayed.WithLabelValues("in").Add(float64(n))
	}
}

// sessionFor returns the session for clientAddr, creating it and its
// downstream return loop on first sight.
func (r *udpRelay) sessionFor(clientAddr net.Addr) (*udpSession, error) {
	if v, ok := r.sessions.Load(clientAddr.String()); ok {
		return v.(*udpSession), nil
	}

	raddr, err := net.ResolveUDPAddr("udp", r.h.target.Addr)
	if err != nil {
		return nil, &DialError{Addr: r.h.target.Addr, Err: err}
	}
	outbound, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, &DialError{Addr: r.h.target.Addr, Err: err}
	}
	setUDPBuffers(outbound)

	sess := &udpSession{relay: r, clientAddr: clientAddr, outbound: outbound}
	sess.touch()
	if actual, loaded := r.sessions.LoadOrStore(clientAddr.String(), sess); loaded {
		outbound.Close()
		return actual.(*udpSession), nil
	}

	obs.UDPSessionsTotal.Inc()
	r.log.Debug().Str("client_addr", clientAddr.String()).Msg("New UDP session")
	r.wg.Add(1)
	go sess.downstreamLoop()
	return sess, nil
}

// evictIdle drops sessions whose window elapsed with no traffic in
// either direction.
func (r *udpRelay) evictIdle() {
	r.sessions.Range(func(_, v any) bool {
		sess := v.(*udpSession)
		if sess.expired(r.idle) {
			sess.evict()
		}
		return true
	})
}

func (r *udpRelay) close() {
	r.closeOnce.Do(func() {
		_ = r.pc.Close()
		r.sessions.Range(func(_, v any) bool {
			v.(*udpSession).close()
			return true
		})
	})
}

// downstreamLoop pumps reply datagrams from the remote back to the
// originating client. Its read deadline enforces the same idle window
// as the listener-side sweep.
func (s *udpSession) downstreamLoop() {
	defer s.relay.wg.Done()
	defer s.close()
	buf := make([]byte, udpBufferSize)
	for {
		_ = s.outbound.SetReadDeadline(time.Now().Add(s.relay.idle))
		n, err := s.outbound.Read(buf)
		if err != nil {
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				if s.expired(s.relay.idle) {
					s.evict()
					return
				}
				continue
			}
			return
		}
		s.touch()
		if _, err := s.relay.pc.WriteTo(buf[:n], s.clientAddr); err != nil {
			return
		}
		obs.BytesRelayed.WithLabelValues("out").Add(float64(n))
	}
}

func (s *udpSession) touch() { s.lastActive.Store(time.Now().UnixNano()) }

func (s *udpSession) expired(idle time.Duration) bool {
	return time.Since(time.Unix(0, s.lastActive.Load())) > idle
}

func (s *udpSession) close() {
	s.closeOnce.Do(func() {
		_ = s.outbound.Close()
		s.relay.sessions.Delete(s.clientAddr.String())
	})
}

// evict closes an idle session and counts the eviction exactly once,
// regardless of whether the sweep or the downstream loop noticed first.
func (s *udpSession) evict() {
	s.closeOnce.Do(func() {
		_ = s.outbound.Close()
		s.relay.sessions.Delete(s.clientAddr.String())
		obs.UDPSessionsEvicted.Inc()
		s.relay.log.Debug().Str("client_addr", s.clientAddr.String()).Msg("UDP session evicted")
	})
}
