package relay

import (
	"context"
	"errors"
	"io"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"gorealm/internal/obs"
)

// sessionState tracks where a TCP flow is in its lifecycle.
type sessionState int32

const (
	stateConnecting sessionState = iota
	stateHandshaking
	stateForwarding
	stateClosing
	stateClosed
)

func (s sessionState) String() string {
	switch s {
	case stateConnecting:
		return "connecting"
	case stateHandshaking:
		return "handshaking"
	case stateForwarding:
		return "forwarding"
	case stateClosing:
		return "closing"
	default:
		return "closed"
	}
}

// session is one forwarded TCP flow: the accepted inbound connection
// and the outbound connection it is pumped into. Sessions share no
// mutable state with each other.
type session struct {
	l       *tcpListener
	inbound net.Conn
	log     zerolog.Logger

	state    atomic.Int32
	bytesIn  atomic.Int64 // inbound -> outbound
	bytesOut atomic.Int64 // outbound -> inbound
}

func newSession(l *tcpListener, inbound net.Conn) *session {
	return &session{
		l:       l,
		inbound: inbound,
		log: l.log.With().
			Str("trace_id", uuid.NewString()).
			Str("client_addr", inbound.RemoteAddr().String()).
			Logger(),
	}
}

func (s *session) setState(st sessionState) { s.state.Store(int32(st)) }

func (s *session) run(ctx context.Context) {
	defer s.inbound.Close()
	start := time.Now()
	obs.TCPSessionsTotal.Inc()

	outbound, err := s.connect(ctx)
	if err != nil {
		s.setState(stateClosed)
		obs.SessionErrors.WithLabelValues(errorKind(err)).Inc()
		s.log.Warn().Err(err).Msg("Session setup failed")
		return
	}
	defer outbound.Close()

	// Force-close both legs on relay shutdown so the pumps unwind even
	// while blocked in Read.
	stop := context.AfterFunc(ctx, func() {
		s.inbound.Close()
		outbound.Close()
	})
	defer stop()

	s.setState(stateForwarding)
	s.forward(outbound)
	s.setState(stateClosed)

	obs.SessionDuration.Observe(time.Since(start).Seconds())
	s.log.Debug().
		Int64("bytes_in", s.bytesIn.Load()).
		Int64("bytes_out", s.bytesOut.Load()).
		Dur("duration", time.Since(start)).
		Msg("Session closed")
}

// connect dials the resolved target, optionally wraps it in TLS or the
// WebSocket transport, and emits the PROXY header when configured.
func (s *session) connect(ctx context.Context) (net.Conn, error) {
	h := s.l.h
	s.setState(stateConnecting)

	var outbound net.Conn
	if h.opts.Transport == TransportWS {
		s.setState(stateHandshaking)
		ws, err := dialWS(ctx, h.target, h.opts.Insecure)
		if err != nil {
			return nil, err
		}
		outbound = ws
	} else {
		dctx, cancel := context.WithTimeout(ctx, TCPTimeout)
		dialer := &net.Dialer{KeepAliveConfig: keepAliveConfig()}
		raw, err := dialer.DialContext(dctx, "tcp", h.target.Addr)
		cancel()
		if err != nil {
			return nil, &DialError{Addr: h.target.Addr, Err: err}
		}
		outbound = raw
		if h.target.TLS {
			s.setState(stateHandshaking)
			tlsConn, err := wrapTLSClient(ctx, raw, h.target, h.opts.Insecure)
			if err != nil {
				return nil, err
			}
			outbound = tlsConn
		}
	}

	if h.opts.SendProxy {
		if err := writeProxyHeader(outbound, s.inbound.RemoteAddr(), s.inbound.LocalAddr()); err != nil {
			outbound.Close()
			return nil, err
		}
	}
	return outbound, nil
}

// forward runs the two directional pumps until both legs are done.
// End-of-stream on one direction propagates as a write shutdown on the
// other leg so the surviving direction can drain.
func (s *session) forward(outbound net.Conn) {
	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		n, err := io.Copy(outbound, s.inbound)
		s.bytesIn.Add(n)
		obs.BytesRelayed.WithLabelValues("in").Add(float64(n))
		s.setState(stateClosing)
		closeWrite(outbound)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug().Err(err).Msg("Inbound pump finished with error")
		}
	}()

	go func() {
		defer wg.Done()
		n, err := io.Copy(s.inbound, outbound)
		s.bytesOut.Add(n)
		obs.BytesRelayed.WithLabelValues("out").Add(float64(n))
		s.setState(stateClosing)
		closeWrite(s.inbound)
		if err != nil && !errors.Is(err, net.ErrClosed) {
			s.log.Debug().Err(err).Msg("Outbound pump finished with error")
		}
	}()

	wg.Wait()
}

// closeWrite propagates end-of-stream to the peer without tearing down
// the opposite direction. Transports without a half-close are closed
// fully.
func closeWrite(conn net.Conn) {
	if cw, ok := conn.(interface{ CloseWrite() error }); ok {
		_ = cw.CloseWrite()
		return
	}
	_ = conn.Close()
}

// keepAliveConfig is applied to both accepted and dialed TCP
// connections: a stalled-but-responsive peer may persist, a dead one is
// detected after the probe budget.
func keepAliveConfig() net.KeepAliveConfig {
	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     TCPKeepAlive,
		Interval: TCPKeepAlive,
		Count:    TCPKeepAliveProbe,
	}
}
