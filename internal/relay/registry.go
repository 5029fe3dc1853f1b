package relay

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"gorealm/internal/obs"
)

// Transport names for the outbound leg.
const (
	TransportTCP = "tcp"
	TransportWS  = "ws"
)

// Options configures one relay instance. The identity tuple
// (Remote, Host, Path, TLS, Insecure) deduplicates instances; the rest
// shapes how this instance forwards.
type Options struct {
	Listen   string // listen address; empty means a random loopback port
	Remote   string // published remote identity, part of the key
	Host     string // dial target host[:port]
	Path     string // opaque routing suffix, part of the key
	TLS      bool   // wrap the outbound leg in client TLS
	Insecure bool   // skip certificate verification; only with TLS

	SendProxy bool   // emit a PROXY v2 header on each new outbound TCP connection
	Transport string // TransportTCP (default) or TransportWS
	UDP       bool   // also relay UDP datagrams on the listen port
}

// Key returns the identity tuple for these options.
func (o Options) Key() Key {
	return NewKey(o.Remote, o.Host, o.Path, o.TLS, o.Insecure)
}

// Handle is one running relay: its bound listeners, the cancellation
// signal shared by all of its sessions, and the background loops.
type Handle struct {
	key    Key
	opts   Options
	target Target

	ctx    context.Context
	cancel context.CancelFunc

	tcp *tcpListener
	udp *udpRelay

	ready chan struct{} // closed once the start attempt finished
	addr  string        // bound listen address, valid when err is nil
	err   error
}

// Addr returns the bound listen address.
func (h *Handle) Addr() string { return h.addr }

// Registry owns all running relay instances, keyed by their identity
// tuple. Start is idempotent and Stop is a no-op for unknown keys;
// concurrent calls for one key serialize on the published handle so
// the table never holds a half-constructed or doubly-removed entry.
type Registry struct {
	mu      sync.Mutex
	handles map[Key]*Handle
}

func NewRegistry() *Registry {
	return &Registry{handles: make(map[Key]*Handle)}
}

// Start launches the relay described by opts unless its identity tuple
// is already running, and returns the bound listen address. The relay
// keeps running in the background after Start returns.
func (r *Registry) Start(opts Options) (string, error) {
	if opts.Listen == "" {
		opts.Listen = "127.0.0.1:0"
	}
	if opts.Transport == "" {
		opts.Transport = TransportTCP
	}
	key := opts.Key()

	r.mu.Lock()
	if existing, ok := r.handles[key]; ok {
		r.mu.Unlock()
		<-existing.ready
		if existing.err != nil {
			return "", existing.err
		}
		return existing.addr, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	h := &Handle{key: key, opts: opts, ctx: ctx, cancel: cancel, ready: make(chan struct{})}
	r.handles[key] = h
	r.mu.Unlock()

	addr, err := h.start()

	r.mu.Lock()
	if err != nil {
		// A concurrent Stop may have removed this placeholder already,
		// and a later Start may have published a fresh handle under the
		// same key. Only remove the entry if it is still ours; deleting
		// a foreign handle would strand its bound listener with no
		// registry entry.
		if r.handles[key] == h {
			delete(r.handles, key)
		}
	} else {
		// If a concurrent Stop removed us while binding, it is blocked
		// on the ready channel and will shut this handle down itself.
		h.addr = addr
	}
	h.err = err
	close(h.ready)
	r.mu.Unlock()

	if err == nil {
		log.Info().Str("remote", key.Remote).Str("listen_addr", addr).Msg("Relay started")
	}
	return addr, err
}

// Stop cancels and removes the relay identified by key, waiting up to
// the grace period for in-flight sessions to unwind. Stopping a key
// that is not running is a no-op.
func (r *Registry) Stop(key Key) {
	r.mu.Lock()
	h, ok := r.handles[key]
	if ok {
		delete(r.handles, key)
	}
	r.mu.Unlock()
	if !ok {
		return
	}

	<-h.ready
	if h.err != nil {
		return
	}
	h.shutdown()
	log.Info().Str("remote", key.Remote).Str("listen_addr", h.addr).Msg("Relay stopped")
}

// Len reports the number of running relays.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.handles)
}

// start validates the options, resolves the target and binds the
// listeners. Any error releases everything acquired so far, so no
// socket outlives a failed start.
func (h *Handle) start() (string, error) {
	if h.opts.Transport != TransportTCP && h.opts.Transport != TransportWS {
		return "", &UnsupportedModeError{Mode: fmt.Sprintf("transport %q", h.opts.Transport)}
	}
	if h.opts.UDP && h.opts.TLS {
		return "", &UnsupportedModeError{Mode: "udp+tls"}
	}
	if h.opts.UDP && h.opts.Transport == TransportWS {
		return "", &UnsupportedModeError{Mode: "udp over the ws transport"}
	}

	target, err := Resolve(h.opts.Host, h.opts.Path, h.opts.TLS)
	if err != nil {
		h.cancel()
		return "", err
	}
	h.target = target

	lc := net.ListenConfig{KeepAliveConfig: keepAliveConfig()}
	ln, err := lc.Listen(h.ctx, "tcp", h.opts.Listen)
	if err != nil {
		h.cancel()
		return "", fmt.Errorf("bind %s: %w", h.opts.Listen, err)
	}

	if h.opts.UDP {
		// UDP shares the port the TCP listener actually got, so a
		// requested :0 still yields one address for both.
		pc, err := net.ListenPacket("udp", ln.Addr().String())
		if err != nil {
			ln.Close()
			h.cancel()
			return "", fmt.Errorf("bind udp %s: %w", ln.Addr(), err)
		}
		h.udp = newUDPRelay(h, pc)
	}

	h.tcp = newTCPListener(h, ln)
	h.tcp.run()
	if h.udp != nil {
		h.udp.run()
	}
	obs.ActiveRelays.Inc()
	return ln.Addr().String(), nil
}

// shutdown signals cancellation, force-closes the listeners and bounds
// the wait for in-flight sessions.
func (h *Handle) shutdown() {
	h.cancel()
	h.tcp.close()
	if h.udp != nil {
		h.udp.close()
	}

	done := make(chan struct{})
	go func() {
		h.tcp.wg.Wait()
		if h.udp != nil {
			h.udp.wg.Wait()
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(stopGraceTimeout):
		log.Warn().Str("remote", h.key.Remote).Msg("Sessions did not unwind within the grace period")
	}
	obs.ActiveRelays.Dec()
}
