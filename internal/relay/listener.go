package relay

import (
	"errors"
	"net"
	"sync"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// tcpListener owns the accept loop of one relay instance and spawns a
// session per accepted connection.
type tcpListener struct {
	h  *Handle
	ln net.Listener

	log         zerolog.Logger
	wg          sync.WaitGroup
	closeOnce   sync.Once
	activeConns sync.Map // net.Conn -> struct{}, force-closed on shutdown
}

func newTCPListener(h *Handle, ln net.Listener) *tcpListener {
	return &tcpListener{
		h:  h,
		ln: ln,
		log: log.With().
			Str("remote", h.key.Remote).
			Str("listen_addr", ln.Addr().String()).
			Logger(),
	}
}

func (l *tcpListener) run() {
	l.wg.Add(1)
	go l.acceptLoop()
}

func (l *tcpListener) acceptLoop() {
	defer l.wg.Done()
	for {
		conn, err := l.ln.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				l.log.Debug().Msg("Listener closed, accept loop exiting")
				return
			}
			l.log.Warn().Err(err).Msg("Failed to accept connection")
			continue
		}

		l.activeConns.Store(conn, struct{}{})
		l.wg.Add(1)
		go func() {
			defer l.wg.Done()
			defer l.activeConns.Delete(conn)
			newSession(l, conn).run(l.h.ctx)
		}()
	}
}

func (l *tcpListener) close() {
	l.closeOnce.Do(func() {
		_ = l.ln.Close()
		l.activeConns.Range(func(key, _ any) bool {
			key.(net.Conn).Close()
			return true
		})
	})
}
