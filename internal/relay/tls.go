package relay

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
)

// tlsClientConfig builds the client TLS configuration for the outbound
// leg. Verification is delegated to crypto/tls; insecure disables it
// entirely and is never the default.
func tlsClientConfig(target Target, insecure bool) *tls.Config {
	cfg := &tls.Config{ServerName: target.ServerName}
	if insecure {
		// Explicit opt-in for self-signed or otherwise untrusted endpoints.
		cfg.InsecureSkipVerify = true
	}
	return cfg
}

// wrapTLSClient performs the client handshake within handshakeTimeout.
// On failure the raw connection is closed and the session is done.
func wrapTLSClient(ctx context.Context, raw net.Conn, target Target, insecure bool) (net.Conn, error) {
	tc := tls.Client(raw, tlsClientConfig(target, insecure))

	hctx, cancel := context.WithTimeout(ctx, handshakeTimeout)
	defer cancel()
	if err := tc.HandshakeContext(hctx); err != nil {
		raw.Close()
		return nil, &TLSHandshakeError{Addr: target.Addr, Timeout: isTimeout(err), Err: err}
	}
	return tc, nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
