package relay

import (
	"errors"
	"fmt"
)

// ResolutionError reports an unusable host or path. The relay never
// starts; nothing was bound.
type ResolutionError struct {
	Host string
	Path string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("resolve host %q path %q: %v", e.Host, e.Path, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// DialError reports an unreachable or refusing remote. Fatal to one
// session only; the listener keeps accepting.
type DialError struct {
	Addr string
	Err  error
}

func (e *DialError) Error() string { return fmt.Sprintf("dial %s: %v", e.Addr, e.Err) }

func (e *DialError) Unwrap() error { return e.Err }

// TLSHandshakeError reports a failed or timed-out outbound TLS
// handshake, including certificate verification failures. Fatal to one
// session only.
type TLSHandshakeError struct {
	Addr    string
	Timeout bool
	Err     error
}

func (e *TLSHandshakeError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("tls handshake with %s timed out: %v", e.Addr, e.Err)
	}
	return fmt.Sprintf("tls handshake with %s: %v", e.Addr, e.Err)
}

func (e *TLSHandshakeError) Unwrap() error { return e.Err }

// ProxyHeaderError reports a failed or timed-out PROXY header write.
// The session dies before any payload byte is relayed.
type ProxyHeaderError struct {
	Err error
}

func (e *ProxyHeaderError) Error() string { return fmt.Sprintf("proxy protocol header: %v", e.Err) }

func (e *ProxyHeaderError) Unwrap() error { return e.Err }

// UnsupportedModeError reports a configuration combination the engine
// cannot serve (for example UDP with TLS). Fatal to the Start call.
type UnsupportedModeError struct {
	Mode string
}

func (e *UnsupportedModeError) Error() string { return fmt.Sprintf("unsupported mode: %s", e.Mode) }

// errorKind maps an error to its taxonomy label for metrics.
func errorKind(err error) string {
	var (
		resErr  *ResolutionError
		dialErr *DialError
		tlsErr  *TLSHandshakeError
		hdrErr  *ProxyHeaderError
		modeErr *UnsupportedModeError
	)
	switch {
	case errors.As(err, &resErr):
		return "resolution"
	case errors.As(err, &dialErr):
		return "dial"
	case errors.As(err, &tlsErr):
		return "tls_handshake"
	case errors.As(err, &hdrErr):
		return "proxy_header"
	case errors.As(err, &modeErr):
		return "unsupported_mode"
	default:
		return "other"
	}
}
