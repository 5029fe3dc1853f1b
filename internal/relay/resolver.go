package relay

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// Target is the resolved dial destination for a relay's outbound leg.
type Target struct {
	Addr       string // host:port dial address
	ServerName string // SNI / certificate hostname
	Path       string // opaque suffix; request path for the ws transport
	TLS        bool
}

// Resolve turns (host, path, tls) into a concrete dial target. Host may
// carry an explicit port; without one the port defaults by TLS mode
// (443/80). Path is sanity-checked only, never interpreted.
func Resolve(host, path string, useTLS bool) (Target, error) {
	host = strings.TrimSpace(host)
	if host == "" {
		return Target{}, &ResolutionError{Host: host, Path: path, Err: errors.New("empty host")}
	}
	if err := checkPath(path); err != nil {
		return Target{}, &ResolutionError{Host: host, Path: path, Err: err}
	}

	name, port, err := net.SplitHostPort(host)
	if err != nil {
		// No explicit port. Bare IPv6 literals are accepted; anything
		// else with a colon is garbage.
		name = strings.Trim(host, "[]")
		if strings.Contains(name, ":") && net.ParseIP(name) == nil {
			return Target{}, &ResolutionError{Host: host, Path: path, Err: err}
		}
		if useTLS {
			port = "443"
		} else {
			port = "80"
		}
	} else {
		p, perr := strconv.Atoi(port)
		if perr != nil || p < 1 || p > 65535 {
			return Target{}, &ResolutionError{Host: host, Path: path, Err: fmt.Errorf("invalid port %q", port)}
		}
	}

	if name == "" || !validHostname(name) {
		return Target{}, &ResolutionError{Host: host, Path: path, Err: fmt.Errorf("invalid host name %q", name)}
	}

	return Target{
		Addr:       net.JoinHostPort(name, port),
		ServerName: name,
		Path:       normalizePath(path),
		TLS:        useTLS,
	}, nil
}

func validHostname(name string) bool {
	if net.ParseIP(name) != nil {
		return true
	}
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9':
		case r == '-' || r == '.' || r == '_':
		default:
			return false
		}
	}
	return true
}

func checkPath(p string) error {
	if len(p) > 1024 {
		return fmt.Errorf("path exceeds %d bytes", 1024)
	}
	for i := 0; i < len(p); i++ {
		if c := p[i]; c <= ' ' || c >= 0x7f {
			return fmt.Errorf("path contains invalid byte 0x%02x", c)
		}
	}
	return nil
}
