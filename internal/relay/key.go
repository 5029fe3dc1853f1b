package relay

import (
	"fmt"
	"strings"
)

// Key identifies one relay instance by its configuration tuple. It is
// a value type with structural equality, so it can be used directly as
// a map key. Keys address running relays; they are never parsed back
// into network input.
type Key struct {
	Remote   string
	Host     string
	Path     string
	TLS      bool
	Insecure bool
}

// NewKey builds a normalized Key. Host and remote are compared
// case-insensitively; the path keeps a single leading slash and no
// trailing slash, so "ws", "/ws" and "/ws/" produce equal keys.
func NewKey(remote, host, path string, useTLS, insecure bool) Key {
	return Key{
		Remote:   strings.ToLower(strings.TrimSpace(remote)),
		Host:     strings.ToLower(strings.TrimSpace(host)),
		Path:     normalizePath(path),
		TLS:      useTLS,
		Insecure: insecure,
	}
}

func normalizePath(p string) string {
	p = strings.TrimSpace(p)
	for strings.HasSuffix(p, "/") {
		p = strings.TrimSuffix(p, "/")
	}
	if p == "" {
		return ""
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

func (k Key) String() string {
	return fmt.Sprintf("%s|%s|%s|tls=%t|insecure=%t", k.Remote, k.Host, k.Path, k.TLS, k.Insecure)
}
