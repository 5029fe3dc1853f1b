// Package gorealm is an embeddable relay engine. StartRealm launches a
// background relay that forwards TCP (and, for plaintext tuples, UDP)
// traffic from a loopback listen address to the resolved remote
// endpoint; StopRealm tears that exact instance down again. Instances
// are identified by their full configuration tuple, so callers with
// equal tuples share one relay.
package gorealm

import (
	"sync"

	"gorealm/internal/relay"
)

var (
	mu       sync.Mutex
	registry = relay.NewRegistry()
	refs     = make(map[relay.Key]int)
)

// StartRealm starts (or joins) the relay identified by the tuple and
// returns its bound listen address. The call returns as soon as the
// address is known; the relay keeps running in the background. Repeated
// calls with an identical tuple return the same address, and each is
// balanced by one StopRealm.
func StartRealm(remote, host, path string, useTLS, insecure bool) (string, error) {
	mu.Lock()
	defer mu.Unlock()

	addr, err := registry.Start(relay.Options{
		Remote:   remote,
		Host:     host,
		Path:     path,
		TLS:      useTLS,
		Insecure: insecure,
		// The engine cannot carry UDP over a TLS outbound leg, so UDP
		// relaying rides along only for plaintext tuples.
		UDP: !useTLS,
	})
	if err != nil {
		return "", err
	}
	refs[relay.NewKey(remote, host, path, useTLS, insecure)]++
	return addr, nil
}

// StopRealm releases one StartRealm reference for the tuple and stops
// the relay when the last reference is gone. Stopping a tuple that is
// not running is a safe no-op.
func StopRealm(remote, host, path string, useTLS, insecure bool) {
	mu.Lock()
	defer mu.Unlock()

	key := relay.NewKey(remote, host, path, useTLS, insecure)
	n, ok := refs[key]
	if !ok {
		return
	}
	if n > 1 {
		refs[key] = n - 1
		return
	}
	delete(refs, key)
	registry.Stop(key)
}
