package relay

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// wsConn adapts a client WebSocket connection to net.Conn so the byte
// pumps can treat the outbound leg uniformly. Frames are binary;
// non-binary frames are skipped.
type wsConn struct {
	*websocket.Conn

	readMu  sync.Mutex
	readBuf bytes.Buffer
	writeMu sync.Mutex
}

func (c *wsConn) Read(b []byte) (int, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()
	for c.readBuf.Len() == 0 {
		msgType, msg, err := c.Conn.ReadMessage()
		if err != nil {
			return 0, err
		}
		if msgType != websocket.BinaryMessage {
			continue
		}
		c.readBuf.Write(msg)
	}
	return c.readBuf.Read(b)
}

func (c *wsConn) Write(b []byte) (int, error) {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.Conn.WriteMessage(websocket.BinaryMessage, b); err != nil {
		return 0, err
	}
	return len(b), nil
}

func (c *wsConn) SetDeadline(t time.Time) error {
	if err := c.Conn.SetReadDeadline(t); err != nil {
		return err
	}
	return c.Conn.SetWriteDeadline(t)
}

// dialWS dials the outbound leg over WebSocket. The resolved target
// supplies the endpoint: path becomes the request path, the host the
// Host header and SNI.
func dialWS(ctx context.Context, target Target, insecure bool) (net.Conn, error) {
	scheme := "ws"
	if target.TLS {
		scheme = "wss"
	}
	u := url.URL{Scheme: scheme, Host: target.Addr, Path: target.Path}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout
	dialer.NetDialContext = (&net.Dialer{
		Timeout:         TCPTimeout,
		KeepAliveConfig: keepAliveConfig(),
	}).DialContext
	if target.TLS {
		dialer.TLSClientConfig = tlsClientConfig(target, insecure)
	}

	requestHeader := http.Header{}
	requestHeader.Set("User-Agent", "gorealm/1.0")

	ws, resp, err := dialer.DialContext(ctx, u.String(), requestHeader)
	if err != nil {
		if resp != nil {
			resp.Body.Close()
		}
		var certErr *tls.CertificateVerificationError
		var recErr tls.RecordHeaderError
		if errors.As(err, &certErr) || errors.As(err, &recErr) {
			return nil, &TLSHandshakeError{Addr: target.Addr, Timeout: isTimeout(err), Err: err}
		}
		return nil, &DialError{Addr: target.Addr, Err: err}
	}
	return &wsConn{Conn: ws}, nil
}
