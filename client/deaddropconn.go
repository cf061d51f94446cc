// Package client implements the anonycast client: it prepares and signs
// documents, publishes them to every configured deaddrop, and retrieves and
// verifies documents published under a topic.
package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"sync"

	"golang.org/x/net/proxy"

	"anonycast/wire"
)

// DeaddropAddr names a deaddrop to connect to: either a raw TCP host:port,
// or a Tor onion service reached through a local SOCKS5 proxy. Both reduce
// to the same duplex byte stream once connected.
type DeaddropAddr struct {
	tor       bool
	tcpAddr   string
	onion     string
	proxyAddr string
}

func TCPAddr(hostPort string) DeaddropAddr {
	return DeaddropAddr{tcpAddr: hostPort}
}

func TorAddr(onion, socksProxy string) DeaddropAddr {
	return DeaddropAddr{tor: true, onion: onion, proxyAddr: socksProxy}
}

func (a DeaddropAddr) String() string {
	if a.tor {
		return fmt.Sprintf("tor:%s via %s", a.onion, a.proxyAddr)
	}
	return a.tcpAddr
}

// DeaddropConn is a single shared connection to one deaddrop. All requests
// issued through it are serialized behind one mutex, matching the
// reference client's single-shared-stream-behind-a-lock design: a deaddrop
// connection is simple request/response, so there is never a reason for two
// goroutines to interleave reads and writes on it.
type DeaddropConn struct {
	mu   sync.Mutex
	conn net.Conn
	r    *bufio.Reader
}

// Connect dials addr and wraps the resulting stream.
func Connect(ctx context.Context, addr DeaddropAddr) (*DeaddropConn, error) {
	if addr.tor {
		return connectTor(ctx, addr.onion, addr.proxyAddr)
	}
	return connectTCP(ctx, addr.tcpAddr)
}

func connectTCP(ctx context.Context, hostPort string) (*DeaddropConn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", hostPort)
	if err != nil {
		return nil, fmt.Errorf("connect to deaddrop %s: %w", hostPort, err)
	}
	return newDeaddropConn(conn), nil
}

func connectTor(ctx context.Context, onion, socksProxy string) (*DeaddropConn, error) {
	dialer, err := proxy.SOCKS5("tcp", socksProxy, nil, proxy.Direct)
	if err != nil {
		return nil, fmt.Errorf("build socks5 dialer for %s: %w", socksProxy, err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, fmt.Errorf("socks5 dialer does not support context dialing")
	}
	conn, err := contextDialer.DialContext(ctx, "tcp", onion)
	if err != nil {
		return nil, fmt.Errorf("connect to onion deaddrop %s via %s: %w", onion, socksProxy, err)
	}
	return newDeaddropConn(conn), nil
}

func newDeaddropConn(conn net.Conn) *DeaddropConn {
	return &DeaddropConn{conn: conn, r: bufio.NewReader(conn)}
}

func (c *DeaddropConn) Close() error {
	return c.conn.Close()
}

func (c *DeaddropConn) sendLocked(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	return wire.WriteFrame(c.conn, data)
}

func (c *DeaddropConn) readLocked(out any) error {
	frame, err := wire.ReadFrame(c.r)
	if err != nil {
		return fmt.Errorf("read frame: %w", err)
	}
	if err := json.Unmarshal(frame, out); err != nil {
		return fmt.Errorf("unmarshal message: %w", err)
	}
	return nil
}

// Send writes v as a single frame.
func (c *DeaddropConn) Send(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sendLocked(v)
}

// Read reads a single frame into out.
func (c *DeaddropConn) Read(out any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readLocked(out)
}

// SendAndRead writes v then reads and decodes the response as R, holding
// the connection's lock for the whole round trip so no other caller's
// request can be interleaved onto the same stream.
func SendAndRead[R any](c *DeaddropConn, v any) (R, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	var zero R
	if err := c.sendLocked(v); err != nil {
		return zero, err
	}
	var out R
	if err := c.readLocked(&out); err != nil {
		return zero, err
	}
	return out, nil
}
