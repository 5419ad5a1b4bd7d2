// Package ws provides the websocket client transport used to reach a realm
// server. It is built on gobwas/ws.
package ws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
)

// Kind tells protocol frames apart from status text.
type Kind int

const (
	KindBinary Kind = iota
	KindText
)

// String returns the string representation of Kind
func (k Kind) String() string {
	switch k {
	case KindBinary:
		return "binary"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Frame is one complete websocket data message.
type Frame struct {
	Kind Kind
	Data []byte
}

// ErrClosed is returned by Read and Write after Close.
var ErrClosed = errors.New("ws: connection closed")

// Conn is a client websocket connection that preserves message boundaries.
type Conn struct {
	conn       net.Conn
	reader     io.Reader
	remoteAddr string

	readMu  sync.Mutex
	writeMu sync.Mutex

	closeOnce sync.Once
	closed    chan struct{}
}

// Dialer opens websocket connections.
type Dialer struct {
	Timeout time.Duration
}

// Dial connects to a ws:// or wss:// url.
func (d Dialer) Dial(ctx context.Context, url string) (*Conn, error) {
	dialer := ws.Dialer{Timeout: d.Timeout}
	conn, br, _, err := dialer.Dial(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to server: %w", err)
	}
	var reader io.Reader = conn
	if br != nil {
		// The server sent data right after the handshake.
		reader = br
	}
	return newConn(conn, reader), nil
}

func newConn(conn net.Conn, reader io.Reader) *Conn {
	return &Conn{
		conn:       conn,
		reader:     reader,
		remoteAddr: conn.RemoteAddr().String(),
		closed:     make(chan struct{}),
	}
}

// NewConn wraps an already upgraded client-side net.Conn.
func NewConn(conn net.Conn) *Conn {
	return newConn(conn, conn)
}

// rw joins the buffered reader and the raw conn for wsutil, which answers
// pings on the same stream it reads from.
type rw struct {
	io.Reader
	c *Conn
}

func (w rw) Write(p []byte) (int, error) {
	w.c.writeMu.Lock()
	defer w.c.writeMu.Unlock()
	return w.c.conn.Write(p)
}

// Read blocks until the next data message arrives. Control frames are
// handled internally. Cancelling ctx closes the connection.
func (c *Conn) Read(ctx context.Context) (Frame, error) {
	c.readMu.Lock()
	defer c.readMu.Unlock()

	stop := context.AfterFunc(ctx, func() { c.Close() })
	defer stop()

	data, op, err := wsutil.ReadServerData(rw{Reader: c.reader, c: c})
	if err != nil {
		if ctx.Err() != nil {
			return Frame{}, ctx.Err()
		}
		select {
		case <-c.closed:
			return Frame{}, ErrClosed
		default:
		}
		return Frame{}, err
	}
	if op == ws.OpText {
		return Frame{Kind: KindText, Data: data}, nil
	}
	return Frame{Kind: KindBinary, Data: data}, nil
}

// Write sends data as one binary message.
func (c *Conn) Write(ctx context.Context, data []byte) error {
	select {
	case <-c.closed:
		return ErrClosed
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = c.conn.SetWriteDeadline(deadline)
		defer c.conn.SetWriteDeadline(time.Time{})
	}
	return wsutil.WriteClientBinary(c.conn, data)
}

// Close sends a close frame and closes the socket. It is safe to call more
// than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.writeMu.Lock()
		_ = c.conn.SetWriteDeadline(time.Now().Add(time.Second))
		_ = wsutil.WriteClientMessage(c.conn, ws.OpClose, ws.NewCloseFrameBody(ws.StatusNormalClosure, ""))
		c.writeMu.Unlock()
		err = c.conn.Close()
	})
	return err
}

// Done is closed once Close has been called.
func (c *Conn) Done() <-chan struct{} {
	return c.closed
}

// RemoteAddr returns the server address for logging.
func (c *Conn) RemoteAddr() string {
	return c.remoteAddr
}
