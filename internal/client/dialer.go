package client

import (
	"context"
	"time"

	"github.com/omochice/realm-paint/internal/transport/ws"
)

// Conn is one open socket to the realm server.
type Conn interface {
	// Read blocks until the next frame arrives.
	Read(ctx context.Context) (ws.Frame, error)

	// Write sends one binary frame.
	Write(ctx context.Context, data []byte) error

	Close() error

	// RemoteAddr returns the server address
	RemoteAddr() string
}

// Dialer opens connections for the Manager.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// DialerFunc adapts a function to the Dialer interface.
type DialerFunc func(ctx context.Context, url string) (Conn, error)

func (f DialerFunc) Dial(ctx context.Context, url string) (Conn, error) {
	return f(ctx, url)
}

// WebSocketDialer dials with the gobwas based transport.
func WebSocketDialer(timeout time.Duration) Dialer {
	d := ws.Dialer{Timeout: timeout}
	return DialerFunc(func(ctx context.Context, url string) (Conn, error) {
		conn, err := d.Dial(ctx, url)
		if err != nil {
			return nil, err
		}
		return conn, nil
	})
}
