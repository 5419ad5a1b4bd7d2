package client_test

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/realm-paint/internal/client"
	"github.com/omochice/realm-paint/internal/config"
	"github.com/omochice/realm-paint/internal/metrics"
	"github.com/omochice/realm-paint/internal/realm"
	"github.com/omochice/realm-paint/internal/testutil/relaytest"
	"github.com/omochice/realm-paint/internal/testutil/testlog"
	"github.com/omochice/realm-paint/internal/transport/ws"
	"github.com/omochice/realm-paint/pkg/protocol"
)

const waitFor = 2 * time.Second

func initFrame(t *testing.T, id uint32) []byte {
	t.Helper()
	data, err := protocol.Encode(&protocol.Init{
		Width:      4,
		Height:     4,
		LayerCount: 2,
		Name:       "Lobby",
		ID:         id,
		Cursors:    []protocol.CursorInfo{{ID: 9, X: 1, Y: 1, Name: "Eve"}},
		ImageData:  make([]byte, protocol.ImageSize(4, 4, 2)),
	})
	require.NoError(t, err)
	return data
}

func testConfig(url string) config.Config {
	cfg := config.Default()
	cfg.Server.URL = url
	cfg.Server.DialTimeout = time.Second
	cfg.Reconnect.Mode = config.ReconnectImmediate
	cfg.Identity.Name = "Tester"
	return cfg
}

// start runs m until the test ends and checks that Run returned nil.
func start(t *testing.T, m *client.Manager) context.CancelFunc {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(waitFor):
			t.Error("Run did not return after cancel")
		}
	})
	return cancel
}

func bound(m *client.Manager) func() bool {
	return func() bool {
		_, ok := m.Session().ActiveRealm()
		return ok
	}
}

func TestManager_AppliesGreeting(t *testing.T) {
	srv := relaytest.New(t,
		relaytest.Binary(initFrame(t, 7)),
		relaytest.Text("Welcome"),
	)
	m := client.New(testConfig(srv.URL()), client.WithLogger(testlog.Start(t)))
	start(t, m)

	require.Eventually(t, func() bool { return m.LastStatus() == "Welcome" }, waitFor, 10*time.Millisecond)

	active, ok := m.Session().ActiveRealm()
	require.True(t, ok)
	assert.Equal(t, uint32(7), active)
	assert.Equal(t, client.Online, m.Indicator())

	cur, ok := m.Session().Cursor(9)
	require.True(t, ok)
	assert.Equal(t, "Eve", cur.Name)

	mt := m.Metrics()
	assert.Equal(t, 1.0, metrics.Value(mt.FramesReceived.WithLabelValues("binary")))
	assert.Equal(t, 1.0, metrics.Value(mt.FramesReceived.WithLabelValues("text")))
	assert.Equal(t, 1.0, metrics.Value(mt.Applied.WithLabelValues("INIT")))
	assert.Equal(t, 2.0, metrics.Value(mt.Indicator))
}

func TestManager_DropsBadFramesWithoutDisconnecting(t *testing.T) {
	srv := relaytest.New(t,
		relaytest.Binary([]byte{0x09, 0x00}),
		relaytest.Binary(initFrame(t, 7)[:5]),
		relaytest.Binary(initFrame(t, 7)),
	)
	m := client.New(testConfig(srv.URL()), client.WithLogger(testlog.Start(t)))
	start(t, m)

	require.Eventually(t, bound(m), waitFor, 10*time.Millisecond)

	// Target 2 is out of range for a two-layer realm.
	srv.Send(relaytest.Binary(mustEncode(t, &protocol.Paint{Realm: 7, BrushSize: 1, Target: 2})))
	srv.Send(relaytest.Binary(mustEncode(t, &protocol.Paint{Realm: 7, X: 1, Y: 1, R: 50, A: 255, BrushSize: 1, Target: 1})))

	require.Eventually(t, func() bool {
		return metrics.Value(m.Metrics().Applied.WithLabelValues("PAINT")) == 1
	}, waitFor, 10*time.Millisecond)

	mt := m.Metrics()
	assert.Equal(t, 2.0, metrics.Value(mt.FramesDropped.WithLabelValues(metrics.ReasonDecode)))
	assert.Equal(t, 1.0, metrics.Value(mt.FramesDropped.WithLabelValues(metrics.ReasonApply)))
	assert.Equal(t, 1.0, metrics.Value(mt.Connects))
	assert.Equal(t, 1, srv.Accepted())

	layer := m.Session().View().Layers[1]
	assert.Equal(t, realm.Color{R: 50, A: 255}, layer.At(1, 1))
}

func mustEncode(t *testing.T, msg protocol.Message) []byte {
	t.Helper()
	data, err := protocol.Encode(msg)
	require.NoError(t, err)
	return data
}

func receive(t *testing.T, srv *relaytest.Server) protocol.Message {
	t.Helper()
	select {
	case f := <-srv.Received():
		msg, err := protocol.Decode(f.Data)
		require.NoError(t, err)
		return msg
	case <-time.After(waitFor):
		t.Fatal("timeout waiting for client frame")
		return nil
	}
}

func TestManager_OutboundUsesActiveRealm(t *testing.T) {
	srv := relaytest.New(t, relaytest.Binary(initFrame(t, 7)))
	m := client.New(testConfig(srv.URL()), client.WithLogger(testlog.Start(t)))
	start(t, m)
	require.Eventually(t, bound(m), waitFor, 10*time.Millisecond)

	ctx := context.Background()
	c := realm.Color{R: 1, G: 2, B: 3, A: 4}

	require.NoError(t, m.Paint(ctx, 10, 20, c, 5, 1))
	assert.Equal(t, &protocol.Paint{Realm: 7, X: 10, Y: 20, R: 1, G: 2, B: 3, A: 4, BrushSize: 5, Target: 1}, receive(t, srv))

	// A stale realm on the message itself is replaced.
	require.NoError(t, m.Send(ctx, &protocol.Clear{Realm: 99, A: 255, Target: 0}))
	assert.Equal(t, &protocol.Clear{Realm: 7, A: 255, Target: 0}, receive(t, srv))

	require.NoError(t, m.MoveCursor(ctx, 3, 4))
	assert.Equal(t, &protocol.Position{Realm: 7, X: 3, Y: 4, Name: "Tester"}, receive(t, srv))

	require.NoError(t, m.ChangeRealm(ctx, 12))
	assert.Equal(t, &protocol.ChangeRealm{Realm: 12}, receive(t, srv))

	assert.Equal(t, 1.0, metrics.Value(m.Metrics().Sent.WithLabelValues("PAINT")))
	assert.Zero(t, metrics.Value(m.Metrics().SendsDropped))
}

func TestManager_SendWhileOfflineIsDropped(t *testing.T) {
	m := client.New(testConfig("ws://127.0.0.1:1"), client.WithLogger(testlog.Start(t)))

	err := m.Paint(context.Background(), 1, 1, realm.Color{A: 255}, 1, 0)

	assert.NoError(t, err)
	assert.Equal(t, 1.0, metrics.Value(m.Metrics().SendsDropped))
	assert.Equal(t, client.Offline, m.Indicator())
}

func TestManager_SendErrors(t *testing.T) {
	m := client.New(testConfig("ws://127.0.0.1:1"))

	assert.ErrorIs(t, m.Send(context.Background(), nil), protocol.ErrNilMessage)

	bad := &protocol.Init{Width: 2, Height: 2, LayerCount: 1, ImageData: []byte{1}}
	assert.ErrorIs(t, m.Send(context.Background(), bad), protocol.ErrImageSize)
	assert.Zero(t, metrics.Value(m.Metrics().SendsDropped))
}

func TestManager_ReconnectsAfterDrop(t *testing.T) {
	srv := relaytest.New(t, relaytest.Binary(initFrame(t, 7)))
	m := client.New(testConfig(srv.URL()), client.WithLogger(testlog.Start(t)))
	start(t, m)

	select {
	case <-srv.Joined():
	case <-time.After(waitFor):
		t.Fatal("client never connected")
	}
	require.Eventually(t, bound(m), waitFor, 10*time.Millisecond)

	srv.Kick()

	select {
	case <-srv.Joined():
	case <-time.After(waitFor):
		t.Fatal("client did not reconnect")
	}
	require.Eventually(t, func() bool { return m.Indicator() == client.Online }, waitFor, 10*time.Millisecond)

	assert.GreaterOrEqual(t, srv.Accepted(), 2)
	assert.GreaterOrEqual(t, metrics.Value(m.Metrics().Reconnects), 1.0)
	assert.True(t, bound(m)())
}

// scriptedConn replays frames and then fails like a dropped socket.
type scriptedConn struct {
	mu     sync.Mutex
	frames []ws.Frame
	closed bool
	writes [][]byte
}

func (c *scriptedConn) Read(ctx context.Context) (ws.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return ws.Frame{}, ctx.Err()
	}
	if c.closed || len(c.frames) == 0 {
		return ws.Frame{}, io.EOF
	}
	f := c.frames[0]
	c.frames = c.frames[1:]
	return f, nil
}

func (c *scriptedConn) Write(_ context.Context, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, data)
	return nil
}

func (c *scriptedConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *scriptedConn) RemoteAddr() string { return "scripted" }

// scriptedDialer hands out conns in order, then blocks until ctx ends.
type scriptedDialer struct {
	mu    sync.Mutex
	conns []client.Conn
	dials int
	dial  chan int
}

func newScriptedDialer(conns ...client.Conn) *scriptedDialer {
	return &scriptedDialer{conns: conns, dial: make(chan int, 64)}
}

func (d *scriptedDialer) Dial(ctx context.Context, _ string) (client.Conn, error) {
	d.mu.Lock()
	d.dials++
	n := d.dials
	var conn client.Conn
	if len(d.conns) > 0 {
		conn = d.conns[0]
		d.conns = d.conns[1:]
	}
	d.mu.Unlock()

	select {
	case d.dial <- n:
	default:
	}
	if conn != nil {
		return conn, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func waitDial(t *testing.T, d *scriptedDialer, n int) {
	t.Helper()
	deadline := time.After(waitFor)
	for {
		select {
		case got := <-d.dial:
			if got >= n {
				return
			}
		case <-deadline:
			t.Fatalf("dial %d never happened", n)
		}
	}
}

func TestManager_IndicatorSequence(t *testing.T) {
	var (
		mu   sync.Mutex
		seen []client.Indicator
	)
	dialer := newScriptedDialer(&scriptedConn{frames: []ws.Frame{{Kind: ws.KindText, Data: []byte("hi")}}})
	m := client.New(testConfig("ws://scripted"),
		client.WithDialer(dialer),
		client.WithLogger(testlog.Start(t)),
		client.OnIndicator(func(i client.Indicator) {
			mu.Lock()
			seen = append(seen, i)
			mu.Unlock()
		}),
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx) }()

	waitDial(t, dialer, 2)
	cancel()
	require.NoError(t, <-done)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []client.Indicator{
		client.Connecting, client.Online, client.Offline,
		client.Connecting, client.Offline,
	}, seen)
	assert.Equal(t, "hi", m.LastStatus())
}

func TestManager_StaleViewKeptAcrossReconnect(t *testing.T) {
	dialer := newScriptedDialer(&scriptedConn{frames: []ws.Frame{{Kind: ws.KindBinary, Data: initFrame(t, 7)}}})
	m := client.New(testConfig("ws://scripted"), client.WithDialer(dialer), client.WithLogger(testlog.Start(t)))
	start(t, m)

	waitDial(t, dialer, 2)

	active, ok := m.Session().ActiveRealm()
	assert.True(t, ok)
	assert.Equal(t, uint32(7), active)
}

func TestManager_ClearOnDisconnect(t *testing.T) {
	cfg := testConfig("ws://scripted")
	cfg.Session.ClearOnDisconnect = true
	dialer := newScriptedDialer(&scriptedConn{frames: []ws.Frame{{Kind: ws.KindBinary, Data: initFrame(t, 7)}}})
	m := client.New(cfg, client.WithDialer(dialer), client.WithLogger(testlog.Start(t)))
	start(t, m)

	waitDial(t, dialer, 2)

	assert.Equal(t, realm.Unbound, m.Session().State())
	_, ok := m.Session().Cursor(9)
	assert.False(t, ok)
}

func TestManager_OnMessage(t *testing.T) {
	var (
		mu    sync.Mutex
		types []protocol.Type
	)
	dialer := newScriptedDialer(&scriptedConn{frames: []ws.Frame{
		{Kind: ws.KindBinary, Data: initFrame(t, 7)},
		{Kind: ws.KindBinary, Data: mustEncode(t, &protocol.Position{Realm: 7, ID: 3, Name: "Bob"})},
	}})
	m := client.New(testConfig("ws://scripted"),
		client.WithDialer(dialer),
		client.WithLogger(testlog.Start(t)),
		client.OnMessage(func(msg protocol.Message, effect realm.Effect) {
			mu.Lock()
			types = append(types, msg.Type())
			mu.Unlock()
		}),
	)
	start(t, m)
	waitDial(t, dialer, 2)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []protocol.Type{protocol.TypeInit, protocol.TypePosition}, types)
}

func TestManager_ImmediateModeRedialsWithoutDelay(t *testing.T) {
	var (
		mu    sync.Mutex
		dials int
	)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	failing := client.DialerFunc(func(context.Context, string) (client.Conn, error) {
		mu.Lock()
		defer mu.Unlock()
		dials++
		if dials == 5 {
			cancel()
		}
		return nil, errors.New("connection refused")
	})
	m := client.New(testConfig("ws://scripted"), client.WithDialer(failing), client.WithLogger(testlog.Start(t)))

	began := time.Now()
	require.NoError(t, m.Run(ctx))

	assert.Less(t, time.Since(began), time.Second)
	assert.Equal(t, 5, dials)
	assert.Equal(t, 4.0, metrics.Value(m.Metrics().Reconnects))
	assert.Zero(t, metrics.Value(m.Metrics().Connects))
}

func TestManager_BackoffGivesUp(t *testing.T) {
	cfg := testConfig("ws://scripted")
	cfg.Reconnect = config.Reconnect{
		Mode:            config.ReconnectBackoff,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
		Multiplier:      2,
		MaxElapsed:      100 * time.Millisecond,
	}
	failing := client.DialerFunc(func(context.Context, string) (client.Conn, error) {
		return nil, errors.New("connection refused")
	})
	m := client.New(cfg, client.WithDialer(failing), client.WithLogger(testlog.Start(t)))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := m.Run(ctx)
	assert.ErrorIs(t, err, client.ErrRetriesExhausted)
	assert.Equal(t, client.Offline, m.Indicator())
	assert.Greater(t, metrics.Value(m.Metrics().Reconnects), 1.0)
}

func TestManager_RunTwice(t *testing.T) {
	dialer := newScriptedDialer()
	m := client.New(testConfig("ws://scripted"), client.WithDialer(dialer), client.WithLogger(testlog.Start(t)))
	start(t, m)
	waitDial(t, dialer, 1)

	assert.ErrorIs(t, m.Run(context.Background()), client.ErrAlreadyRunning)
}

func TestIndicator_String(t *testing.T) {
	tests := []struct {
		in   client.Indicator
		want string
	}{
		{client.Offline, "Offline"},
		{client.Connecting, "Connecting"},
		{client.Online, "Online"},
		{client.Indicator(7), "Indicator(7)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.in.String())
	}
}
