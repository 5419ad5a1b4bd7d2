// Package client owns the websocket to a realm server: it dispatches
// inbound frames into a realm session, reconnects when the socket drops and
// sends local actions while the socket is open.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/omochice/realm-paint/internal/config"
	"github.com/omochice/realm-paint/internal/metrics"
	"github.com/omochice/realm-paint/internal/realm"
	"github.com/omochice/realm-paint/internal/transport/ws"
	"github.com/omochice/realm-paint/pkg/protocol"
)

var (
	// ErrAlreadyRunning is returned when Run is called while another Run is active.
	ErrAlreadyRunning = errors.New("client: manager already running")
	// ErrRetriesExhausted is returned by Run when reconnect.max_elapsed has passed.
	ErrRetriesExhausted = errors.New("client: reconnect attempts exhausted")
)

// Indicator is the connection state shown to the user.
type Indicator int

const (
	Offline Indicator = iota
	Connecting
	Online
)

// String returns the string representation of Indicator
func (i Indicator) String() string {
	switch i {
	case Offline:
		return "Offline"
	case Connecting:
		return "Connecting"
	case Online:
		return "Online"
	default:
		return fmt.Sprintf("Indicator(%d)", int(i))
	}
}

// Option configures a Manager.
type Option func(*Manager)

// WithSession replaces the session inbound messages are applied to.
func WithSession(s *realm.Session) Option {
	return func(m *Manager) { m.session = s }
}

func WithMetrics(mt *metrics.Metrics) Option {
	return func(m *Manager) { m.metrics = mt }
}

func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l.With().Str("component", "client").Logger() }
}

// WithDialer replaces the websocket dialer.
func WithDialer(d Dialer) Option {
	return func(m *Manager) { m.dialer = d }
}

// OnIndicator registers fn to be called after every indicator change.
func OnIndicator(fn func(Indicator)) Option {
	return func(m *Manager) { m.onIndicator = append(m.onIndicator, fn) }
}

// OnStatus registers fn to be called for every text frame.
func OnStatus(fn func(string)) Option {
	return func(m *Manager) { m.onStatus = append(m.onStatus, fn) }
}

// OnMessage registers fn to be called after a message was applied.
func OnMessage(fn func(protocol.Message, realm.Effect)) Option {
	return func(m *Manager) { m.onMessage = append(m.onMessage, fn) }
}

// Manager keeps one connection to the realm server alive.
type Manager struct {
	cfg     config.Config
	name    string
	codec   protocol.Codec
	session *realm.Session
	metrics *metrics.Metrics
	log     zerolog.Logger
	dialer  Dialer

	onIndicator []func(Indicator)
	onStatus    []func(string)
	onMessage   []func(protocol.Message, realm.Effect)

	running atomic.Bool

	mu        sync.RWMutex
	conn      Conn
	indicator Indicator
	status    string
}

// New creates a Manager for cfg. Nothing is dialled until Run.
func New(cfg config.Config, opts ...Option) *Manager {
	m := &Manager{
		cfg:   cfg,
		name:  cfg.Identity.Name,
		codec: protocol.Codec{Text: cfg.Session.TextEncoding},
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.session == nil {
		m.session = realm.NewSession(realm.WithLogger(m.log))
	}
	if m.metrics == nil {
		m.metrics = metrics.New()
	}
	if m.dialer == nil {
		m.dialer = WebSocketDialer(cfg.Server.DialTimeout)
	}
	return m
}

// Session returns the session inbound messages are applied to.
func (m *Manager) Session() *realm.Session {
	return m.session
}

// Metrics returns the instruments the manager updates.
func (m *Manager) Metrics() *metrics.Metrics {
	return m.metrics
}

// URL returns the server address the manager dials.
func (m *Manager) URL() string {
	return m.cfg.Server.URL
}

// Name returns the display name sent with cursor positions.
func (m *Manager) Name() string {
	return m.name
}

// Indicator returns the current connection state.
func (m *Manager) Indicator() Indicator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.indicator
}

// LastStatus returns the most recent text frame from the server.
func (m *Manager) LastStatus() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.status
}

// Run connects and reconnects until ctx is cancelled, then returns nil.
// With a non-zero reconnect.max_elapsed it returns ErrRetriesExhausted once
// the server has been unreachable for that long.
func (m *Manager) Run(ctx context.Context) error {
	if !m.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer m.running.Store(false)
	defer m.setIndicator(Offline)

	policy := m.newPolicy()
	for attempt := 0; ; attempt++ {
		if ctx.Err() != nil {
			return nil
		}
		if attempt > 0 {
			m.metrics.Reconnects.Inc()
		}

		if m.connectAndServe(ctx) {
			policy.Reset()
		}
		if ctx.Err() != nil {
			return nil
		}

		wait := policy.NextBackOff()
		if wait == backoff.Stop {
			m.log.Error().Int("attempts", attempt+1).Msg("giving up on reconnect")
			return ErrRetriesExhausted
		}
		if wait <= 0 {
			continue
		}
		m.log.Debug().Dur("wait", wait).Msg("reconnect scheduled")

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}
	}
}

func (m *Manager) newPolicy() backoff.BackOff {
	rc := m.cfg.Reconnect
	if rc.Mode == config.ReconnectImmediate {
		return &backoff.ZeroBackOff{}
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = rc.InitialInterval
	b.MaxInterval = rc.MaxInterval
	b.Multiplier = rc.Multiplier
	b.MaxElapsedTime = rc.MaxElapsed
	b.Reset()
	return b
}

// connectAndServe runs one connection from dial to close. It reports whether
// the handshake succeeded.
func (m *Manager) connectAndServe(ctx context.Context) bool {
	log := m.log.With().Str("conn", uuid.NewString()).Logger()

	m.setIndicator(Connecting)
	conn, err := m.dialer.Dial(ctx, m.cfg.Server.URL)
	if err != nil {
		if ctx.Err() == nil {
			log.Warn().Err(err).Str("url", m.cfg.Server.URL).Msg("connect failed")
		}
		m.setIndicator(Offline)
		return false
	}

	m.mu.Lock()
	m.conn = conn
	m.mu.Unlock()
	m.metrics.Connects.Inc()
	m.setIndicator(Online)
	log.Info().Str("remote", conn.RemoteAddr()).Msg("connected")

	for {
		frame, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() == nil {
				log.Info().Err(err).Msg("connection lost")
			}
			break
		}
		m.handleFrame(log, frame)
	}

	m.mu.Lock()
	m.conn = nil
	m.mu.Unlock()
	conn.Close()
	m.setIndicator(Offline)

	if m.cfg.Session.ClearOnDisconnect {
		m.session.Reset()
	}
	return true
}

func (m *Manager) handleFrame(log zerolog.Logger, frame ws.Frame) {
	if frame.Kind == ws.KindText {
		m.metrics.FramesReceived.WithLabelValues(ws.KindText.String()).Inc()
		m.setStatus(log, string(frame.Data))
		return
	}
	m.metrics.FramesReceived.WithLabelValues(ws.KindBinary.String()).Inc()

	msg, err := m.codec.Decode(frame.Data)
	if err != nil {
		m.metrics.FramesDropped.WithLabelValues(metrics.ReasonDecode).Inc()
		log.Warn().Err(err).Int("bytes", len(frame.Data)).Msg("dropping frame")
		return
	}

	effect, err := m.session.Apply(msg)
	if err != nil {
		m.metrics.FramesDropped.WithLabelValues(metrics.ReasonApply).Inc()
		log.Warn().Err(err).Stringer("type", msg.Type()).Msg("dropping message")
		return
	}
	m.metrics.Applied.WithLabelValues(msg.Type().String()).Inc()

	for _, fn := range m.onMessage {
		fn(msg, effect)
	}
}

func (m *Manager) setIndicator(i Indicator) {
	m.mu.Lock()
	if m.indicator == i {
		m.mu.Unlock()
		return
	}
	m.indicator = i
	m.mu.Unlock()

	m.metrics.Indicator.Set(float64(i))
	for _, fn := range m.onIndicator {
		fn(i)
	}
}

func (m *Manager) setStatus(log zerolog.Logger, s string) {
	m.mu.Lock()
	m.status = s
	m.mu.Unlock()

	log.Info().Str("status", s).Msg("server status")
	for _, fn := range m.onStatus {
		fn(s)
	}
}

// Send encodes msg and writes it if the socket is open. Paint and Clear
// carry the session's active realm regardless of their own Realm field.
// A send while the socket is not open is dropped and reports nil; only
// encoding failures are returned.
func (m *Manager) Send(ctx context.Context, msg protocol.Message) error {
	if msg == nil {
		return protocol.ErrNilMessage
	}
	active, _ := m.session.ActiveRealm()
	data, err := m.codec.EncodeOutbound(msg, active)
	if err != nil {
		return fmt.Errorf("send %s: %w", msg.Type(), err)
	}

	m.mu.RLock()
	conn := m.conn
	m.mu.RUnlock()

	if conn == nil {
		m.metrics.SendsDropped.Inc()
		m.log.Debug().Stringer("type", msg.Type()).Msg("socket not open, dropping send")
		return nil
	}
	if err := conn.Write(ctx, data); err != nil {
		m.metrics.SendsDropped.Inc()
		m.log.Debug().Err(err).Stringer("type", msg.Type()).Msg("send failed, dropping")
		return nil
	}
	m.metrics.Sent.WithLabelValues(msg.Type().String()).Inc()
	return nil
}

// Paint stamps a brush of the given size at (x, y) on layer target.
func (m *Manager) Paint(ctx context.Context, x, y uint16, c realm.Color, brushSize uint16, target uint8) error {
	return m.Send(ctx, &protocol.Paint{
		X: x, Y: y,
		R: c.R, G: c.G, B: c.B, A: c.A,
		BrushSize: brushSize,
		Target:    target,
	})
}

// Clear fills layer target with c.
func (m *Manager) Clear(ctx context.Context, c realm.Color, target uint8) error {
	return m.Send(ctx, &protocol.Clear{
		R: c.R, G: c.G, B: c.B, A: c.A,
		Target: target,
	})
}

// MoveCursor announces the local cursor position in the active realm.
func (m *Manager) MoveCursor(ctx context.Context, x, y uint16) error {
	active, _ := m.session.ActiveRealm()
	return m.Send(ctx, &protocol.Position{Realm: active, X: x, Y: y, Name: m.name})
}

// ChangeRealm asks the server to move this client to realmID. The session
// is only rebound once the server answers with an Init.
func (m *Manager) ChangeRealm(ctx context.Context, realmID uint32) error {
	return m.Send(ctx, &protocol.ChangeRealm{Realm: realmID})
}
