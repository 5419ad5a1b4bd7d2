package realm

import (
	"sync"

	"github.com/rs/zerolog"

	"github.com/omochice/realm-paint/pkg/protocol"
)

// State is the binding state of a Session.
type State int

const (
	// Unbound means no Init has been received yet.
	Unbound State = iota
	// Bound means the session mirrors the realm of the last Init.
	Bound
)

// String returns the string representation of State
func (s State) String() string {
	switch s {
	case Unbound:
		return "unbound"
	case Bound:
		return "bound"
	default:
		return "unknown"
	}
}

// Effect records what an applied message changed.
type Effect uint8

const (
	EffectLayers Effect = 1 << iota
	EffectCursors

	EffectNone Effect = 0
)

// Has reports whether e includes all bits of other.
func (e Effect) Has(other Effect) bool {
	return e&other == other && other != 0
}

// View is a read-only picture of the session.
type View struct {
	State   State
	RealmID uint32
	Name    string
	Width   int
	Height  int
	Layers  []*Layer
	Cursors []Cursor
}

// Renderer is refreshed after every accepted mutation. The View passed to
// Render shares layer memory with the session and is only valid for the
// duration of the call.
type Renderer interface {
	Render(v View, cursorsChanged bool)
}

// Option configures a Session.
type Option func(*Session)

// WithRenderer sets the renderer refreshed after mutations.
func WithRenderer(r Renderer) Option {
	return func(s *Session) { s.renderer = r }
}

// WithLogger sets the session logger.
func WithLogger(l zerolog.Logger) Option {
	return func(s *Session) { s.log = l.With().Str("component", "session").Logger() }
}

// Session applies inbound messages to the active realm.
//
// Messages are applied one at a time. The mutex only exists so that
// senders on other goroutines can read the active realm.
type Session struct {
	mu       sync.Mutex
	state    State
	realm    *Realm
	cursors  *Registry
	renderer Renderer
	log      zerolog.Logger
}

// NewSession creates an Unbound session.
func NewSession(opts ...Option) *Session {
	s := &Session{
		cursors: NewRegistry(),
		log:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// State returns the current binding state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// ActiveRealm returns the id of the bound realm.
func (s *Session) ActiveRealm() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Bound {
		return 0, false
	}
	return s.realm.ID, true
}

// Cursor returns the registry entry for id.
func (s *Session) Cursor(id uint32) (Cursor, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cursors.Get(id)
}

// Apply mutates the session according to msg.
//
// Paint, Clear and Position frames for a realm other than the active one
// are filtered, not rejected: they return EffectNone and a nil error.
// An out-of-range target returns protocol.ErrOutOfRangeTarget and leaves
// the session unchanged.
func (s *Session) Apply(msg protocol.Message) (Effect, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		effect Effect
		err    error
	)
	switch m := msg.(type) {
	case *protocol.Init:
		effect, err = s.applyInit(m)
	case *protocol.Paint:
		effect, err = s.applyPaint(m)
	case *protocol.Clear:
		effect, err = s.applyClear(m)
	case *protocol.Position:
		effect = s.applyPosition(m)
	case *protocol.ChangeRealm:
		// Advisory to the server; the server answers with a new Init.
		s.log.Debug().Uint32("realm", m.Realm).Uint32("id", m.ID).Msg("change realm observed")
	case nil:
		return EffectNone, protocol.ErrNilMessage
	}
	if err != nil {
		return EffectNone, err
	}

	if effect != EffectNone && s.renderer != nil {
		s.renderer.Render(s.viewLocked(false), effect.Has(EffectCursors))
	}
	return effect, nil
}

// Reset drops the realm and all cursors and returns to Unbound.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = Unbound
	s.realm = nil
	s.cursors.Clear()
}

// View returns a deep copy of the session suitable for retaining.
func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.viewLocked(true)
}

func (s *Session) viewLocked(deep bool) View {
	v := View{State: s.state, Cursors: s.cursors.List()}
	if s.realm == nil {
		return v
	}
	v.RealmID = s.realm.ID
	v.Name = s.realm.Name
	v.Width = int(s.realm.Width)
	v.Height = int(s.realm.Height)
	v.Layers = s.realm.Layers
	if deep {
		v.Layers = make([]*Layer, len(s.realm.Layers))
		for i, l := range s.realm.Layers {
			v.Layers[i] = l.clone()
		}
	}
	return v
}

// accepts reports whether a frame addressed to realmID applies here.
func (s *Session) accepts(realmID uint32) bool {
	return s.state == Bound && s.realm.ID == realmID
}

func (s *Session) applyInit(m *protocol.Init) (Effect, error) {
	r, err := FromInit(m)
	if err != nil {
		return EffectNone, err
	}
	s.realm = r
	s.state = Bound
	s.cursors.Clear()
	for _, c := range m.Cursors {
		s.cursors.Set(Cursor{ID: c.ID, Name: c.Name, X: c.X, Y: c.Y, Realm: r.ID})
	}
	s.log.Info().
		Uint32("realm", r.ID).
		Str("name", r.Name).
		Uint16("width", r.Width).
		Uint16("height", r.Height).
		Int("layers", len(r.Layers)).
		Int("cursors", len(m.Cursors)).
		Msg("joined realm")
	return EffectLayers | EffectCursors, nil
}

func (s *Session) applyPaint(m *protocol.Paint) (Effect, error) {
	if !s.accepts(m.Realm) {
		return EffectNone, nil
	}
	layer, err := s.realm.Layer(m.Target)
	if err != nil {
		return EffectNone, err
	}
	layer.Stamp(int(m.X), int(m.Y), int(m.BrushSize), Color{R: m.R, G: m.G, B: m.B, A: m.A})
	return EffectLayers, nil
}

func (s *Session) applyClear(m *protocol.Clear) (Effect, error) {
	if !s.accepts(m.Realm) {
		return EffectNone, nil
	}
	layer, err := s.realm.Layer(m.Target)
	if err != nil {
		return EffectNone, err
	}
	layer.Fill(Color{R: m.R, G: m.G, B: m.B, A: m.A})
	return EffectLayers, nil
}

func (s *Session) applyPosition(m *protocol.Position) Effect {
	if !s.accepts(m.Realm) {
		if s.cursors.Remove(m.ID) {
			s.log.Debug().Uint32("id", m.ID).Uint32("realm", m.Realm).Msg("cursor left realm")
			return EffectCursors
		}
		return EffectNone
	}
	s.cursors.Set(Cursor{ID: m.ID, Name: m.Name, X: m.X, Y: m.Y, Realm: m.Realm})
	return EffectCursors
}
