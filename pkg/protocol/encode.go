package protocol

import (
	"fmt"

	"github.com/omochice/realm-paint/pkg/codec"
)

// Codec encodes and decodes messages with a fixed string encoding.
// The zero value uses Latin-1, the documented wire format.
type Codec struct {
	Text codec.TextEncoding
}

var defaultCodec = Codec{Text: codec.Latin1}

// Encode serializes m verbatim using the default codec.
func Encode(m Message) ([]byte, error) {
	return defaultCodec.Encode(m)
}

// EncodeOutbound serializes m for sending from a session whose active realm
// is activeRealm, using the default codec.
func EncodeOutbound(m Message, activeRealm uint32) ([]byte, error) {
	return defaultCodec.EncodeOutbound(m, activeRealm)
}

// Encode serializes m verbatim, including the Realm field of Paint and Clear.
func (c Codec) Encode(m Message) ([]byte, error) {
	b := codec.NewBuilderWithText(c.Text)
	switch msg := m.(type) {
	case *Init:
		if err := writeInit(b, msg); err != nil {
			return nil, err
		}
	case *Paint:
		writePaint(b, msg, msg.Realm)
	case *Clear:
		writeClear(b, msg, msg.Realm)
	case *Position:
		writePosition(b, msg)
	case *ChangeRealm:
		writeChangeRealm(b, msg)
	case nil:
		return nil, ErrNilMessage
	default:
		return nil, fmt.Errorf("failed to encode message: %w: %T", ErrUnknownMessageType, m)
	}
	return b.Bytes(), nil
}

// EncodeOutbound serializes m the way a client sends it: the realm field of
// Paint and Clear is taken from activeRealm, not from the message. All other
// variants are written verbatim.
func (c Codec) EncodeOutbound(m Message, activeRealm uint32) ([]byte, error) {
	switch msg := m.(type) {
	case *Paint:
		b := codec.NewBuilderWithText(c.Text)
		writePaint(b, msg, activeRealm)
		return b.Bytes(), nil
	case *Clear:
		b := codec.NewBuilderWithText(c.Text)
		writeClear(b, msg, activeRealm)
		return b.Bytes(), nil
	default:
		return c.Encode(m)
	}
}

func writeInit(b *codec.Builder, m *Init) error {
	if want := ImageSize(m.Width, m.Height, m.LayerCount); len(m.ImageData) != want {
		return fmt.Errorf("failed to encode message: %w: got %d bytes, want %d", ErrImageSize, len(m.ImageData), want)
	}
	b.AddUint8(int(TypeInit))
	b.AddUint16(int(m.Width))
	b.AddUint16(int(m.Height))
	b.AddUint8(int(m.LayerCount))
	b.AddString(m.Name)
	b.AddUint32(int64(m.ID))
	b.AddUint32(int64(len(m.Cursors)))
	for _, c := range m.Cursors {
		b.AddUint32(int64(c.ID))
		b.AddUint16(int(c.X))
		b.AddUint16(int(c.Y))
		b.AddString(c.Name)
	}
	b.AddBytes(m.ImageData)
	return nil
}

func writePaint(b *codec.Builder, m *Paint, realm uint32) {
	b.AddUint8(int(TypePaint))
	b.AddUint32(int64(realm))
	b.AddUint16(int(m.X))
	b.AddUint16(int(m.Y))
	b.AddUint8(int(m.R))
	b.AddUint8(int(m.G))
	b.AddUint8(int(m.B))
	b.AddUint8(int(m.A))
	b.AddUint16(int(m.BrushSize))
	b.AddUint8(int(m.Target))
}

func writeClear(b *codec.Builder, m *Clear, realm uint32) {
	b.AddUint8(int(TypeClear))
	b.AddUint32(int64(realm))
	b.AddUint8(int(m.R))
	b.AddUint8(int(m.G))
	b.AddUint8(int(m.B))
	b.AddUint8(int(m.A))
	b.AddUint8(int(m.Target))
}

func writePosition(b *codec.Builder, m *Position) {
	b.AddUint8(int(TypePosition))
	b.AddUint32(int64(m.Realm))
	b.AddUint32(int64(m.ID))
	b.AddUint16(int(m.X))
	b.AddUint16(int(m.Y))
	b.AddString(m.Name)
}

func writeChangeRealm(b *codec.Builder, m *ChangeRealm) {
	b.AddUint8(int(TypeChangeRealm))
	b.AddUint32(int64(m.Realm))
	b.AddUint32(int64(m.ID))
}
