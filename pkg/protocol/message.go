// Package protocol defines the realm painting wire messages.
//
// Every frame is one tag byte followed by the variant's fields in a fixed
// order. There is no outer length envelope; the transport keeps frame
// boundaries.
package protocol

import "fmt"

// Type is the leading discriminant byte of a frame.
type Type uint8

const (
	TypeInit Type = iota
	TypePaint
	TypeClear
	TypePosition
	TypeChangeRealm
)

// String returns the string representation of Type
func (t Type) String() string {
	switch t {
	case TypeInit:
		return "INIT"
	case TypePaint:
		return "PAINT"
	case TypeClear:
		return "CLEAR"
	case TypePosition:
		return "POSITION"
	case TypeChangeRealm:
		return "CHANGE_REALM"
	default:
		return fmt.Sprintf("UNKNOWN(%d)", uint8(t))
	}
}

// Message is one of *Init, *Paint, *Clear, *Position or *ChangeRealm.
type Message interface {
	Type() Type
	isMessage()
}

// CursorInfo is a peer cursor embedded in an Init frame.
type CursorInfo struct {
	ID   uint32
	X    uint16
	Y    uint16
	Name string
}

// Init replaces the client's whole realm: geometry, layers and cursors.
// ImageData is layer-major RGBA, Width*Height*LayerCount*4 bytes.
type Init struct {
	Width      uint16
	Height     uint16
	LayerCount uint8
	Name       string
	ID         uint32
	Cursors    []CursorInfo
	ImageData  []byte
}

// Paint stamps a BrushSize square with its top-left corner at (X, Y).
type Paint struct {
	Realm     uint32
	X         uint16
	Y         uint16
	R, G, B   uint8
	A         uint8
	BrushSize uint16
	Target    uint8
}

// Clear fills a whole layer with one colour.
type Clear struct {
	Realm   uint32
	R, G, B uint8
	A       uint8
	Target  uint8
}

// Position reports a peer cursor. A Position for a realm other than the
// receiver's active realm means the peer left it.
type Position struct {
	Realm uint32
	ID    uint32
	X     uint16
	Y     uint16
	Name  string
}

// ChangeRealm asks the server to move connection ID into Realm.
type ChangeRealm struct {
	Realm uint32
	ID    uint32
}

func (*Init) Type() Type        { return TypeInit }
func (*Paint) Type() Type       { return TypePaint }
func (*Clear) Type() Type       { return TypeClear }
func (*Position) Type() Type    { return TypePosition }
func (*ChangeRealm) Type() Type { return TypeChangeRealm }

func (*Init) isMessage()        {}
func (*Paint) isMessage()       {}
func (*Clear) isMessage()       {}
func (*Position) isMessage()    {}
func (*ChangeRealm) isMessage() {}

// ImageSize returns the number of image bytes an Init with this geometry carries.
func ImageSize(width, height uint16, layerCount uint8) int {
	return int(width) * int(height) * int(layerCount) * 4
}
