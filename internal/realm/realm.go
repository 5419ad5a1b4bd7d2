// Package realm holds the client's view of the active realm: its layers,
// the peer cursor registry, and the session state machine that applies
// decoded protocol messages to them.
package realm

import (
	"fmt"

	"github.com/omochice/realm-paint/pkg/protocol"
)

// Color is an 8-bit-per-channel RGBA value.
type Color struct {
	R, G, B, A uint8
}

// Layer is one RGBA raster plane. Pix holds Width*Height*4 bytes, row-major.
type Layer struct {
	Width  int
	Height int
	Pix    []byte
}

// NewLayer allocates a transparent layer.
func NewLayer(width, height int) *Layer {
	return &Layer{Width: width, Height: height, Pix: make([]byte, width*height*4)}
}

// At returns the colour of pixel (x, y). Out-of-bounds pixels are zero.
func (l *Layer) At(x, y int) Color {
	if x < 0 || y < 0 || x >= l.Width || y >= l.Height {
		return Color{}
	}
	i := (x + y*l.Width) * 4
	return Color{R: l.Pix[i], G: l.Pix[i+1], B: l.Pix[i+2], A: l.Pix[i+3]}
}

// Stamp overwrites a size×size square whose top-left corner is (x, y),
// clipped at the layer edges.
func (l *Layer) Stamp(x, y, size int, c Color) {
	for dy := 0; dy < size; dy++ {
		py := y + dy
		if py >= l.Height {
			break
		}
		for dx := 0; dx < size; dx++ {
			px := x + dx
			if px >= l.Width {
				break
			}
			i := (px + py*l.Width) * 4
			l.Pix[i] = c.R
			l.Pix[i+1] = c.G
			l.Pix[i+2] = c.B
			l.Pix[i+3] = c.A
		}
	}
}

// Fill overwrites every pixel with c.
func (l *Layer) Fill(c Color) {
	for i := 0; i < len(l.Pix); i += 4 {
		l.Pix[i] = c.R
		l.Pix[i+1] = c.G
		l.Pix[i+2] = c.B
		l.Pix[i+3] = c.A
	}
}

func (l *Layer) clone() *Layer {
	pix := make([]byte, len(l.Pix))
	copy(pix, l.Pix)
	return &Layer{Width: l.Width, Height: l.Height, Pix: pix}
}

// Realm is a drawing room. Its geometry and layer count never change; a new
// Init replaces the whole Realm.
type Realm struct {
	ID     uint32
	Name   string
	Width  uint16
	Height uint16
	Layers []*Layer
}

// FromInit builds a Realm from the layer-major image data of an Init.
func FromInit(m *protocol.Init) (*Realm, error) {
	want := protocol.ImageSize(m.Width, m.Height, m.LayerCount)
	if len(m.ImageData) != want {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", protocol.ErrImageSize, len(m.ImageData), want)
	}
	w, h := int(m.Width), int(m.Height)
	plane := w * h * 4
	layers := make([]*Layer, m.LayerCount)
	for i := range layers {
		layer := NewLayer(w, h)
		copy(layer.Pix, m.ImageData[i*plane:(i+1)*plane])
		layers[i] = layer
	}
	return &Realm{
		ID:     m.ID,
		Name:   m.Name,
		Width:  m.Width,
		Height: m.Height,
		Layers: layers,
	}, nil
}

// Layer returns the layer addressed by target.
func (r *Realm) Layer(target uint8) (*Layer, error) {
	if err := protocol.ValidateTarget(target, len(r.Layers)); err != nil {
		return nil, err
	}
	return r.Layers[target], nil
}
