// Package compositor flattens a realm's layers and the peer cursor overlay
// into one displayable image.
package compositor

import (
	"image"
	"image/png"
	"io"
	"sync"

	"github.com/omochice/realm-paint/internal/realm"
)

// DefaultCursorRadius is the radius of a cursor marker in pixels.
const DefaultCursorRadius = 5

// Option configures a Compositor.
type Option func(*Compositor)

// WithCursorRadius sets the marker radius. Values below 1 are ignored.
func WithCursorRadius(r int) Option {
	return func(c *Compositor) {
		if r >= 1 {
			c.radius = r
		}
	}
}

// WithFrameHook registers fn to be called after every redraw with the new
// composite. The image is only valid during the call.
func WithFrameHook(fn func(*image.NRGBA)) Option {
	return func(c *Compositor) { c.onFrame = fn }
}

// Compositor keeps the latest composite of a session. It implements
// realm.Renderer.
//
// Every Render redraws the whole buffer: layers in index order, then the
// cursor overlay. A source pixel with zero alpha leaves the destination
// alone; any other source pixel replaces it.
type Compositor struct {
	mu      sync.RWMutex
	radius  int
	onFrame func(*image.NRGBA)
	frame   *image.NRGBA
	overlay *image.NRGBA
	frames  uint64
}

var _ realm.Renderer = (*Compositor)(nil)

// New creates a Compositor.
func New(opts ...Option) *Compositor {
	c := &Compositor{radius: DefaultCursorRadius}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Render redraws the composite from v. The cursor overlay is regenerated
// when cursorsChanged is set or the realm geometry changed.
func (c *Compositor) Render(v realm.View, cursorsChanged bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	bounds := image.Rect(0, 0, v.Width, v.Height)
	if c.frame == nil || c.frame.Rect != bounds {
		c.frame = image.NewNRGBA(bounds)
		c.overlay = image.NewNRGBA(bounds)
		cursorsChanged = true
	} else {
		clear(c.frame.Pix)
	}
	if cursorsChanged {
		drawOverlay(c.overlay, v.Cursors, c.radius)
	}

	for _, l := range v.Layers {
		paintOver(c.frame.Pix, l.Pix)
	}
	paintOver(c.frame.Pix, c.overlay.Pix)
	c.frames++

	if c.onFrame != nil {
		c.onFrame(c.frame)
	}
}

// Image returns a copy of the latest composite, or nil before the first
// Render.
func (c *Compositor) Image() *image.NRGBA {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.frame == nil {
		return nil
	}
	out := image.NewNRGBA(c.frame.Rect)
	copy(out.Pix, c.frame.Pix)
	return out
}

// Frames returns the number of redraws so far.
func (c *Compositor) Frames() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.frames
}

// WritePNG encodes the latest composite as PNG. Before the first Render it
// writes an empty 1x1 image.
func (c *Compositor) WritePNG(w io.Writer) error {
	img := c.Image()
	if img == nil {
		img = image.NewNRGBA(image.Rect(0, 0, 1, 1))
	}
	return png.Encode(w, img)
}

// paintOver copies every non-transparent RGBA pixel of src onto dst.
func paintOver(dst, src []byte) {
	n := min(len(dst), len(src))
	for i := 0; i+3 < n; i += 4 {
		if src[i+3] == 0 {
			continue
		}
		copy(dst[i:i+4], src[i:i+4])
	}
}
