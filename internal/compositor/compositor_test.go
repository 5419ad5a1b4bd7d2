package compositor_test

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omochice/realm-paint/internal/compositor"
	"github.com/omochice/realm-paint/internal/realm"
	"github.com/omochice/realm-paint/pkg/protocol"
)

func view(w, h int, layers ...*realm.Layer) realm.View {
	return realm.View{State: realm.Bound, RealmID: 1, Width: w, Height: h, Layers: layers}
}

func TestCompositor_ImageBeforeRender(t *testing.T) {
	c := compositor.New()
	assert.Nil(t, c.Image())
	assert.Zero(t, c.Frames())

	var buf bytes.Buffer
	require.NoError(t, c.WritePNG(&buf))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 1, 1), img.Bounds())
}

func TestCompositor_LaterLayersPaintOver(t *testing.T) {
	bottom := realm.NewLayer(3, 1)
	bottom.Fill(realm.Color{R: 10, A: 255})
	top := realm.NewLayer(3, 1)
	top.Stamp(1, 0, 1, realm.Color{G: 20, A: 128})

	c := compositor.New()
	c.Render(view(3, 1, bottom, top), false)

	img := c.Image()
	require.NotNil(t, img)
	assert.Equal(t, color.NRGBA{R: 10, A: 255}, img.NRGBAAt(0, 0))
	// Half-transparent source replaces, it does not blend.
	assert.Equal(t, color.NRGBA{G: 20, A: 128}, img.NRGBAAt(1, 0))
	assert.Equal(t, color.NRGBA{R: 10, A: 255}, img.NRGBAAt(2, 0))
	assert.Equal(t, uint64(1), c.Frames())
}

func TestCompositor_TransparentLayerKeepsBelow(t *testing.T) {
	bottom := realm.NewLayer(2, 2)
	bottom.Fill(realm.Color{B: 99, A: 255})
	empty := realm.NewLayer(2, 2)

	c := compositor.New()
	c.Render(view(2, 2, bottom, empty), false)

	img := c.Image()
	for y := 0; y < 2; y++ {
		for x := 0; x < 2; x++ {
			assert.Equal(t, color.NRGBA{B: 99, A: 255}, img.NRGBAAt(x, y), "pixel (%d,%d)", x, y)
		}
	}
}

func TestCompositor_FullRedraw(t *testing.T) {
	layer := realm.NewLayer(2, 1)
	layer.Fill(realm.Color{R: 1, A: 255})

	c := compositor.New()
	c.Render(view(2, 1, layer), false)

	layer.Fill(realm.Color{})
	c.Render(view(2, 1, layer), false)

	assert.Equal(t, color.NRGBA{}, c.Image().NRGBAAt(0, 0), "stale pixel survived a redraw")
}

func TestCompositor_CursorOverlay(t *testing.T) {
	base := realm.NewLayer(40, 40)
	v := view(40, 40, base)
	v.Cursors = []realm.Cursor{{ID: 3, X: 10, Y: 10, Name: "Bob", Realm: 1}}

	c := compositor.New(compositor.WithCursorRadius(3))
	c.Render(v, true)

	img := c.Image()
	marker := compositor.MarkerColor(3)
	assert.Equal(t, marker, img.NRGBAAt(10, 10), "marker centre")
	assert.Equal(t, marker, img.NRGBAAt(13, 10), "marker edge")
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(14, 14), "outside marker and label")

	labelled := 0
	for y := 0; y < 40; y++ {
		for x := 15; x < 40; x++ {
			if img.NRGBAAt(x, y) == marker {
				labelled++
			}
		}
	}
	assert.Positive(t, labelled, "label glyphs were not drawn")
}

func TestCompositor_OverlayCachedUntilCursorsChange(t *testing.T) {
	base := realm.NewLayer(20, 20)
	v := view(20, 20, base)
	v.Cursors = []realm.Cursor{{ID: 0, X: 5, Y: 5}}

	c := compositor.New()
	c.Render(v, true)

	// Cursor list changed but the caller did not flag it: overlay is reused.
	moved := v
	moved.Cursors = []realm.Cursor{{ID: 0, X: 15, Y: 15}}
	c.Render(moved, false)
	assert.Equal(t, compositor.MarkerColor(0), c.Image().NRGBAAt(5, 5))

	c.Render(moved, true)
	img := c.Image()
	assert.Equal(t, color.NRGBA{}, img.NRGBAAt(5, 5))
	assert.Equal(t, compositor.MarkerColor(0), img.NRGBAAt(15, 15))
}

func TestCompositor_GeometryChangeRegeneratesOverlay(t *testing.T) {
	v := view(10, 10, realm.NewLayer(10, 10))
	v.Cursors = []realm.Cursor{{ID: 1, X: 2, Y: 2}}
	c := compositor.New()
	c.Render(v, true)

	bigger := view(30, 30, realm.NewLayer(30, 30))
	bigger.Cursors = []realm.Cursor{{ID: 1, X: 25, Y: 25}}
	c.Render(bigger, false)

	img := c.Image()
	assert.Equal(t, image.Rect(0, 0, 30, 30), img.Bounds())
	assert.Equal(t, compositor.MarkerColor(1), img.NRGBAAt(25, 25))
}

func TestCompositor_FrameHookAndPNG(t *testing.T) {
	var hooked *image.NRGBA
	c := compositor.New(compositor.WithFrameHook(func(img *image.NRGBA) {
		hooked = image.NewNRGBA(img.Rect)
		copy(hooked.Pix, img.Pix)
	}))

	layer := realm.NewLayer(4, 4)
	layer.Fill(realm.Color{R: 200, G: 100, B: 50, A: 255})
	c.Render(view(4, 4, layer), false)

	require.NotNil(t, hooked)
	assert.Equal(t, c.Image().Pix, hooked.Pix)

	var buf bytes.Buffer
	require.NoError(t, c.WritePNG(&buf))
	decoded, err := png.Decode(&buf)
	require.NoError(t, err)
	r, g, b, a := decoded.At(3, 3).RGBA()
	assert.Equal(t, []uint32{200, 100, 50, 255}, []uint32{r >> 8, g >> 8, b >> 8, a >> 8})
}

func TestCompositor_AsSessionRenderer(t *testing.T) {
	c := compositor.New()
	s := realm.NewSession(realm.WithRenderer(c))

	img := make([]byte, protocol.ImageSize(10, 10, 2))
	_, err := s.Apply(&protocol.Init{Width: 10, Height: 10, LayerCount: 2, ID: 7, ImageData: img})
	require.NoError(t, err)
	_, err = s.Apply(&protocol.Paint{Realm: 7, X: 2, Y: 2, R: 10, G: 20, B: 30, A: 255, BrushSize: 2, Target: 1})
	require.NoError(t, err)

	out := c.Image()
	assert.Equal(t, color.NRGBA{R: 10, G: 20, B: 30, A: 255}, out.NRGBAAt(3, 3))
	assert.Equal(t, color.NRGBA{}, out.NRGBAAt(4, 4))
	assert.Equal(t, uint64(2), c.Frames())
}
