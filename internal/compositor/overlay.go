package compositor

import (
	"image"
	"image/color"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/omochice/realm-paint/internal/realm"
)

var markerPalette = []color.NRGBA{
	{R: 230, G: 25, B: 75, A: 255},
	{R: 60, G: 180, B: 75, A: 255},
	{R: 0, G: 130, B: 200, A: 255},
	{R: 245, G: 130, B: 48, A: 255},
	{R: 145, G: 30, B: 180, A: 255},
	{R: 70, G: 240, B: 240, A: 255},
	{R: 240, G: 50, B: 230, A: 255},
	{R: 128, G: 128, B: 0, A: 255},
}

// MarkerColor returns the colour used for the cursor of peer id.
func MarkerColor(id uint32) color.NRGBA {
	return markerPalette[id%uint32(len(markerPalette))]
}

func drawOverlay(dst *image.NRGBA, cursors []realm.Cursor, radius int) {
	clear(dst.Pix)
	for _, cur := range cursors {
		col := MarkerColor(cur.ID)
		x, y := int(cur.X), int(cur.Y)
		fillCircle(dst, x, y, radius, col)
		if cur.Name == "" {
			continue
		}
		d := font.Drawer{
			Dst:  dst,
			Src:  image.NewUniform(col),
			Face: basicfont.Face7x13,
			Dot:  fixed.P(x+radius+2, y+radius),
		}
		d.DrawString(cur.Name)
	}
}

func fillCircle(dst *image.NRGBA, cx, cy, r int, col color.NRGBA) {
	b := dst.Rect
	for y := max(cy-r, b.Min.Y); y <= min(cy+r, b.Max.Y-1); y++ {
		for x := max(cx-r, b.Min.X); x <= min(cx+r, b.Max.X-1); x++ {
			dx, dy := x-cx, y-cy
			if dx*dx+dy*dy <= r*r {
				dst.SetNRGBA(x, y, col)
			}
		}
	}
}
