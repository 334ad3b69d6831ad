package render

import (
	"image"
	"image/color"
	"math"

	"golang.org/x/image/draw"
)

// RasterCanvas draws onto an in-memory RGBA page.
type RasterCanvas struct {
	img   *image.RGBA
	scale float64
}

// NewRasterCanvas allocates a white page of width x height page units
// rasterised at dpi.
func NewRasterCanvas(width, height float64, dpi int) *RasterCanvas {
	scale := float64(dpi) / 100
	img := image.NewRGBA(image.Rect(0, 0, px(width*scale), px(height*scale)))
	draw.Draw(img, img.Bounds(), &image.Uniform{C: color.White}, image.Point{}, draw.Src)
	return &RasterCanvas{img: img, scale: scale}
}

func px(v float64) int {
	return int(math.Round(v))
}

// PixelRect converts a page-unit rectangle to raster pixels.
func (c *RasterCanvas) PixelRect(r Rect) image.Rectangle {
	return image.Rect(
		px(r.X*c.scale),
		px(r.Y*c.scale),
		px((r.X+r.W)*c.scale),
		px((r.Y+r.H)*c.scale),
	)
}

func (c *RasterCanvas) DrawImage(src image.Image, r Rect) {
	dst := c.PixelRect(r)
	if dst.Empty() {
		return
	}
	draw.CatmullRom.Scale(c.img, dst, src, src.Bounds(), draw.Over, nil)
}

func (c *RasterCanvas) Image() *image.RGBA {
	return c.img
}
