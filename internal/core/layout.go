package core

import (
	"image"
	"math"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/render"
)

// Layout computes where an image lands on a page. All constants come from
// the printer model configuration.
type Layout struct {
	m config.ModelConfig
}

func NewLayout(m config.ModelConfig) *Layout {
	return &Layout{m: m}
}

// IsHalfCutAspect reports whether a w x h image has the strip shape printed
// with the 2-inch cut.
func (l *Layout) IsHalfCutAspect(w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	return math.Abs(float64(w)/float64(h)-l.m.HalfCutAspect) < l.m.HalfCutAspectTol
}

// withinTolerance clamps size to nominal when it overshoots by more than the
// configured tolerance.
func (l *Layout) withinTolerance(size, nominal float64) float64 {
	if size > nominal*(1+l.m.Tolerance) {
		return nominal
	}
	return size
}

// HalfCut places two copies of the image side by side, one per half of the
// page.
func (l *Layout) HalfCut(page render.Rect, imgW, imgH int) []render.Rect {
	iw, ih := float64(imgW), float64(imgH)

	ratio := page.W / (2 * iw) * l.m.ScaleFactor
	w := l.withinTolerance(iw*ratio, page.W/2)
	h := l.withinTolerance(ih*ratio+l.m.HalfCutHeightPad, page.H)

	left := page.X + l.m.HalfCutMargin
	top := page.Y + (page.H-h)/2

	return []render.Rect{
		{X: left, Y: top, W: w, H: h},
		{X: left + w, Y: top, W: w, H: h},
	}
}

// FullPage places a single copy of the image on the page.
func (l *Layout) FullPage(page render.Rect, imgW, imgH int) render.Rect {
	if imgW < imgH {
		return l.portrait(page, imgW, imgH)
	}
	return l.landscape(page, imgW, imgH)
}

// portrait fits the image inside the page and centres it. The top anchor is
// pulled up by TopCorrection when a vertical gap remains.
func (l *Layout) portrait(page render.Rect, imgW, imgH int) render.Rect {
	iw, ih := float64(imgW), float64(imgH)

	scale := math.Min(page.W/iw, page.H/ih) * l.m.ScaleFactor
	w := l.withinTolerance(math.RoundToEven(iw*scale), page.W)
	h := l.withinTolerance(math.RoundToEven(ih*scale+l.m.FullPageHeightPad), page.H)

	left := math.Floor((page.W - w) / 2)
	top := math.Floor((page.H - h) / 2)
	if h < page.H {
		top = math.RoundToEven(top * l.m.TopCorrection)
	}

	return render.Rect{X: page.X + left, Y: page.Y + top, W: w, H: h}
}

// landscape fills the page height, falling back to filling the width when
// the image would not cover it, and centres the result. Overflow is
// clipped by the page.
func (l *Layout) landscape(page render.Rect, imgW, imgH int) render.Rect {
	iw, ih := float64(imgW), float64(imgH)

	ratio := page.H / ih * l.m.ScaleFactor
	w := iw * ratio
	h := ih*ratio + l.m.FullPageHeightPad

	if w < page.W {
		ratio = page.W / iw
		w = iw*ratio - l.m.LandscapeTrimW
		h = ih*ratio - l.m.LandscapeTrimH
	}

	return render.Rect{
		X: page.X + (page.W-w)/2,
		Y: page.Y + (page.H-h)/2,
		W: w,
		H: h,
	}
}

// Compute returns the draw rectangles for an image of the given size.
func (l *Layout) Compute(page render.Rect, imgW, imgH int, halfCut bool) []render.Rect {
	if halfCut {
		return l.HalfCut(page, imgW, imgH)
	}
	return []render.Rect{l.FullPage(page, imgW, imgH)}
}

// Draw lays img out on the page and draws it once per rectangle.
func (l *Layout) Draw(c render.Canvas, page render.Rect, img image.Image, halfCut bool) []render.Rect {
	b := img.Bounds()
	rects := l.Compute(page, b.Dx(), b.Dy(), halfCut)
	for _, r := range rects {
		c.DrawImage(img, r)
	}
	return rects
}
