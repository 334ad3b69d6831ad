package core

import (
	"image"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orrn/dsrx/internal/render"
)

var page6in = render.Rect{W: 413, H: 616}

func TestLayoutPortrait(t *testing.T) {
	l := NewLayout(testModel())

	r := l.FullPage(page6in, 400, 600)
	assert.Equal(t, render.Rect{X: 7, Y: 4, W: 398, H: 608}, r)
}

func TestLayoutPortraitIsCentred(t *testing.T) {
	m := testModel()
	m.TopCorrection = 1
	m.FullPageHeightPad = 0
	l := NewLayout(m)

	sizes := [][2]int{{400, 600}, {1200, 1800}, {1000, 2000}, {300, 301}, {599, 1001}, {17, 900}}
	for _, sz := range sizes {
		r := l.FullPage(page6in, sz[0], sz[1])

		right := page6in.W - r.X - r.W
		bottom := page6in.H - r.Y - r.H
		assert.LessOrEqual(t, math.Abs(r.X-right), 1.0, "horizontal centring for %v", sz)
		assert.LessOrEqual(t, math.Abs(r.Y-bottom), 1.0, "vertical centring for %v", sz)
		assert.LessOrEqual(t, r.W, page6in.W)
		assert.LessOrEqual(t, r.H, page6in.H)
	}
}

func TestLayoutPortraitDefaultAnchor(t *testing.T) {
	m := testModel()
	l := NewLayout(m)

	sizes := [][2]int{{400, 600}, {1200, 1800}, {1000, 1100}, {300, 301}, {599, 1001}, {17, 900}}
	for _, sz := range sizes {
		iw, ih := float64(sz[0]), float64(sz[1])
		scale := math.Min(page6in.W/iw, page6in.H/ih) * m.ScaleFactor
		w := math.RoundToEven(iw * scale)
		h := math.RoundToEven(ih*scale + m.FullPageHeightPad)
		top := math.RoundToEven(math.Floor((page6in.H-h)/2) * m.TopCorrection)

		r := l.FullPage(page6in, sz[0], sz[1])
		assert.Equal(t, render.Rect{X: math.Floor((page6in.W - w) / 2), Y: top, W: w, H: h}, r, "size %v", sz)

		// horizontally centred, vertically pulled up towards the top edge
		right := page6in.W - r.X - r.W
		bottom := page6in.H - r.Y - r.H
		assert.LessOrEqual(t, math.Abs(r.X-right), 1.0, "horizontal centring for %v", sz)
		assert.LessOrEqual(t, r.Y, bottom, "top gap for %v", sz)
	}

	assert.Equal(t, render.Rect{X: 6, Y: 98, W: 401, H: 412}, l.FullPage(page6in, 300, 301))
}

func TestLayoutPortraitClampsOvershoot(t *testing.T) {
	m := testModel()
	m.ScaleFactor = 1.1
	l := NewLayout(m)

	r := l.FullPage(page6in, 400, 600)
	assert.Equal(t, render.Rect{X: 0, Y: 0, W: 413, H: 616}, r)
}

func TestLayoutHalfCut(t *testing.T) {
	l := NewLayout(testModel())

	rects := l.HalfCut(page6in, 600, 1800)
	require.Len(t, rects, 2)

	first, second := rects[0], rects[1]
	assert.InDelta(t, 4.0, first.X, 1e-9)
	assert.InDelta(t, 200.305, first.W, 0.001)
	assert.InDelta(t, 604.915, first.H, 0.001)
	assert.InDelta(t, (page6in.H-first.H)/2, first.Y, 1e-9)

	assert.Equal(t, first.W, second.W)
	assert.Equal(t, first.H, second.H)
	assert.Equal(t, first.Y, second.Y)
	assert.InDelta(t, first.X+first.W, second.X, 1e-9)
}

func TestLayoutHalfCutTolerance(t *testing.T) {
	t.Run("small overshoot is kept", func(t *testing.T) {
		m := testModel()
		m.ScaleFactor = 1.01
		rects := NewLayout(m).HalfCut(page6in, 600, 1800)
		assert.InDelta(t, 208.565, rects[0].W, 0.001)
	})

	t.Run("large overshoot is clamped", func(t *testing.T) {
		m := testModel()
		m.ScaleFactor = 1.1
		rects := NewLayout(m).HalfCut(page6in, 600, 1800)
		assert.Equal(t, page6in.W/2, rects[0].W)
		assert.Equal(t, page6in.H, rects[0].H)
		assert.Equal(t, 0.0, rects[0].Y)
	})
}

func TestLayoutLandscapeFillsHeight(t *testing.T) {
	l := NewLayout(testModel())

	r := l.FullPage(page6in, 600, 400)
	assert.InDelta(t, 896.28, r.W, 0.001)
	assert.InDelta(t, 607.52, r.H, 0.001)
	assert.InDelta(t, (page6in.W-r.W)/2, r.X, 1e-9)
	assert.InDelta(t, (page6in.H-r.H)/2, r.Y, 1e-9)
}

func TestLayoutLandscapeFallsBackToWidth(t *testing.T) {
	l := NewLayout(testModel())
	wide := render.Rect{W: 616, H: 413}

	r := l.FullPage(wide, 600, 400)
	assert.InDelta(t, 602.0, r.W, 1e-9)
	assert.InDelta(t, 398.667, r.H, 0.001)
	assert.InDelta(t, 7.0, r.X, 1e-9)
	assert.InDelta(t, (wide.H-r.H)/2, r.Y, 1e-9)
}

func TestLayoutSquareImageIsLandscape(t *testing.T) {
	l := NewLayout(testModel())

	r := l.FullPage(page6in, 500, 500)
	assert.InDelta(t, 616*0.97, r.W, 1e-9)
	assert.InDelta(t, 616*0.97+10, r.H, 1e-9)
}

func TestLayoutRespectsPageOrigin(t *testing.T) {
	l := NewLayout(testModel())
	offset := render.Rect{X: 10, Y: 20, W: 413, H: 616}

	assert.Equal(t, render.Rect{X: 17, Y: 24, W: 398, H: 608}, l.FullPage(offset, 400, 600))
	assert.InDelta(t, 14.0, l.HalfCut(offset, 600, 1800)[0].X, 1e-9)
}

func TestLayoutIsHalfCutAspect(t *testing.T) {
	l := NewLayout(testModel())

	assert.True(t, l.IsHalfCutAspect(600, 1800))
	assert.True(t, l.IsHalfCutAspect(1200, 3600))
	assert.False(t, l.IsHalfCutAspect(400, 600))
	assert.False(t, l.IsHalfCutAspect(1800, 600))
	assert.False(t, l.IsHalfCutAspect(0, 600))
}

func TestLayoutDraw(t *testing.T) {
	l := NewLayout(testModel())
	img := image.NewRGBA(image.Rect(0, 0, 600, 1800))

	var calls []drawCall
	rects := l.Draw(recordingCanvas{page: 1, calls: &calls}, page6in, img, true)
	require.Len(t, calls, 2)
	assert.Equal(t, rects[0], calls[0].rect)
	assert.Equal(t, rects[1], calls[1].rect)

	calls = nil
	rects = l.Draw(recordingCanvas{page: 1, calls: &calls}, page6in, img, false)
	require.Len(t, rects, 1)
	require.Len(t, calls, 1)
	assert.Equal(t, image.Pt(600, 1800), calls[0].size)
}
