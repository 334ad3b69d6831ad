// Package render drives documents through a print pipeline one page at a
// time. Pages are addressed in 1/100 inch units.
package render

import (
	"context"
	"errors"
	"image"
)

var ErrPageOverrun = errors.New("document produced more pages than requested")

// Rect is a draw rectangle in page units.
type Rect struct {
	X, Y, W, H float64
}

// Canvas is the drawing surface of one page.
type Canvas interface {
	DrawImage(img image.Image, r Rect)
}

type Page struct {
	// Index is 1-based.
	Index  int
	Bounds Rect
	Canvas Canvas
}

// PrintPageFunc draws one page and reports whether another page follows.
type PrintPageFunc func(ctx context.Context, page *Page) (hasMore bool, err error)

type Document struct {
	Name   string
	Width  float64
	Height float64
	// Copies is the number of physical pages the document emits. Zero
	// leaves the count to PrintPage alone.
	Copies int
	// DevMode is the patched driver settings buffer, if any.
	DevMode   []byte
	PrintPage PrintPageFunc
	// PageDone, if set, is called once a page has been emitted by the
	// device or written out.
	PageDone func(index int)
}

func (d *Document) bounds() Rect {
	return Rect{W: d.Width, H: d.Height}
}

// Pipeline delivers a document to an output device. Print blocks until
// PrintPage reports no more pages or fails.
type Pipeline interface {
	Print(ctx context.Context, doc *Document) error
}

// run is the page loop shared by the pipelines. newPage prepares the page
// surface, flush emits it once drawn.
func run(ctx context.Context, doc *Document, newPage func(index int) (Canvas, error), flush func(index int) error) (int, error) {
	index := 0
	for {
		if err := ctx.Err(); err != nil {
			return index, err
		}

		index++
		if doc.Copies > 0 && index > doc.Copies {
			return index - 1, ErrPageOverrun
		}

		canvas, err := newPage(index)
		if err != nil {
			return index - 1, err
		}

		more, err := doc.PrintPage(ctx, &Page{Index: index, Bounds: doc.bounds(), Canvas: canvas})
		if err != nil {
			return index - 1, err
		}

		if err := flush(index); err != nil {
			return index - 1, err
		}
		if doc.PageDone != nil {
			doc.PageDone(index)
		}

		if !more {
			return index, nil
		}
	}
}
