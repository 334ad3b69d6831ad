//go:build windows

package render

import (
	"context"
	"fmt"
	"image"
	"unsafe"

	"go.uber.org/zap"
	"golang.org/x/sys/windows"

	"github.com/orrn/dsrx/internal/logging"
)

var (
	gdi32 = windows.NewLazySystemDLL("gdi32.dll")

	createDCProc      = gdi32.NewProc("CreateDCW")
	deleteDCProc      = gdi32.NewProc("DeleteDC")
	getDeviceCapsProc = gdi32.NewProc("GetDeviceCaps")
	startDocProc      = gdi32.NewProc("StartDocW")
	endDocProc        = gdi32.NewProc("EndDoc")
	abortDocProc      = gdi32.NewProc("AbortDoc")
	startPageProc     = gdi32.NewProc("StartPage")
	endPageProc       = gdi32.NewProc("EndPage")
	stretchDIBitsProc = gdi32.NewProc("StretchDIBits")
)

const (
	logPixelsX = 88

	biRGB        = 0
	dibRGBColors = 0
	srcCopy      = 0x00CC0020
)

type docInfo struct {
	cbSize       int32
	lpszDocName  *uint16
	lpszOutput   *uint16
	lpszDatatype *uint16
	fwType       uint32
}

type bitmapInfoHeader struct {
	biSize          uint32
	biWidth         int32
	biHeight        int32
	biPlanes        uint16
	biBitCount      uint16
	biCompression   uint32
	biSizeImage     uint32
	biXPelsPerMeter int32
	biYPelsPerMeter int32
	biClrUsed       uint32
	biClrImportant  uint32
}

type hdc uintptr

// GDIPipeline prints through a GDI device context created from the
// document's DEVMODE. Each page is rasterised at the device resolution and
// blitted with StretchDIBits.
type GDIPipeline struct {
	printerName string
	logger      *zap.Logger
}

func NewGDIPipeline(printerName string, logger *zap.Logger) (Pipeline, error) {
	if err := gdi32.Load(); err != nil {
		return nil, fmt.Errorf("failed to load gdi32: %w", err)
	}
	return &GDIPipeline{
		printerName: printerName,
		logger:      logging.OrNop(logger).Named("gdi"),
	}, nil
}

func (p *GDIPipeline) createDC(devMode []byte) (hdc, error) {
	pDevice, err := windows.UTF16PtrFromString(p.printerName)
	if err != nil {
		return 0, err
	}

	var pDevMode uintptr
	if len(devMode) > 0 {
		pDevMode = uintptr(unsafe.Pointer(&devMode[0]))
	}

	r1, _, err := createDCProc.Call(0, uintptr(unsafe.Pointer(pDevice)), 0, pDevMode)
	if r1 == 0 {
		return 0, fmt.Errorf("CreateDC %s: %v", p.printerName, err)
	}
	return hdc(r1), nil
}

func (p *GDIPipeline) Print(ctx context.Context, doc *Document) error {
	dc, err := p.createDC(doc.DevMode)
	if err != nil {
		return err
	}
	defer deleteDCProc.Call(uintptr(dc))

	dpi, _, _ := getDeviceCapsProc.Call(uintptr(dc), logPixelsX)
	if int32(dpi) <= 0 {
		return fmt.Errorf("device reported no resolution")
	}

	name, err := windows.UTF16PtrFromString(doc.Name)
	if err != nil {
		return err
	}
	di := docInfo{lpszDocName: name}
	di.cbSize = int32(unsafe.Sizeof(di))

	r1, _, err := startDocProc.Call(uintptr(dc), uintptr(unsafe.Pointer(&di)))
	if int32(r1) <= 0 {
		return fmt.Errorf("StartDoc: %v", err)
	}

	var canvas *RasterCanvas
	pages, err := run(ctx, doc,
		func(int) (Canvas, error) {
			if r1, _, err := startPageProc.Call(uintptr(dc)); int32(r1) <= 0 {
				return nil, fmt.Errorf("StartPage: %v", err)
			}
			canvas = NewRasterCanvas(doc.Width, doc.Height, int(dpi))
			return canvas, nil
		},
		func(index int) error {
			if err := blit(dc, canvas.Image()); err != nil {
				return fmt.Errorf("page %d: %w", index, err)
			}
			if r1, _, err := endPageProc.Call(uintptr(dc)); int32(r1) <= 0 {
				return fmt.Errorf("EndPage: %v", err)
			}
			return nil
		},
	)
	if err != nil {
		abortDocProc.Call(uintptr(dc))
		return err
	}

	if r1, _, err := endDocProc.Call(uintptr(dc)); int32(r1) <= 0 {
		return fmt.Errorf("EndDoc: %v", err)
	}

	p.logger.Info("document spooled",
		zap.String("printer", p.printerName),
		zap.String("document", doc.Name),
		zap.Int("pages", pages))
	return nil
}

// blit copies img to the device as a top-down 32bpp BGRA DIB.
func blit(dc hdc, img *image.RGBA) error {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()

	bits := make([]byte, len(img.Pix))
	for i := 0; i+3 < len(img.Pix); i += 4 {
		bits[i] = img.Pix[i+2]
		bits[i+1] = img.Pix[i+1]
		bits[i+2] = img.Pix[i]
		bits[i+3] = 0
	}

	bmi := bitmapInfoHeader{
		biWidth:       int32(w),
		biHeight:      -int32(h),
		biPlanes:      1,
		biBitCount:    32,
		biCompression: biRGB,
	}
	bmi.biSize = uint32(unsafe.Sizeof(bmi))

	r1, _, err := stretchDIBitsProc.Call(uintptr(dc),
		0, 0, uintptr(w), uintptr(h),
		0, 0, uintptr(w), uintptr(h),
		uintptr(unsafe.Pointer(&bits[0])),
		uintptr(unsafe.Pointer(&bmi)),
		dibRGBColors, srcCopy)
	if int32(r1) <= 0 {
		return fmt.Errorf("StretchDIBits: %v", err)
	}
	return nil
}
