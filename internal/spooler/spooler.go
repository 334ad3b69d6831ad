// Package spooler binds the operating system print spooler: printer
// handles, DEVMODE queries, device capabilities and printer info, plus the
// vendor status library.
package spooler

import "errors"

var (
	ErrUnsupported       = errors.New("print spooler is not available on this platform")
	ErrOpenPrinter       = errors.New("failed to open printer")
	ErrDevModeSize       = errors.New("driver reported an empty devmode")
	ErrDevModeQuery      = errors.New("driver devmode query failed")
	ErrCapabilities      = errors.New("device capabilities query failed")
	ErrPrinterInfo       = errors.New("printer info query failed")
	ErrStatusUnavailable = errors.New("printer status library unavailable")
)

// PRINTER_INFO attribute bits.
const (
	PRINTER_ATTRIBUTE_WORK_OFFLINE uint32 = 0x00000400
	PRINTER_ATTRIBUTE_ENABLE_BIDI  uint32 = 0x00000800
)

// DeviceCapabilities indexes.
const (
	DC_PAPERS     uint16 = 2
	DC_PAPERNAMES uint16 = 16

	// PaperNameLength is the fixed width, in characters, of one DC_PAPERNAMES entry.
	PaperNameLength = 64
)

// PrinterInfo carries the PRINTER_INFO_5 members used here.
type PrinterInfo struct {
	PrinterName string
	PortName    string
	Attributes  uint32
}

func (pi *PrinterInfo) Bidirectional() bool {
	return pi.Attributes&PRINTER_ATTRIBUTE_ENABLE_BIDI != 0
}

func (pi *PrinterInfo) Offline() bool {
	return pi.Attributes&PRINTER_ATTRIBUTE_WORK_OFFLINE != 0
}

// Spooler is the subset of the winspool API the print service needs.
type Spooler interface {
	// DevMode returns the driver's current DEVMODE for the printer.
	DevMode(printerName string) ([]byte, error)
	// MergeDevMode hands dm to the driver and returns the driver's merged copy.
	MergeDevMode(printerName string, dm []byte) ([]byte, error)
	PaperNames(printerName, port string) ([]string, error)
	Papers(printerName, port string) ([]uint16, error)
	PrinterInfo(printerName string) (*PrinterInfo, error)
}

// StatusReader reads the raw vendor status code of a printer port.
type StatusReader interface {
	Status(port string) (int32, error)
}
