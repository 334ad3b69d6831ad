package spooler

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/orrn/dsrx/internal/devmode"
)

const (
	emulatedPort        = "EMU001"
	emulatedExtraWords  = 64
	emulatedIdleStatus  = 0x10001
	emulatedSignatureAt = 1
)

type emulatedPaper struct {
	name string
	code uint16
}

var emulatedPapers = []emulatedPaper{
	{"(6x4)", 127},
	{"(6x4) x 2", 128},
	{"(6x8)", 129},
	{"(5x7)", 130},
	{"(5x3.5)", 131},
	{"(5x3.5) x 2", 132},
	{"(6x9)", 133},
}

// Emulated stands in for the DS-RX1 driver on hosts without one. It serves
// a DEVMODE carrying the vendor extension block, a paper table and an
// always-ready bidirectional port, and reports the idle status.
type Emulated struct {
	printerName string
	signature   uint32

	mu     sync.Mutex
	merged []byte
}

var (
	_ Spooler      = (*Emulated)(nil)
	_ StatusReader = (*Emulated)(nil)
)

func NewEmulated(printerName string, signature uint32) *Emulated {
	return &Emulated{printerName: printerName, signature: signature}
}

func (e *Emulated) check(printerName string) error {
	if printerName != e.printerName {
		return fmt.Errorf("%w: %s", ErrOpenPrinter, printerName)
	}
	return nil
}

// DevMode returns the last merged DEVMODE, or a fresh one with the
// extension signature at private word 1.
func (e *Emulated) DevMode(printerName string) ([]byte, error) {
	if err := e.check(printerName); err != nil {
		return nil, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.merged != nil {
		return append([]byte(nil), e.merged...), nil
	}

	dm := devmode.Blank(printerName, 4*emulatedExtraWords)
	binary.LittleEndian.PutUint32(dm.Bytes()[devmode.PublicSize+4*emulatedSignatureAt:], e.signature)
	return dm.Bytes(), nil
}

func (e *Emulated) MergeDevMode(printerName string, dm []byte) ([]byte, error) {
	if err := e.check(printerName); err != nil {
		return nil, err
	}
	if len(dm) < devmode.PublicSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrDevModeQuery, len(dm))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.merged = append([]byte(nil), dm...)
	return append([]byte(nil), dm...), nil
}

func (e *Emulated) PaperNames(printerName, port string) ([]string, error) {
	if err := e.check(printerName); err != nil {
		return nil, err
	}
	names := make([]string, len(emulatedPapers))
	for i, p := range emulatedPapers {
		names[i] = p.name
	}
	return names, nil
}

func (e *Emulated) Papers(printerName, port string) ([]uint16, error) {
	if err := e.check(printerName); err != nil {
		return nil, err
	}
	codes := make([]uint16, len(emulatedPapers))
	for i, p := range emulatedPapers {
		codes[i] = p.code
	}
	return codes, nil
}

func (e *Emulated) PrinterInfo(printerName string) (*PrinterInfo, error) {
	if err := e.check(printerName); err != nil {
		return nil, err
	}
	return &PrinterInfo{
		PrinterName: printerName,
		PortName:    emulatedPort,
		Attributes:  PRINTER_ATTRIBUTE_ENABLE_BIDI,
	}, nil
}

func (e *Emulated) Status(port string) (int32, error) {
	if port != emulatedPort {
		return 0, fmt.Errorf("%w: unknown port %s", ErrStatusUnavailable, port)
	}
	return emulatedIdleStatus, nil
}
