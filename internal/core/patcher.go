package core

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/config"
	"github.com/orrn/dsrx/internal/devmode"
	"github.com/orrn/dsrx/internal/logging"
	"github.com/orrn/dsrx/internal/spooler"
)

// Patcher writes PrintSettings into a printer's DEVMODE, including the
// fields of the vendor extension block.
type Patcher struct {
	spool        spooler.Spooler
	layout       devmode.Layout
	withCut2Inch bool
	logger       *zap.Logger
}

func NewPatcher(spool spooler.Spooler, ext config.ExtensionConfig, model config.ModelConfig, logger *zap.Logger) *Patcher {
	offsets := make(map[string]int, len(ext.Offsets))
	for k, v := range ext.Offsets {
		offsets[k] = v
	}
	return &Patcher{
		spool: spool,
		layout: devmode.Layout{
			Signature: ext.Signature,
			ScanWords: ext.ScanWords,
			Offsets:   offsets,
		},
		withCut2Inch: model.SupportsCut2Inch,
		logger:       logging.OrNop(logger).Named("devmode"),
	}
}

// classifySpoolerError maps spooler failures onto error kinds.
func classifySpoolerError(op string, err error) error {
	switch {
	case errors.Is(err, spooler.ErrOpenPrinter), errors.Is(err, spooler.ErrUnsupported):
		return newError(ErrDeviceUnavailable, "", fmt.Errorf("%s: %w", op, err))
	default:
		return newError(ErrDriverProtocol, "", fmt.Errorf("%s: %w", op, err))
	}
}

func (p *Patcher) load(printerName string) (*devmode.DevMode, *devmode.Extension, error) {
	buf, err := p.spool.DevMode(printerName)
	if err != nil {
		return nil, nil, classifySpoolerError("read devmode", err)
	}

	dm, err := devmode.New(buf)
	if err != nil {
		return nil, nil, newError(ErrDriverProtocol, "", err)
	}

	ext, err := devmode.FindExtension(dm, p.layout)
	if err != nil {
		return nil, nil, newError(ErrDriverProtocol, "", fmt.Errorf("%s: %w", printerName, err))
	}
	return dm, ext, nil
}

// LocateExtensionBlock returns the word index of the extension block top
// in the printer's current DEVMODE.
func (p *Patcher) LocateExtensionBlock(printerName string) (int, error) {
	_, ext, err := p.load(printerName)
	if err != nil {
		return 0, err
	}
	return ext.Top(), nil
}

// DevModeInfo summarises a printer's current DEVMODE.
type DevModeInfo struct {
	DeviceName   string `json:"device_name"`
	SpecVersion  uint16 `json:"spec_version"`
	Size         uint16 `json:"size"`
	DriverExtra  uint16 `json:"driver_extra"`
	ExtensionTop int    `json:"extension_top"`
}

func (p *Patcher) Inspect(printerName string) (*DevModeInfo, error) {
	dm, ext, err := p.load(printerName)
	if err != nil {
		return nil, err
	}
	return &DevModeInfo{
		DeviceName:   dm.DeviceName(),
		SpecVersion:  dm.SpecVersion(),
		Size:         dm.Size(),
		DriverExtra:  dm.DriverExtra(),
		ExtensionTop: ext.Top(),
	}, nil
}

// ApplySettings re-reads the printer's DEVMODE, patches it with s and returns
// the buffer the job should be printed with.
func (p *Patcher) ApplySettings(printerName string, s PrintSettings) ([]byte, error) {
	dm, ext, err := p.load(printerName)
	if err != nil {
		return nil, err
	}

	if err := ext.Apply(s.extensionValues(p.withCut2Inch)); err != nil {
		return nil, newError(ErrDriverProtocol, "", fmt.Errorf("patch extension block: %w", err))
	}

	dm.SetPaperSize(s.PaperSize)
	dm.SetOrientation(s.Orientation)
	dm.SetPrintQuality(s.PrintQuality)
	dm.SetYResolution(s.YResolution)
	dm.SetICMMethod(uint32(s.ICMMethod))
	// pages are emitted one by one, a driver copy count would repeat each
	dm.SetCopies(1)
	dm.ClearPaperLength()
	dm.ClearPaperWidth()

	merged, err := p.spool.MergeDevMode(printerName, dm.Bytes())
	if err != nil {
		return nil, classifySpoolerError("write devmode", err)
	}

	p.logger.Debug("devmode patched",
		zap.String("printer", printerName),
		zap.Int("extension_top", ext.Top()),
		zap.Int16("paper_size", s.PaperSize),
		zap.Int32("cut_2inch", s.Cut2Inch))

	return merged, nil
}
