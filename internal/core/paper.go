package core

import (
	"fmt"

	"github.com/orrn/dsrx/internal/spooler"
)

// maxMediaEntries caps the capability tables read from the driver.
const maxMediaEntries = 32

// multiCutTable maps paper names to the number of prints one page yields.
var multiCutTable = map[string]int{
	"(5x3.5)":        1,
	"(5x7)":          1,
	"(6x4)":          1,
	"(6x8)":          1,
	"(6x9)":          1,
	"PR (4x6)":       1,
	"PR (3.5x5)":     1,
	"(6x4) x 2":      2,
	"PR (4x6) x 2":   2,
	"(5x3.5) x 2":    2,
	"PR (3.5x5) x 2": 2,
}

type PaperSizeEntry struct {
	Name     string `json:"name"`
	Code     int16  `json:"code"`
	MultiCut int    `json:"multi_cut"`
}

// PaperResolver answers paper and port questions about a printer.
type PaperResolver struct {
	spool spooler.Spooler
}

func NewPaperResolver(spool spooler.Spooler) *PaperResolver {
	return &PaperResolver{spool: spool}
}

// ResolveMultiCut returns 1 for unknown names.
func ResolveMultiCut(name string) int {
	if n, ok := multiCutTable[name]; ok {
		return n
	}
	return 1
}

// ResolvePortName returns the printer's port when it is bidirectional and
// online, and "" otherwise.
func (r *PaperResolver) ResolvePortName(printerName string) (string, error) {
	info, err := r.spool.PrinterInfo(printerName)
	if err != nil {
		return "", newError(ErrDeviceUnavailable, "", fmt.Errorf("printer info %s: %w", printerName, err))
	}

	if info.Bidirectional() && !info.Offline() {
		return info.PortName, nil
	}
	return "", nil
}

func (r *PaperResolver) ResolvePaperNames(printerName string) ([]string, error) {
	port, err := r.ResolvePortName(printerName)
	if err != nil {
		return nil, err
	}
	return r.paperNames(printerName, port)
}

func (r *PaperResolver) paperNames(printerName, port string) ([]string, error) {
	names, err := r.spool.PaperNames(printerName, port)
	if err != nil {
		return nil, classifySpoolerError("paper names", err)
	}
	if len(names) > maxMediaEntries {
		names = names[:maxMediaEntries]
	}
	return names, nil
}

func (r *PaperResolver) ResolvePaperNumbers(printerName string) ([]int16, error) {
	port, err := r.ResolvePortName(printerName)
	if err != nil {
		return nil, err
	}
	return r.paperNumbers(printerName, port)
}

func (r *PaperResolver) paperNumbers(printerName, port string) ([]int16, error) {
	papers, err := r.spool.Papers(printerName, port)
	if err != nil {
		return nil, classifySpoolerError("paper numbers", err)
	}
	if len(papers) > maxMediaEntries {
		papers = papers[:maxMediaEntries]
	}

	codes := make([]int16, len(papers))
	for i, p := range papers {
		codes[i] = int16(p)
	}
	return codes, nil
}

// ResolvePaperSizes pairs the driver's paper names with their codes by
// position. The two tables must have the same length.
func (r *PaperResolver) ResolvePaperSizes(printerName string) ([]PaperSizeEntry, error) {
	port, err := r.ResolvePortName(printerName)
	if err != nil {
		return nil, err
	}

	names, err := r.paperNames(printerName, port)
	if err != nil {
		return nil, err
	}

	codes, err := r.paperNumbers(printerName, port)
	if err != nil {
		return nil, err
	}

	if len(names) != len(codes) {
		return nil, newError(ErrDriverProtocol, "",
			fmt.Errorf("driver returned %d paper names and %d paper codes", len(names), len(codes)))
	}

	entries := make([]PaperSizeEntry, len(names))
	for i, name := range names {
		entries[i] = PaperSizeEntry{
			Name:     name,
			Code:     codes[i],
			MultiCut: ResolveMultiCut(name),
		}
	}
	return entries, nil
}

// PaperCode returns the driver code of the named paper size.
func (r *PaperResolver) PaperCode(printerName, name string) (int16, error) {
	entries, err := r.ResolvePaperSizes(printerName)
	if err != nil {
		return 0, err
	}

	for _, e := range entries {
		if e.Name == name {
			return e.Code, nil
		}
	}
	return 0, invalidInput("Paper size %q is not supported by %s", name, printerName)
}
