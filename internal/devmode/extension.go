package devmode

import (
	"encoding/binary"
	"fmt"
	"sort"
)

// Layout describes how to find and address the vendor extension block.
type Layout struct {
	Signature uint32
	// ScanWords bounds the signature scan, in 32-bit words from the start of
	// the private area.
	ScanWords int
	// Offsets maps field names to word offsets from the block top.
	Offsets map[string]int
}

// Extension is a located vendor block inside a DevMode buffer.
type Extension struct {
	dm     *DevMode
	layout Layout
	top    int
}

// Locate scans the private area for the layout signature. The returned index
// is the block top: the word immediately before the signature, counted from
// the start of the private area.
func Locate(dm *DevMode, layout Layout) (int, error) {
	start, err := dm.privateStart()
	if err != nil {
		return 0, err
	}

	words := (len(dm.buf) - start) / 4
	if words > layout.ScanWords {
		words = layout.ScanWords
	}

	// word 0 cannot be the signature, the block top precedes it
	for n := 1; n < words; n++ {
		if binary.LittleEndian.Uint32(dm.buf[start+4*n:]) == layout.Signature {
			return n - 1, nil
		}
	}

	return 0, fmt.Errorf("%w: 0x%08X within %d words", ErrExtensionBlockNotFound, layout.Signature, words)
}

// FindExtension locates the vendor block and returns a handle for patching it.
func FindExtension(dm *DevMode, layout Layout) (*Extension, error) {
	top, err := Locate(dm, layout)
	if err != nil {
		return nil, err
	}
	return &Extension{dm: dm, layout: layout, top: top}, nil
}

func (e *Extension) Top() int {
	return e.top
}

func (e *Extension) byteOffset(field string) (int, error) {
	off, ok := e.layout.Offsets[field]
	if !ok {
		return 0, fmt.Errorf("%w: %s", ErrUnknownField, field)
	}

	start, err := e.dm.privateStart()
	if err != nil {
		return 0, err
	}

	pos := start + 4*(e.top+off)
	if pos+4 > len(e.dm.buf) {
		return 0, fmt.Errorf("%w: field %s at byte %d", ErrBufferTooSmall, field, pos)
	}
	return pos, nil
}

func (e *Extension) Get(field string) (int32, error) {
	pos, err := e.byteOffset(field)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(e.dm.buf[pos:])), nil
}

func (e *Extension) Set(field string, v int32) error {
	pos, err := e.byteOffset(field)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(e.dm.buf[pos:], uint32(v))
	return nil
}

// Apply writes every value, in field-name order. It stops at the first
// field that cannot be written.
func (e *Extension) Apply(values map[string]int32) error {
	names := make([]string, 0, len(values))
	for name := range values {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if err := e.Set(name, values[name]); err != nil {
			return err
		}
	}
	return nil
}
