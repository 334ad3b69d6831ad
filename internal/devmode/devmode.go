// Package devmode reads and patches raw DEVMODEW buffers, including the
// vendor-private extension block a printer driver appends after the public
// fields.
package devmode

import (
	"encoding/binary"
	"errors"
	"fmt"
	"unicode/utf16"
)

var (
	ErrBufferTooSmall         = errors.New("devmode buffer too small")
	ErrExtensionBlockNotFound = errors.New("extension block signature not found")
	ErrUnknownField           = errors.New("unknown extension field")
)

// PublicSize is sizeof(DEVMODEW).
const PublicSize = 220

// byte offsets of the DEVMODEW members touched here
const (
	offDeviceName   = 0
	offSpecVersion  = 64
	offSize         = 68
	offDriverExtra  = 70
	offFields       = 72
	offOrientation  = 76
	offPaperSize    = 78
	offPaperLength  = 80
	offPaperWidth   = 82
	offCopies       = 86
	offPrintQuality = 90
	offYResolution  = 96
	offICMMethod    = 188

	deviceNameChars = 32
)

// dmFields presence bits.
const (
	DM_ORIENTATION  uint32 = 0x00000001
	DM_PAPERSIZE    uint32 = 0x00000002
	DM_PAPERLENGTH  uint32 = 0x00000004
	DM_PAPERWIDTH   uint32 = 0x00000008
	DM_COPIES       uint32 = 0x00000100
	DM_PRINTQUALITY uint32 = 0x00000400
	DM_YRESOLUTION  uint32 = 0x00002000
	DM_ICMMETHOD    uint32 = 0x00800000
)

// DocumentProperties mode flags.
const (
	DM_OUT_BUFFER uint32 = 2
	DM_IN_BUFFER  uint32 = 8
)

// DM_SPECVERSION is the DEVMODEW revision this layout describes.
const DM_SPECVERSION uint16 = 0x0401

// DevMode is a view over a DEVMODEW buffer as returned by the driver.
type DevMode struct {
	buf []byte
}

// New wraps buf without copying it.
func New(buf []byte) (*DevMode, error) {
	if len(buf) < PublicSize {
		return nil, fmt.Errorf("%w: %d bytes", ErrBufferTooSmall, len(buf))
	}
	return &DevMode{buf: buf}, nil
}

// Blank returns a zeroed DEVMODEW for deviceName followed by driverExtra
// bytes of private area.
func Blank(deviceName string, driverExtra int) *DevMode {
	buf := make([]byte, PublicSize+driverExtra)

	name := utf16.Encode([]rune(deviceName))
	if len(name) > deviceNameChars-1 {
		name = name[:deviceNameChars-1]
	}
	for i, c := range name {
		binary.LittleEndian.PutUint16(buf[offDeviceName+2*i:], c)
	}
	binary.LittleEndian.PutUint16(buf[offSpecVersion:], DM_SPECVERSION)
	binary.LittleEndian.PutUint16(buf[offSize:], PublicSize)
	binary.LittleEndian.PutUint16(buf[offDriverExtra:], uint16(driverExtra))

	return &DevMode{buf: buf}
}

// Bytes returns the underlying buffer, including any edits.
func (dm *DevMode) Bytes() []byte {
	return dm.buf
}

func (dm *DevMode) DeviceName() string {
	chars := make([]uint16, 0, deviceNameChars)
	for i := 0; i < deviceNameChars; i++ {
		c := binary.LittleEndian.Uint16(dm.buf[offDeviceName+2*i:])
		if c == 0 {
			break
		}
		chars = append(chars, c)
	}
	return string(utf16.Decode(chars))
}

func (dm *DevMode) SpecVersion() uint16 {
	return binary.LittleEndian.Uint16(dm.buf[offSpecVersion:])
}

// Size is dmSize: the length of the public part, where the private area starts.
func (dm *DevMode) Size() uint16 {
	return binary.LittleEndian.Uint16(dm.buf[offSize:])
}

func (dm *DevMode) DriverExtra() uint16 {
	return binary.LittleEndian.Uint16(dm.buf[offDriverExtra:])
}

func (dm *DevMode) Fields() uint32 {
	return binary.LittleEndian.Uint32(dm.buf[offFields:])
}

func (dm *DevMode) setFields(f uint32) {
	binary.LittleEndian.PutUint32(dm.buf[offFields:], f)
}

func (dm *DevMode) has(bit uint32) bool {
	return dm.Fields()&bit != 0
}

func (dm *DevMode) getInt16(off int) int16 {
	return int16(binary.LittleEndian.Uint16(dm.buf[off:]))
}

func (dm *DevMode) setInt16(off int, v int16, bit uint32) {
	binary.LittleEndian.PutUint16(dm.buf[off:], uint16(v))
	dm.setFields(dm.Fields() | bit)
}

func (dm *DevMode) Orientation() (int16, bool) {
	return dm.getInt16(offOrientation), dm.has(DM_ORIENTATION)
}

func (dm *DevMode) SetOrientation(v int16) {
	dm.setInt16(offOrientation, v, DM_ORIENTATION)
}

func (dm *DevMode) PaperSize() (int16, bool) {
	return dm.getInt16(offPaperSize), dm.has(DM_PAPERSIZE)
}

func (dm *DevMode) SetPaperSize(v int16) {
	dm.setInt16(offPaperSize, v, DM_PAPERSIZE)
}

func (dm *DevMode) PaperLength() (int16, bool) {
	return dm.getInt16(offPaperLength), dm.has(DM_PAPERLENGTH)
}

func (dm *DevMode) ClearPaperLength() {
	dm.setFields(dm.Fields() &^ DM_PAPERLENGTH)
}

func (dm *DevMode) PaperWidth() (int16, bool) {
	return dm.getInt16(offPaperWidth), dm.has(DM_PAPERWIDTH)
}

func (dm *DevMode) ClearPaperWidth() {
	dm.setFields(dm.Fields() &^ DM_PAPERWIDTH)
}

func (dm *DevMode) Copies() (int16, bool) {
	return dm.getInt16(offCopies), dm.has(DM_COPIES)
}

func (dm *DevMode) SetCopies(v int16) {
	dm.setInt16(offCopies, v, DM_COPIES)
}

func (dm *DevMode) PrintQuality() (int16, bool) {
	return dm.getInt16(offPrintQuality), dm.has(DM_PRINTQUALITY)
}

func (dm *DevMode) SetPrintQuality(v int16) {
	dm.setInt16(offPrintQuality, v, DM_PRINTQUALITY)
}

func (dm *DevMode) YResolution() (int16, bool) {
	return dm.getInt16(offYResolution), dm.has(DM_YRESOLUTION)
}

func (dm *DevMode) SetYResolution(v int16) {
	dm.setInt16(offYResolution, v, DM_YRESOLUTION)
}

func (dm *DevMode) ICMMethod() (uint32, bool) {
	return binary.LittleEndian.Uint32(dm.buf[offICMMethod:]), dm.has(DM_ICMMETHOD)
}

func (dm *DevMode) SetICMMethod(v uint32) {
	binary.LittleEndian.PutUint32(dm.buf[offICMMethod:], v)
	dm.setFields(dm.Fields() | DM_ICMMETHOD)
}

// privateStart is the byte offset where the driver-private area begins.
func (dm *DevMode) privateStart() (int, error) {
	start := int(dm.Size())
	if start < PublicSize || start > len(dm.buf) {
		return 0, fmt.Errorf("%w: dmSize %d outside buffer of %d bytes", ErrBufferTooSmall, start, len(dm.buf))
	}
	return start, nil
}
