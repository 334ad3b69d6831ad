//go:build windows

package spooler

import (
	"fmt"
	"sync"
	"unsafe"

	"golang.org/x/sys/windows"
)

var (
	winspool = windows.NewLazySystemDLL("winspool.drv")

	openPrinterProc        = winspool.NewProc("OpenPrinterW")
	closePrinterProc       = winspool.NewProc("ClosePrinter")
	documentPropertiesProc = winspool.NewProc("DocumentPropertiesW")
	deviceCapabilitiesProc = winspool.NewProc("DeviceCapabilitiesW")
	getPrinterProc         = winspool.NewProc("GetPrinterW")
)

const (
	uint16Size = 2

	printerInfoLevel5 = 5
)

// printerInfo5 mirrors PRINTER_INFO_5W.
type printerInfo5 struct {
	pPrinterName             *uint16
	pPortName                *uint16
	attributes               uint32
	deviceNotSelectedTimeout uint32
	transmissionRetryTimeout uint32
}

type handle uintptr

// Winspool calls winspool.drv directly.
type Winspool struct{}

func New() Spooler {
	return Winspool{}
}

func openPrinter(printerName string) (handle, error) {
	pName, err := windows.UTF16PtrFromString(printerName)
	if err != nil {
		return 0, err
	}

	var h handle
	r1, _, err := openPrinterProc.Call(uintptr(unsafe.Pointer(pName)), uintptr(unsafe.Pointer(&h)), 0)
	if r1 == 0 {
		return 0, fmt.Errorf("%w: %s: %v", ErrOpenPrinter, printerName, err)
	}
	return h, nil
}

func (h handle) close() {
	closePrinterProc.Call(uintptr(h))
}

func (Winspool) DevMode(printerName string) ([]byte, error) {
	h, err := openPrinter(printerName)
	if err != nil {
		return nil, err
	}
	defer h.close()

	pName, err := windows.UTF16PtrFromString(printerName)
	if err != nil {
		return nil, err
	}

	r1, _, err := documentPropertiesProc.Call(0, uintptr(h), uintptr(unsafe.Pointer(pName)), 0, 0, 0)
	size := int32(r1)
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrDevModeSize, printerName, err)
	}

	buf := make([]byte, size)
	r1, _, err = documentPropertiesProc.Call(0, uintptr(h), uintptr(unsafe.Pointer(pName)),
		uintptr(unsafe.Pointer(&buf[0])), 0, uintptr(dmOutBuffer))
	if int32(r1) < 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrDevModeQuery, printerName, err)
	}

	return buf, nil
}

func (Winspool) MergeDevMode(printerName string, dm []byte) ([]byte, error) {
	if len(dm) == 0 {
		return nil, fmt.Errorf("%w: empty input", ErrDevModeQuery)
	}

	h, err := openPrinter(printerName)
	if err != nil {
		return nil, err
	}
	defer h.close()

	pName, err := windows.UTF16PtrFromString(printerName)
	if err != nil {
		return nil, err
	}

	r1, _, err := documentPropertiesProc.Call(0, uintptr(h), uintptr(unsafe.Pointer(pName)), 0, 0, 0)
	size := int32(r1)
	if size <= 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrDevModeSize, printerName, err)
	}
	if int(size) < len(dm) {
		size = int32(len(dm))
	}

	out := make([]byte, size)
	r1, _, err = documentPropertiesProc.Call(0, uintptr(h), uintptr(unsafe.Pointer(pName)),
		uintptr(unsafe.Pointer(&out[0])), uintptr(unsafe.Pointer(&dm[0])), uintptr(dmInBuffer|dmOutBuffer))
	if int32(r1) < 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrDevModeQuery, printerName, err)
	}

	return out, nil
}

const (
	dmOutBuffer = 2
	dmInBuffer  = 8
)

func deviceCapabilities(device, port string, capability uint16, out []byte) (int32, error) {
	pDevice, err := windows.UTF16PtrFromString(device)
	if err != nil {
		return 0, err
	}
	pPort, err := windows.UTF16PtrFromString(port)
	if err != nil {
		return 0, err
	}

	var pOut uintptr
	if len(out) > 0 {
		pOut = uintptr(unsafe.Pointer(&out[0]))
	}

	r1, _, _ := deviceCapabilitiesProc.Call(uintptr(unsafe.Pointer(pDevice)), uintptr(unsafe.Pointer(pPort)),
		uintptr(capability), pOut, 0)
	if int32(r1) == -1 {
		return 0, fmt.Errorf("%w: capability %d on %s", ErrCapabilities, capability, device)
	}
	return int32(r1), nil
}

func (Winspool) PaperNames(printerName, port string) ([]string, error) {
	n, err := deviceCapabilities(printerName, port, DC_PAPERNAMES, nil)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []string{}, nil
	}

	out := make([]byte, int(n)*PaperNameLength*uint16Size)
	if _, err := deviceCapabilities(printerName, port, DC_PAPERNAMES, out); err != nil {
		return nil, err
	}

	names := make([]string, 0, n)
	for i := 0; i < int(n); i++ {
		entry := unsafe.Slice((*uint16)(unsafe.Pointer(&out[i*PaperNameLength*uint16Size])), PaperNameLength)
		names = append(names, windows.UTF16ToString(entry))
	}
	return names, nil
}

func (Winspool) Papers(printerName, port string) ([]uint16, error) {
	n, err := deviceCapabilities(printerName, port, DC_PAPERS, nil)
	if err != nil {
		return nil, err
	}
	if n <= 0 {
		return []uint16{}, nil
	}

	out := make([]byte, int(n)*uint16Size)
	if _, err := deviceCapabilities(printerName, port, DC_PAPERS, out); err != nil {
		return nil, err
	}

	codes := make([]uint16, 0, n)
	for i := 0; i < int(n); i++ {
		codes = append(codes, *(*uint16)(unsafe.Pointer(&out[i*uint16Size])))
	}
	return codes, nil
}

func (Winspool) PrinterInfo(printerName string) (*PrinterInfo, error) {
	h, err := openPrinter(printerName)
	if err != nil {
		return nil, err
	}
	defer h.close()

	var needed uint32
	getPrinterProc.Call(uintptr(h), printerInfoLevel5, 0, 0, uintptr(unsafe.Pointer(&needed)))
	if needed == 0 {
		return nil, fmt.Errorf("%w: %s: no size reported", ErrPrinterInfo, printerName)
	}

	buf := make([]byte, needed)
	r1, _, err := getPrinterProc.Call(uintptr(h), printerInfoLevel5, uintptr(unsafe.Pointer(&buf[0])),
		uintptr(needed), uintptr(unsafe.Pointer(&needed)))
	if r1 == 0 {
		return nil, fmt.Errorf("%w: %s: %v", ErrPrinterInfo, printerName, err)
	}

	pi := (*printerInfo5)(unsafe.Pointer(&buf[0]))
	return &PrinterInfo{
		PrinterName: windows.UTF16PtrToString(pi.pPrinterName),
		PortName:    windows.UTF16PtrToString(pi.pPortName),
		Attributes:  pi.attributes,
	}, nil
}

// CyStat reads status codes through the vendor's CyStat library.
type CyStat struct {
	dll *windows.LazyDLL

	mu    sync.Mutex
	ports map[string]int32
}

func NewStatusReader(library string) StatusReader {
	return &CyStat{
		dll:   windows.NewLazyDLL(library),
		ports: make(map[string]int32),
	}
}

func (c *CyStat) portNumber(port string) (int32, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.ports[port]; ok {
		return n, nil
	}

	if err := c.dll.Load(); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrStatusUnavailable, err)
	}

	pPort, err := windows.UTF16PtrFromString(port)
	if err != nil {
		return 0, err
	}

	r1, _, _ := c.dll.NewProc("CvInitialize").Call(uintptr(unsafe.Pointer(pPort)))
	n := int32(r1)
	if n < 0 {
		return 0, fmt.Errorf("%w: initialize %s returned %d", ErrStatusUnavailable, port, n)
	}
	c.ports[port] = n
	return n, nil
}

func (c *CyStat) Status(port string) (int32, error) {
	n, err := c.portNumber(port)
	if err != nil {
		return 0, err
	}
	r1, _, _ := c.dll.NewProc("CvGetStatus").Call(uintptr(n))
	return int32(r1), nil
}
