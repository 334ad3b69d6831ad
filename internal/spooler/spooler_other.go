//go:build !windows

package spooler

// Unsupported is returned on hosts without a Windows spooler. Every call fails
// with ErrUnsupported.
type Unsupported struct{}

func New() Spooler {
	return Unsupported{}
}

func NewStatusReader(library string) StatusReader {
	return Unsupported{}
}

func (Unsupported) DevMode(string) ([]byte, error) {
	return nil, ErrUnsupported
}

func (Unsupported) MergeDevMode(string, []byte) ([]byte, error) {
	return nil, ErrUnsupported
}

func (Unsupported) PaperNames(string, string) ([]string, error) {
	return nil, ErrUnsupported
}

func (Unsupported) Papers(string, string) ([]uint16, error) {
	return nil, ErrUnsupported
}

func (Unsupported) PrinterInfo(string) (*PrinterInfo, error) {
	return nil, ErrUnsupported
}

func (Unsupported) Status(string) (int32, error) {
	return 0, ErrUnsupported
}
