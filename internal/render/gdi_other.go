//go:build !windows

package render

import (
	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/spooler"
)

func NewGDIPipeline(printerName string, logger *zap.Logger) (Pipeline, error) {
	return nil, spooler.ErrUnsupported
}
