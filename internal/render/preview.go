package render

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/orrn/dsrx/internal/logging"
)

// PreviewPipeline renders each page to a PNG file instead of a device.
type PreviewPipeline struct {
	dir    string
	dpi    int
	logger *zap.Logger
}

func NewPreviewPipeline(dir string, dpi int, logger *zap.Logger) *PreviewPipeline {
	return &PreviewPipeline{
		dir:    dir,
		dpi:    dpi,
		logger: logging.OrNop(logger).Named("preview"),
	}
}

// PagePath is where page index of document name is written.
func (p *PreviewPipeline) PagePath(name string, index int) string {
	return filepath.Join(p.dir, fmt.Sprintf("%s-%03d.png", name, index))
}

func (p *PreviewPipeline) Print(ctx context.Context, doc *Document) error {
	if err := os.MkdirAll(p.dir, 0755); err != nil {
		return fmt.Errorf("failed to create preview directory: %w", err)
	}

	var canvas *RasterCanvas
	pages, err := run(ctx, doc,
		func(int) (Canvas, error) {
			canvas = NewRasterCanvas(doc.Width, doc.Height, p.dpi)
			return canvas, nil
		},
		func(index int) error {
			path := p.PagePath(doc.Name, index)
			if err := imaging.Save(canvas.Image(), path); err != nil {
				return fmt.Errorf("failed to write page %d: %w", index, err)
			}
			p.logger.Debug("page written", zap.String("path", path))
			return nil
		},
	)
	if err != nil {
		return err
	}

	p.logger.Info("document rendered",
		zap.String("document", doc.Name),
		zap.Int("pages", pages),
		zap.String("dir", p.dir))
	return nil
}
