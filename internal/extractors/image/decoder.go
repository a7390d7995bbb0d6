// Package image extracts text from raster images with OCR.
package image

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/gabriel-vasile/mimetype"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.TextDecoder = (*Decoder)(nil)

// Decoder writes the image to a temp file and runs OCR over it.
type Decoder struct {
	ocr driven.OCREngine
}

// New creates an image decoder. A nil engine makes every Decode fail with
// domain.ErrOCRUnavailable.
func New(engine driven.OCREngine) *Decoder {
	return &Decoder{ocr: engine}
}

// FileTypes returns the types this decoder handles.
func (d *Decoder) FileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeImage}
}

// Decode recognises the text in content.
func (d *Decoder) Decode(ctx context.Context, content []byte) (string, error) {
	if d.ocr == nil || !d.ocr.Available() {
		return "", domain.ErrOCRUnavailable
	}
	if len(content) == 0 {
		return "", fmt.Errorf("empty image: %w", domain.ErrCorruptFile)
	}

	f, err := os.CreateTemp("", "sercha-image-*"+mimetype.Detect(content).Extension())
	if err != nil {
		return "", fmt.Errorf("create temp image: %w", err)
	}
	defer os.Remove(f.Name())

	if _, err := f.Write(content); err != nil {
		f.Close()
		return "", fmt.Errorf("write temp image: %w", err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close temp image: %w", err)
	}

	text, err := d.ocr.Recognize(ctx, f.Name())
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("ocr: %v: %w", err, domain.ErrCorruptFile)
	}
	return strings.TrimSpace(text), nil
}
