package ocr

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.OCREngine = (*Tesseract)(nil)

// TesseractConfig configures the tesseract engine.
type TesseractConfig struct {
	// Path is the tesseract binary (default "tesseract")
	Path string

	// Language is passed with -l when set, e.g. "eng"
	Language string

	// Enabled turns OCR off entirely when false
	Enabled bool

	Runner driven.CommandRunner
}

// Tesseract recognises text by invoking `tesseract <image> stdout`.
type Tesseract struct {
	path     string
	language string
	enabled  bool
	runner   driven.CommandRunner

	once      sync.Once
	available bool
	lookPath  func(string) bool
}

// NewTesseract creates a tesseract engine.
func NewTesseract(cfg TesseractConfig) *Tesseract {
	if cfg.Path == "" {
		cfg.Path = "tesseract"
	}
	if cfg.Runner == nil {
		cfg.Runner = NewExecRunner(0)
	}
	return &Tesseract{
		path:     cfg.Path,
		language: cfg.Language,
		enabled:  cfg.Enabled,
		runner:   cfg.Runner,
		lookPath: LookPath,
	}
}

// Available reports whether OCR is enabled and the binary resolves.
// The lookup is done once.
func (t *Tesseract) Available() bool {
	if !t.enabled {
		return false
	}
	t.once.Do(func() {
		t.available = t.lookPath(t.path)
	})
	return t.available
}

// Recognize returns the text tesseract finds in the image at path.
func (t *Tesseract) Recognize(ctx context.Context, path string) (string, error) {
	args := []string{path, "stdout"}
	if t.language != "" {
		args = append(args, "-l", t.language)
	}
	out, err := t.runner.Run(ctx, t.path, args...)
	if err != nil {
		return "", fmt.Errorf("ocr %s: %w", path, err)
	}
	return strings.TrimSpace(string(out)), nil
}
