// Package extractors routes uploaded files to the decoder for their type.
package extractors

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"
	"sync"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/extractors/image"
	"github.com/custodia-labs/sercha-ask/internal/extractors/ocr"
	"github.com/custodia-labs/sercha-ask/internal/extractors/office"
	"github.com/custodia-labs/sercha-ask/internal/extractors/pdf"
	"github.com/custodia-labs/sercha-ask/internal/extractors/text"
)

// Verify interface compliance
var _ driven.Extractor = (*Registry)(nil)

// Registry implements Extractor by dispatching on file type.
// Registering a second decoder for a type replaces the first.
type Registry struct {
	mu       sync.RWMutex
	decoders map[domain.FileType]driven.TextDecoder
	logger   *slog.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		decoders: make(map[domain.FileType]driven.TextDecoder),
		logger:   logger,
	}
}

// Register adds a decoder under every type it reports.
func (r *Registry) Register(decoder driven.TextDecoder) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, ft := range decoder.FileTypes() {
		r.decoders[ft] = decoder
	}
}

// Supports reports whether a decoder is registered for fileType.
func (r *Registry) Supports(fileType domain.FileType) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.decoders[fileType]
	return ok
}

// Types returns the registered file types, sorted.
func (r *Registry) Types() []domain.FileType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	types := make([]domain.FileType, 0, len(r.decoders))
	for ft := range r.decoders {
		types = append(types, ft)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// Extract decodes content and normalises its whitespace.
// Decoder panics and unclassified decoder errors are reported as domain.ErrCorruptFile.
func (r *Registry) Extract(ctx context.Context, content []byte, fileType domain.FileType) (out string, err error) {
	r.mu.RLock()
	decoder, ok := r.decoders[fileType]
	r.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("%s: %w", fileType, domain.ErrUnsupportedFormat)
	}

	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("decoder panicked", "file_type", fileType, "panic", rec)
			out, err = "", fmt.Errorf("%s decoder: %v: %w", fileType, rec, domain.ErrCorruptFile)
		}
	}()

	raw, err := decoder.Decode(ctx, content)
	if err != nil {
		return "", classifyDecodeError(fileType, err)
	}
	return NormaliseWhitespace(raw), nil
}

// classifyDecodeError keeps known failure kinds and cancellation as they are
func classifyDecodeError(fileType domain.FileType, err error) error {
	switch {
	case domain.IsTerminal(err),
		errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	}
	return fmt.Errorf("%s decoder: %w: %w", fileType, domain.ErrCorruptFile, err)
}

var (
	trailingSpace = regexp.MustCompile(`[ \t]+\n`)
	blankRun      = regexp.MustCompile(`\n{3,}`)
)

// NormaliseWhitespace unifies line endings, drops trailing spaces and NUL
// bytes, and collapses runs of blank lines to one.
func NormaliseWhitespace(s string) string {
	s = strings.ReplaceAll(s, "\x00", "")
	s = strings.ReplaceAll(s, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = strings.ReplaceAll(s, "\f", "\n\n")
	s = trailingSpace.ReplaceAllString(s, "\n")
	s = blankRun.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}

// Config selects the external tools the default decoders use.
type Config struct {
	OCREnabled   bool
	OCRLanguage  string
	TesseractBin string
	PdfToTextBin string
	PdfInfoBin   string
	PdfToPpmBin  string
	Runner       driven.CommandRunner
	Logger       *slog.Logger
}

// DefaultRegistry creates a registry with every built-in decoder registered.
// It also returns the OCR engine so callers can report its availability.
func DefaultRegistry(cfg Config) (*Registry, driven.OCREngine) {
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Runner == nil {
		cfg.Runner = ocr.NewExecRunner(0)
	}

	engine := ocr.NewTesseract(ocr.TesseractConfig{
		Path:     cfg.TesseractBin,
		Language: cfg.OCRLanguage,
		Enabled:  cfg.OCREnabled,
		Runner:   cfg.Runner,
	})

	r := NewRegistry(cfg.Logger)
	r.Register(text.New())
	r.Register(office.NewDocx())
	r.Register(office.NewXlsx())
	r.Register(office.NewPptx())
	pdfDecoder := pdf.New(pdf.Config{
		PdfToTextPath: cfg.PdfToTextBin,
		PdfInfoPath:   cfg.PdfInfoBin,
		PdfToPpmPath:  cfg.PdfToPpmBin,
		Runner:        cfg.Runner,
		OCR:           engine,
		Logger:        cfg.Logger,
	})
	r.Register(pdfDecoder)
	r.Register(image.New(engine))

	if err := pdfDecoder.CheckAvailable(); err != nil {
		cfg.Logger.Warn("pdf uploads will fail", "error", err)
	}
	return r, engine
}
