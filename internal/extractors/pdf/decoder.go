// Package pdf extracts PDF text with poppler-utils, falling back to OCR
// for pages without a usable text layer.
package pdf

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/extractors/ocr"
)

// DefaultMinPageChars is the fewest non-space characters a text layer needs
// before a page is sent to OCR.
const DefaultMinPageChars = 16

// ErrPDFToolNotFound is returned when pdftotext or pdfinfo is not installed.
var ErrPDFToolNotFound = fmt.Errorf("pdftotext/pdfinfo not found, install poppler-utils: %w", domain.ErrConfiguration)

// Config configures the PDF decoder.
type Config struct {
	PdfToTextPath string // default "pdftotext"
	PdfInfoPath   string // default "pdfinfo"
	PdfToPpmPath  string // default "pdftoppm"
	MinPageChars  int
	Runner        driven.CommandRunner
	OCR           driven.OCREngine // nil disables OCR
	Logger        *slog.Logger
}

var _ driven.TextDecoder = (*Decoder)(nil)

// Decoder extracts text page by page.
type Decoder struct {
	pdftotext    string
	pdfinfo      string
	pdftoppm     string
	minPageChars int
	runner       driven.CommandRunner
	ocr          driven.OCREngine
	logger       *slog.Logger
}

// New creates a PDF decoder.
func New(cfg Config) *Decoder {
	if cfg.PdfToTextPath == "" {
		cfg.PdfToTextPath = "pdftotext"
	}
	if cfg.PdfInfoPath == "" {
		cfg.PdfInfoPath = "pdfinfo"
	}
	if cfg.PdfToPpmPath == "" {
		cfg.PdfToPpmPath = "pdftoppm"
	}
	if cfg.MinPageChars <= 0 {
		cfg.MinPageChars = DefaultMinPageChars
	}
	if cfg.Runner == nil {
		cfg.Runner = ocr.NewExecRunner(0)
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Decoder{
		pdftotext:    cfg.PdfToTextPath,
		pdfinfo:      cfg.PdfInfoPath,
		pdftoppm:     cfg.PdfToPpmPath,
		minPageChars: cfg.MinPageChars,
		runner:       cfg.Runner,
		ocr:          cfg.OCR,
		logger:       cfg.Logger,
	}
}

// CheckAvailable returns ErrPDFToolNotFound if the text tools are missing.
func (d *Decoder) CheckAvailable() error {
	if !ocr.LookPath(d.pdftotext) || !ocr.LookPath(d.pdfinfo) {
		return ErrPDFToolNotFound
	}
	return nil
}

// FileTypes returns the types this decoder handles.
func (d *Decoder) FileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypePDF}
}

// Decode extracts the text of every page. A page whose OCR fails is skipped.
func (d *Decoder) Decode(ctx context.Context, content []byte) (string, error) {
	dir, err := os.MkdirTemp("", "sercha-pdf-*")
	if err != nil {
		return "", fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	input := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(input, content, 0o600); err != nil {
		return "", fmt.Errorf("write temp pdf: %w", err)
	}

	pages, err := d.pageCount(ctx, input)
	if err != nil {
		return "", err
	}

	ocrAvailable := d.ocr != nil && d.ocr.Available()
	needsOCR := false
	var parts []string

	for page := 1; page <= pages; page++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		layer, err := d.pageText(ctx, input, page)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			d.logger.Warn("pdf text layer failed", "page", page, "error", err)
		}
		if nonSpace(layer) >= d.minPageChars {
			parts = append(parts, layer)
			continue
		}

		needsOCR = true
		if !ocrAvailable {
			if layer != "" {
				parts = append(parts, layer)
			}
			continue
		}

		text, err := d.ocrPage(ctx, dir, input, page)
		if err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			d.logger.Warn("pdf page ocr failed, skipping page", "page", page, "error", err)
			continue
		}
		if text != "" {
			parts = append(parts, fmt.Sprintf("[Page %d]\n%s", page, text))
		}
	}

	if len(parts) == 0 && needsOCR && !ocrAvailable {
		return "", domain.ErrOCRUnavailable
	}
	return strings.Join(parts, "\n\n"), nil
}

// pageCount reads "Pages:" from pdfinfo. Failure means the file is not a readable PDF,
// unless pdfinfo itself is missing.
func (d *Decoder) pageCount(ctx context.Context, path string) (int, error) {
	out, err := d.runner.Run(ctx, d.pdfinfo, path)
	if err != nil {
		if ctx.Err() != nil {
			return 0, ctx.Err()
		}
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return 0, fmt.Errorf("%s: %w", d.pdfinfo, ErrPDFToolNotFound)
		}
		return 0, fmt.Errorf("pdfinfo: %v: %w", err, domain.ErrCorruptFile)
	}
	for _, line := range strings.Split(string(out), "\n") {
		key, value, ok := strings.Cut(line, ":")
		if !ok || strings.TrimSpace(key) != "Pages" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return 0, fmt.Errorf("pdfinfo page count %q: %w", value, domain.ErrCorruptFile)
		}
		return n, nil
	}
	return 0, fmt.Errorf("pdfinfo reported no page count: %w", domain.ErrCorruptFile)
}

func (d *Decoder) pageText(ctx context.Context, path string, page int) (string, error) {
	p := strconv.Itoa(page)
	out, err := d.runner.Run(ctx, d.pdftotext, "-f", p, "-l", p, "-layout", path, "-")
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

// ocrPage renders one page at 300 DPI and recognises it.
func (d *Decoder) ocrPage(ctx context.Context, dir, path string, page int) (string, error) {
	p := strconv.Itoa(page)
	prefix := filepath.Join(dir, "page-"+p)
	if _, err := d.runner.Run(ctx, d.pdftoppm, "-f", p, "-l", p, "-r", "300", "-png", "-singlefile", path, prefix); err != nil {
		return "", fmt.Errorf("render page: %w", err)
	}
	defer os.Remove(prefix + ".png")
	return d.ocr.Recognize(ctx, prefix+".png")
}

func nonSpace(s string) int {
	n := 0
	for _, r := range s {
		if !unicode.IsSpace(r) {
			n++
		}
	}
	return n
}
