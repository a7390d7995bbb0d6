package driven

import (
	"context"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// TextDecoder converts the raw bytes of one file type into plain text.
// Implementations fail with domain.ErrCorruptFile or domain.ErrOCRUnavailable.
type TextDecoder interface {
	// Decode extracts text from content.
	Decode(ctx context.Context, content []byte) (string, error)

	// FileTypes returns the file types this decoder handles.
	FileTypes() []domain.FileType
}

// Extractor dispatches raw file bytes to the decoder registered for their type.
type Extractor interface {
	// Extract returns the plain text of content.
	// Returns domain.ErrUnsupportedFormat when no decoder handles fileType.
	Extract(ctx context.Context, content []byte, fileType domain.FileType) (string, error)

	// Supports reports whether a decoder is registered for fileType.
	Supports(fileType domain.FileType) bool
}

// OCREngine recognises text in a rendered image file.
type OCREngine interface {
	// Recognize returns the text found in the image at path.
	Recognize(ctx context.Context, path string) (string, error)

	// Available reports whether the engine can run on this host.
	Available() bool
}

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

// Chunker splits extracted text into overlapping windows.
type Chunker interface {
	Chunk(text string) []domain.TextSpan
}
