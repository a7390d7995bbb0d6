// Package text decodes plain text uploads.
package text

import (
	"bytes"
	"context"
	"strings"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

var _ driven.TextDecoder = (*Decoder)(nil)

// Decoder reads UTF-8 and falls back to Latin-1 for invalid byte sequences.
type Decoder struct{}

// New creates a text decoder.
func New() *Decoder {
	return &Decoder{}
}

// FileTypes returns the types this decoder handles.
func (d *Decoder) FileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeText}
}

// Decode returns content as a string. Never fails: every byte sequence is valid Latin-1.
func (d *Decoder) Decode(_ context.Context, content []byte) (string, error) {
	content = bytes.TrimPrefix(content, utf8BOM)
	if utf8.Valid(content) {
		return string(content), nil
	}
	return decodeLatin1(content), nil
}

// decodeLatin1 maps each byte to the code point of the same value.
func decodeLatin1(b []byte) string {
	var sb strings.Builder
	sb.Grow(len(b) + len(b)/4)
	for _, c := range b {
		sb.WriteRune(rune(c))
	}
	return sb.String()
}
