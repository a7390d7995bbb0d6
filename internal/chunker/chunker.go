// Package chunker splits extracted document text into overlapping windows
// sized for embedding.
package chunker

import (
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

const (
	DefaultSize    = 1000
	DefaultOverlap = 200
)

// Break preference, tried in order within the second half of a window.
var (
	paragraphBreaks = []string{"\n\n"}
	sentenceBreaks  = []string{". ", "! ", "? ", "\n"}
	wordBreaks      = []string{" "}
)

var _ driven.Chunker = (*Chunker)(nil)

// Chunker holds a window size and overlap, both counted in runes.
type Chunker struct {
	size    int
	overlap int
}

// New creates a chunker. Invalid parameters are normalised.
func New(size, overlap int) *Chunker {
	size, overlap = normalize(size, overlap)
	return &Chunker{size: size, overlap: overlap}
}

// Size returns the window size in runes.
func (c *Chunker) Size() int { return c.size }

// Overlap returns the overlap in runes.
func (c *Chunker) Overlap() int { return c.overlap }

// Chunk splits text with the chunker's parameters.
func (c *Chunker) Chunk(text string) []domain.TextSpan {
	return Chunk(text, c.size, c.overlap)
}

// Chunk splits text into windows of at most size runes, each starting
// overlap runes before the previous one ended. Spans are trimmed and
// empty spans dropped; Start and End are byte offsets into text.
func Chunk(text string, size, overlap int) []domain.TextSpan {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	size, overlap = normalize(size, overlap)

	// offsets[i] is the byte offset of rune i; offsets[n] == len(text)
	offsets := make([]int, 0, utf8.RuneCountInString(text)+1)
	for i := range text {
		offsets = append(offsets, i)
	}
	n := len(offsets)
	offsets = append(offsets, len(text))

	var spans []domain.TextSpan
	start := 0
	for start < n {
		end := min(start+size, n)
		if end < n {
			if bp := findBreak(text, offsets, start, end); bp > start {
				end = bp
			}
		}

		if span, ok := trimmedSpan(text, offsets[start], offsets[end]); ok {
			span.Index = len(spans)
			spans = append(spans, span)
		}

		if end >= n {
			break
		}
		next := end - overlap
		if next <= start {
			next = end
		}
		start = next
	}
	return spans
}

// findBreak returns the rune index just past the best separator in the
// second half of [start, end), or -1.
func findBreak(text string, offsets []int, start, end int) int {
	mid := start + (end-start)/2
	window := text[offsets[mid]:offsets[end]]

	for _, seps := range [][]string{paragraphBreaks, sentenceBreaks, wordBreaks} {
		best := -1
		for _, sep := range seps {
			if idx := strings.LastIndex(window, sep); idx != -1 && idx+len(sep) > best {
				best = idx + len(sep)
			}
		}
		if best > 0 {
			return mid + utf8.RuneCountInString(window[:best])
		}
	}
	return -1
}

func trimmedSpan(text string, from, to int) (domain.TextSpan, bool) {
	raw := text[from:to]
	left := strings.TrimLeftFunc(raw, unicode.IsSpace)
	content := strings.TrimRightFunc(left, unicode.IsSpace)
	if content == "" {
		return domain.TextSpan{}, false
	}
	start := from + len(raw) - len(left)
	return domain.TextSpan{
		Content: content,
		Start:   start,
		End:     start + len(content),
	}, true
}

func normalize(size, overlap int) (int, int) {
	if size <= 0 {
		size = DefaultSize
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= size {
		overlap = size / 5
	}
	return size, overlap
}
