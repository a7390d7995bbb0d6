package office

import (
	"bytes"
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var slidePattern = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

var _ driven.TextDecoder = (*PptxDecoder)(nil)

// PptxDecoder emits "[Slide n]" followed by the slide's text paragraphs.
// Slides without text are skipped.
type PptxDecoder struct{}

// NewPptx creates a PPTX decoder.
func NewPptx() *PptxDecoder {
	return &PptxDecoder{}
}

// FileTypes returns the types this decoder handles.
func (d *PptxDecoder) FileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypePPTX}
}

// Decode extracts slide text in slide-number order.
func (d *PptxDecoder) Decode(_ context.Context, content []byte) (string, error) {
	a, err := openArchive(content)
	if err != nil {
		return "", err
	}

	type slide struct {
		num  int
		path string
	}
	var slides []slide
	for name := range a.files {
		if m := slidePattern.FindStringSubmatch(name); m != nil {
			n, _ := strconv.Atoi(m[1])
			slides = append(slides, slide{num: n, path: name})
		}
	}
	if len(slides) == 0 && !a.has("ppt/presentation.xml") {
		return "", fmt.Errorf("missing ppt/presentation.xml: %w", domain.ErrCorruptFile)
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	var sections []string
	for i, s := range slides {
		data, err := a.read(s.path)
		if err != nil {
			return "", err
		}
		text, err := paragraphText(data)
		if err != nil {
			return "", err
		}
		if text == "" {
			continue
		}
		sections = append(sections, fmt.Sprintf("[Slide %d]\n%s", i+1, text))
	}
	return strings.Join(sections, "\n\n"), nil
}

// paragraphText streams DrawingML and returns the text of each <a:p> on its own line.
func paragraphText(data []byte) (string, error) {
	dec := xml.NewDecoder(bytes.NewReader(data))
	var (
		lines  []string
		line   strings.Builder
		inText bool
	)
	for {
		tok, err := dec.Token()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("parse slide: %w", domain.ErrCorruptFile)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			inText = t.Name.Local == "t"
		case xml.EndElement:
			switch t.Name.Local {
			case "t":
				inText = false
			case "p":
				if s := strings.TrimSpace(line.String()); s != "" {
					lines = append(lines, s)
				}
				line.Reset()
			}
		case xml.CharData:
			if inText {
				line.Write(t)
			}
		}
	}
	if s := strings.TrimSpace(line.String()); s != "" {
		lines = append(lines, s)
	}
	return strings.Join(lines, "\n"), nil
}
