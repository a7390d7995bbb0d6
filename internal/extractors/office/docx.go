package office

import (
	"context"
	"strings"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)

var _ driven.TextDecoder = (*DocxDecoder)(nil)

// DocxDecoder reads word/document.xml: body paragraphs first, then table rows.
type DocxDecoder struct{}

// NewDocx creates a DOCX decoder.
func NewDocx() *DocxDecoder {
	return &DocxDecoder{}
}

// FileTypes returns the types this decoder handles.
func (d *DocxDecoder) FileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeDOCX}
}

type docxDocument struct {
	Body struct {
		Paragraphs []docxParagraph `xml:"p"`
		Tables     []docxTable     `xml:"tbl"`
	} `xml:"body"`
}

type docxParagraph struct {
	Runs       []docxRun `xml:"r"`
	Hyperlinks []struct {
		Runs []docxRun `xml:"r"`
	} `xml:"hyperlink"`
}

type docxRun struct {
	Text []string `xml:"t"`
}

type docxTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []docxParagraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

func (p docxParagraph) text() string {
	var sb strings.Builder
	for _, r := range p.Runs {
		for _, t := range r.Text {
			sb.WriteString(t)
		}
	}
	for _, h := range p.Hyperlinks {
		for _, r := range h.Runs {
			for _, t := range r.Text {
				sb.WriteString(t)
			}
		}
	}
	return sb.String()
}

// Decode extracts document text.
func (d *DocxDecoder) Decode(_ context.Context, content []byte) (string, error) {
	a, err := openArchive(content)
	if err != nil {
		return "", err
	}
	var doc docxDocument
	if err := a.decode("word/document.xml", &doc); err != nil {
		return "", err
	}

	var lines []string
	for _, p := range doc.Body.Paragraphs {
		if text := strings.TrimSpace(p.text()); text != "" {
			lines = append(lines, text)
		}
	}
	for _, tbl := range doc.Body.Tables {
		for _, row := range tbl.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, cell := range row.Cells {
				parts := make([]string, 0, len(cell.Paragraphs))
				for _, p := range cell.Paragraphs {
					parts = append(parts, p.text())
				}
				cells = append(cells, strings.Join(parts, " "))
			}
			if line := joinCells(cells); line != "" {
				lines = append(lines, line)
			}
		}
	}
	return strings.Join(lines, "\n"), nil
}
