package office

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
)


var _ driven.TextDecoder = (*XlsxDecoder)(nil)

// XlsxDecoder emits "[Sheet: name]" followed by one line per non-empty row.
type XlsxDecoder struct{}

// NewXlsx creates an XLSX decoder.
func NewXlsx() *XlsxDecoder {
	return &XlsxDecoder{}
}

// FileTypes returns the types this decoder handles.
func (d *XlsxDecoder) FileTypes() []domain.FileType {
	return []domain.FileType{domain.FileTypeXLSX}
}

type xlsxWorkbook struct {
	Sheets []struct {
		Name string `xml:"name,attr"`
		RID  string `xml:"http://schemas.openxmlformats.org/officeDocument/2006/relationships id,attr"`
	} `xml:"sheets>sheet"`
}

type xlsxSharedStrings struct {
	Items []xlsxRichText `xml:"si"`
}

type xlsxRichText struct {
	Text string `xml:"t"`
	Runs []struct {
		Text string `xml:"t"`
	} `xml:"r"`
}

func (r xlsxRichText) String() string {
	if len(r.Runs) == 0 {
		return r.Text
	}
	var sb strings.Builder
	sb.WriteString(r.Text)
	for _, run := range r.Runs {
		sb.WriteString(run.Text)
	}
	return sb.String()
}

type xlsxSheet struct {
	Rows []struct {
		Cells []struct {
			Type   string       `xml:"t,attr"`
			Value  string       `xml:"v"`
			Inline xlsxRichText `xml:"is"`
		} `xml:"c"`
	} `xml:"sheetData>row"`
}

// Decode extracts the text of every sheet in workbook order.
func (d *XlsxDecoder) Decode(_ context.Context, content []byte) (string, error) {
	a, err := openArchive(content)
	if err != nil {
		return "", err
	}
	var wb xlsxWorkbook
	if err := a.decode("xl/workbook.xml", &wb); err != nil {
		return "", err
	}

	var shared []string
	if a.has("xl/sharedStrings.xml") {
		var ss xlsxSharedStrings
		if err := a.decode("xl/sharedStrings.xml", &ss); err != nil {
			return "", err
		}
		shared = make([]string, len(ss.Items))
		for i, item := range ss.Items {
			shared[i] = item.String()
		}
	}

	rels := a.relationships("xl/_rels/workbook.xml.rels", "xl/")
	var sections []string
	for i, sheet := range wb.Sheets {
		path, ok := rels[sheet.RID]
		if !ok {
			path = fmt.Sprintf("xl/worksheets/sheet%d.xml", i+1)
		}
		var ws xlsxSheet
		if err := a.decode(path, &ws); err != nil {
			return "", err
		}

		lines := []string{fmt.Sprintf("[Sheet: %s]", sheet.Name)}
		for _, row := range ws.Rows {
			cells := make([]string, 0, len(row.Cells))
			for _, c := range row.Cells {
				cells = append(cells, cellValue(c.Type, c.Value, c.Inline, shared))
			}
			if line := joinCells(cells); line != "" {
				lines = append(lines, line)
			}
		}
		sections = append(sections, strings.Join(lines, "\n"))
	}
	return strings.Join(sections, "\n\n"), nil
}

func cellValue(typ, value string, inline xlsxRichText, shared []string) string {
	switch typ {
	case "s":
		idx, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || idx < 0 || idx >= len(shared) {
			return ""
		}
		return shared[idx]
	case "inlineStr":
		return inline.String()
	case "b":
		if value == "1" {
			return "TRUE"
		}
		return "FALSE"
	default:
		return value
	}
}
