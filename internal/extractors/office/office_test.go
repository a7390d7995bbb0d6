package office

import (
	"archive/zip"
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

func buildZip(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, body := range files {
		w, err := zw.Create(name)
		require.NoError(t, err)
		_, err = w.Write([]byte(body))
		require.NoError(t, err)
	}
	require.NoError(t, zw.Close())
	return buf.Bytes()
}

const docxXML = `<?xml version="1.0" encoding="UTF-8"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Quarterly </w:t></w:r><w:r><w:t>report</w:t></w:r></w:p>
    <w:p></w:p>
    <w:p><w:hyperlink><w:r><w:t>see appendix</w:t></w:r></w:hyperlink></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>Region</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>Revenue</w:t></w:r></w:p></w:tc>
      </w:tr>
      <w:tr>
        <w:tc><w:p><w:r><w:t>EMEA</w:t></w:r></w:p></w:tc>
        <w:tc><w:p></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>42</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

func TestDocxDecoder(t *testing.T) {
	content := buildZip(t, map[string]string{"word/document.xml": docxXML})

	text, err := NewDocx().Decode(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, "Quarterly report\nsee appendix\nRegion | Revenue\nEMEA | 42", text)
}

func TestDocxDecoder_Corrupt(t *testing.T) {
	tests := []struct {
		name    string
		content []byte
	}{
		{"not a zip", []byte("definitely not a zip")},
		{"missing document", buildZip(t, map[string]string{"other.xml": "<x/>"})},
		{"bad xml", buildZip(t, map[string]string{"word/document.xml": "<w:document><w:body>"})},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewDocx().Decode(context.Background(), tt.content)
			assert.ErrorIs(t, err, domain.ErrCorruptFile)
		})
	}
}

func TestXlsxDecoder(t *testing.T) {
	content := buildZip(t, map[string]string{
		"xl/workbook.xml": `<workbook xmlns="http://schemas.openxmlformats.org/spreadsheetml/2006/main"
  xmlns:r="http://schemas.openxmlformats.org/officeDocument/2006/relationships">
  <sheets>
    <sheet name="Budget" sheetId="1" r:id="rId1"/>
    <sheet name="Notes" sheetId="2" r:id="rId2"/>
  </sheets>
</workbook>`,
		"xl/_rels/workbook.xml.rels": `<Relationships xmlns="http://schemas.openxmlformats.org/package/2006/relationships">
  <Relationship Id="rId1" Target="worksheets/sheet1.xml"/>
  <Relationship Id="rId2" Target="/xl/worksheets/notes.xml"/>
</Relationships>`,
		"xl/sharedStrings.xml": `<sst><si><t>Item</t></si><si><t>Cost</t></si><si><r><t>Rent</t></r><r><t>al</t></r></si></sst>`,
		"xl/worksheets/sheet1.xml": `<worksheet><sheetData>
  <row><c t="s"><v>0</v></c><c t="s"><v>1</v></c></row>
  <row><c t="s"><v>2</v></c><c><v>1200</v></c></row>
  <row><c></c></row>
</sheetData></worksheet>`,
		"xl/worksheets/notes.xml": `<worksheet><sheetData>
  <row><c t="inlineStr"><is><t>approved</t></is></c><c t="b"><v>1</v></c></row>
</sheetData></worksheet>`,
	})

	text, err := NewXlsx().Decode(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, "[Sheet: Budget]\nItem | Cost\nRental | 1200\n\n[Sheet: Notes]\napproved | TRUE", text)
}

func TestXlsxDecoder_MissingWorkbook(t *testing.T) {
	content := buildZip(t, map[string]string{"xl/styles.xml": "<styleSheet/>"})
	_, err := NewXlsx().Decode(context.Background(), content)
	assert.ErrorIs(t, err, domain.ErrCorruptFile)
}

func slideXML(paragraphs ...string) string {
	body := ""
	for _, p := range paragraphs {
		body += `<a:p><a:r><a:t>` + p + `</a:t></a:r></a:p>`
	}
	return `<p:sld xmlns:p="http://schemas.openxmlformats.org/presentationml/2006/main"
  xmlns:a="http://schemas.openxmlformats.org/drawingml/2006/main"><p:cSld><p:spTree><p:sp><p:txBody>` +
		body + `</p:txBody></p:sp></p:spTree></p:cSld></p:sld>`
}

func TestPptxDecoder(t *testing.T) {
	content := buildZip(t, map[string]string{
		"ppt/presentation.xml":   "<p:presentation/>",
		"ppt/slides/slide1.xml":  slideXML("Welcome", "Agenda"),
		"ppt/slides/slide2.xml":  slideXML(),
		"ppt/slides/slide10.xml": slideXML("Closing"),
		"ppt/slides/slide3.xml":  slideXML("Numbers"),
	})

	text, err := NewPptx().Decode(context.Background(), content)
	require.NoError(t, err)
	assert.Equal(t, "[Slide 1]\nWelcome\nAgenda\n\n[Slide 3]\nNumbers\n\n[Slide 4]\nClosing", text)
}

func TestPptxDecoder_NotPresentation(t *testing.T) {
	content := buildZip(t, map[string]string{"word/document.xml": docxXML})
	_, err := NewPptx().Decode(context.Background(), content)
	assert.ErrorIs(t, err, domain.ErrCorruptFile)
}
