// Package office extracts text from Office Open XML documents.
package office

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

// maxPartSize bounds a single decompressed archive member.
const maxPartSize = 64 << 20

// archive indexes the members of an OOXML package by name.
type archive struct {
	files map[string]*zip.File
}

func openArchive(content []byte) (*archive, error) {
	reader, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return nil, fmt.Errorf("open package: %w", domain.ErrCorruptFile)
	}
	a := &archive{files: make(map[string]*zip.File, len(reader.File))}
	for _, f := range reader.File {
		a.files[f.Name] = f
	}
	return a, nil
}

func (a *archive) has(name string) bool {
	_, ok := a.files[name]
	return ok
}

// read returns a member's bytes, or ErrCorruptFile if it is missing or unreadable.
func (a *archive) read(name string) ([]byte, error) {
	f, ok := a.files[name]
	if !ok {
		return nil, fmt.Errorf("missing %s: %w", name, domain.ErrCorruptFile)
	}
	rc, err := f.Open()
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", name, domain.ErrCorruptFile)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, maxPartSize+1))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", name, domain.ErrCorruptFile)
	}
	if len(data) > maxPartSize {
		return nil, fmt.Errorf("%s exceeds %d bytes: %w", name, maxPartSize, domain.ErrCorruptFile)
	}
	return data, nil
}

// decode unmarshals a member into v.
func (a *archive) decode(name string, v any) error {
	data, err := a.read(name)
	if err != nil {
		return err
	}
	if err := xml.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parse %s: %w", name, domain.ErrCorruptFile)
	}
	return nil
}

// relationships maps relationship IDs to package paths for a part's .rels file.
func (a *archive) relationships(relsPath, baseDir string) map[string]string {
	var rels struct {
		Items []struct {
			ID     string `xml:"Id,attr"`
			Target string `xml:"Target,attr"`
		} `xml:"Relationship"`
	}
	out := make(map[string]string)
	if err := a.decode(relsPath, &rels); err != nil {
		return out
	}
	for _, r := range rels.Items {
		target := r.Target
		if strings.HasPrefix(target, "/") {
			target = strings.TrimPrefix(target, "/")
		} else {
			target = baseDir + target
		}
		out[r.ID] = target
	}
	return out
}

// joinCells joins the non-empty cells of a row with " | ".
func joinCells(cells []string) string {
	kept := cells[:0:0]
	for _, c := range cells {
		if c = strings.TrimSpace(c); c != "" {
			kept = append(kept, c)
		}
	}
	return strings.Join(kept, " | ")
}
