package domain

import (
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// FileType is the normalized decoder key for an uploaded file
type FileType string

const (
	FileTypeText    FileType = "text"
	FileTypePDF     FileType = "pdf"
	FileTypeDOCX    FileType = "docx"
	FileTypeXLSX    FileType = "xlsx"
	FileTypePPTX    FileType = "pptx"
	FileTypeImage   FileType = "image"
	FileTypeUnknown FileType = "unknown"
)

var extensionTypes = map[string]FileType{
	".txt":  FileTypeText,
	".md":   FileTypeText,
	".csv":  FileTypeText,
	".json": FileTypeText,
	".log":  FileTypeText,
	".pdf":  FileTypePDF,
	".docx": FileTypeDOCX,
	".xlsx": FileTypeXLSX,
	".pptx": FileTypePPTX,
	".png":  FileTypeImage,
	".jpg":  FileTypeImage,
	".jpeg": FileTypeImage,
	".bmp":  FileTypeImage,
	".gif":  FileTypeImage,
	".tif":  FileTypeImage,
	".tiff": FileTypeImage,
}

var mimeTypes = map[string]FileType{
	"application/pdf": FileTypePDF,
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document":   FileTypeDOCX,
	"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet":         FileTypeXLSX,
	"application/vnd.openxmlformats-officedocument.presentationml.presentation": FileTypePPTX,
	"image/png":  FileTypeImage,
	"image/jpeg": FileTypeImage,
	"image/bmp":  FileTypeImage,
	"image/gif":  FileTypeImage,
	"image/tiff": FileTypeImage,
	"text/plain": FileTypeText,
}

// IsSupported returns true if a decoder exists for the type
func (t FileType) IsSupported() bool {
	return t != "" && t != FileTypeUnknown
}

// FileTypeFromExtension maps a filename extension to a FileType
func FileTypeFromExtension(filename string) FileType {
	ext := strings.ToLower(filepath.Ext(filename))
	if ft, ok := extensionTypes[ext]; ok {
		return ft
	}
	return FileTypeUnknown
}

// DetectFileType resolves the type from the extension and falls back to
// sniffing the content. It returns the type and the detected MIME type.
func DetectFileType(filename string, content []byte) (FileType, string) {
	detected := mimetype.Detect(content)
	if ft := FileTypeFromExtension(filename); ft.IsSupported() {
		return ft, detected.String()
	}
	for m := detected; m != nil; m = m.Parent() {
		base := strings.TrimSpace(strings.SplitN(m.String(), ";", 2)[0])
		if ft, ok := mimeTypes[base]; ok {
			return ft, detected.String()
		}
	}
	return FileTypeUnknown, detected.String()
}
