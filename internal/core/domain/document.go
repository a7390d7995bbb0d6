package domain

import (
	"time"
	"unicode/utf8"
)

// MaxErrorMessageLen bounds the error recorded on a failed document
const MaxErrorMessageLen = 500

// DocumentStatus is the ingestion lifecycle state of a document
type DocumentStatus string

const (
	DocumentStatusPending    DocumentStatus = "pending"
	DocumentStatusProcessing DocumentStatus = "processing"
	DocumentStatusCompleted  DocumentStatus = "completed"
	DocumentStatusFailed     DocumentStatus = "failed"
)

// IsValid returns true for a known status
func (s DocumentStatus) IsValid() bool {
	switch s {
	case DocumentStatusPending, DocumentStatusProcessing, DocumentStatusCompleted, DocumentStatusFailed:
		return true
	default:
		return false
	}
}

// IsTerminal returns true once a run has finished, successfully or not
func (s DocumentStatus) IsTerminal() bool {
	return s == DocumentStatusCompleted || s == DocumentStatusFailed
}

// Document is an uploaded file owned by one user
type Document struct {
	ID           string         `json:"id"`
	OwnerID      string         `json:"owner_id"`
	Filename     string         `json:"filename"`
	FileType     FileType       `json:"file_type"`
	MimeType     string         `json:"mime_type,omitempty"`
	SizeBytes    int64          `json:"size_bytes"`
	Status       DocumentStatus `json:"status"`
	ChunkCount   int            `json:"chunk_count"`
	ErrorMessage string         `json:"error_message,omitempty"`
	CreatedAt    time.Time      `json:"created_at"`
	UpdatedAt    time.Time      `json:"updated_at"`
	ProcessedAt  *time.Time     `json:"processed_at,omitempty"`
}

// NewDocument creates a pending document
func NewDocument(ownerID, filename string, fileType FileType, mimeType string, size int64) *Document {
	now := time.Now()
	return &Document{
		ID:        GenerateID(),
		OwnerID:   ownerID,
		Filename:  filename,
		FileType:  fileType,
		MimeType:  mimeType,
		SizeBytes: size,
		Status:    DocumentStatusPending,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// OwnedBy reports whether the document belongs to ownerID
func (d *Document) OwnedBy(ownerID string) bool {
	return d != nil && ownerID != "" && d.OwnerID == ownerID
}

// Chunk is a span of a document's extracted text and its embedding
type Chunk struct {
	ID         string    `json:"id"`
	DocumentID string    `json:"document_id"`
	OwnerID    string    `json:"owner_id"`
	Index      int       `json:"index"` // Sequence within the document
	Content    string    `json:"content"`
	Embedding  []float32 `json:"embedding,omitempty"`
	StartChar  int       `json:"start_char"` // Byte offset into the extracted text
	EndChar    int       `json:"end_char"`
	CreatedAt  time.Time `json:"created_at"`
}

// TextSpan is one chunker window over extracted text
type TextSpan struct {
	Index   int
	Content string
	Start   int
	End     int
}

// ListOptions pages and filters a document listing
type ListOptions struct {
	Status DocumentStatus
	Limit  int
	Offset int
}

// Normalize applies listing defaults
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = 20
	}
	if o.Limit > 100 {
		o.Limit = 100
	}
	if o.Offset < 0 {
		o.Offset = 0
	}
	return o
}

// DocumentList is a page of documents plus the unpaged total
type DocumentList struct {
	Documents []*Document `json:"documents"`
	Total     int         `json:"total"`
	Limit     int         `json:"limit"`
	Offset    int         `json:"offset"`
}

// TruncateError shortens msg to MaxErrorMessageLen bytes without splitting a rune
func TruncateError(msg string) string {
	if len(msg) <= MaxErrorMessageLen {
		return msg
	}
	cut := MaxErrorMessageLen
	for cut > 0 && !utf8.RuneStart(msg[cut]) {
		cut--
	}
	return msg[:cut]
}
