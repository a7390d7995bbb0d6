package http

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
)

const (
	maxFilesPerUpload = 20

	// multipart framing allowance on top of the per-file limit
	multipartOverhead = 1 << 20
)

// UploadFailure describes one rejected file of an upload
type UploadFailure struct {
	Filename string `json:"filename"`
	Error    string `json:"error"`
}

// UploadResponse reports the accepted and rejected files of an upload
// @Description Upload result
type UploadResponse struct {
	Message      string             `json:"message"`
	Documents    []*domain.Document `json:"documents"`
	Failed       []UploadFailure    `json:"failed"`
	SuccessCount int                `json:"success_count"`
	FailedCount  int                `json:"failed_count"`
}

// handleUploadDocuments godoc
// @Summary      Upload documents
// @Description  Store one or more files and queue them for ingestion. Files are accepted or rejected independently.
// @Tags         Documents
// @Accept       multipart/form-data
// @Produce      json
// @Security     BearerAuth
// @Param        files  formData  file  true  "Files to ingest"
// @Success      202    {object}  UploadResponse
// @Failure      400    {object}  ErrorResponse  "No files or unsupported format"
// @Failure      413    {object}  ErrorResponse  "File too large"
// @Router       /documents [post]
func (s *Server) handleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes*int64(maxFilesPerUpload)+multipartOverhead)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "upload too large")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}
	defer func() { _ = r.MultipartForm.RemoveAll() }()

	headers := r.MultipartForm.File["files"]
	if len(headers) == 0 {
		writeError(w, http.StatusBadRequest, "no files provided")
		return
	}
	if len(headers) > maxFilesPerUpload {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("at most %d files per upload", maxFilesPerUpload))
		return
	}

	owner := ownerID(r)
	resp := UploadResponse{Documents: []*domain.Document{}, Failed: []UploadFailure{}}
	var firstErr error

	for _, fh := range headers {
		doc, err := s.ingestFile(r, owner, fh)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			_, msg := statusFor(err)
			resp.Failed = append(resp.Failed, UploadFailure{Filename: fh.Filename, Error: msg})
			continue
		}
		resp.Documents = append(resp.Documents, doc)
	}

	resp.SuccessCount = len(resp.Documents)
	resp.FailedCount = len(resp.Failed)

	// Nothing accepted: answer with the status of the first rejection
	if resp.SuccessCount == 0 {
		s.writeServiceError(w, r, firstErr)
		return
	}

	resp.Message = fmt.Sprintf("Uploaded %d file(s) for processing", resp.SuccessCount)
	writeJSON(w, http.StatusAccepted, resp)
}

// ingestFile reads one multipart file within the size limit and ingests it
func (s *Server) ingestFile(r *http.Request, owner string, fh *multipart.FileHeader) (*domain.Document, error) {
	if fh.Size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileTooLarge, fh.Filename)
	}

	f, err := fh.Open()
	if err != nil {
		return nil, fmt.Errorf("open upload: %w", err)
	}
	defer func() { _ = f.Close() }()

	content, err := io.ReadAll(io.LimitReader(f, s.maxUploadBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read upload: %w", err)
	}
	if int64(len(content)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %s", domain.ErrFileTooLarge, fh.Filename)
	}

	return s.ingestionService.Ingest(r.Context(), owner, fh.Filename, content)
}

// handleListDocuments godoc
// @Summary      List documents
// @Description  Page through the caller's documents, newest first
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        status  query     string  false  "pending, processing, completed or failed"
// @Param        limit   query     int     false  "Page size (default 20, max 100)"
// @Param        offset  query     int     false  "Rows to skip"
// @Success      200     {object}  domain.DocumentList
// @Failure      400     {object}  ErrorResponse  "Invalid status"
// @Router       /documents [get]
func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := domain.ListOptions{
		Status: domain.DocumentStatus(q.Get("status")),
		Limit:  queryInt(q.Get("limit")),
		Offset: queryInt(q.Get("offset")),
	}

	list, err := s.ingestionService.List(r.Context(), ownerID(r), opts)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, list)
}

// handleGetDocument godoc
// @Summary      Get document
// @Description  Get one of the caller's documents, including its ingestion status
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      200  {object}  domain.Document
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [get]
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	doc, err := s.ingestionService.Get(r.Context(), ownerID(r), r.PathValue("id"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, doc)
}

// handleDeleteDocument godoc
// @Summary      Delete document
// @Description  Delete a document, its chunks and its stored file
// @Tags         Documents
// @Security     BearerAuth
// @Param        id   path  string  true  "Document ID"
// @Success      204
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Router       /documents/{id} [delete]
func (s *Server) handleDeleteDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestionService.Delete(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleReprocessDocument godoc
// @Summary      Reprocess document
// @Description  Queue a completed or failed document for a fresh ingestion run
// @Tags         Documents
// @Produce      json
// @Security     BearerAuth
// @Param        id   path      string  true  "Document ID"
// @Success      202  {object}  StatusResponse
// @Failure      404  {object}  ErrorResponse  "Document not found"
// @Failure      409  {object}  ErrorResponse  "Document is being processed"
// @Router       /documents/{id}/reprocess [post]
func (s *Server) handleReprocessDocument(w http.ResponseWriter, r *http.Request) {
	if err := s.ingestionService.Reprocess(r.Context(), ownerID(r), r.PathValue("id")); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	writeJSON(w, http.StatusAccepted, StatusResponse{Status: "queued"})
}

// queryInt parses a non-negative integer query value, 0 when absent or malformed
func queryInt(v string) int {
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}
