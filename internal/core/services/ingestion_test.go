package services

import (
	"context"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/custodia-labs/sercha-ask/internal/adapters/driven/memory"
	"github.com/custodia-labs/sercha-ask/internal/chunker"
	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven/mocks"
)

type ingestionHarness struct {
	docs      *mocks.MockDocumentStore
	blobs     *mocks.MockBlobStore
	extractor *mocks.MockExtractor
	embedder  *mocks.MockEmbeddingService
	index     *memory.VectorIndex
	queue     *mocks.MockTaskQueue
	lock      *mocks.MockDistributedLock
	svc       *ingestionService
}

func newIngestionHarness(t *testing.T) *ingestionHarness {
	t.Helper()
	h := &ingestionHarness{
		docs:      mocks.NewMockDocumentStore(),
		blobs:     mocks.NewMockBlobStore(),
		extractor: mocks.NewMockExtractor(),
		embedder:  mocks.NewMockEmbeddingService(),
		index:     memory.NewVectorIndex(8),
		queue:     mocks.NewMockTaskQueue(),
		lock:      mocks.NewMockDistributedLock(),
	}
	h.svc = NewIngestionService(IngestionConfig{
		Documents:      h.docs,
		Blobs:          h.blobs,
		Extractor:      h.extractor,
		Chunker:        chunker.New(100, 20),
		Embedder:       h.embedder,
		Index:          h.index,
		Queue:          h.queue,
		Lock:           h.lock,
		MaxUploadBytes: 1024,
		LockWait:       50 * time.Millisecond,
	}).(*ingestionService)
	return h
}

func (h *ingestionHarness) ingest(t *testing.T, owner, filename, content string) *domain.Document {
	t.Helper()
	doc, err := h.svc.Ingest(context.Background(), owner, filename, []byte(content))
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	return doc
}

func (h *ingestionHarness) status(t *testing.T, id string) *domain.Document {
	t.Helper()
	doc, err := h.docs.Get(context.Background(), id)
	if err != nil {
		t.Fatalf("Get(%s) error = %v", id, err)
	}
	return doc
}

func (h *ingestionHarness) chunks(t *testing.T, id string) int {
	t.Helper()
	n, err := h.index.CountByDocument(context.Background(), id)
	if err != nil {
		t.Fatalf("CountByDocument() error = %v", err)
	}
	return n
}

func TestIngestionService_IngestValidation(t *testing.T) {
	tests := []struct {
		name     string
		owner    string
		filename string
		content  []byte
		wantErr  error
	}{
		{"no owner", "", "a.txt", []byte("hello"), domain.ErrUnauthorized},
		{"no filename", "user-1", "  ", []byte("hello"), domain.ErrInvalidInput},
		{"empty content", "user-1", "a.txt", nil, domain.ErrInvalidInput},
		{"too large", "user-1", "a.txt", []byte(strings.Repeat("x", 1025)), domain.ErrFileTooLarge},
		{"unsupported", "user-1", "blob.bin", []byte{0x00, 0x01, 0x02, 0xff}, domain.ErrUnsupportedFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newIngestionHarness(t)
			_, err := h.svc.Ingest(context.Background(), tt.owner, tt.filename, tt.content)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
			if h.docs.Len() != 0 {
				t.Errorf("rejected upload left %d documents", h.docs.Len())
			}
			if len(h.queue.Pending()) != 0 {
				t.Errorf("rejected upload enqueued %d tasks", len(h.queue.Pending()))
			}
		})
	}
}

func TestIngestionService_IngestAccepts(t *testing.T) {
	h := newIngestionHarness(t)

	doc := h.ingest(t, "user-1", "../../notes.txt", "quarterly numbers")

	if doc.Status != domain.DocumentStatusPending {
		t.Errorf("status = %s, want pending", doc.Status)
	}
	if doc.Filename != "notes.txt" {
		t.Errorf("filename = %q, want notes.txt", doc.Filename)
	}
	if doc.FileType != domain.FileTypeText {
		t.Errorf("file type = %s, want text", doc.FileType)
	}
	if !h.blobs.Has(doc.ID) {
		t.Error("upload bytes were not stored")
	}
	pending := h.queue.Pending()
	if len(pending) != 1 || pending[0].DocumentID() != doc.ID {
		t.Fatalf("queue = %v, want one task for %s", pending, doc.ID)
	}
	if pending[0].Type != domain.TaskTypeIngestDocument {
		t.Errorf("task type = %s", pending[0].Type)
	}
}

func TestIngestionService_IngestRollsBackWhenEnqueueFails(t *testing.T) {
	h := newIngestionHarness(t)
	h.queue.EnqueueFn = func(*domain.Task) error { return errors.New("queue down") }

	var savedID string
	h.docs.SaveFn = func(doc *domain.Document) error {
		savedID = doc.ID
		return nil
	}

	if _, err := h.svc.Ingest(context.Background(), "user-1", "a.txt", []byte("hello")); err == nil {
		t.Fatal("expected error")
	}
	if h.docs.Len() != 0 {
		t.Error("document row left behind")
	}
	if h.blobs.Has(savedID) {
		t.Error("upload bytes left behind")
	}
}

func TestIngestionService_ProcessIndexesDocument(t *testing.T) {
	h := newIngestionHarness(t)
	text := strings.Repeat("The reactor output rose by ten percent this quarter. ", 8)
	doc := h.ingest(t, "user-1", "report.txt", text)

	if err := h.svc.Process(context.Background(), doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got := h.status(t, doc.ID)
	if got.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status = %s, want completed (%s)", got.Status, got.ErrorMessage)
	}
	if got.ChunkCount < 2 {
		t.Errorf("chunk count = %d, want several", got.ChunkCount)
	}
	if n := h.chunks(t, doc.ID); n != got.ChunkCount {
		t.Errorf("index holds %d chunks, document records %d", n, got.ChunkCount)
	}
	if got.ProcessedAt == nil {
		t.Error("processed_at not set")
	}
	lockName := driven.DocumentLockName(doc.ID)
	if h.lock.AcquireCount(lockName) != 1 || h.lock.IsHeld(lockName) {
		t.Errorf("lock acquired %d times, held = %v", h.lock.AcquireCount(lockName), h.lock.IsHeld(lockName))
	}
	if h.lock.IsHeld(driven.IngestionLeaseName(doc.ID)) {
		t.Error("ingestion lease still held after the run")
	}
}

func TestIngestionService_ProcessEmptyText(t *testing.T) {
	h := newIngestionHarness(t)
	h.extractor.ExtractFn = func([]byte, domain.FileType) (string, error) { return "", nil }
	doc := h.ingest(t, "user-1", "scan.png", "not really an image")

	if err := h.svc.Process(context.Background(), doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	got := h.status(t, doc.ID)
	if got.Status != domain.DocumentStatusCompleted || got.ChunkCount != 0 {
		t.Errorf("got status %s with %d chunks, want completed with 0", got.Status, got.ChunkCount)
	}
}

func TestIngestionService_ProcessFailures(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(h *ingestionHarness)
		attempt    domain.Attempt
		wantErr    bool
		wantStatus domain.DocumentStatus
	}{
		{
			name:       "retryable failure goes back to pending",
			setup:      func(h *ingestionHarness) { h.embedder.FailNext(1) },
			attempt:    domain.Attempt{Number: 1},
			wantErr:    true,
			wantStatus: domain.DocumentStatusPending,
		},
		{
			name:       "retryable failure on final attempt fails",
			setup:      func(h *ingestionHarness) { h.embedder.FailNext(1) },
			attempt:    domain.Attempt{Number: 3, Final: true},
			wantStatus: domain.DocumentStatusFailed,
		},
		{
			name: "corrupt file fails at once",
			setup: func(h *ingestionHarness) {
				h.extractor.ExtractFn = func([]byte, domain.FileType) (string, error) {
					return "", domain.ErrCorruptFile
				}
			},
			attempt:    domain.Attempt{Number: 1},
			wantStatus: domain.DocumentStatusFailed,
		},
		{
			name: "missing upload fails at once",
			setup: func(h *ingestionHarness) {
				for _, task := range h.queue.Pending() {
					_ = h.blobs.Delete(context.Background(), task.DocumentID())
				}
			},
			attempt:    domain.Attempt{Number: 1},
			wantStatus: domain.DocumentStatusFailed,
		},
		{
			name: "busy lock is retried",
			setup: func(h *ingestionHarness) {
				for _, task := range h.queue.Pending() {
					h.lock.SetLockHeld(driven.DocumentLockName(task.DocumentID()), time.Minute)
				}
			},
			attempt:    domain.Attempt{Number: 1},
			wantErr:    true,
			wantStatus: domain.DocumentStatusPending,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newIngestionHarness(t)
			doc := h.ingest(t, "user-1", "notes.txt", "the budget was approved in March")
			tt.setup(h)

			err := h.svc.Process(context.Background(), doc.ID, tt.attempt)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Process() error = %v, wantErr %v", err, tt.wantErr)
			}

			got := h.status(t, doc.ID)
			if got.Status != tt.wantStatus {
				t.Errorf("status = %s, want %s", got.Status, tt.wantStatus)
			}
			if tt.wantStatus == domain.DocumentStatusFailed {
				if got.ErrorMessage == "" {
					t.Error("failed document has no error message")
				}
				if h.chunks(t, doc.ID) != 0 {
					t.Error("failed document still has chunks")
				}
			}
		})
	}
}

func TestIngestionService_ProcessSkipsUnclaimable(t *testing.T) {
	h := newIngestionHarness(t)
	doc := h.ingest(t, "user-1", "notes.txt", "hello")
	h.docs.SetStatus(doc.ID, domain.DocumentStatusProcessing, time.Now())

	if err := h.svc.Process(context.Background(), doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if h.extractor.Calls() != 0 {
		t.Error("claimed document was processed twice")
	}

	if err := h.svc.Process(context.Background(), "missing", domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process(missing) error = %v", err)
	}
}

func TestIngestionService_ProcessDeletedMidRun(t *testing.T) {
	h := newIngestionHarness(t)
	doc := h.ingest(t, "user-1", "notes.txt", "hello")
	h.extractor.ExtractFn = func(content []byte, _ domain.FileType) (string, error) {
		_ = h.docs.Delete(context.Background(), doc.ID)
		return string(content), nil
	}

	if err := h.svc.Process(context.Background(), doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if n := h.chunks(t, doc.ID); n != 0 {
		t.Errorf("deleted document left %d chunks", n)
	}
}

func TestIngestionService_Reprocess(t *testing.T) {
	h := newIngestionHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "user-1", "notes.txt", "hello there")

	if err := h.svc.Reprocess(ctx, "user-1", doc.ID); !errors.Is(err, domain.ErrIngestionInProgress) {
		t.Fatalf("Reprocess(pending) error = %v, want ErrIngestionInProgress", err)
	}

	if err := h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if err := h.svc.Reprocess(ctx, "user-2", doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Reprocess(other owner) error = %v, want ErrNotFound", err)
	}

	queued := len(h.queue.Pending())
	if err := h.svc.Reprocess(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if got := h.status(t, doc.ID); got.Status != domain.DocumentStatusPending {
		t.Errorf("status = %s, want pending", got.Status)
	}
	if h.chunks(t, doc.ID) != 0 {
		t.Error("old chunks survived reprocess")
	}
	if len(h.queue.Pending()) != queued+1 {
		t.Error("reprocess did not enqueue a task")
	}
}

func TestIngestionService_ReprocessReplacesChunks(t *testing.T) {
	h := newIngestionHarness(t)
	ctx := context.Background()
	text := strings.Repeat("Draft figures from the first pass. ", 6)
	h.extractor.ExtractFn = func([]byte, domain.FileType) (string, error) { return text, nil }
	doc := h.ingest(t, "user-1", "report.txt", "report")

	if err := h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	oldIDs := make(map[string]bool)
	for _, hit := range h.ownerChunks(t, "user-1") {
		oldIDs[hit.Chunk.ID] = true
	}
	if len(oldIDs) == 0 {
		t.Fatal("first pass indexed nothing")
	}

	text = strings.Repeat("Revised numbers in the final report. ", 11)
	if err := h.svc.Reprocess(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("Reprocess() error = %v", err)
	}
	if err := h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() after reprocess error = %v", err)
	}

	got := h.status(t, doc.ID)
	if got.Status != domain.DocumentStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	hits := h.ownerChunks(t, "user-1")
	if len(hits) != got.ChunkCount || h.chunks(t, doc.ID) != got.ChunkCount {
		t.Errorf("query returned %d chunks, index counts %d, document records %d",
			len(hits), h.chunks(t, doc.ID), got.ChunkCount)
	}
	for _, hit := range hits {
		if oldIDs[hit.Chunk.ID] {
			t.Errorf("chunk %s from the first pass survived", hit.Chunk.ID)
		}
		if strings.Contains(hit.Chunk.Content, "Draft") {
			t.Errorf("chunk %d holds old content %q", hit.Chunk.Index, hit.Chunk.Content)
		}
	}
}

// ownerChunks returns every chunk the owner can retrieve
func (h *ingestionHarness) ownerChunks(t *testing.T, owner string) []*domain.ScoredChunk {
	t.Helper()
	hits, err := h.index.Query(context.Background(), axis(0), driven.VectorQuery{OwnerID: owner, K: 1000, MinScore: -1})
	if err != nil {
		t.Fatalf("Query() error = %v", err)
	}
	return hits
}

func TestIngestionService_Delete(t *testing.T) {
	h := newIngestionHarness(t)
	ctx := context.Background()
	doc := h.ingest(t, "user-1", "notes.txt", "hello there")
	if err := h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}); err != nil {
		t.Fatalf("Process() error = %v", err)
	}

	if err := h.svc.Delete(ctx, "user-2", doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("Delete(other owner) error = %v, want ErrNotFound", err)
	}
	if err := h.svc.Delete(ctx, "user-1", doc.ID); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if h.docs.Len() != 0 || h.blobs.Has(doc.ID) || h.chunks(t, doc.ID) != 0 {
		t.Error("delete left data behind")
	}
	if err := h.svc.Delete(ctx, "user-1", doc.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestIngestionService_List(t *testing.T) {
	h := newIngestionHarness(t)
	ctx := context.Background()
	h.ingest(t, "user-1", "a.txt", "a")
	h.ingest(t, "user-1", "b.txt", "b")
	h.ingest(t, "user-2", "c.txt", "c")

	list, err := h.svc.List(ctx, "user-1", domain.ListOptions{})
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if list.Total != 2 || list.Limit != 20 {
		t.Errorf("total = %d limit = %d, want 2 and 20", list.Total, list.Limit)
	}

	if _, err := h.svc.List(ctx, "user-1", domain.ListOptions{Status: "bogus"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("List(bogus status) error = %v, want ErrInvalidInput", err)
	}
}

func TestIngestionService_RecoverStale(t *testing.T) {
	h := newIngestionHarness(t)
	stale := h.ingest(t, "user-1", "a.txt", "a")
	fresh := h.ingest(t, "user-1", "b.txt", "b")
	h.docs.SetStatus(stale.ID, domain.DocumentStatusProcessing, time.Now().Add(-time.Hour))
	h.docs.SetStatus(fresh.ID, domain.DocumentStatusProcessing, time.Now())
	queued := len(h.queue.Pending())

	n, err := h.svc.RecoverStale(context.Background())
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 1 {
		t.Errorf("recovered %d, want 1", n)
	}
	if got := h.status(t, stale.ID); got.Status != domain.DocumentStatusPending {
		t.Errorf("stale status = %s, want pending", got.Status)
	}
	if got := h.status(t, fresh.ID); got.Status != domain.DocumentStatusProcessing {
		t.Errorf("fresh status = %s, want processing", got.Status)
	}
	if len(h.queue.Pending()) != queued+1 {
		t.Error("stale document was not re-enqueued")
	}
}

func TestIngestionService_RecoverStaleLeavesLiveRun(t *testing.T) {
	h := newIngestionHarness(t)
	h.svc.lockTTL = 30 * time.Millisecond
	ctx := context.Background()
	doc := h.ingest(t, "user-1", "notes.txt", "hello there")

	var runs atomic.Int32
	entered := make(chan struct{})
	proceed := make(chan struct{})
	h.extractor.ExtractFn = func(content []byte, _ domain.FileType) (string, error) {
		if runs.Add(1) == 1 {
			close(entered)
			<-proceed
		}
		return string(content), nil
	}

	done := make(chan error, 1)
	go func() { done <- h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}) }()
	<-entered

	// Outlive the lease TTL so only extension keeps it held
	time.Sleep(100 * time.Millisecond)
	h.docs.SetStatus(doc.ID, domain.DocumentStatusProcessing, time.Now().Add(-time.Hour))
	queued := len(h.queue.Pending())

	n, err := h.svc.RecoverStale(ctx)
	if err != nil {
		t.Fatalf("RecoverStale() error = %v", err)
	}
	if n != 0 {
		t.Errorf("recovered %d documents with a live run, want 0", n)
	}
	if got := h.status(t, doc.ID); got.Status != domain.DocumentStatusProcessing {
		t.Errorf("status = %s, want processing", got.Status)
	}
	if len(h.queue.Pending()) != queued {
		t.Error("live document was re-enqueued")
	}

	if err := h.svc.Process(ctx, doc.ID, domain.Attempt{Number: 1}); err == nil {
		t.Error("second Process() for a live document succeeded")
	}

	close(proceed)
	if err := <-done; err != nil {
		t.Fatalf("Process() error = %v", err)
	}
	if runs.Load() != 1 {
		t.Errorf("document ran %d times, want 1", runs.Load())
	}
	if got := h.status(t, doc.ID); got.Status != domain.DocumentStatusCompleted {
		t.Errorf("status = %s, want completed", got.Status)
	}
	if h.lock.IsHeld(driven.IngestionLeaseName(doc.ID)) {
		t.Error("lease still held after the run")
	}
}

func TestVerifyDimensions(t *testing.T) {
	embedder := mocks.NewMockEmbeddingService()
	if err := VerifyDimensions(embedder, memory.NewVectorIndex(8)); err != nil {
		t.Fatalf("VerifyDimensions() error = %v", err)
	}
	embedder.SetDimensions(768)
	if err := VerifyDimensions(embedder, memory.NewVectorIndex(8)); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("VerifyDimensions() error = %v, want ErrConfiguration", err)
	}
}
