package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/custodia-labs/sercha-ask/internal/core/domain"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driven"
	"github.com/custodia-labs/sercha-ask/internal/core/ports/driving"
)

// Ensure ingestionService implements IngestionService
var _ driving.IngestionService = (*ingestionService)(nil)

const (
	// DefaultMaxUploadBytes caps a single upload
	DefaultMaxUploadBytes = 50 << 20

	// DefaultStaleAfter is how long a document may sit in processing before recovery
	DefaultStaleAfter = 30 * time.Minute

	defaultLockTTL    = 2 * time.Minute
	defaultLockWait   = 30 * time.Second
	lockRetryInterval = 100 * time.Millisecond
	settleTimeout     = 10 * time.Second
)

// IngestionConfig wires the ingestion pipeline
type IngestionConfig struct {
	Documents driven.DocumentStore
	Blobs     driven.BlobStore
	Extractor driven.Extractor
	Chunker   driven.Chunker
	Embedder  driven.EmbeddingService
	Index     driven.VectorIndex
	Queue     driven.TaskQueue
	Lock      driven.DistributedLock // Optional; serialises index writes per document
	Logger    *slog.Logger

	MaxUploadBytes int64
	StaleAfter     time.Duration
	LockTTL        time.Duration
	LockWait       time.Duration // How long to wait for a busy document lock
}

type ingestionService struct {
	documents driven.DocumentStore
	blobs     driven.BlobStore
	extractor driven.Extractor
	chunker   driven.Chunker
	embedder  driven.EmbeddingService
	index     driven.VectorIndex
	queue     driven.TaskQueue
	lock      driven.DistributedLock
	logger    *slog.Logger

	maxUploadBytes int64
	staleAfter     time.Duration
	lockTTL        time.Duration
	lockWait       time.Duration
}

// NewIngestionService creates the ingestion pipeline
func NewIngestionService(cfg IngestionConfig) driving.IngestionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	if cfg.StaleAfter <= 0 {
		cfg.StaleAfter = DefaultStaleAfter
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = defaultLockTTL
	}
	if cfg.LockWait <= 0 {
		cfg.LockWait = defaultLockWait
	}

	return &ingestionService{
		documents:      cfg.Documents,
		blobs:          cfg.Blobs,
		extractor:      cfg.Extractor,
		chunker:        cfg.Chunker,
		embedder:       cfg.Embedder,
		index:          cfg.Index,
		queue:          cfg.Queue,
		lock:           cfg.Lock,
		logger:         logger.With("service", "ingestion"),
		maxUploadBytes: cfg.MaxUploadBytes,
		staleAfter:     cfg.StaleAfter,
		lockTTL:        cfg.LockTTL,
		lockWait:       cfg.LockWait,
	}
}

// Ingest stores an upload and schedules it for processing
func (s *ingestionService) Ingest(ctx context.Context, ownerID, filename string, content []byte) (*domain.Document, error) {
	if ownerID == "" {
		return nil, domain.ErrUnauthorized
	}
	filename = filepath.Base(strings.TrimSpace(filename))
	if filename == "" || filename == "." || filename == string(filepath.Separator) {
		return nil, fmt.Errorf("%w: filename is required", domain.ErrInvalidInput)
	}
	if len(content) == 0 {
		return nil, fmt.Errorf("%w: %s is empty", domain.ErrInvalidInput, filename)
	}
	if int64(len(content)) > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", domain.ErrFileTooLarge, filename, s.maxUploadBytes)
	}

	fileType, mimeType := domain.DetectFileType(filename, content)
	if !fileType.IsSupported() || !s.extractor.Supports(fileType) {
		return nil, fmt.Errorf("%w: %s (%s)", domain.ErrUnsupportedFormat, filename, mimeType)
	}

	doc := domain.NewDocument(ownerID, filename, fileType, mimeType, int64(len(content)))
	if err := s.documents.Save(ctx, doc); err != nil {
		return nil, fmt.Errorf("save document: %w", err)
	}

	if err := s.blobs.Put(ctx, doc.ID, content); err != nil {
		s.discard(ctx, doc.ID)
		return nil, fmt.Errorf("store upload: %w", err)
	}

	if err := s.queue.Enqueue(ctx, domain.NewIngestTask(ownerID, doc.ID)); err != nil {
		s.discard(ctx, doc.ID)
		return nil, fmt.Errorf("enqueue ingestion: %w", err)
	}

	s.logger.Info("document accepted",
		"document_id", doc.ID,
		"owner_id", ownerID,
		"file_type", fileType,
		"size_bytes", doc.SizeBytes,
	)
	return doc, nil
}

// discard undoes a half-finished upload
func (s *ingestionService) discard(ctx context.Context, documentID string) {
	ctx, cancel := settleContext(ctx)
	defer cancel()
	if err := s.blobs.Delete(ctx, documentID); err != nil {
		s.logger.Warn("failed to remove upload bytes", "document_id", documentID, "error", err)
	}
	if err := s.documents.Delete(ctx, documentID); err != nil {
		s.logger.Warn("failed to remove document", "document_id", documentID, "error", err)
	}
}

// Process runs the pipeline for one document. A nil return means the task is
// finished (completed, failed or lost to another worker). An error means the
// document was handed back to pending, or another run still holds its lease,
// and the task should be retried.
func (s *ingestionService) Process(ctx context.Context, documentID string, attempt domain.Attempt) (err error) {
	ctx, span := tracer.Start(ctx, "ingestion.process", trace.WithAttributes(
		attribute.String("document.id", documentID),
		attribute.Int("attempt", attempt.Number),
	))
	defer func() { endSpan(span, err) }()

	doc, err := s.documents.Get(ctx, documentID)
	if errors.Is(err, domain.ErrNotFound) {
		s.logger.Info("document gone before processing", "document_id", documentID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("load document: %w", err)
	}

	ctx, release, err := s.holdLease(ctx, documentID)
	if err != nil {
		return err
	}
	defer release()

	claimed, err := s.documents.Transition(ctx, documentID,
		[]domain.DocumentStatus{domain.DocumentStatusPending}, domain.DocumentStatusProcessing)
	if err != nil {
		return fmt.Errorf("claim document: %w", err)
	}
	if !claimed {
		s.logger.Info("skipping document", "document_id", documentID, "status", doc.Status, "error", domain.ErrAlreadyClaimed)
		return nil
	}

	started := time.Now()
	count, runErr := s.run(ctx, doc)
	if runErr != nil {
		return s.fail(ctx, doc, attempt, runErr)
	}

	settleCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := s.documents.MarkCompleted(settleCtx, documentID, count); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			s.dropOrphanChunks(settleCtx, documentID)
			return nil
		}
		return fmt.Errorf("mark completed: %w", err)
	}

	span.SetAttributes(attribute.Int("chunks", count))
	s.logger.Info("document indexed",
		"document_id", documentID,
		"chunks", count,
		"attempt", attempt.Number,
		"duration", time.Since(started),
	)
	return nil
}

// run extracts, chunks, embeds and indexes the document, returning the chunk count
func (s *ingestionService) run(ctx context.Context, doc *domain.Document) (int, error) {
	content, err := s.blobs.Get(ctx, doc.ID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, fmt.Errorf("%w: stored upload is missing", domain.ErrCorruptFile)
		}
		return 0, transient(fmt.Errorf("load upload: %w", err))
	}

	text, err := s.extractor.Extract(ctx, content, doc.FileType)
	if err != nil {
		return 0, fmt.Errorf("extract: %w", err)
	}

	spans := s.chunker.Chunk(text)
	chunks := make([]*domain.Chunk, 0, len(spans))

	if len(spans) > 0 {
		texts := make([]string, len(spans))
		for i, sp := range spans {
			texts[i] = sp.Content
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return 0, fmt.Errorf("embed: %w", err)
		}
		if len(vectors) != len(spans) {
			return 0, fmt.Errorf("embed: got %d vectors for %d chunks", len(vectors), len(spans))
		}

		now := time.Now()
		for i, sp := range spans {
			chunks = append(chunks, &domain.Chunk{
				ID:         domain.GenerateID(),
				DocumentID: doc.ID,
				OwnerID:    doc.OwnerID,
				Index:      sp.Index,
				Content:    sp.Content,
				Embedding:  vectors[i],
				StartChar:  sp.Start,
				EndChar:    sp.End,
				CreatedAt:  now,
			})
		}
	}

	err = s.withDocumentLock(ctx, doc.ID, func(ctx context.Context) error {
		return s.index.Upsert(ctx, doc.ID, doc.OwnerID, chunks)
	})
	if err != nil {
		return 0, transient(fmt.Errorf("index chunks: %w", err))
	}
	return len(chunks), nil
}

// fail settles a failed run: retryable errors before the final attempt hand the
// document back to pending; everything else marks it failed and clears its chunks.
func (s *ingestionService) fail(ctx context.Context, doc *domain.Document, attempt domain.Attempt, runErr error) error {
	settleCtx, cancel := settleContext(ctx)
	defer cancel()

	if shouldRetry(runErr) && !attempt.Final {
		if _, err := s.documents.Transition(settleCtx, doc.ID,
			[]domain.DocumentStatus{domain.DocumentStatusProcessing}, domain.DocumentStatusPending); err != nil {
			s.logger.Warn("failed to release document for retry", "document_id", doc.ID, "error", err)
		}
		s.logger.Warn("document ingestion will be retried",
			"document_id", doc.ID,
			"attempt", attempt.Number,
			"error", runErr,
		)
		return runErr
	}

	err := s.withDocumentLock(settleCtx, doc.ID, func(ctx context.Context) error {
		return s.index.DeleteByDocument(ctx, doc.ID)
	})
	if err != nil {
		s.logger.Warn("failed to clear chunks of failed document", "document_id", doc.ID, "error", err)
	}

	if err := s.documents.MarkFailed(settleCtx, doc.ID, runErr.Error()); err != nil && !errors.Is(err, domain.ErrNotFound) {
		s.logger.Error("failed to record document failure", "document_id", doc.ID, "error", err)
	}

	s.logger.Error("document ingestion failed",
		"document_id", doc.ID,
		"file_type", doc.FileType,
		"attempt", attempt.Number,
		"error", runErr,
	)
	return nil
}

// dropOrphanChunks removes chunks indexed for a document deleted mid-run
func (s *ingestionService) dropOrphanChunks(ctx context.Context, documentID string) {
	if _, err := s.documents.Get(ctx, documentID); !errors.Is(err, domain.ErrNotFound) {
		return
	}
	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		return s.index.DeleteByDocument(ctx, documentID)
	})
	if err != nil {
		s.logger.Warn("failed to drop chunks of deleted document", "document_id", documentID, "error", err)
		return
	}
	s.logger.Info("document deleted during processing", "document_id", documentID)
}

// Reprocess schedules a completed or failed document for a fresh run
func (s *ingestionService) Reprocess(ctx context.Context, ownerID, documentID string) error {
	doc, err := s.Get(ctx, ownerID, documentID)
	if err != nil {
		return err
	}

	ok, err := s.documents.Transition(ctx, documentID,
		[]domain.DocumentStatus{domain.DocumentStatusCompleted, domain.DocumentStatusFailed}, domain.DocumentStatusPending)
	if err != nil {
		return fmt.Errorf("reset document: %w", err)
	}
	if !ok {
		return domain.ErrIngestionInProgress
	}

	err = s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		return s.index.DeleteByDocument(ctx, documentID)
	})
	if err != nil {
		s.logger.Warn("failed to clear old chunks before reprocess", "document_id", documentID, "error", err)
	}

	if err := s.queue.Enqueue(ctx, domain.NewIngestTask(ownerID, documentID)); err != nil {
		if _, rerr := s.documents.Transition(ctx, documentID,
			[]domain.DocumentStatus{domain.DocumentStatusPending}, doc.Status); rerr != nil {
			s.logger.Warn("failed to restore document status", "document_id", documentID, "error", rerr)
		}
		return fmt.Errorf("enqueue ingestion: %w", err)
	}

	s.logger.Info("document queued for reprocessing", "document_id", documentID, "previous_status", doc.Status)
	return nil
}

// Delete removes a document, its chunks and its stored bytes
func (s *ingestionService) Delete(ctx context.Context, ownerID, documentID string) error {
	if _, err := s.Get(ctx, ownerID, documentID); err != nil {
		return err
	}

	err := s.withDocumentLock(ctx, documentID, func(ctx context.Context) error {
		return s.index.DeleteByDocument(ctx, documentID)
	})
	if err != nil {
		return fmt.Errorf("delete chunks: %w", err)
	}
	if err := s.blobs.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete upload: %w", err)
	}
	if err := s.documents.Delete(ctx, documentID); err != nil {
		return fmt.Errorf("delete document: %w", err)
	}

	s.logger.Info("document deleted", "document_id", documentID, "owner_id", ownerID)
	return nil
}

// Get returns a document owned by ownerID
func (s *ingestionService) Get(ctx context.Context, ownerID, documentID string) (*domain.Document, error) {
	doc, err := s.documents.Get(ctx, documentID)
	if err != nil {
		return nil, err
	}
	if !doc.OwnedBy(ownerID) {
		return nil, domain.ErrNotFound
	}
	return doc, nil
}

// List returns a page of an owner's documents
func (s *ingestionService) List(ctx context.Context, ownerID string, opts domain.ListOptions) (*domain.DocumentList, error) {
	if opts.Status != "" && !opts.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", domain.ErrInvalidInput, opts.Status)
	}
	return s.documents.List(ctx, ownerID, opts.Normalize())
}

// RecoverStale resets documents stuck in processing and re-enqueues them
func (s *ingestionService) RecoverStale(ctx context.Context) (int, error) {
	stale, err := s.documents.ListStale(ctx, time.Now().Add(-s.staleAfter))
	if err != nil {
		return 0, fmt.Errorf("list stale documents: %w", err)
	}

	recovered := 0
	for _, doc := range stale {
		if s.recoverDocument(ctx, doc) {
			recovered++
		}
	}

	if recovered > 0 {
		s.logger.Info("recovered stale documents", "count", recovered)
	}
	return recovered, nil
}

// recoverDocument resets one stale document to pending and re-enqueues it. A document
// whose ingestion lease is still held has a live run and is left alone.
func (s *ingestionService) recoverDocument(ctx context.Context, doc *domain.Document) bool {
	if s.lock != nil {
		name := driven.IngestionLeaseName(doc.ID)
		ok, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			s.logger.Warn("failed to check ingestion lease", "document_id", doc.ID, "error", err)
			return false
		}
		if !ok {
			s.logger.Info("stale document still has a live run", "document_id", doc.ID)
			return false
		}
		defer s.releaseLock(ctx, name)
	}

	ok, err := s.documents.Transition(ctx, doc.ID,
		[]domain.DocumentStatus{domain.DocumentStatusProcessing}, domain.DocumentStatusPending)
	if err != nil {
		s.logger.Warn("failed to reset stale document", "document_id", doc.ID, "error", err)
		return false
	}
	if !ok {
		return false
	}
	if err := s.queue.Enqueue(ctx, domain.NewIngestTask(doc.OwnerID, doc.ID)); err != nil {
		s.logger.Error("failed to re-enqueue stale document", "document_id", doc.ID, "error", err)
		return false
	}
	return true
}

// holdLease takes the ingestion lease of a document for one run and keeps it
// alive until release. The returned context ends if the lease is lost.
func (s *ingestionService) holdLease(ctx context.Context, documentID string) (context.Context, func(), error) {
	if s.lock == nil {
		return ctx, func() {}, nil
	}

	name := driven.IngestionLeaseName(documentID)
	ok, err := s.lock.Acquire(ctx, name, s.lockTTL)
	if err != nil {
		return nil, nil, transient(fmt.Errorf("acquire %s: %w", name, err))
	}
	if !ok {
		return nil, nil, transient(fmt.Errorf("acquire %s: %w", name, errLockBusy))
	}

	leaseCtx, stop := s.keepAlive(ctx, name)
	return leaseCtx, func() {
		stop()
		s.releaseLock(ctx, name)
	}, nil
}

// keepAlive extends a held lock every third of the lock TTL until stop is
// called. The returned context is cancelled if an extension fails.
func (s *ingestionService) keepAlive(ctx context.Context, name string) (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(ctx)
	done := make(chan struct{})

	go func() {
		defer close(done)
		ticker := time.NewTicker(max(s.lockTTL/3, time.Millisecond))
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := s.lock.Extend(ctx, name, s.lockTTL); err != nil {
					if ctx.Err() == nil {
						s.logger.Warn("lost lock", "lock", name, "error", err)
						cancel(fmt.Errorf("%w: %s", errLockLost, name))
					}
					return
				}
			}
		}
	}()

	return ctx, func() {
		cancel(nil)
		<-done
	}
}

func (s *ingestionService) releaseLock(ctx context.Context, name string) {
	releaseCtx, cancel := settleContext(ctx)
	defer cancel()
	if err := s.lock.Release(releaseCtx, name); err != nil {
		s.logger.Warn("failed to release lock", "lock", name, "error", err)
	}
}

// withDocumentLock runs fn while holding the document:<id> lock
func (s *ingestionService) withDocumentLock(ctx context.Context, documentID string, fn func(context.Context) error) error {
	if s.lock == nil {
		return fn(ctx)
	}

	name := driven.DocumentLockName(documentID)
	deadline := time.Now().Add(s.lockWait)
	for {
		ok, err := s.lock.Acquire(ctx, name, s.lockTTL)
		if err != nil {
			return fmt.Errorf("acquire %s: %w", name, err)
		}
		if ok {
			break
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("acquire %s: %w", name, errLockBusy)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(lockRetryInterval):
		}
	}

	defer s.releaseLock(ctx, name)

	lockCtx, stop := s.keepAlive(ctx, name)
	defer stop()
	return fn(lockCtx)
}

var (
	errLockBusy = errors.New("lock busy")
	errLockLost = errors.New("lock lost")
)

// transientError marks store, index and lock failures worth another attempt
type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// transient marks err retryable unless it reports bad input or configuration
func transient(err error) error {
	if errors.Is(err, domain.ErrInvalidInput) || errors.Is(err, domain.ErrConfiguration) {
		return err
	}
	return &transientError{err: err}
}

func shouldRetry(err error) bool {
	if domain.IsTerminal(err) {
		return false
	}
	var t *transientError
	return domain.IsRetryable(err) || errors.Is(err, context.Canceled) || errors.As(err, &t)
}

// settleContext outlives cancellation of ctx so a run can always be recorded
func settleContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), settleTimeout)
}

// VerifyDimensions fails when the embedder and index disagree on vector size
func VerifyDimensions(embedder driven.EmbeddingService, index driven.VectorIndex) error {
	if embedder.Dimensions() != index.Dimensions() {
		return fmt.Errorf("%w: embedding model %s produces %d dimensions, vector index expects %d",
			domain.ErrConfiguration, embedder.Model(), embedder.Dimensions(), index.Dimensions())
	}
	return nil
}
