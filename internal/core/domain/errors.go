package domain

import (
	"context"
	"errors"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found or is not owned by the caller
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates the resource already exists
	ErrAlreadyExists = errors.New("already exists")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnauthorized indicates authentication failed or missing
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden indicates the user lacks permission for this action
	ErrForbidden = errors.New("forbidden")

	// ErrTokenExpired indicates the auth token has expired
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenInvalid indicates the auth token is malformed or invalid
	ErrTokenInvalid = errors.New("token invalid")

	// ErrSessionNotFound indicates the session does not exist
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidCredentials indicates wrong email/password combination
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidProvider indicates an unknown AI provider was specified
	ErrInvalidProvider = errors.New("invalid provider")

	// ErrUnsupportedFormat indicates the file type has no decoder
	ErrUnsupportedFormat = errors.New("unsupported format")

	// ErrCorruptFile indicates a decoder could not read the file
	ErrCorruptFile = errors.New("corrupt file")

	// ErrOCRUnavailable indicates OCR was required but no OCR engine is configured
	ErrOCRUnavailable = errors.New("ocr unavailable")

	// ErrEmbeddingUnavailable indicates the embedding service could not be reached
	ErrEmbeddingUnavailable = errors.New("embedding service unavailable")

	// ErrGenerationUnavailable indicates the generative model could not produce an answer
	ErrGenerationUnavailable = errors.New("generation service unavailable")

	// ErrConfiguration indicates a fatal startup configuration problem
	ErrConfiguration = errors.New("configuration error")

	// ErrFileTooLarge indicates an upload exceeds the size limit
	ErrFileTooLarge = errors.New("file too large")

	// ErrIngestionInProgress indicates the document is still pending or processing
	ErrIngestionInProgress = errors.New("ingestion in progress")

	// ErrAlreadyClaimed indicates another worker owns the document's current run
	ErrAlreadyClaimed = errors.New("document already claimed")
)

// IsRetryable reports whether err is a transient failure worth another attempt.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrEmbeddingUnavailable),
		errors.Is(err, ErrGenerationUnavailable),
		errors.Is(err, context.DeadlineExceeded):
		return true
	default:
		return false
	}
}

// IsTerminal reports whether err permanently fails a document.
func IsTerminal(err error) bool {
	return errors.Is(err, ErrUnsupportedFormat) ||
		errors.Is(err, ErrCorruptFile) ||
		errors.Is(err, ErrOCRUnavailable)
}
