package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrValidation signals invalid user input (empty query, bad filter values).
	ErrValidation = errors.New("validation failed")
	// ErrIndexNotLoaded signals that no index snapshot has been loaded yet.
	ErrIndexNotLoaded = errors.New("index not loaded")
	// ErrIndexMismatch signals a query-time embedding model or dimension mismatch.
	ErrIndexMismatch = errors.New("index model mismatch")
	// ErrIngestion signals a document that could not be ingested (skipped, not fatal).
	ErrIngestion = errors.New("ingestion failed")
	// ErrRateLimited signals a rate limit hit at an external provider.
	ErrRateLimited = errors.New("rate limited")
	// ErrEmbeddingProviderError signals an embedding provider failure.
	ErrEmbeddingProviderError = errors.New("embedding provider error")
	// ErrGenerationService signals a generation service failure after retries
	// were exhausted, or a malformed generation payload.
	ErrGenerationService = errors.New("generation service error")
)

// IndexMismatchError wraps ErrIndexMismatch with the expected and actual
// model identity. A mismatched model must fail the query, never silently
// return plausible-looking results.
type IndexMismatchError struct {
	IndexModel string
	IndexDim   int
	QueryModel string
	QueryDim   int
}

func (e *IndexMismatchError) Error() string {
	return fmt.Sprintf("%s: index built with %s/%d, query embedded with %s/%d",
		ErrIndexMismatch.Error(), e.IndexModel, e.IndexDim, e.QueryModel, e.QueryDim)
}

func (e *IndexMismatchError) Unwrap() error { return ErrIndexMismatch }

// NewIndexMismatch creates an index mismatch error.
func NewIndexMismatch(indexModel string, indexDim int, queryModel string, queryDim int) error {
	return &IndexMismatchError{
		IndexModel: indexModel,
		IndexDim:   indexDim,
		QueryModel: queryModel,
		QueryDim:   queryDim,
	}
}
