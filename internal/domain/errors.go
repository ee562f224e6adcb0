package domain

import "errors"

var (
	// ErrUnsupportedFormat signals an unrecognized source file type.
	ErrUnsupportedFormat = errors.New("unsupported format")
	// ErrFetch signals an unreachable or failed URL fetch.
	ErrFetch = errors.New("fetch failed")
	// ErrParse signals that no text could be extracted from the source.
	ErrParse = errors.New("parse failed")
	// ErrEmptyDocument signals a source that yielded no usable text.
	ErrEmptyDocument = errors.New("empty document")
	// ErrEmbeddingProvider signals an embedding provider failure.
	ErrEmbeddingProvider = errors.New("embedding provider error")
	// ErrGeneration signals a language model failure.
	ErrGeneration = errors.New("generation error")
	// ErrIndexNotReady signals a search against an unbuilt index.
	ErrIndexNotReady = errors.New("index not ready")
	// ErrVectorDimMismatch signals a vector dimension mismatch.
	ErrVectorDimMismatch = errors.New("vector dimension mismatch")
	// ErrSessionNotFound signals a missing or expired session.
	ErrSessionNotFound = errors.New("session not found")
	// ErrIngestSuperseded signals an ingestion abandoned in favor of a newer one.
	ErrIngestSuperseded = errors.New("ingestion superseded")
	// ErrEmptyQuestion signals a blank question.
	ErrEmptyQuestion = errors.New("empty question")
)
