package models

import "errors"

var (
	// ErrNotFound means a referenced owner, record or embedding does not exist.
	ErrNotFound = errors.New("not found")
	// ErrDimensionMismatch means two vectors (or a vector and the store) disagree on length.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
	// ErrEmptyVector means a vector has zero length or zero norm.
	ErrEmptyVector = errors.New("empty embedding vector")
	// ErrTimeout means a match or duplicate scan exceeded its deadline.
	ErrTimeout = errors.New("scan timed out")
	// ErrExtraction means the embedding extractor failed on an image.
	ErrExtraction = errors.New("embedding extraction failed")
	// ErrUnauthorized means the caller has no rights over the owner.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrInvalidTransition means a FileRecord status change is not allowed.
	ErrInvalidTransition = errors.New("invalid status transition")
)
