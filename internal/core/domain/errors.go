package domain

import (
	"errors"
	"fmt"
)

// Domain errors - used across all layers
var (
	// ErrNotFound indicates the requested resource was not found
	ErrNotFound = errors.New("not found")

	// ErrInvalidInput indicates the input is invalid
	ErrInvalidInput = errors.New("invalid input")

	// ErrUnsupportedFileType indicates the file's MIME type cannot be ingested
	ErrUnsupportedFileType = errors.New("unsupported file type")

	// ErrInvalidChunking indicates a chunker configuration that cannot terminate
	ErrInvalidChunking = errors.New("chunk overlap must be smaller than chunk size")

	// ErrDimensionMismatch indicates the vector index dimensionality does not
	// match the embedding service output
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")

	// ErrRateLimited indicates the generation backend rejected the request
	// with a rate-limit status
	ErrRateLimited = errors.New("rate limited")

	// ErrServiceUnavailable indicates an AI service could not be reached
	ErrServiceUnavailable = errors.New("service unavailable")
)

// PermanentError marks a failure that retrying cannot fix (unsupported file
// type, unparseable content, bad configuration). The worker fails these jobs
// terminally instead of consuming the retry budget.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// Permanent wraps err as a PermanentError.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// Permanentf wraps a formatted error as a PermanentError.
func Permanentf(format string, args ...any) error {
	return &PermanentError{Err: fmt.Errorf(format, args...)}
}

// IsPermanent reports whether err is (or wraps) a PermanentError.
func IsPermanent(err error) bool {
	var pe *PermanentError
	return errors.As(err, &pe)
}
