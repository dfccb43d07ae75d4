package domain

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-specific error
type DomainError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code and message,
// so wrapped instances still match the sentinel values below.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

// NewDomainError creates a new DomainError
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorWithCause creates a new DomainError with an underlying cause
func NewDomainErrorWithCause(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Domain error codes
const (
	ErrCodeValidation          = "VALIDATION_ERROR"
	ErrCodeNotFound            = "NOT_FOUND"
	ErrCodeUnsupportedFileType = "UNSUPPORTED_FILE_TYPE"
	ErrCodeFileTooLarge        = "FILE_TOO_LARGE"
	ErrCodeDecodeFailure       = "DECODE_FAILURE"
	ErrCodeEmbeddingProvider   = "EMBEDDING_PROVIDER_ERROR"
	ErrCodeInternalError       = "INTERNAL_ERROR"
)

// Validation errors
var (
	ErrEmptyChunkContent = NewDomainError(ErrCodeValidation, "chunk content cannot be empty")
	ErrInvalidTopK       = NewDomainError(ErrCodeValidation, "topK must be a positive integer")
	ErrEmptyQuery        = NewDomainError(ErrCodeValidation, "query cannot be empty")
	ErrDimensionMismatch = NewDomainError(ErrCodeValidation, "embedding dimension does not match store")
)

// Upload errors
var (
	ErrUnsupportedFileType = NewDomainError(
		ErrCodeUnsupportedFileType,
		"unsupported file type, accepted: "+AcceptedTypesDescription(),
	)
	ErrFileTooLarge  = NewDomainError(ErrCodeFileTooLarge, "file exceeds upload size limit")
	ErrDecodeFailure = NewDomainError(ErrCodeDecodeFailure, "could not extract text from file")
)

// ErrChunkNotFound is reported by lookups on an absent chunk id.
var ErrChunkNotFound = NewDomainError(ErrCodeNotFound, "chunk not found")

// ErrEmbeddingProvider matches every EmbeddingProviderError via errors.Is.
var ErrEmbeddingProvider = NewDomainError(ErrCodeEmbeddingProvider, "embedding provider failed")

// NewEmbeddingProviderError wraps a provider failure (network, auth, rate
// limit, timeout) as a single error kind.
func NewEmbeddingProviderError(cause error) *DomainError {
	return NewDomainErrorWithCause(ErrCodeEmbeddingProvider, ErrEmbeddingProvider.Message, cause)
}

// IsEmbeddingProviderError reports whether err carries an embedding provider failure.
func IsEmbeddingProviderError(err error) bool {
	return errors.Is(err, ErrEmbeddingProvider)
}

// ErrorCode extracts the DomainError code from err, or "" when err is not a
// DomainError.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}
