// Package errors defines the sentinel errors shared by the tokenizer, the
// term dictionary, the write-ahead log, the blob stores and the record
// parsers, plus a wrapping Error type that attaches a human-readable message
// to a sentinel.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrConfiguration    = errors.New("invalid configuration")
	ErrOutOfOrderInsert = errors.New("term inserted out of order")
	ErrBuilderFinalized = errors.New("dictionary builder already finalized")
	ErrEncoding         = errors.New("encoding error")
	ErrWAL              = errors.New("wal error")
	ErrStore            = errors.New("store error")
	ErrNotFound         = errors.New("key not found")
	ErrInvalidKey       = errors.New("invalid key")
	ErrChecksumMismatch = errors.New("checksum mismatch")
	ErrMalformedRecord  = errors.New("malformed record")
)

type Error struct {
	Err     error
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Err.Error(), e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

// Unwrap exposes both the sentinel and the underlying cause so errors.Is
// matches either of them.
func (e *Error) Unwrap() []error {
	if e.Cause != nil {
		return []error{e.Err, e.Cause}
	}
	return []error{e.Err}
}

func New(sentinel error, message string) *Error {
	return &Error{
		Err:     sentinel,
		Message: message,
	}
}

func Newf(sentinel error, format string, args ...any) *Error {
	return &Error{
		Err:     sentinel,
		Message: fmt.Sprintf(format, args...),
	}
}

// Wrap tags cause with sentinel. It returns nil when cause is nil.
func Wrap(sentinel error, cause error, message string) error {
	if cause == nil {
		return nil
	}
	return &Error{
		Err:     sentinel,
		Message: message,
		Cause:   cause,
	}
}

// Is mirrors errors.Is so callers only need to import this package.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As mirrors errors.As.
func As(err error, target any) bool {
	return errors.As(err, target)
}

// Kind returns a short, stable label for err, used for metric labels and
// structured log fields.
func Kind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ErrConfiguration):
		return "configuration"
	case errors.Is(err, ErrOutOfOrderInsert):
		return "out_of_order"
	case errors.Is(err, ErrBuilderFinalized):
		return "finalized"
	case errors.Is(err, ErrEncoding):
		return "encoding"
	case errors.Is(err, ErrMalformedRecord):
		return "malformed"
	case errors.Is(err, ErrChecksumMismatch):
		return "checksum"
	case errors.Is(err, ErrWAL):
		return "wal"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrStore):
		return "store"
	default:
		return "internal"
	}
}

// HTTPStatusCode maps err to the status an HTTP handler should answer with.
func HTTPStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrEncoding):
		return http.StatusRequestEntityTooLarge
	case errors.Is(err, ErrMalformedRecord), errors.Is(err, ErrInvalidKey):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrWAL), errors.Is(err, ErrStore):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
