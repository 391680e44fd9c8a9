package store

import (
	"github.com/cockroachdb/errors"
)

// Error kinds. Every error returned by the store, and by the layers built on
// it, is marked with exactly one of these so callers can branch with errors.Is
// regardless of wrapping.
var (
	ErrValidation      = errors.New("validation error")
	ErrNotFound        = errors.New("not found")
	ErrStorage         = errors.New("storage failure")
	ErrUnauthenticated = errors.New("unauthenticated")
)

func Validationf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrValidation)
}

func NotFoundf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrNotFound)
}

func Unauthenticatedf(format string, args ...any) error {
	return errors.Mark(errors.Newf(format, args...), ErrUnauthenticated)
}

// Storage wraps an underlying pebble or codec failure.
func Storage(err error, msg string) error {
	if err == nil {
		return nil
	}
	return errors.Mark(errors.Wrap(err, msg), ErrStorage)
}

func IsValidation(err error) bool      { return errors.Is(err, ErrValidation) }
func IsNotFound(err error) bool        { return errors.Is(err, ErrNotFound) }
func IsStorage(err error) bool         { return errors.Is(err, ErrStorage) }
func IsUnauthenticated(err error) bool { return errors.Is(err, ErrUnauthenticated) }

// Kind returns a short code for err: validation, not_found, storage,
// unauthenticated or "" when err carries none of the marks.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case IsValidation(err):
		return "validation"
	case IsNotFound(err):
		return "not_found"
	case IsUnauthenticated(err):
		return "unauthenticated"
	case IsStorage(err):
		return "storage"
	default:
		return ""
	}
}
