// Package apperr defines the error vocabulary shared by the storage layer,
// the services and the HTTP handlers. Handlers map these onto status codes;
// nothing below the handlers ever returns a bare fmt.Errorf to a caller.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrGalleryNotFound covers both a missing gallery and a gallery that is
	// not owned by the caller. The two are indistinguishable on purpose.
	ErrGalleryNotFound = errors.New("gallery not found")
	ErrImageNotFound   = errors.New("image not found")
	ErrUserNotFound    = errors.New("user not found")

	// ErrArtifactNotFound is the blob-store miss, distinct from a metadata
	// miss so that drift between the two stores stays visible.
	ErrArtifactNotFound = errors.New("artifact not found")

	ErrNameCollision = errors.New("name already exists")
	ErrInvalidName   = errors.New("invalid name")
	ErrForbidden     = errors.New("access denied")
)

// ValidationError is a client-side input rejection. The message is safe to
// return verbatim to the caller.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// Validation builds a ValidationError.
func Validation(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// StorageError is an operational blob-store failure (permissions, disk full,
// transport). The path is logged, never returned to the client.
type StorageError struct {
	Op   string
	Path string
	Err  error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s %q: %v", e.Op, e.Path, e.Err)
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// Storage wraps err as a StorageError for the given operation and path.
func Storage(op, path string, err error) error {
	return &StorageError{Op: op, Path: path, Err: err}
}

// InconsistencyError reports divergence between the metadata store and the
// blob store: a record whose artifact is gone, or an artifact with no record.
// It is never auto-repaired and never masked as a plain not-found.
type InconsistencyError struct {
	Location string
	Missing  string // "artifact", "thumbnail" or "record"
}

func (e *InconsistencyError) Error() string {
	return fmt.Sprintf("storage inconsistency at %q: %s missing", e.Location, e.Missing)
}

// Inconsistency builds an InconsistencyError.
func Inconsistency(location, missing string) error {
	return &InconsistencyError{Location: location, Missing: missing}
}

// ThumbnailError is a failed derivation of a thumbnail, typically because the
// source bytes are not a decodable raster image.
type ThumbnailError struct {
	Err error
}

func (e *ThumbnailError) Error() string {
	return fmt.Sprintf("thumbnail generation failed: %v", e.Err)
}

func (e *ThumbnailError) Unwrap() error {
	return e.Err
}
