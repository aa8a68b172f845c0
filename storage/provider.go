package storage

import (
	"context"
	"io"
)

// Provider is the blob-store abstraction. Identifiers are relative paths
// below the provider's root, already derived by the path helpers in this
// package; every implementation re-validates them before use.
//
// Providers never touch the metadata store. Cross-store ordering is the
// orchestration services' job.
type Provider interface {
	// SaveWithContext writes a new artifact, creating intermediate
	// directories. An existing destination fails with
	// apperr.ErrNameCollision rather than being silently overwritten.
	SaveWithContext(ctx context.Context, identifier string, file io.Reader) error

	// GetWithContext opens an artifact for streaming. A missing artifact
	// fails with apperr.ErrArtifactNotFound.
	GetWithContext(ctx context.Context, identifier string) (io.ReadSeekCloser, error)

	// MoveWithContext renames an artifact. An existing destination fails
	// with apperr.ErrNameCollision, an illegal destination leaf with
	// apperr.ErrInvalidName.
	MoveWithContext(ctx context.Context, oldIdentifier, newIdentifier string) error

	// DeleteWithContext removes an artifact. Deleting an absent artifact is
	// not idempotent: it fails with apperr.ErrArtifactNotFound, distinct
	// from an I/O failure, so callers decide whether that is fatal.
	DeleteWithContext(ctx context.Context, identifier string) error

	// EnsureDirWithContext provisions a directory (a no-op on flat object
	// stores).
	EnsureDirWithContext(ctx context.Context, dir string) error

	// DeleteTreeWithContext removes a directory and everything beneath it.
	// Used only for gallery deletion.
	DeleteTreeWithContext(ctx context.Context, dir string) error

	// Exists checks for an artifact without opening it.
	Exists(ctx context.Context, identifier string) (bool, error)

	// Health checks that the backing store is reachable.
	Health(ctx context.Context) error

	// Name returns the provider name ("local", "minio", "webdav").
	Name() string
}
