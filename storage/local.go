package storage

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/utils/pool"
)

// LocalStorage persists artifacts below a single base directory on the local
// filesystem. All operations reject identifiers that would escape the base.
type LocalStorage struct {
	absBasePath string
}

// NewLocalStorage creates the base directory if needed and returns a provider
// rooted there.
func NewLocalStorage(basePath string) (*LocalStorage, error) {
	absPath, err := filepath.Abs(basePath)
	if err != nil {
		return nil, fmt.Errorf("failed to get absolute path for '%s': %w", basePath, err)
	}

	if err := os.MkdirAll(absPath, 0755); err != nil {
		return nil, fmt.Errorf("failed to create local storage directory '%s': %w", absPath, err)
	}

	return &LocalStorage{
		absBasePath: absPath + string(os.PathSeparator),
	}, nil
}

// resolve joins identifier to the base and guards against traversal.
func (s *LocalStorage) resolve(identifier string) (string, error) {
	if !validIdentifier(identifier) {
		return "", apperr.ErrInvalidName
	}

	fullPath := filepath.Join(s.absBasePath, filepath.FromSlash(identifier))
	if !strings.HasPrefix(fullPath, s.absBasePath) {
		return "", apperr.ErrInvalidName
	}
	return fullPath, nil
}

// SaveWithContext writes a new artifact. The destination is opened with
// O_EXCL so a concurrent writer of the same path loses with a collision
// error instead of silently clobbering content.
func (s *LocalStorage) SaveWithContext(ctx context.Context, identifier string, file io.Reader) error {
	dstPath, err := s.resolve(identifier)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return apperr.Storage("save", identifier, err)
	}

	dst, err := os.OpenFile(dstPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		if os.IsExist(err) {
			return apperr.ErrNameCollision
		}
		return apperr.Storage("save", identifier, err)
	}
	defer dst.Close()

	buf := pool.SharedBufferPool.Get().(*[]byte)
	defer pool.SharedBufferPool.Put(buf)

	if _, err := io.CopyBuffer(dst, file, *buf); err != nil {
		_ = os.Remove(dstPath)
		return apperr.Storage("save", identifier, err)
	}

	return nil
}

// GetWithContext opens an artifact for reading.
func (s *LocalStorage) GetWithContext(ctx context.Context, identifier string) (io.ReadSeekCloser, error) {
	fullPath, err := s.resolve(identifier)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(fullPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, apperr.ErrArtifactNotFound
		}
		return nil, apperr.Storage("get", identifier, err)
	}

	return file, nil
}

// MoveWithContext renames an artifact within the storage root. The
// destination leaf must be a legal file name and must not already exist.
func (s *LocalStorage) MoveWithContext(ctx context.Context, oldIdentifier, newIdentifier string) error {
	if !ValidLeafName(filepath.Base(filepath.FromSlash(newIdentifier))) {
		return apperr.ErrInvalidName
	}

	srcPath, err := s.resolve(oldIdentifier)
	if err != nil {
		return err
	}
	dstPath, err := s.resolve(newIdentifier)
	if err != nil {
		return err
	}

	if _, err := os.Stat(dstPath); err == nil {
		return apperr.ErrNameCollision
	} else if !os.IsNotExist(err) {
		return apperr.Storage("move", newIdentifier, err)
	}

	if err := os.MkdirAll(filepath.Dir(dstPath), 0755); err != nil {
		return apperr.Storage("move", newIdentifier, err)
	}

	if err := os.Rename(srcPath, dstPath); err != nil {
		if os.IsNotExist(err) {
			return apperr.ErrArtifactNotFound
		}
		return apperr.Storage("move", oldIdentifier, err)
	}

	return nil
}

// DeleteWithContext removes an artifact. A missing artifact is reported as
// apperr.ErrArtifactNotFound, not swallowed.
func (s *LocalStorage) DeleteWithContext(ctx context.Context, identifier string) error {
	fullPath, err := s.resolve(identifier)
	if err != nil {
		return err
	}

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return apperr.ErrArtifactNotFound
		}
		return apperr.Storage("delete", identifier, err)
	}

	return nil
}

// EnsureDirWithContext provisions a gallery directory.
func (s *LocalStorage) EnsureDirWithContext(ctx context.Context, dir string) error {
	fullPath, err := s.resolve(dir)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return apperr.Storage("mkdir", dir, err)
	}
	return nil
}

// DeleteTreeWithContext removes a gallery directory and all its contents.
func (s *LocalStorage) DeleteTreeWithContext(ctx context.Context, dir string) error {
	fullPath, err := s.resolve(dir)
	if err != nil {
		return err
	}

	if err := os.RemoveAll(fullPath); err != nil {
		return apperr.Storage("rmtree", dir, err)
	}
	return nil
}

// Exists checks for an artifact without opening it.
func (s *LocalStorage) Exists(ctx context.Context, identifier string) (bool, error) {
	fullPath, err := s.resolve(identifier)
	if err != nil {
		return false, err
	}

	if _, err := os.Stat(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, apperr.Storage("stat", identifier, err)
	}
	return true, nil
}

// Health checks that the base directory is readable.
func (s *LocalStorage) Health(ctx context.Context) error {
	_, err := os.ReadDir(s.absBasePath)
	return err
}

// Name returns the provider name.
func (s *LocalStorage) Name() string {
	return "local"
}

// BasePath returns the absolute storage root, trailing separator included.
func (s *LocalStorage) BasePath() string {
	return s.absBasePath
}
