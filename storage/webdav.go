package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"time"

	"github.com/studio-b12/gowebdav"

	"github.com/avess/gallery-bed/apperr"
)

// WebDAVConfig holds the settings for a WebDAV-backed provider.
type WebDAVConfig struct {
	URL      string
	Username string
	Password string
	RootPath string
	Timeout  time.Duration
}

// WebDAVStorage persists artifacts on a remote WebDAV collection. gowebdav
// calls are not context-aware, so each one runs in a goroutine raced against
// the caller's context.
type WebDAVStorage struct {
	client   *gowebdav.Client
	rootPath string
}

// NewWebDAVStorage connects to the server and verifies the root collection is
// readable before returning a provider.
func NewWebDAVStorage(cfg WebDAVConfig) (*WebDAVStorage, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("webdav URL is required")
	}

	rootPath := strings.Trim(cfg.RootPath, "/")
	if rootPath != "" {
		rootPath = "/" + rootPath
	}

	client := gowebdav.NewClient(cfg.URL, cfg.Username, cfg.Password)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	s := &WebDAVStorage{client: client, rootPath: rootPath}
	if err := s.Health(ctx); err != nil {
		return nil, fmt.Errorf("webdav connection test failed: %w", err)
	}

	return s, nil
}

// fullPath joins an identifier to the configured root collection.
func (s *WebDAVStorage) fullPath(identifier string) string {
	return s.rootPath + "/" + strings.TrimLeft(identifier, "/")
}

// run executes fn in a goroutine and honours ctx cancellation.
func run(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// isCollectionExistsError matches the "collection already exists" responses
// WebDAV servers return from MKCOL in various shapes.
func isCollectionExistsError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, s := range []string{"already exists", "conflict", "Conflict", "409", "Method Not Allowed", "405"} {
		if strings.Contains(msg, s) {
			return true
		}
	}
	return false
}

// mkCollection creates dir and any missing parents, one MKCOL per level.
func (s *WebDAVStorage) mkCollection(ctx context.Context, dir string) error {
	current := ""
	for _, part := range strings.Split(strings.Trim(dir, "/"), "/") {
		if part == "" {
			continue
		}
		current = current + "/" + part

		p := current
		err := run(ctx, func() error { return s.client.Mkdir(p, os.FileMode(0755)) })
		if err != nil && !isCollectionExistsError(err) {
			return apperr.Storage("mkdir", dir, err)
		}
	}
	return nil
}

// SaveWithContext writes a new artifact, creating parent collections. An
// existing destination is a collision, mirroring the local backend.
func (s *WebDAVStorage) SaveWithContext(ctx context.Context, identifier string, file io.Reader) error {
	if !validIdentifier(identifier) {
		return apperr.ErrInvalidName
	}

	fullPath := s.fullPath(identifier)

	exists, err := s.stat(ctx, fullPath)
	if err != nil {
		return apperr.Storage("save", identifier, err)
	}
	if exists {
		return apperr.ErrNameCollision
	}

	if err := s.mkCollection(ctx, path.Dir(fullPath)); err != nil {
		return err
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return apperr.Storage("save", identifier, err)
	}

	if err := run(ctx, func() error { return s.client.Write(fullPath, data, 0644) }); err != nil {
		return apperr.Storage("save", identifier, err)
	}
	return nil
}

// GetWithContext reads an artifact fully into memory; gowebdav's stream
// reader cannot seek, and handlers serve with http.ServeContent.
func (s *WebDAVStorage) GetWithContext(ctx context.Context, identifier string) (io.ReadSeekCloser, error) {
	if !validIdentifier(identifier) {
		return nil, apperr.ErrInvalidName
	}

	fullPath := s.fullPath(identifier)

	var data []byte
	err := run(ctx, func() error {
		var readErr error
		data, readErr = s.client.Read(fullPath)
		return readErr
	})
	if err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil, apperr.ErrArtifactNotFound
		}
		return nil, apperr.Storage("get", identifier, err)
	}

	return nopSeekCloser{bytes.NewReader(data)}, nil
}

// MoveWithContext renames an artifact via WebDAV MOVE without overwrite.
func (s *WebDAVStorage) MoveWithContext(ctx context.Context, oldIdentifier, newIdentifier string) error {
	if !validIdentifier(oldIdentifier) || !validIdentifier(newIdentifier) {
		return apperr.ErrInvalidName
	}
	if !ValidLeafName(path.Base(newIdentifier)) {
		return apperr.ErrInvalidName
	}

	src := s.fullPath(oldIdentifier)
	dst := s.fullPath(newIdentifier)

	exists, err := s.stat(ctx, dst)
	if err != nil {
		return apperr.Storage("move", newIdentifier, err)
	}
	if exists {
		return apperr.ErrNameCollision
	}

	if err := run(ctx, func() error { return s.client.Rename(src, dst, false) }); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return apperr.ErrArtifactNotFound
		}
		return apperr.Storage("move", oldIdentifier, err)
	}
	return nil
}

// DeleteWithContext removes an artifact; absence is reported distinctly.
func (s *WebDAVStorage) DeleteWithContext(ctx context.Context, identifier string) error {
	if !validIdentifier(identifier) {
		return apperr.ErrInvalidName
	}

	fullPath := s.fullPath(identifier)

	exists, err := s.stat(ctx, fullPath)
	if err != nil {
		return apperr.Storage("delete", identifier, err)
	}
	if !exists {
		return apperr.ErrArtifactNotFound
	}

	if err := run(ctx, func() error { return s.client.Remove(fullPath) }); err != nil {
		return apperr.Storage("delete", identifier, err)
	}
	return nil
}

// EnsureDirWithContext provisions a collection for a gallery.
func (s *WebDAVStorage) EnsureDirWithContext(ctx context.Context, dir string) error {
	if !validIdentifier(dir) {
		return apperr.ErrInvalidName
	}
	return s.mkCollection(ctx, s.fullPath(dir))
}

// DeleteTreeWithContext removes a gallery collection recursively.
func (s *WebDAVStorage) DeleteTreeWithContext(ctx context.Context, dir string) error {
	if !validIdentifier(dir) {
		return apperr.ErrInvalidName
	}

	fullPath := s.fullPath(dir)
	if err := run(ctx, func() error { return s.client.RemoveAll(fullPath) }); err != nil {
		if gowebdav.IsErrNotFound(err) {
			return nil
		}
		return apperr.Storage("rmtree", dir, err)
	}
	return nil
}

// Exists checks for an artifact with PROPFIND.
func (s *WebDAVStorage) Exists(ctx context.Context, identifier string) (bool, error) {
	if !validIdentifier(identifier) {
		return false, apperr.ErrInvalidName
	}

	exists, err := s.stat(ctx, s.fullPath(identifier))
	if err != nil {
		return false, apperr.Storage("stat", identifier, err)
	}
	return exists, nil
}

// stat probes a full path, mapping 404 to (false, nil).
func (s *WebDAVStorage) stat(ctx context.Context, fullPath string) (bool, error) {
	var exists bool
	err := run(ctx, func() error {
		_, statErr := s.client.Stat(fullPath)
		if statErr == nil {
			exists = true
			return nil
		}
		if gowebdav.IsErrNotFound(statErr) {
			return nil
		}
		return statErr
	})
	return exists, err
}

// Health lists the root collection to verify the server is reachable.
func (s *WebDAVStorage) Health(ctx context.Context) error {
	return run(ctx, func() error {
		_, err := s.client.ReadDir(s.rootPath)
		return err
	})
}

// Name returns the provider name.
func (s *WebDAVStorage) Name() string {
	return "webdav"
}

type nopSeekCloser struct {
	io.ReadSeeker
}

func (nopSeekCloser) Close() error { return nil }
