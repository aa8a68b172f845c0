package storage

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avess/gallery-bed/apperr"
)

func newTestStorage(t *testing.T) *LocalStorage {
	s, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLocalSaveAndGet(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	err := s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("payload"))
	require.NoError(t, err)

	reader, err := s.GetWithContext(ctx, "1/2/a.png")
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(data))
}

func TestLocalSaveRefusesOverwrite(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("first")))

	err := s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("second"))
	assert.ErrorIs(t, err, apperr.ErrNameCollision)

	// The original content must be untouched.
	reader, err := s.GetWithContext(ctx, "1/2/a.png")
	require.NoError(t, err)
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	assert.Equal(t, "first", string(data))
}

func TestLocalRejectsTraversal(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	for _, identifier := range []string{"../escape.png", "1/../../escape.png", "/abs.png"} {
		err := s.SaveWithContext(ctx, identifier, strings.NewReader("x"))
		assert.ErrorIs(t, err, apperr.ErrInvalidName, "identifier %q", identifier)
	}
}

func TestLocalGetMissing(t *testing.T) {
	s := newTestStorage(t)

	_, err := s.GetWithContext(context.Background(), "1/2/missing.png")
	assert.ErrorIs(t, err, apperr.ErrArtifactNotFound)
}

func TestLocalDeleteMissing(t *testing.T) {
	s := newTestStorage(t)

	err := s.DeleteWithContext(context.Background(), "1/2/missing.png")
	assert.ErrorIs(t, err, apperr.ErrArtifactNotFound)
}

func TestLocalMove(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("payload")))
	require.NoError(t, s.MoveWithContext(ctx, "1/2/a.png", "1/2/b.png"))

	_, err := s.GetWithContext(ctx, "1/2/a.png")
	assert.ErrorIs(t, err, apperr.ErrArtifactNotFound)

	reader, err := s.GetWithContext(ctx, "1/2/b.png")
	require.NoError(t, err)
	defer reader.Close()
	data, _ := io.ReadAll(reader)
	assert.Equal(t, "payload", string(data))
}

func TestLocalMoveRefusesExistingDestination(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("a")))
	require.NoError(t, s.SaveWithContext(ctx, "1/2/b.png", strings.NewReader("b")))

	err := s.MoveWithContext(ctx, "1/2/a.png", "1/2/b.png")
	assert.ErrorIs(t, err, apperr.ErrNameCollision)
}

func TestLocalMoveRejectsBadLeaf(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("a")))

	err := s.MoveWithContext(ctx, "1/2/a.png", "1/2/bad|name.png")
	assert.ErrorIs(t, err, apperr.ErrInvalidName)
}

func TestLocalDeleteTree(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("a")))
	require.NoError(t, s.SaveWithContext(ctx, "1/2/thumbnail.a.png", strings.NewReader("t")))

	require.NoError(t, s.DeleteTreeWithContext(ctx, "1/2"))

	_, err := os.Stat(filepath.Join(s.BasePath(), "1", "2"))
	assert.True(t, os.IsNotExist(err))
}

func TestLocalExists(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	ok, err := s.Exists(ctx, "1/2/a.png")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.SaveWithContext(ctx, "1/2/a.png", strings.NewReader("a")))

	ok, err = s.Exists(ctx, "1/2/a.png")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestLocalEnsureDir(t *testing.T) {
	s := newTestStorage(t)
	ctx := context.Background()

	require.NoError(t, s.EnsureDirWithContext(ctx, "7/42"))

	info, err := os.Stat(filepath.Join(s.BasePath(), "7", "42"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}
