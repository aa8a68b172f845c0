package galleries

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/cache"
	"github.com/avess/gallery-bed/database/models"
	galleryrepo "github.com/avess/gallery-bed/database/repo/galleries"
	"github.com/avess/gallery-bed/internal/auth"
	"github.com/avess/gallery-bed/internal/locks"
	"github.com/avess/gallery-bed/storage"
)

const testIllegalChars = "~`!@#$%^&*()-+{}[]<>?/\\"

type testEnv struct {
	svc     *Service
	repo    *galleryrepo.Repository
	baseDir string
	owner   *models.User
	id      auth.Identity
}

func setupEnv(t *testing.T, store storage.Provider) *testEnv {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Gallery{}, &models.Image{}))

	owner := &models.User{Username: "alice", Password: "x", Role: models.RoleUser}
	require.NoError(t, db.Create(owner).Error)

	baseDir := ""
	if store == nil {
		baseDir = t.TempDir()
		local, err := storage.NewLocalStorage(baseDir)
		require.NoError(t, err)
		store = local
	}

	repo := galleryrepo.NewRepository(db)
	svc := NewService(repo, store, locks.NewKeyed(), cache.NewHelper(nil, 0), testIllegalChars)

	return &testEnv{
		svc:     svc,
		repo:    repo,
		baseDir: baseDir,
		owner:   owner,
		id:      auth.Identity{UserID: owner.ID, Username: owner.Username, Role: models.RoleUser},
	}
}

func TestCreateProvisionsDirectory(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	gallery, err := env.svc.Create(ctx, env.id, env.owner.ID, "holiday")
	require.NoError(t, err)
	require.NotZero(t, gallery.ID)

	dir := filepath.Join(env.baseDir, storage.GalleryDir(env.owner.ID, gallery.ID))
	info, err := os.Stat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestCreateValidatesName(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	cases := []string{
		"",
		strings.Repeat("x", 51),
		"bad!name",
		"bad/name",
		"question?",
	}
	for _, name := range cases {
		_, err := env.svc.Create(ctx, env.id, env.owner.ID, name)
		assert.True(t, apperr.IsValidation(err), "expected validation error for %q, got %v", name, err)
	}

	// 50 characters is the inclusive upper bound.
	_, err := env.svc.Create(ctx, env.id, env.owner.ID, strings.Repeat("x", 50))
	assert.NoError(t, err)
}

func TestCreateRejectsDuplicateName(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.id, env.owner.ID, "holiday")
	require.NoError(t, err)

	_, err = env.svc.Create(ctx, env.id, env.owner.ID, "holiday")
	assert.True(t, apperr.IsValidation(err))
}

func TestCreateForbiddenForOtherUser(t *testing.T) {
	env := setupEnv(t, nil)

	stranger := auth.Identity{UserID: env.owner.ID + 1, Role: models.RoleUser}
	_, err := env.svc.Create(context.Background(), stranger, env.owner.ID, "holiday")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestCreateAdminBypassesOwnership(t *testing.T) {
	env := setupEnv(t, nil)

	admin := auth.Identity{UserID: env.owner.ID + 1, Role: models.RoleAdmin}
	_, err := env.svc.Create(context.Background(), admin, env.owner.ID, "holiday")
	assert.NoError(t, err)
}

// failingDirStore wraps a real provider but refuses to provision directories.
type failingDirStore struct {
	storage.Provider
}

func (s *failingDirStore) EnsureDirWithContext(ctx context.Context, dir string) error {
	return apperr.Storage("mkdir", dir, errors.New("disk on fire"))
}

func TestCreateCompensatesOnProvisioningFailure(t *testing.T) {
	local, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	env := setupEnv(t, &failingDirStore{Provider: local})
	ctx := context.Background()

	_, err = env.svc.Create(ctx, env.id, env.owner.ID, "holiday")
	require.Error(t, err)

	// The inserted record must be rolled back, so the name is free again.
	taken, err := env.repo.ExistsByNameAndOwner("holiday", env.owner.ID)
	require.NoError(t, err)
	assert.False(t, taken)
}

func TestRenameIsMetadataOnly(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	gallery, err := env.svc.Create(ctx, env.id, env.owner.ID, "old")
	require.NoError(t, err)

	dir := filepath.Join(env.baseDir, storage.GalleryDir(env.owner.ID, gallery.ID))

	renamed, err := env.svc.Rename(ctx, env.id, env.owner.ID, gallery.ID, "new")
	require.NoError(t, err)
	assert.Equal(t, "new", renamed.Name)

	// The directory is keyed by id and must still be exactly where it was.
	_, err = os.Stat(dir)
	assert.NoError(t, err)
}

func TestRenameRejectsTakenName(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	_, err := env.svc.Create(ctx, env.id, env.owner.ID, "first")
	require.NoError(t, err)
	second, err := env.svc.Create(ctx, env.id, env.owner.ID, "second")
	require.NoError(t, err)

	_, err = env.svc.Rename(ctx, env.id, env.owner.ID, second.ID, "first")
	assert.True(t, apperr.IsValidation(err))
}

func TestDeleteRemovesTreeAndRecord(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	gallery, err := env.svc.Create(ctx, env.id, env.owner.ID, "holiday")
	require.NoError(t, err)

	dir := filepath.Join(env.baseDir, storage.GalleryDir(env.owner.ID, gallery.ID))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.png"), []byte("x"), 0644))

	require.NoError(t, env.svc.Delete(ctx, env.id, env.owner.ID, gallery.ID))

	_, err = os.Stat(dir)
	assert.True(t, os.IsNotExist(err))

	_, err = env.svc.Get(ctx, env.id, env.owner.ID, gallery.ID)
	assert.ErrorIs(t, err, apperr.ErrGalleryNotFound)
}

func TestDeleteMissingGallery(t *testing.T) {
	env := setupEnv(t, nil)

	err := env.svc.Delete(context.Background(), env.id, env.owner.ID, 9999)
	assert.ErrorIs(t, err, apperr.ErrGalleryNotFound)
}
