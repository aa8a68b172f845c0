package images

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/cache"
	"github.com/avess/gallery-bed/database/models"
	galleryrepo "github.com/avess/gallery-bed/database/repo/galleries"
	imagerepo "github.com/avess/gallery-bed/database/repo/images"
	"github.com/avess/gallery-bed/internal/auth"
	"github.com/avess/gallery-bed/internal/galleries"
	"github.com/avess/gallery-bed/internal/locks"
	"github.com/avess/gallery-bed/storage"
)

var pngPayload = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 0, 0, 0, 0}

// stubThumbnailer avoids a libvips dependency in tests.
type stubThumbnailer struct {
	fail bool
}

func (s *stubThumbnailer) Resize(ctx context.Context, data []byte, width, height int) ([]byte, error) {
	if s.fail {
		return nil, &apperr.ThumbnailError{Err: errors.New("not decodable")}
	}
	return []byte("thumb"), nil
}

type testEnv struct {
	svc       *Service
	db        *gorm.DB
	images    *imagerepo.Repository
	galleries *galleryrepo.Repository
	keyed     *locks.Keyed
	baseDir   string
	owner     *models.User
	gallery   *models.Gallery
	id        auth.Identity
}

func setupEnv(t *testing.T, thumbnailer Thumbnailer) *testEnv {
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "test.db")), &gorm.Config{TranslateError: true})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.User{}, &models.Gallery{}, &models.Image{}))

	owner := &models.User{Username: "alice", Password: "x", Role: models.RoleUser}
	require.NoError(t, db.Create(owner).Error)
	gallery := &models.Gallery{Name: "holiday", UserID: owner.ID}
	require.NoError(t, db.Create(gallery).Error)

	baseDir := t.TempDir()
	store, err := storage.NewLocalStorage(baseDir)
	require.NoError(t, err)

	if thumbnailer == nil {
		thumbnailer = &stubThumbnailer{}
	}

	imagesRepo := imagerepo.NewRepository(db)
	galleriesRepo := galleryrepo.NewRepository(db)
	keyed := locks.NewKeyed()
	svc := NewService(
		imagesRepo,
		galleriesRepo,
		store,
		thumbnailer,
		keyed,
		cache.NewHelper(nil, 0),
		8_000_000,
		[]string{"image/jpeg", "image/png"},
		250, 140,
	)

	return &testEnv{
		svc:       svc,
		db:        db,
		images:    imagesRepo,
		galleries: galleriesRepo,
		keyed:     keyed,
		baseDir:   baseDir,
		owner:     owner,
		gallery:   gallery,
		id:        auth.Identity{UserID: owner.ID, Username: owner.Username, Role: models.RoleUser},
	}
}

func (env *testEnv) upload(t *testing.T, fileName string) *models.Image {
	image, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
		fileName, bytes.NewReader(pngPayload), int64(len(pngPayload)))
	require.NoError(t, err)
	return image
}

func (env *testEnv) fileExists(relPath string) bool {
	_, err := os.Stat(filepath.Join(env.baseDir, filepath.FromSlash(relPath)))
	return err == nil
}

func TestUploadStoresArtifactThumbnailAndRecord(t *testing.T) {
	env := setupEnv(t, nil)

	image := env.upload(t, "cat.png")

	// Stored name is the original name with a numeric timestamp prefix.
	require.True(t, strings.HasSuffix(image.Name, "-cat.png"), "stored name %q", image.Name)
	prefix := strings.TrimSuffix(image.Name, "-cat.png")
	_, err := strconv.ParseInt(prefix, 10, 64)
	assert.NoError(t, err, "prefix %q should be a timestamp", prefix)

	assert.True(t, env.fileExists(image.Location))
	assert.True(t, env.fileExists(storage.ThumbnailPath(env.owner.ID, env.gallery.ID, image.Name)))

	got, err := env.images.GetByGalleryAndName(env.gallery.ID, image.Name)
	require.NoError(t, err)
	assert.Equal(t, image.Location, got.Location)
}

func TestUploadFailsWhenGalleryDeletedConcurrently(t *testing.T) {
	env := setupEnv(t, nil)

	// Hold the gallery lock the way a deletion does, start an upload that
	// blocks on it, remove the gallery, then release. The upload must see
	// the gallery gone instead of resurrecting its directory.
	release := env.keyed.Lock(galleries.LockKey(env.gallery.ID))

	done := make(chan error, 1)
	go func() {
		_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
			"cat.png", bytes.NewReader(pngPayload), int64(len(pngPayload)))
		done <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, env.galleries.Delete(env.gallery.ID))
	release()

	err := <-done
	assert.ErrorIs(t, err, apperr.ErrGalleryNotFound)

	rows, _, err := env.images.ListByGallery(env.gallery.ID, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, rows, "no record may reference the deleted gallery")
	assert.False(t, env.fileExists(storage.GalleryDir(env.owner.ID, env.gallery.ID)),
		"no blobs may be written under the deleted gallery")
}

func TestUploadRejectsEmptyFile(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
		"cat.png", bytes.NewReader(nil), 0)
	assert.True(t, apperr.IsValidation(err))
}

func TestUploadRejectsOversizedFile(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
		"cat.png", bytes.NewReader(pngPayload), 8_000_001)
	require.Error(t, err)
	assert.True(t, apperr.IsValidation(err))
	assert.Contains(t, err.Error(), "8 Mb")
}

func TestUploadRejectsNonImageContent(t *testing.T) {
	env := setupEnv(t, nil)

	payload := []byte("definitely plain text, not an image")
	_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
		"fake.png", bytes.NewReader(payload), int64(len(payload)))
	assert.True(t, apperr.IsValidation(err))
}

func TestUploadRejectsBadFileName(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
		"../escape.png", bytes.NewReader(pngPayload), int64(len(pngPayload)))
	assert.True(t, apperr.IsValidation(err))
}

func TestUploadMissingGallery(t *testing.T) {
	env := setupEnv(t, nil)

	_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, 9999,
		"cat.png", bytes.NewReader(pngPayload), int64(len(pngPayload)))
	assert.ErrorIs(t, err, apperr.ErrGalleryNotFound)
}

func TestUploadThumbnailFailureLeavesNoRecord(t *testing.T) {
	env := setupEnv(t, &stubThumbnailer{fail: true})

	_, err := env.svc.Upload(context.Background(), env.id, env.owner.ID, env.gallery.ID,
		"cat.png", bytes.NewReader(pngPayload), int64(len(pngPayload)))
	require.Error(t, err)

	var thumbErr *apperr.ThumbnailError
	assert.ErrorAs(t, err, &thumbErr)

	// No record may reference the orphan artifact.
	items, total, listErr := env.images.ListByGallery(env.gallery.ID, 1, 10)
	require.NoError(t, listErr)
	assert.Empty(t, items)
	assert.Zero(t, total)
}

func TestFindStreamsArtifact(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")

	got, reader, err := env.svc.Find(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name)
	require.NoError(t, err)
	defer reader.Close()

	assert.Equal(t, image.ID, got.ID)
	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, pngPayload, data)
}

func TestFindReportsMissingArtifactAsInconsistency(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")
	require.NoError(t, os.Remove(filepath.Join(env.baseDir, filepath.FromSlash(image.Location))))

	_, _, err := env.svc.Find(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name)

	var inconsistency *apperr.InconsistencyError
	require.ErrorAs(t, err, &inconsistency)
	assert.Equal(t, "artifact", inconsistency.Missing)
}

func TestFindThumbnail(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")

	_, reader, err := env.svc.FindThumbnail(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name)
	require.NoError(t, err)
	defer reader.Close()

	data, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, "thumb", string(data))
}

func TestDeleteRemovesEverything(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")
	thumbPath := storage.ThumbnailPath(env.owner.ID, env.gallery.ID, image.Name)

	require.NoError(t, env.svc.Delete(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name))

	assert.False(t, env.fileExists(image.Location))
	assert.False(t, env.fileExists(thumbPath))

	_, err := env.images.GetByGalleryAndName(env.gallery.ID, image.Name)
	assert.ErrorIs(t, err, apperr.ErrImageNotFound)
}

func TestDeleteToleratesMissingThumbnail(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")
	thumbPath := storage.ThumbnailPath(env.owner.ID, env.gallery.ID, image.Name)
	require.NoError(t, os.Remove(filepath.Join(env.baseDir, filepath.FromSlash(thumbPath))))

	assert.NoError(t, env.svc.Delete(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name))
}

func TestDeleteToleratesMissingArtifact(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")
	require.NoError(t, os.Remove(filepath.Join(env.baseDir, filepath.FromSlash(image.Location))))

	// The dangling record must still be cleaned up.
	require.NoError(t, env.svc.Delete(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name))

	_, err := env.images.GetByGalleryAndName(env.gallery.ID, image.Name)
	assert.ErrorIs(t, err, apperr.ErrImageNotFound)
}

func TestRenamePreservesExtension(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")
	oldLocation := image.Location
	oldThumb := storage.ThumbnailPath(env.owner.ID, env.gallery.ID, image.Name)

	renamed, err := env.svc.Rename(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name, "dog")
	require.NoError(t, err)

	assert.Equal(t, "dog.png", renamed.Name)
	assert.Equal(t, storage.ImagePath(env.owner.ID, env.gallery.ID, "dog.png"), renamed.Location)

	// Both blobs moved, nothing left at the old names.
	assert.True(t, env.fileExists(renamed.Location))
	assert.True(t, env.fileExists(storage.ThumbnailPath(env.owner.ID, env.gallery.ID, "dog.png")))
	assert.False(t, env.fileExists(oldLocation))
	assert.False(t, env.fileExists(oldThumb))

	got, err := env.images.GetByGalleryAndName(env.gallery.ID, "dog.png")
	require.NoError(t, err)
	assert.Equal(t, renamed.Location, got.Location)
}

func TestRenameIgnoresCallerExtension(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")

	// The stored extension wins even if the caller smuggles a different one.
	renamed, err := env.svc.Rename(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name, "evil.exe")
	require.NoError(t, err)
	assert.Equal(t, "evil.exe.png", renamed.Name)
}

func TestRenameRejectsTakenName(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	first := env.upload(t, "a.png")
	second := env.upload(t, "b.png")

	target := strings.TrimSuffix(first.Name, ".png")
	_, err := env.svc.Rename(ctx, env.id, env.owner.ID, env.gallery.ID, second.Name, target)
	assert.True(t, apperr.IsValidation(err))

	// The losing rename must leave the image where it was.
	assert.True(t, env.fileExists(second.Location))
	_, getErr := env.images.GetByGalleryAndName(env.gallery.ID, second.Name)
	assert.NoError(t, getErr)
}

func TestRenameToSameNameIsNoop(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	image := env.upload(t, "cat.png")
	base := strings.TrimSuffix(image.Name, ".png")

	renamed, err := env.svc.Rename(ctx, env.id, env.owner.ID, env.gallery.ID, image.Name, base)
	require.NoError(t, err)
	assert.Equal(t, image.Name, renamed.Name)
	assert.True(t, env.fileExists(image.Location))
}

func TestListPagination(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	env.upload(t, "a.png")
	env.upload(t, "b.png")
	env.upload(t, "c.png")

	items, total, err := env.svc.List(ctx, env.id, env.owner.ID, env.gallery.ID, 1, 2)
	require.NoError(t, err)
	assert.EqualValues(t, 3, total)
	assert.Len(t, items, 2)
}

func TestListAllSpansGalleries(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	env.upload(t, "a.png")

	second := &models.Gallery{Name: "second", UserID: env.owner.ID}
	require.NoError(t, env.db.Create(second).Error)
	require.NoError(t, env.images.Create(&models.Image{Name: "x.png", Location: "loc", GalleryID: second.ID}))

	items, total, err := env.svc.ListAll(ctx, env.id, env.owner.ID, 1, 10)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, items, 2)
}

func TestForbiddenForOtherUser(t *testing.T) {
	env := setupEnv(t, nil)
	ctx := context.Background()

	stranger := auth.Identity{UserID: env.owner.ID + 1, Role: models.RoleUser}
	_, err := env.svc.Upload(ctx, stranger, env.owner.ID, env.gallery.ID,
		"cat.png", bytes.NewReader(pngPayload), int64(len(pngPayload)))
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}
