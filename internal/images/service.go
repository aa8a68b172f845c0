// Package images orchestrates the image lifecycle across the metadata store
// and the blob store. The write order is fixed: blobs first, record last, so
// a partial failure leaves an orphan blob (logged, garbage-collectable)
// instead of a record pointing at bytes that do not exist.
package images

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"mime/multipart"
	"path"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/cache"
	"github.com/avess/gallery-bed/database/models"
	galleryrepo "github.com/avess/gallery-bed/database/repo/galleries"
	imagerepo "github.com/avess/gallery-bed/database/repo/images"
	"github.com/avess/gallery-bed/internal/auth"
	"github.com/avess/gallery-bed/internal/galleries"
	"github.com/avess/gallery-bed/internal/locks"
	"github.com/avess/gallery-bed/storage"
	"github.com/avess/gallery-bed/utils/mime"
)

// maxBatchUploads bounds the parallelism of a multi-file upload.
const maxBatchUploads = 4

// Service implements image upload/find/rename/delete/list.
type Service struct {
	images       *imagerepo.Repository
	galleries    *galleryrepo.Repository
	store        storage.Provider
	thumbnailer  Thumbnailer
	locks        *locks.Keyed
	cacheHelper  *cache.Helper
	maxSizeBytes int64
	allowedTypes map[string]bool
	thumbWidth   int
	thumbHeight  int
}

func NewService(
	images *imagerepo.Repository,
	galleryRepo *galleryrepo.Repository,
	store storage.Provider,
	thumbnailer Thumbnailer,
	keyed *locks.Keyed,
	cacheHelper *cache.Helper,
	maxSizeBytes int64,
	allowedTypes []string,
	thumbWidth, thumbHeight int,
) *Service {
	allowed := make(map[string]bool, len(allowedTypes))
	for _, t := range allowedTypes {
		allowed[t] = true
	}
	return &Service{
		images:       images,
		galleries:    galleryRepo,
		store:        store,
		thumbnailer:  thumbnailer,
		locks:        keyed,
		cacheHelper:  cacheHelper,
		maxSizeBytes: maxSizeBytes,
		allowedTypes: allowed,
		thumbWidth:   thumbWidth,
		thumbHeight:  thumbHeight,
	}
}

func imageLockKey(galleryID uint, name string) string {
	return fmt.Sprintf("image/%d/%s", galleryID, name)
}

// resolveGallery authorizes the caller and fetches the owning gallery.
func (s *Service) resolveGallery(id auth.Identity, ownerID, galleryID uint) (*models.Gallery, error) {
	if !id.CanAccess(ownerID) {
		return nil, apperr.ErrForbidden
	}
	return s.galleries.GetByIDAndOwner(galleryID, ownerID)
}

// resolveImage fetches an image row by stored name, cache first.
func (s *Service) resolveImage(galleryID uint, name string) (*models.Image, error) {
	if cached := s.cacheHelper.GetImage(galleryID, name); cached != nil {
		return cached, nil
	}
	image, err := s.images.GetByGalleryAndName(galleryID, name)
	if err != nil {
		return nil, err
	}
	s.cacheHelper.SetImage(image)
	return image, nil
}

// validatePayload applies the upload rules: non-empty, size cap, sniffed
// content type in the allow-list. The caller-supplied Content-Type header is
// ignored.
func (s *Service) validatePayload(file io.ReadSeeker, size int64) error {
	if size == 0 {
		return apperr.Validation("Image shouldn't be empty.")
	}
	if size > s.maxSizeBytes {
		return apperr.Validation("Image size should not be bigger than %d Mb.", s.maxSizeBytes/1_000_000)
	}

	contentType, err := mime.SniffContentType(file)
	if err != nil {
		return err
	}
	if !s.allowedTypes[contentType] {
		return apperr.Validation("Image should be a valid jpg or png file.")
	}
	return nil
}

// Upload validates the payload and writes, in order: the artifact, its
// thumbnail, the metadata record. The stored name is the caller's file name
// prefixed with the upload's unix-millisecond timestamp; the unique index on
// (gallery_id, name) catches the residual same-millisecond race.
func (s *Service) Upload(ctx context.Context, id auth.Identity, ownerID, galleryID uint, fileName string, file io.ReadSeeker, size int64) (*models.Image, error) {
	// Shared gallery lock: parallel uploads proceed, gallery deletion waits.
	// The gallery is resolved under the lock, otherwise a deletion slipping
	// in between check and writes would leave a record pointing at a gallery
	// that no longer exists.
	unlock := s.locks.RLock(galleries.LockKey(galleryID))
	defer unlock()

	gallery, err := s.resolveGallery(id, ownerID, galleryID)
	if err != nil {
		return nil, err
	}

	if !storage.ValidLeafName(fileName) {
		return nil, apperr.Validation("Invalid image name.")
	}
	if err := s.validatePayload(file, size); err != nil {
		return nil, err
	}

	storedName := fmt.Sprintf("%d-%s", time.Now().UnixMilli(), fileName)

	exists, err := s.images.ExistsByGalleryAndName(galleryID, storedName)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, apperr.Validation("Image with that name already exists.")
	}

	data, err := io.ReadAll(file)
	if err != nil {
		return nil, err
	}

	location := storage.ImagePath(ownerID, galleryID, storedName)
	thumbLocation := storage.ThumbnailPath(ownerID, galleryID, storedName)

	if err := s.store.SaveWithContext(ctx, location, bytes.NewReader(data)); err != nil {
		if errors.Is(err, apperr.ErrNameCollision) {
			return nil, apperr.Validation("Image with that name already exists.")
		}
		return nil, err
	}

	thumb, err := s.thumbnailer.Resize(ctx, data, s.thumbWidth, s.thumbHeight)
	if err != nil {
		log.Printf("[images] Thumbnail derivation failed for %s, artifact left as orphan: %v", location, err)
		return nil, err
	}
	if err := s.store.SaveWithContext(ctx, thumbLocation, bytes.NewReader(thumb)); err != nil {
		log.Printf("[images] Thumbnail write failed for %s, artifact left as orphan: %v", thumbLocation, err)
		return nil, err
	}

	image := &models.Image{
		Name:      storedName,
		Location:  location,
		GalleryID: gallery.ID,
	}
	if err := s.images.Create(image); err != nil {
		// The blobs stay: a retried request may still need them, and the
		// drift scanner will report them if nothing claims them.
		log.Printf("[images] Record insert failed for %s, blobs left as orphans: %v", location, err)
		if errors.Is(err, apperr.ErrNameCollision) {
			return nil, apperr.Validation("Image with that name already exists.")
		}
		return nil, err
	}

	s.cacheHelper.SetImage(image)
	return image, nil
}

// UploadResult is the outcome of one file in a batch upload.
type UploadResult struct {
	FileName string
	Image    *models.Image
	Error    string
}

// UploadMany uploads several files with bounded parallelism. Individual
// failures are reported per file instead of aborting the batch.
func (s *Service) UploadMany(ctx context.Context, id auth.Identity, ownerID, galleryID uint, files []*multipart.FileHeader) ([]*UploadResult, error) {
	if _, err := s.resolveGallery(id, ownerID, galleryID); err != nil {
		return nil, err
	}

	results := make([]*UploadResult, len(files))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxBatchUploads)

	for i, fileHeader := range files {
		i, fileHeader := i, fileHeader
		g.Go(func() error {
			result := &UploadResult{FileName: fileHeader.Filename}
			results[i] = result

			src, err := fileHeader.Open()
			if err != nil {
				result.Error = err.Error()
				return nil
			}
			defer src.Close()

			image, err := s.Upload(ctx, id, ownerID, galleryID, fileHeader.Filename, src, fileHeader.Size)
			if err != nil {
				result.Error = err.Error()
				return nil
			}
			result.Image = image
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return results, nil
}

// Find returns the image record and a stream of its artifact. A record
// whose artifact is gone surfaces as an inconsistency, never as a plain
// not-found, so drift stays visible.
func (s *Service) Find(ctx context.Context, id auth.Identity, ownerID, galleryID uint, name string) (*models.Image, io.ReadSeekCloser, error) {
	if _, err := s.resolveGallery(id, ownerID, galleryID); err != nil {
		return nil, nil, err
	}

	image, err := s.resolveImage(galleryID, name)
	if err != nil {
		return nil, nil, err
	}

	reader, err := s.store.GetWithContext(ctx, image.Location)
	if err != nil {
		if errors.Is(err, apperr.ErrArtifactNotFound) {
			return nil, nil, apperr.Inconsistency(image.Location, "artifact")
		}
		return nil, nil, err
	}
	return image, reader, nil
}

// FindThumbnail returns the image record and a stream of its thumbnail.
func (s *Service) FindThumbnail(ctx context.Context, id auth.Identity, ownerID, galleryID uint, name string) (*models.Image, io.ReadSeekCloser, error) {
	if _, err := s.resolveGallery(id, ownerID, galleryID); err != nil {
		return nil, nil, err
	}

	image, err := s.resolveImage(galleryID, name)
	if err != nil {
		return nil, nil, err
	}

	thumbLocation := storage.ThumbnailPath(ownerID, galleryID, image.Name)
	reader, err := s.store.GetWithContext(ctx, thumbLocation)
	if err != nil {
		if errors.Is(err, apperr.ErrArtifactNotFound) {
			return nil, nil, apperr.Inconsistency(thumbLocation, "thumbnail")
		}
		return nil, nil, err
	}
	return image, reader, nil
}

// Delete removes the artifact, its thumbnail, then the record. A missing
// thumbnail is tolerated (older records predate thumbnail generation); a
// missing artifact is logged as drift but the deletion still completes so
// the dangling record gets cleaned up.
func (s *Service) Delete(ctx context.Context, id auth.Identity, ownerID, galleryID uint, name string) error {
	unlockGallery := s.locks.RLock(galleries.LockKey(galleryID))
	defer unlockGallery()
	unlock := s.locks.Lock(imageLockKey(galleryID, name))
	defer unlock()

	if _, err := s.resolveGallery(id, ownerID, galleryID); err != nil {
		return err
	}

	image, err := s.images.GetByGalleryAndName(galleryID, name)
	if err != nil {
		return err
	}

	if err := s.store.DeleteWithContext(ctx, image.Location); err != nil {
		if errors.Is(err, apperr.ErrArtifactNotFound) {
			log.Printf("[images] %v", apperr.Inconsistency(image.Location, "artifact"))
		} else {
			return err
		}
	}

	thumbLocation := storage.ThumbnailPath(ownerID, galleryID, image.Name)
	if err := s.store.DeleteWithContext(ctx, thumbLocation); err != nil && !errors.Is(err, apperr.ErrArtifactNotFound) {
		return err
	}

	if err := s.images.Delete(image.ID); err != nil {
		return err
	}

	s.cacheHelper.InvalidateImage(galleryID, name)
	return nil
}

// Rename moves the artifact and the thumbnail to the new stored name, then
// updates the record. The new name is the caller's base name plus the
// original file's extension; the extension is never caller-controlled. The
// record is only touched after both moves succeed, so it never references a
// path that does not exist yet.
func (s *Service) Rename(ctx context.Context, id auth.Identity, ownerID, galleryID uint, name, newBaseName string) (*models.Image, error) {
	unlockGallery := s.locks.RLock(galleries.LockKey(galleryID))
	defer unlockGallery()
	unlock := s.locks.Lock(imageLockKey(galleryID, name))
	defer unlock()

	if _, err := s.resolveGallery(id, ownerID, galleryID); err != nil {
		return nil, err
	}

	image, err := s.images.GetByGalleryAndName(galleryID, name)
	if err != nil {
		return nil, err
	}

	if !storage.ValidLeafName(newBaseName) {
		return nil, apperr.Validation("Invalid image name.")
	}

	newName := newBaseName + path.Ext(image.Name)
	if newName == image.Name {
		return image, nil
	}

	oldLocation := image.Location
	newLocation := storage.ImagePath(ownerID, galleryID, newName)
	oldThumb := storage.ThumbnailPath(ownerID, galleryID, image.Name)
	newThumb := storage.ThumbnailPath(ownerID, galleryID, newName)

	if err := s.store.MoveWithContext(ctx, oldLocation, newLocation); err != nil {
		return nil, mapRenameErr(err)
	}

	if err := s.store.MoveWithContext(ctx, oldThumb, newThumb); err != nil && !errors.Is(err, apperr.ErrArtifactNotFound) {
		// Put the artifact back so blob and record stay aligned.
		if undoErr := s.store.MoveWithContext(ctx, newLocation, oldLocation); undoErr != nil {
			log.Printf("[images] Failed to undo artifact move %s -> %s: %v", newLocation, oldLocation, undoErr)
		}
		return nil, mapRenameErr(err)
	}

	if err := s.images.UpdateNameAndLocation(image.ID, newName, newLocation); err != nil {
		if undoErr := s.store.MoveWithContext(ctx, newLocation, oldLocation); undoErr != nil {
			log.Printf("[images] Failed to undo artifact move %s -> %s: %v", newLocation, oldLocation, undoErr)
		}
		if undoErr := s.store.MoveWithContext(ctx, newThumb, oldThumb); undoErr != nil && !errors.Is(undoErr, apperr.ErrArtifactNotFound) {
			log.Printf("[images] Failed to undo thumbnail move %s -> %s: %v", newThumb, oldThumb, undoErr)
		}
		if errors.Is(err, apperr.ErrNameCollision) {
			return nil, apperr.Validation("Image with that name already exists.")
		}
		return nil, err
	}

	s.cacheHelper.InvalidateImage(galleryID, name)
	image.Name = newName
	image.Location = newLocation
	s.cacheHelper.SetImage(image)
	return image, nil
}

func mapRenameErr(err error) error {
	switch {
	case errors.Is(err, apperr.ErrNameCollision):
		return apperr.Validation("Image with that name already exists.")
	case errors.Is(err, apperr.ErrInvalidName):
		return apperr.Validation("Invalid image name.")
	default:
		return err
	}
}

// List returns one page of a gallery's images.
func (s *Service) List(ctx context.Context, id auth.Identity, ownerID, galleryID uint, page, pageSize int) ([]*models.Image, int64, error) {
	if _, err := s.resolveGallery(id, ownerID, galleryID); err != nil {
		return nil, 0, err
	}
	page, pageSize = clampPage(page, pageSize)
	return s.images.ListByGallery(galleryID, page, pageSize)
}

// ListAll returns one page of an owner's images across all their galleries.
func (s *Service) ListAll(ctx context.Context, id auth.Identity, ownerID uint, page, pageSize int) ([]*models.Image, int64, error) {
	if !id.CanAccess(ownerID) {
		return nil, 0, apperr.ErrForbidden
	}

	userGalleries, err := s.galleries.ListAllByOwner(ownerID)
	if err != nil {
		return nil, 0, err
	}
	ids := make([]uint, len(userGalleries))
	for i, g := range userGalleries {
		ids[i] = g.ID
	}

	page, pageSize = clampPage(page, pageSize)
	return s.images.ListByGalleries(ids, page, pageSize)
}

func clampPage(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}
