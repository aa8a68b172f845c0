// Package galleries orchestrates the gallery lifecycle across the metadata
// store and the blob store. Mutations are ordered so that a partial failure
// leaves a harmless residue (an orphan empty directory) rather than a
// dangerous one (a record pointing at a directory that was never created).
package galleries

import (
	"context"
	"fmt"
	"log"
	"strings"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/cache"
	"github.com/avess/gallery-bed/database/models"
	galleryrepo "github.com/avess/gallery-bed/database/repo/galleries"
	"github.com/avess/gallery-bed/internal/auth"
	"github.com/avess/gallery-bed/internal/locks"
	"github.com/avess/gallery-bed/storage"
)

const (
	nameMinLen = 1
	nameMaxLen = 50
)

// Service implements gallery create/rename/delete/list.
type Service struct {
	repo         *galleryrepo.Repository
	store        storage.Provider
	locks        *locks.Keyed
	cacheHelper  *cache.Helper
	illegalChars string
}

func NewService(
	repo *galleryrepo.Repository,
	store storage.Provider,
	keyed *locks.Keyed,
	cacheHelper *cache.Helper,
	illegalChars string,
) *Service {
	return &Service{
		repo:         repo,
		store:        store,
		locks:        keyed,
		cacheHelper:  cacheHelper,
		illegalChars: illegalChars,
	}
}

// LockKey is the per-gallery lock name shared with the image service.
func LockKey(galleryID uint) string {
	return fmt.Sprintf("gallery/%d", galleryID)
}

// validateName enforces the gallery naming rules: length 1..50 and none of
// the configured illegal characters.
func (s *Service) validateName(name string) error {
	if l := len(name); l < nameMinLen || l > nameMaxLen {
		return apperr.Validation("gallery name must be between %d and %d characters", nameMinLen, nameMaxLen)
	}
	if strings.ContainsAny(name, s.illegalChars) {
		return apperr.Validation("gallery name contains illegal characters")
	}
	return nil
}

// Create validates the name, inserts the metadata record to obtain the
// generated id, then provisions the directory keyed by that id. The record
// goes first: an orphan directory is harmless, a record without a directory
// would break every later image operation. If provisioning fails the insert
// is compensated before the error surfaces.
func (s *Service) Create(ctx context.Context, id auth.Identity, ownerID uint, name string) (*models.Gallery, error) {
	if !id.CanAccess(ownerID) {
		return nil, apperr.ErrForbidden
	}
	if err := s.validateName(name); err != nil {
		return nil, err
	}

	taken, err := s.repo.ExistsByNameAndOwner(name, ownerID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Validation("gallery name already exists")
	}

	gallery := &models.Gallery{Name: name, UserID: ownerID}
	if err := s.repo.Create(gallery); err != nil {
		if err == apperr.ErrNameCollision {
			// Lost the race between the existence check and the insert.
			return nil, apperr.Validation("gallery name already exists")
		}
		return nil, err
	}

	if err := s.store.EnsureDirWithContext(ctx, storage.GalleryDir(ownerID, gallery.ID)); err != nil {
		if rollbackErr := s.repo.CompensateCreate(gallery.ID); rollbackErr != nil {
			log.Printf("[galleries] Failed to roll back gallery %d after directory provisioning error: %v", gallery.ID, rollbackErr)
		}
		return nil, err
	}

	return gallery, nil
}

// Rename changes only the metadata record. The directory is keyed by the
// immutable gallery id, so no filesystem move happens and no mid-rename
// blob/record divergence is possible.
func (s *Service) Rename(ctx context.Context, id auth.Identity, ownerID, galleryID uint, newName string) (*models.Gallery, error) {
	if !id.CanAccess(ownerID) {
		return nil, apperr.ErrForbidden
	}
	if err := s.validateName(newName); err != nil {
		return nil, err
	}

	gallery, err := s.repo.GetByIDAndOwner(galleryID, ownerID)
	if err != nil {
		return nil, err
	}
	if gallery.Name == newName {
		return gallery, nil
	}

	taken, err := s.repo.ExistsByNameAndOwner(newName, ownerID)
	if err != nil {
		return nil, err
	}
	if taken {
		return nil, apperr.Validation("gallery name already exists")
	}

	if err := s.repo.UpdateName(galleryID, newName); err != nil {
		if err == apperr.ErrNameCollision {
			return nil, apperr.Validation("gallery name already exists")
		}
		return nil, err
	}

	s.cacheHelper.InvalidateGallery(ownerID, galleryID)
	gallery.Name = newName
	return gallery, nil
}

// Delete removes the on-disk tree first, then the metadata record with its
// image rows. If the record deletion fails the leftover rows are dangling
// but detectable (reads surface a storage inconsistency); the reverse order
// could leak unreachable files with no trace. The exclusive gallery lock
// keeps image operations out for the duration.
func (s *Service) Delete(ctx context.Context, id auth.Identity, ownerID, galleryID uint) error {
	if !id.CanAccess(ownerID) {
		return apperr.ErrForbidden
	}

	unlock := s.locks.Lock(LockKey(galleryID))
	defer unlock()

	gallery, err := s.repo.GetByIDAndOwner(galleryID, ownerID)
	if err != nil {
		return err
	}

	if err := s.store.DeleteTreeWithContext(ctx, storage.GalleryDir(ownerID, gallery.ID)); err != nil {
		return err
	}

	if err := s.repo.Delete(galleryID); err != nil {
		log.Printf("[galleries] Gallery %d tree deleted but record removal failed: %v", galleryID, err)
		return err
	}

	s.cacheHelper.InvalidateGallery(ownerID, galleryID)
	return nil
}

// Get fetches a single gallery scoped by owner.
func (s *Service) Get(ctx context.Context, id auth.Identity, ownerID, galleryID uint) (*models.Gallery, error) {
	if !id.CanAccess(ownerID) {
		return nil, apperr.ErrForbidden
	}

	if cached := s.cacheHelper.GetGallery(ownerID, galleryID); cached != nil {
		return cached, nil
	}

	gallery, err := s.repo.GetByIDAndOwner(galleryID, ownerID)
	if err != nil {
		return nil, err
	}

	s.cacheHelper.SetGallery(gallery)
	return gallery, nil
}

// List returns one page of the owner's galleries with image counts.
func (s *Service) List(ctx context.Context, id auth.Identity, ownerID uint, page, pageSize int) ([]*galleryrepo.GalleryInfo, int64, error) {
	if !id.CanAccess(ownerID) {
		return nil, 0, apperr.ErrForbidden
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return s.repo.ListByOwner(ownerID, page, pageSize)
}
