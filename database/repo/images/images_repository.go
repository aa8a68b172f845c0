package images

import (
	"errors"

	"gorm.io/gorm"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/database/models"
)

// Repository wraps all image-related database operations.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Create inserts a new image row. The composite unique index on
// (gallery_id, name) is the backstop for the upload check-then-act race: a
// lost race maps to a name collision here instead of a silent double write.
func (r *Repository) Create(image *models.Image) error {
	if err := r.db.Create(image).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.ErrNameCollision
		}
		return err
	}
	return nil
}

// GetByGalleryAndName fetches an image row by its stored name within a
// gallery.
func (r *Repository) GetByGalleryAndName(galleryID uint, name string) (*models.Image, error) {
	var image models.Image
	err := r.db.First(&image, "gallery_id = ? AND name = ?", galleryID, name).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrImageNotFound
		}
		return nil, err
	}
	return &image, nil
}

// ExistsByGalleryAndName reports whether the gallery already holds an image
// with this stored name.
func (r *Repository) ExistsByGalleryAndName(galleryID uint, name string) (bool, error) {
	var count int64
	err := r.db.Model(&models.Image{}).
		Where("gallery_id = ? AND name = ?", galleryID, name).
		Count(&count).Error
	return count > 0, err
}

// UpdateNameAndLocation persists the outcome of a rename. Callers only reach
// this after both blob moves have succeeded.
func (r *Repository) UpdateNameAndLocation(imageID uint, name, location string) error {
	res := r.db.Model(&models.Image{}).Where("id = ?", imageID).
		Updates(map[string]interface{}{"name": name, "location": location})
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.ErrNameCollision
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrImageNotFound
	}
	return nil
}

// Delete hard-deletes an image row.
func (r *Repository) Delete(imageID uint) error {
	res := r.db.Unscoped().Delete(&models.Image{}, imageID)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrImageNotFound
	}
	return nil
}

// ListByGallery returns one page of a gallery's images.
func (r *Repository) ListByGallery(galleryID uint, page, pageSize int) ([]*models.Image, int64, error) {
	var images []*models.Image
	var total int64

	q := r.db.Model(&models.Image{}).Where("gallery_id = ?", galleryID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := q.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&images).Error; err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// ListByGalleries returns one page of images across several galleries, for
// the all-galleries listing of an owner.
func (r *Repository) ListByGalleries(galleryIDs []uint, page, pageSize int) ([]*models.Image, int64, error) {
	if len(galleryIDs) == 0 {
		return []*models.Image{}, 0, nil
	}

	var images []*models.Image
	var total int64

	q := r.db.Model(&models.Image{}).Where("gallery_id IN ?", galleryIDs)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := q.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&images).Error; err != nil {
		return nil, 0, err
	}
	return images, total, nil
}

// WalkBatches streams image rows in primary-key order, batch by batch. Used
// by the drift scanner so it never loads the whole table.
func (r *Repository) WalkBatches(batchSize int, fn func(batch []*models.Image) error) error {
	var lastID uint
	for {
		var batch []*models.Image
		err := r.db.Where("id > ?", lastID).Order("id asc").Limit(batchSize).Find(&batch).Error
		if err != nil {
			return err
		}
		if len(batch) == 0 {
			return nil
		}
		if err := fn(batch); err != nil {
			return err
		}
		lastID = batch[len(batch)-1].ID
	}
}
