package galleries

import (
	"errors"

	"gorm.io/gorm"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/database/models"
)

// Repository wraps all gallery-related database operations. Every lookup is
// owner-scoped: a gallery that exists but belongs to someone else is
// indistinguishable from one that does not exist.
type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// GalleryInfo is a gallery plus its image count, for listings.
type GalleryInfo struct {
	Gallery    *models.Gallery
	ImageCount int64
}

// Create inserts a new gallery row. A duplicate (owner, name) pair maps to a
// name collision via the composite unique index.
func (r *Repository) Create(gallery *models.Gallery) error {
	if err := r.db.Create(gallery).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.ErrNameCollision
		}
		return err
	}
	return nil
}

// GetByIDAndOwner fetches a gallery scoped by owner.
func (r *Repository) GetByIDAndOwner(galleryID, ownerID uint) (*models.Gallery, error) {
	var gallery models.Gallery
	err := r.db.First(&gallery, "id = ? AND user_id = ?", galleryID, ownerID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.ErrGalleryNotFound
		}
		return nil, err
	}
	return &gallery, nil
}

// ExistsByNameAndOwner reports whether the owner already has a gallery with
// this name.
func (r *Repository) ExistsByNameAndOwner(name string, ownerID uint) (bool, error) {
	var count int64
	err := r.db.Model(&models.Gallery{}).
		Where("name = ? AND user_id = ?", name, ownerID).
		Count(&count).Error
	return count > 0, err
}

// UpdateName renames a gallery. Metadata only: the storage directory is keyed
// by ID and never moves.
func (r *Repository) UpdateName(galleryID uint, name string) error {
	res := r.db.Model(&models.Gallery{}).Where("id = ?", galleryID).Update("name", name)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return apperr.ErrNameCollision
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrGalleryNotFound
	}
	return nil
}

// Delete removes a gallery row and all of its image rows in one transaction.
// Hard deletes: the system keeps no versions, and soft-deleted rows would
// keep names reserved under the unique indexes.
func (r *Repository) Delete(galleryID uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("gallery_id = ?", galleryID).Delete(&models.Image{}).Error; err != nil {
			return err
		}
		res := tx.Unscoped().Delete(&models.Gallery{}, galleryID)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return apperr.ErrGalleryNotFound
		}
		return nil
	})
}

// CompensateCreate removes a gallery row inserted by a create whose directory
// provisioning failed. Separate from Delete so intent shows up in call sites.
func (r *Repository) CompensateCreate(galleryID uint) error {
	return r.db.Unscoped().Delete(&models.Gallery{}, galleryID).Error
}

// ListByOwner returns the owner's galleries with image counts, newest first.
func (r *Repository) ListByOwner(ownerID uint, page, pageSize int) ([]*GalleryInfo, int64, error) {
	var galleries []*models.Gallery
	var total int64

	q := r.db.Model(&models.Gallery{}).Where("user_id = ?", ownerID)
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset := (page - 1) * pageSize
	if err := q.Order("created_at desc").Offset(offset).Limit(pageSize).Find(&galleries).Error; err != nil {
		return nil, 0, err
	}

	if len(galleries) == 0 {
		return []*GalleryInfo{}, total, nil
	}

	ids := make([]uint, len(galleries))
	for i, g := range galleries {
		ids[i] = g.ID
	}

	var counts []struct {
		GalleryID uint
		Count     int64
	}
	if err := r.db.Model(&models.Image{}).
		Select("gallery_id, COUNT(*) as count").
		Where("gallery_id IN ?", ids).
		Group("gallery_id").
		Scan(&counts).Error; err != nil {
		return nil, 0, err
	}

	countMap := make(map[uint]int64, len(counts))
	for _, c := range counts {
		countMap[c.GalleryID] = c.Count
	}

	result := make([]*GalleryInfo, len(galleries))
	for i, g := range galleries {
		result[i] = &GalleryInfo{Gallery: g, ImageCount: countMap[g.ID]}
	}
	return result, total, nil
}

// ListAllByOwner returns every gallery of an owner without pagination, used
// for cross-gallery image listings.
func (r *Repository) ListAllByOwner(ownerID uint) ([]*models.Gallery, error) {
	var galleries []*models.Gallery
	if err := r.db.Where("user_id = ?", ownerID).Find(&galleries).Error; err != nil {
		return nil, err
	}
	return galleries, nil
}
