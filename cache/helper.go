package cache

import (
	"fmt"
	"time"

	"github.com/avess/gallery-bed/cache/types"
	"github.com/avess/gallery-bed/database/models"
)

// Helper wraps the cache backend with the lookups the read path actually
// performs. Mutating operations must invalidate through it; a stale entry
// here would point readers at moved or deleted artifacts.
type Helper struct {
	cache types.Cache
	ttl   time.Duration
}

// NewHelper creates a helper. A nil cache disables caching entirely.
func NewHelper(cache types.Cache, ttl time.Duration) *Helper {
	return &Helper{cache: cache, ttl: ttl}
}

func imageKey(galleryID uint, name string) string {
	return ImageKey.Build(fmt.Sprint(galleryID), name)
}

func galleryKey(ownerID, galleryID uint) string {
	return GalleryKey.Build(fmt.Sprint(ownerID), fmt.Sprint(galleryID))
}

func userKey(username string) string {
	return UserKey.Build(username)
}

// GetImage returns a cached image row, or nil on miss.
func (h *Helper) GetImage(galleryID uint, name string) *models.Image {
	if h == nil || h.cache == nil {
		return nil
	}
	var image models.Image
	if err := h.cache.Get(imageKey(galleryID, name), &image); err != nil {
		return nil
	}
	return &image
}

// SetImage caches an image row. Failures are ignored; the cache is advisory.
func (h *Helper) SetImage(image *models.Image) {
	if h == nil || h.cache == nil || image == nil {
		return
	}
	_ = h.cache.Set(imageKey(image.GalleryID, image.Name), image, h.ttl)
}

// InvalidateImage drops a cached image row.
func (h *Helper) InvalidateImage(galleryID uint, name string) {
	if h == nil || h.cache == nil {
		return
	}
	_ = h.cache.Delete(imageKey(galleryID, name))
}

// GetGallery returns a cached gallery row, or nil on miss.
func (h *Helper) GetGallery(ownerID, galleryID uint) *models.Gallery {
	if h == nil || h.cache == nil {
		return nil
	}
	var gallery models.Gallery
	if err := h.cache.Get(galleryKey(ownerID, galleryID), &gallery); err != nil {
		return nil
	}
	return &gallery
}

// SetGallery caches a gallery row.
func (h *Helper) SetGallery(gallery *models.Gallery) {
	if h == nil || h.cache == nil || gallery == nil {
		return
	}
	_ = h.cache.Set(galleryKey(gallery.UserID, gallery.ID), gallery, h.ttl)
}

// InvalidateGallery drops a cached gallery row.
func (h *Helper) InvalidateGallery(ownerID, galleryID uint) {
	if h == nil || h.cache == nil {
		return
	}
	_ = h.cache.Delete(galleryKey(ownerID, galleryID))
}

// GetUser returns a cached user row, or nil on miss.
func (h *Helper) GetUser(username string) *models.User {
	if h == nil || h.cache == nil {
		return nil
	}
	var user models.User
	if err := h.cache.Get(userKey(username), &user); err != nil {
		return nil
	}
	return &user
}

// SetUser caches a user row.
func (h *Helper) SetUser(user *models.User) {
	if h == nil || h.cache == nil || user == nil {
		return
	}
	_ = h.cache.Set(userKey(user.Username), user, h.ttl)
}

// InvalidateUser drops a cached user row.
func (h *Helper) InvalidateUser(username string) {
	if h == nil || h.cache == nil {
		return
	}
	_ = h.cache.Delete(userKey(username))
}
