package models

import "gorm.io/gorm"

// Image is one uploaded artifact inside a gallery. Name includes the
// extension and is unique per gallery; the unique index is what turns a lost
// upload race into a detectable insert failure instead of a double write.
//
// Location caches the derived storage path. The derivation rule is
// authoritative; the column only avoids recomputation.
type Image struct {
	gorm.Model
	Name      string `gorm:"type:varchar(255);not null;uniqueIndex:idx_gallery_image_name"`
	Location  string `gorm:"type:varchar(512);not null"`
	GalleryID uint   `gorm:"not null;uniqueIndex:idx_gallery_image_name;index"`
	Gallery   Gallery
}
