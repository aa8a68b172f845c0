package models

import "gorm.io/gorm"

// Gallery is a named collection of images owned by exactly one user. The
// name is unique per owner only; the on-disk directory is keyed by the
// immutable ID, so renaming never moves files.
type Gallery struct {
	gorm.Model
	Name   string `gorm:"type:varchar(50);not null;uniqueIndex:idx_owner_gallery_name"`
	UserID uint   `gorm:"not null;uniqueIndex:idx_owner_gallery_name;index"`
	User   User

	Images []Image `gorm:"constraint:OnDelete:CASCADE"`
}
