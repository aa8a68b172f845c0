package storage

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// ThumbnailPrefix is prepended to an image's file name to form the sibling
// thumbnail name inside the same gallery directory.
const ThumbnailPrefix = "thumbnail."

// Path derivation is pure: the same (owner, gallery, name) triple always maps
// to the same relative path, and distinct triples never collide because owner
// and gallery ids are numeric path segments. Gallery directories are keyed by
// the immutable gallery id, never by its mutable name, so renaming a gallery
// never touches the filesystem.

// GalleryDir returns the relative directory holding a gallery's artifacts.
func GalleryDir(ownerID, galleryID uint) string {
	return fmt.Sprintf("%d/%d", ownerID, galleryID)
}

// ImagePath returns the relative path of an image artifact.
func ImagePath(ownerID, galleryID uint, name string) string {
	return fmt.Sprintf("%d/%d/%s", ownerID, galleryID, name)
}

// ThumbnailPath returns the relative path of the thumbnail co-located with an
// image artifact.
func ThumbnailPath(ownerID, galleryID uint, name string) string {
	return fmt.Sprintf("%d/%d/%s%s", ownerID, galleryID, ThumbnailPrefix, name)
}

// ThumbnailSibling derives the thumbnail path from a full artifact path by
// prefixing its final segment.
func ThumbnailSibling(location string) string {
	dir, leaf := path.Split(location)
	return dir + ThumbnailPrefix + leaf
}

// ValidLeafName reports whether name is usable as a single path segment.
// Separators, traversal segments, control characters and Windows-reserved
// characters are rejected.
func ValidLeafName(name string) bool {
	if name == "" || len(name) > 255 {
		return false
	}
	if name == "." || name == ".." {
		return false
	}
	if strings.ContainsAny(name, "/\\") {
		return false
	}
	for _, r := range name {
		if r < 0x20 || r == 0x7f {
			return false
		}
		switch r {
		case '<', '>', ':', '"', '|', '?', '*':
			return false
		}
	}
	return true
}

// validIdentifier reports whether identifier is a safe relative path below
// the storage root: non-empty, relative, no traversal segments.
func validIdentifier(identifier string) bool {
	if identifier == "" {
		return false
	}
	if filepath.IsAbs(identifier) || strings.HasPrefix(identifier, "/") {
		return false
	}
	for _, part := range strings.Split(identifier, "/") {
		if part == "" || part == "." || part == ".." {
			return false
		}
		if strings.Contains(part, "\\") {
			return false
		}
	}
	return true
}
