package cache

import (
	"strings"
)

// KeyBuilder assembles namespaced cache keys.
type KeyBuilder struct {
	prefix string
	sep    string
}

// NewKeyBuilder creates a builder with the given namespace prefix.
func NewKeyBuilder(prefix string) *KeyBuilder {
	return &KeyBuilder{prefix: prefix, sep: ":"}
}

// Build joins parts under the prefix.
func (kb *KeyBuilder) Build(parts ...string) string {
	if len(parts) == 0 {
		return kb.prefix
	}
	return kb.prefix + kb.sep + strings.Join(parts, kb.sep)
}

// Predefined key namespaces.
var (
	// GalleryKey caches gallery rows by (owner, gallery id).
	GalleryKey = NewKeyBuilder("gallery")

	// ImageKey caches image rows by (gallery id, stored name).
	ImageKey = NewKeyBuilder("image")

	// UserKey caches user rows by username.
	UserKey = NewKeyBuilder("user")
)
