package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/avess/gallery-bed/cache/ristretto"
	"github.com/avess/gallery-bed/cache/types"
	"github.com/avess/gallery-bed/database/models"
)

func newTestCache(t *testing.T) types.Cache {
	c, err := ristretto.NewRistretto(ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestKeyBuilder(t *testing.T) {
	assert.Equal(t, "image:7:cat.png", ImageKey.Build("7", "cat.png"))
	assert.Equal(t, "gallery:1:2", GalleryKey.Build("1", "2"))
	assert.Equal(t, "user:alice", UserKey.Build("alice"))
}

func TestHelperImageRoundTrip(t *testing.T) {
	h := NewHelper(newTestCache(t), time.Minute)

	image := &models.Image{Name: "123-cat.png", Location: "1/2/123-cat.png", GalleryID: 2}
	h.SetImage(image)

	got := h.GetImage(2, "123-cat.png")
	require.NotNil(t, got)
	assert.Equal(t, image.Location, got.Location)

	h.InvalidateImage(2, "123-cat.png")
	assert.Nil(t, h.GetImage(2, "123-cat.png"))
}

func TestHelperGalleryRoundTrip(t *testing.T) {
	h := NewHelper(newTestCache(t), time.Minute)

	gallery := &models.Gallery{Name: "holiday", UserID: 1}
	gallery.ID = 2
	h.SetGallery(gallery)

	got := h.GetGallery(1, 2)
	require.NotNil(t, got)
	assert.Equal(t, "holiday", got.Name)

	h.InvalidateGallery(1, 2)
	assert.Nil(t, h.GetGallery(1, 2))
}

func TestHelperUserRoundTrip(t *testing.T) {
	h := NewHelper(newTestCache(t), time.Minute)

	user := &models.User{Username: "alice", Password: "hash", Role: models.RoleUser}
	user.ID = 7
	h.SetUser(user)

	got := h.GetUser("alice")
	require.NotNil(t, got)
	assert.Equal(t, uint(7), got.ID)
	assert.Equal(t, "hash", got.Password)

	h.InvalidateUser("alice")
	assert.Nil(t, h.GetUser("alice"))
}

func TestHelperNilCacheIsSafe(t *testing.T) {
	h := NewHelper(nil, time.Minute)

	assert.Nil(t, h.GetImage(1, "x"))
	h.SetImage(&models.Image{Name: "x", GalleryID: 1})
	h.InvalidateImage(1, "x")
	assert.Nil(t, h.GetGallery(1, 1))
	assert.Nil(t, h.GetUser("x"))
}
