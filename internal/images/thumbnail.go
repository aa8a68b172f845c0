package images

import (
	"context"
	"runtime"

	"github.com/davidbyttow/govips/v2/vips"
	"golang.org/x/sync/semaphore"

	"github.com/avess/gallery-bed/apperr"
)

// Thumbnailer derives a resized copy of a raster image. Failures wrap
// apperr.ThumbnailError so callers can tell "not a decodable image" apart
// from storage trouble.
type Thumbnailer interface {
	Resize(ctx context.Context, data []byte, width, height int) ([]byte, error)
}

// VipsThumbnailer resizes through libvips. A weighted semaphore caps
// concurrent vips operations at the CPU count so parallel uploads cannot
// stampede native memory.
type VipsThumbnailer struct {
	sem *semaphore.Weighted
}

func NewVipsThumbnailer() *VipsThumbnailer {
	return &VipsThumbnailer{
		sem: semaphore.NewWeighted(int64(runtime.NumCPU())),
	}
}

// Resize decodes data, scales it into a width x height crop and re-encodes
// it in its native format.
func (t *VipsThumbnailer) Resize(ctx context.Context, data []byte, width, height int) ([]byte, error) {
	if err := t.sem.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer t.sem.Release(1)

	ref, err := vips.NewThumbnailFromBuffer(data, width, height, vips.InterestingCentre)
	if err != nil {
		return nil, &apperr.ThumbnailError{Err: err}
	}
	defer ref.Close()

	out, _, err := ref.ExportNative()
	if err != nil {
		return nil, &apperr.ThumbnailError{Err: err}
	}
	return out, nil
}
