// Package scanner periodically walks the image table and probes the blob
// store for each record's artifact and thumbnail. It only reports drift; it
// never deletes, so a misconfigured storage root cannot wipe metadata.
package scanner

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/avess/gallery-bed/apperr"
	"github.com/avess/gallery-bed/database/models"
	imagerepo "github.com/avess/gallery-bed/database/repo/images"
	"github.com/avess/gallery-bed/storage"
)

// Scanner checks record/blob consistency on a fixed interval.
type Scanner struct {
	images    *imagerepo.Repository
	store     storage.Provider
	interval  time.Duration
	batchSize int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewScanner(images *imagerepo.Repository, store storage.Provider, interval time.Duration, batchSize int) *Scanner {
	if batchSize <= 0 {
		batchSize = 200
	}
	return &Scanner{
		images:    images,
		store:     store,
		interval:  interval,
		batchSize: batchSize,
	}
}

// Start launches the scan loop. A non-positive interval disables scanning.
func (s *Scanner) Start() {
	if s.interval <= 0 {
		log.Println("[scanner] Drift scanning disabled")
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		log.Printf("[scanner] Drift scanner started, interval %s", s.interval)
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.scanOnce(ctx)
			}
		}
	}()
}

// Stop ends the scan loop and waits for an in-flight pass to finish.
func (s *Scanner) Stop() {
	if s.cancel == nil {
		return
	}
	s.cancel()
	s.wg.Wait()
	log.Println("[scanner] Drift scanner stopped")
}

func (s *Scanner) scanOnce(ctx context.Context) {
	start := time.Now()
	var checked, missing int

	err := s.images.WalkBatches(s.batchSize, func(batch []*models.Image) error {
		for _, image := range batch {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			checked++
			missing += s.check(ctx, image)
		}
		return nil
	})
	if err != nil && ctx.Err() == nil {
		log.Printf("[scanner] Scan pass aborted: %v", err)
		return
	}

	log.Printf("[scanner] Scan pass done: %d records checked, %d missing blobs, took %s",
		checked, missing, time.Since(start).Round(time.Millisecond))
}

// check probes one record's artifact and thumbnail, returning how many of
// the two are missing.
func (s *Scanner) check(ctx context.Context, image *models.Image) int {
	missing := 0

	ok, err := s.store.Exists(ctx, image.Location)
	if err != nil {
		log.Printf("[scanner] Probe failed for %s: %v", image.Location, err)
	} else if !ok {
		missing++
		log.Printf("[scanner] %v", apperr.Inconsistency(image.Location, "artifact"))
	}

	thumb := storage.ThumbnailSibling(image.Location)
	ok, err = s.store.Exists(ctx, thumb)
	if err != nil {
		log.Printf("[scanner] Probe failed for %s: %v", thumb, err)
	} else if !ok {
		missing++
		log.Printf("[scanner] %v", apperr.Inconsistency(thumb, "thumbnail"))
	}

	return missing
}
