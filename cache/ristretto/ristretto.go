package ristretto

import (
	"encoding/json"
	"time"

	"github.com/dgraph-io/ristretto"

	"github.com/avess/gallery-bed/cache/types"
)

// Ristretto is the in-process cache backend.
type Ristretto struct {
	client *ristretto.Cache
}

// Config holds ristretto sizing knobs.
type Config struct {
	NumCounters int64
	MaxCost     int64
	BufferItems int64
}

// NewRistretto creates an in-process cache.
func NewRistretto(config Config) (types.Cache, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: config.NumCounters,
		MaxCost:     config.MaxCost,
		BufferItems: config.BufferItems,
	})
	if err != nil {
		return nil, err
	}

	return &Ristretto{client: cache}, nil
}

// Set stores a value with a TTL.
func (r *Ristretto) Set(key string, value interface{}, expiration time.Duration) error {
	size := int64(1)
	if data, ok := value.([]byte); ok {
		size = int64(len(data))
	}

	if r.client.SetWithTTL(key, value, size, expiration) {
		r.client.Wait()
	}
	return nil
}

// Get loads a value. Stored values round-trip through JSON so both backends
// behave identically.
func (r *Ristretto) Get(key string, dest interface{}) error {
	value, found := r.client.Get(key)
	if !found {
		return types.ErrCacheMiss
	}

	var data []byte
	if byteData, ok := value.([]byte); ok {
		data = byteData
	} else {
		jsonData, err := json.Marshal(value)
		if err != nil {
			return types.ErrCacheMiss
		}
		data = jsonData
	}

	if err := json.Unmarshal(data, dest); err != nil {
		return types.ErrCacheMiss
	}
	return nil
}

// Delete removes a key.
func (r *Ristretto) Delete(key string) error {
	r.client.Del(key)
	return nil
}

// Exists checks a key without loading it.
func (r *Ristretto) Exists(key string) (bool, error) {
	_, found := r.client.Get(key)
	return found, nil
}

// Close releases the cache.
func (r *Ristretto) Close() error {
	r.client.Close()
	return nil
}
