package cache

import (
	"fmt"
	"log"

	"github.com/avess/gallery-bed/cache/redis"
	"github.com/avess/gallery-bed/cache/ristretto"
	"github.com/avess/gallery-bed/cache/types"
	"github.com/avess/gallery-bed/config"
)

// NewCache builds the configured cache backend.
func NewCache(cfg *config.Config) (types.Cache, error) {
	switch cfg.CacheType {
	case "ristretto", "":
		c, err := ristretto.NewRistretto(ristretto.Config{
			NumCounters: 1e6,
			MaxCost:     64 << 20,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ristretto cache: %w", err)
		}
		log.Println("Using in-process ristretto cache")
		return c, nil

	case "redis":
		c, err := redis.NewRedis(cfg.CacheRedisAddr, cfg.CacheRedisPassword, cfg.CacheRedisDB)
		if err != nil {
			return nil, fmt.Errorf("failed to connect to redis cache: %w", err)
		}
		log.Printf("Using redis cache at %s", cfg.CacheRedisAddr)
		return c, nil

	default:
		return nil, fmt.Errorf("unsupported cache type: %s", cfg.CacheType)
	}
}
