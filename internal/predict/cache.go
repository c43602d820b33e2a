package predict

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/allegro/bigcache/v3"
	"go.uber.org/zap"
)

// Cache stores results by upload digest. Implementations must be safe for concurrent use;
// a failing cache only costs a recomputation.
type Cache interface {
	Get(key string) (*Result, bool)
	Set(key string, r *Result)
}

// CacheConfig sizes the in-memory result cache.
type CacheConfig struct {
	LifeWindow time.Duration
	MaxEntries int
	MaxSizeMB  int
}

// BigCache keeps JSON-encoded results in a bigcache instance.
type BigCache struct {
	cache  *bigcache.BigCache
	logger *zap.Logger
}

// NewBigCache creates the cache. Expired entries are evicted on write, so no
// cleanup goroutine runs.
func NewBigCache(cfg CacheConfig, logger *zap.Logger) (*BigCache, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.LifeWindow <= 0 {
		cfg.LifeWindow = 10 * time.Minute
	}

	bcfg := bigcache.DefaultConfig(cfg.LifeWindow)
	bcfg.CleanWindow = 0
	bcfg.Shards = 64
	bcfg.MaxEntrySize = 256
	bcfg.Verbose = false
	if cfg.MaxEntries > 0 {
		bcfg.MaxEntriesInWindow = cfg.MaxEntries
	}
	if cfg.MaxSizeMB > 0 {
		bcfg.HardMaxCacheSize = cfg.MaxSizeMB
	}

	cache, err := bigcache.New(context.Background(), bcfg)
	if err != nil {
		return nil, fmt.Errorf("create result cache: %w", err)
	}
	return &BigCache{cache: cache, logger: logger}, nil
}

func (c *BigCache) Get(key string) (*Result, bool) {
	data, err := c.cache.Get(key)
	if err != nil {
		if !errors.Is(err, bigcache.ErrEntryNotFound) {
			c.logger.Warn("result cache read failed", zap.Error(err))
		}
		return nil, false
	}

	var r Result
	if err := json.Unmarshal(data, &r); err != nil {
		c.logger.Warn("result cache entry undecodable", zap.Error(err))
		return nil, false
	}
	return &r, true
}

func (c *BigCache) Set(key string, r *Result) {
	data, err := json.Marshal(r)
	if err != nil {
		return
	}
	if err := c.cache.Set(key, data); err != nil {
		c.logger.Warn("result cache write failed", zap.Error(err))
	}
}

// Len is the number of cached results.
func (c *BigCache) Len() int {
	return c.cache.Len()
}

// Close releases the cache.
func (c *BigCache) Close() error {
	return c.cache.Close()
}

// cacheKey is the hex SHA-256 of the upload.
func cacheKey(raw []byte) string {
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}
