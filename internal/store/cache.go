package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/leafsii/blinks-backend/internal/metrics"
)

const (
	// memorySize bounds the in-memory fallback.
	memorySize = 4096

	KeyCollection = "blk:collection"
)

var (
	ErrCacheMiss = errors.New("cache miss")
	errDecode    = errors.New("cache unmarshal error")
)

type Cache struct {
	// When Redis is available, use client for all operations
	client *redis.Client
	// Otherwise entries live in a bounded in-process LRU
	memory *expirable.LRU[string, []byte]

	ttl     time.Duration
	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewCache connects to Redis at addr. An empty addr, or a Redis that does
// not answer, selects the in-memory LRU. ttl is the lifetime of cached
// entries and of the in-memory LRU.
func NewCache(addr string, ttl time.Duration, logger *zap.SugaredLogger, metrics *metrics.Metrics) *Cache {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	c := &Cache{ttl: ttl, logger: logger, metrics: metrics}

	if addr != "" {
		client := redis.NewClient(&redis.Options{
			Addr:         addr,
			DialTimeout:  5 * time.Second,
			ReadTimeout:  3 * time.Second,
			WriteTimeout: 3 * time.Second,
			PoolSize:     10,
			MinIdleConns: 2,
		})

		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		err := client.Ping(ctx).Err()
		if err == nil {
			c.client = client
			return c
		}
		logger.Warnw("Redis unavailable; using in-memory cache", "addr", addr, "error", err)
		_ = client.Close()
	}

	c.memory = expirable.NewLRU[string, []byte](memorySize, nil, ttl)
	return c
}

func (c *Cache) Get(ctx context.Context, key string, dest interface{}) error {
	var data []byte
	if c.client != nil {
		val, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				c.metrics.RecordCacheMiss(ctx, keyspace(key))
				return ErrCacheMiss
			}
			c.logger.Errorw("Cache get error", "key", key, "error", err)
			return fmt.Errorf("cache get error: %w", err)
		}
		data = val
	} else {
		val, ok := c.memory.Get(key)
		if !ok {
			c.metrics.RecordCacheMiss(ctx, keyspace(key))
			return ErrCacheMiss
		}
		data = val
	}

	c.metrics.RecordCacheHit(ctx, keyspace(key))
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("%w: %v", errDecode, err)
	}
	return nil
}

// Set stores value under key for the cache's ttl.
func (c *Cache) Set(ctx context.Context, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, c.ttl).Err(); err != nil {
			c.logger.Errorw("Cache set error", "key", key, "error", err)
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}
	c.memory.Add(key, data)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}
	for _, k := range keys {
		c.memory.Remove(k)
	}
	return nil
}

func collectionKey(slug string) string {
	return fmt.Sprintf("%s:%s", KeyCollection, slug)
}

// keyspace strips the last key segment so metric labels stay bounded.
func keyspace(key string) string {
	if i := strings.LastIndex(key, ":"); i > 0 {
		return key[:i]
	}
	return key
}

// GetCollection loads cached marketplace collection metadata. An entry that
// no longer decodes is evicted and reported as a miss.
func (c *Cache) GetCollection(ctx context.Context, slug string, dest interface{}) error {
	key := collectionKey(slug)
	err := c.Get(ctx, key, dest)
	if !errors.Is(err, errDecode) {
		return err
	}
	c.logger.Warnw("Evicting undecodable cache entry", "key", key, "error", err)
	if err := c.Delete(ctx, key); err != nil {
		return err
	}
	return ErrCacheMiss
}

func (c *Cache) SetCollection(ctx context.Context, slug string, value interface{}) error {
	return c.Set(ctx, collectionKey(slug), value)
}

// IsInMemoryMode returns true if the cache is running in in-memory mode
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

// Health check
func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	c.memory.Purge()
	return nil
}
