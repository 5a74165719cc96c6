package document

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"procurement/internal/model"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/sync/singleflight"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
}

type RedisCache struct {
	client *redis.Client
}

func NewRedisCache(client *redis.Client) *RedisCache {
	return &RedisCache{client: client}
}

func (c *RedisCache) Get(ctx context.Context, key string) ([]byte, error) {
	b, err := c.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ErrCacheMiss
		}
		return nil, err
	}
	return b, nil
}

func (c *RedisCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

// CachedExtractor memoizes extractions by document content and collapses concurrent extractions of
// the same content into one call.
type CachedExtractor struct {
	next   Extractor
	cache  Cache
	ttl    time.Duration
	logger *logrus.Logger
	group  singleflight.Group
}

func NewCachedExtractor(next Extractor, cache Cache, ttl time.Duration, logger *logrus.Logger) *CachedExtractor {
	return &CachedExtractor{next: next, cache: cache, ttl: ttl, logger: logger}
}

func (c *CachedExtractor) Extract(ctx context.Context, doc Document) (*model.ProformaExtraction, error) {
	key := cacheKey(doc)

	v, err, _ := c.group.Do(key, func() (interface{}, error) {
		if cached, ok := c.lookup(ctx, key); ok {
			return cached, nil
		}
		out, err := c.next.Extract(ctx, doc)
		if err != nil {
			return nil, err
		}
		c.store(ctx, key, out)
		return out, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*model.ProformaExtraction).Clone(), nil
}

func (c *CachedExtractor) lookup(ctx context.Context, key string) (*model.ProformaExtraction, bool) {
	b, err := c.cache.Get(ctx, key)
	if err != nil {
		if !errors.Is(err, ErrCacheMiss) {
			c.logger.WithError(err).Warn("extraction cache read failed")
		}
		return nil, false
	}
	var out model.ProformaExtraction
	if err := json.Unmarshal(b, &out); err != nil {
		c.logger.WithError(err).Warn("discarding unreadable cached extraction")
		return nil, false
	}
	return &out, true
}

func (c *CachedExtractor) store(ctx context.Context, key string, out *model.ProformaExtraction) {
	b, err := json.Marshal(out)
	if err != nil {
		return
	}
	if err := c.cache.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.WithError(err).Warn("extraction cache write failed")
	}
}

func cacheKey(doc Document) string {
	digest := doc.Digest
	if digest == "" {
		sum := blake2b.Sum256(doc.Data)
		digest = hex.EncodeToString(sum[:])
	}
	return "procurement:extraction:v1:" + digest
}
