package clients

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"greenlane/backend/services/pricing-worker/internal/models"
)

// QuoteFetcher returns the price quote to apply to one telemetry event.
type QuoteFetcher interface {
	FetchQuote(ctx context.Context) (models.PriceQuote, error)
}

// quoteCache is the redis command subset used for quote caching.
type quoteCache interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// CachedOracle reuses the last quote for a bounded TTL so bursts of telemetry do not
// translate one-to-one into pricing requests. Cache failures degrade to a live fetch.
type CachedOracle struct {
	next   QuoteFetcher
	cache  quoteCache
	key    string
	ttl    time.Duration
	logger *zap.Logger
}

// NewCachedOracle wraps next with a redis-backed quote cache.
func NewCachedOracle(next QuoteFetcher, cache quoteCache, key string, ttl time.Duration, logger *zap.Logger) *CachedOracle {
	return &CachedOracle{
		next:   next,
		cache:  cache,
		key:    key,
		ttl:    ttl,
		logger: logger,
	}
}

// FetchQuote returns the cached quote when present, otherwise fetches and stores one.
func (o *CachedOracle) FetchQuote(ctx context.Context) (models.PriceQuote, error) {
	raw, err := o.cache.Get(ctx, o.key).Bytes()
	switch {
	case err == nil:
		var quote models.PriceQuote
		if err := json.Unmarshal(raw, &quote); err == nil {
			return quote, nil
		}
		o.logger.Warn("discarding unreadable cached quote", zap.String("key", o.key))
	case !errors.Is(err, redis.Nil):
		o.logger.Warn("quote cache read failed", zap.String("key", o.key), zap.Error(err))
	}

	quote, err := o.next.FetchQuote(ctx)
	if err != nil {
		return models.PriceQuote{}, err
	}

	data, err := json.Marshal(quote)
	if err == nil {
		err = o.cache.Set(ctx, o.key, data, o.ttl).Err()
	}
	if err != nil {
		o.logger.Warn("quote cache write failed", zap.String("key", o.key), zap.Error(err))
	}
	return quote, nil
}
