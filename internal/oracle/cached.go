package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/messari/subgraphs-sub014/internal/logging"
	"github.com/messari/subgraphs-sub014/internal/storage"
)

// CachedOracle caches prices in Redis in front of a slower source. Keys are
// per (token, block); misses from the inner oracle are not cached so a price
// that appears later is picked up on retry.
type CachedOracle struct {
	inner Oracle
	cache *storage.RedisCache
	ttl   time.Duration
	log   *logging.Logger
}

// NewCachedOracle wraps an oracle with a Redis cache
func NewCachedOracle(inner Oracle, cache *storage.RedisCache, ttl time.Duration, log *logging.Logger) *CachedOracle {
	return &CachedOracle{
		inner: inner,
		cache: cache,
		ttl:   ttl,
		log:   log,
	}
}

func priceKey(token common.Address, block uint64) string {
	return fmt.Sprintf("price:%s:%d", token.Hex(), block)
}

// PriceUSD returns the cached price, consulting the inner oracle on a miss.
// Cache failures degrade to the inner oracle, never to an error.
func (o *CachedOracle) PriceUSD(ctx context.Context, token common.Address, block uint64) (decimal.Decimal, error) {
	key := priceKey(token, block)

	cached, err := o.cache.Get(ctx, key)
	if err == nil {
		price, perr := decimal.NewFromString(cached)
		if perr == nil {
			return price, nil
		}
		o.log.WithField("key", key).WithError(perr).Warn("discarding unparseable cached price")
	} else if !errors.Is(err, redis.Nil) {
		o.log.WithField("key", key).WithError(err).Warn("price cache read failed")
	}

	price, err := o.inner.PriceUSD(ctx, token, block)
	if err != nil {
		return decimal.Zero, err
	}

	if err := o.cache.Set(ctx, key, price.String(), o.ttl); err != nil {
		o.log.WithField("key", key).WithError(err).Warn("price cache write failed")
	}
	return price, nil
}
