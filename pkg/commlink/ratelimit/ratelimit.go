// Package ratelimit throttles API calls per client IP.
package ratelimit

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// LimitReachedMessage is the error text clients see when throttled.
const LimitReachedMessage = "Too many requests"

const keyPrefix = "commlink:ratelimit"

// Middleware limits requests per client IP at rate, formatted like "100-S"
// or "1000-H". Counters live in Redis when rdb is non-nil so every instance
// shares them; otherwise they are kept in memory.
func Middleware(rate string, rdb *goredis.Client) (gin.HandlerFunc, error) {
	r, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate limit %q: %w", rate, err)
	}

	opts := limiter.StoreOptions{
		Prefix:          keyPrefix,
		MaxRetry:        limiter.DefaultMaxRetry,
		CleanUpInterval: limiter.DefaultCleanUpInterval,
	}

	var store limiter.Store
	if rdb != nil {
		store, err = sredis.NewStoreWithOptions(rdb, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}

	return mgin.NewMiddleware(limiter.New(store, r),
		mgin.WithLimitReachedHandler(limitReached),
		mgin.WithErrorHandler(storeError),
	), nil
}

func limitReached(c *gin.Context) {
	c.JSON(http.StatusTooManyRequests, gin.H{"success": false, "error": LimitReachedMessage})
}

// A broken limiter store should not take the API down with it.
func storeError(c *gin.Context, err error) {
	_ = c.Error(err)
	c.Next()
}
