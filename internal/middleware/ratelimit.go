package middleware

import (
	"fmt"
	"net/http"

	"procurement/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/ulule/limiter/v3"
	mgin "github.com/ulule/limiter/v3/drivers/middleware/gin"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	sredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

// NewRateLimitStore keeps counters in redis when a client is given, in memory otherwise.
func NewRateLimitStore(client *redis.Client) (limiter.Store, error) {
	if client == nil {
		return memory.NewStore(), nil
	}
	store, err := sredis.NewStoreWithOptions(client, limiter.StoreOptions{Prefix: "procurement:ratelimit"})
	if err != nil {
		return nil, fmt.Errorf("failed to create redis rate limit store: %w", err)
	}
	return store, nil
}

// RateLimit limits callers per actor, or per client IP before authentication. rate uses the
// limiter format, e.g. "20-M".
func RateLimit(rate string, store limiter.Store, logger *logrus.Logger) (gin.HandlerFunc, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("invalid rate %q: %w", rate, err)
	}

	return mgin.NewMiddleware(limiter.New(store, parsed),
		mgin.WithKeyGetter(func(c *gin.Context) string {
			if actor, ok := ActorFrom(c); ok {
				return "actor:" + actor.ID
			}
			return "ip:" + c.ClientIP()
		}),
		mgin.WithLimitReachedHandler(func(c *gin.Context) {
			c.AbortWithStatusJSON(http.StatusTooManyRequests, response.ErrorWithCode(http.StatusTooManyRequests, "RATE_LIMITED", "Too many requests, try again later"))
		}),
		mgin.WithErrorHandler(func(c *gin.Context, err error) {
			logger.WithError(err).Error("rate limiter failed")
			c.AbortWithStatusJSON(http.StatusInternalServerError, response.Error(http.StatusInternalServerError, "internal server error"))
		}),
	), nil
}
