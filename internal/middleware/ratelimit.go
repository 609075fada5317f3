package middleware

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"
)

const rateLimitPrefix = "rl:api:"

// RateLimit allows max requests per window for each caller, keyed by user id
// when Identity ran first and by client IP otherwise. Cache errors fail open.
func RateLimit(cache *redis.Client, max int, window time.Duration, logger *slog.Logger) fiber.Handler {
	if max <= 0 {
		max = 100
	}
	if window <= 0 {
		window = 15 * time.Minute
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next() // no-op without Redis
		}
		subject := "ip:" + c.IP()
		if caller, ok := CallerFrom(c); ok {
			subject = "user:" + strconv.FormatInt(caller.UserID, 10)
		}
		key := rateLimitPrefix + subject

		ctx := c.UserContext()
		count, err := cache.Incr(ctx, key).Result()
		if err == nil && count == 1 {
			err = cache.Expire(ctx, key, window).Err()
		}
		if err != nil {
			if logger != nil {
				logger.Warn("rate limit check failed", slog.String("key", key), slog.Any("error", err))
			}
			return c.Next()
		}

		remaining := int64(max) - count
		if remaining < 0 {
			remaining = 0
		}
		c.Set("X-RateLimit-Limit", strconv.Itoa(max))
		c.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))
		if count > int64(max) {
			if ttl, err := cache.TTL(ctx, key).Result(); err == nil && ttl > 0 {
				c.Set(fiber.HeaderRetryAfter, strconv.Itoa(int(ttl.Seconds())+1))
			}
			return fiber.NewError(http.StatusTooManyRequests, "too many requests, try again later")
		}
		return c.Next()
	}
}
