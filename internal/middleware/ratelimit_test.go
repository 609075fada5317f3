package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/congo-pay/bankee/internal/logging"
)

func TestRateLimitBlocksAfterMax(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	defer mr.Close()
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer cache.Close()

	app := fiber.New()
	app.Use(RateLimit(cache, 2, time.Minute, logging.Discard()))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		codes = append(codes, resp.StatusCode)
	}
	if codes[0] != fiber.StatusOK || codes[1] != fiber.StatusOK || codes[2] != fiber.StatusTooManyRequests {
		t.Fatalf("unexpected status sequence %v", codes)
	}

	mr.FastForward(time.Minute + time.Second)
	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
	if err != nil {
		t.Fatalf("request after window: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected window reset, got %d", resp.StatusCode)
	}
}

func TestRateLimitFailsOpen(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("start miniredis: %v", err)
	}
	cache := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	defer cache.Close()
	mr.Close()

	app := fiber.New()
	app.Use(RateLimit(cache, 1, time.Minute, logging.Discard()))
	app.Get("/ping", func(c *fiber.Ctx) error { return c.SendString("pong") })

	for i := 0; i < 3; i++ {
		resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/ping", nil))
		if err != nil {
			t.Fatalf("request %d: %v", i, err)
		}
		resp.Body.Close()
		if resp.StatusCode != fiber.StatusOK {
			t.Fatalf("expected fail-open, got %d", resp.StatusCode)
		}
	}
}
