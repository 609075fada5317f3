package routes

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	statusOK       = "ok"
	statusDisabled = "disabled"
	statusDown     = "unavailable"
)

// RegisterHealthRoutes adds liveness/readiness style endpoints.
func RegisterHealthRoutes(app *fiber.App, d Deps) {
	app.Get("/healthz", func(c *fiber.Ctx) error {
		ctx, cancel := context.WithTimeout(c.UserContext(), 2*time.Second)
		defer cancel()

		checks := fiber.Map{
			"postgres": statusDisabled,
			"mongo":    statusDisabled,
			"redis":    statusDisabled,
		}
		healthy := true
		record := func(name string, err error) {
			if err != nil {
				d.Logger.Warn("health check failed", slog.String("dependency", name), slog.Any("error", err))
				checks[name] = statusDown
				healthy = false
				return
			}
			checks[name] = statusOK
		}

		if d.DB != nil {
			record("postgres", d.DB.Ping(ctx))
		}
		if d.Mongo != nil {
			record("mongo", d.Mongo.Ping(ctx, readpref.Primary()))
		}
		if d.Cache != nil {
			record("redis", d.Cache.Ping(ctx).Err())
		}

		status := http.StatusOK
		if !healthy {
			status = http.StatusServiceUnavailable
		}
		return c.Status(status).JSON(fiber.Map{
			"status":    checks,
			"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
		})
	})
}
