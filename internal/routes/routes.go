package routes

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/congo-pay/bankee/internal/accounts"
	"github.com/congo-pay/bankee/internal/config"
	"github.com/congo-pay/bankee/internal/funding"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/middleware"
	"github.com/congo-pay/bankee/internal/notification"
	"github.com/congo-pay/bankee/internal/txlog"
	"github.com/congo-pay/bankee/internal/wallet"
)

// Deps aggregates shared dependencies required to wire routes.
type Deps struct {
	Cfg      config.Config
	DB       *pgxpool.Pool
	Mongo    *mongo.Client
	Cache    *redis.Client
	Logger   *slog.Logger
	Metrics  *metrics.Metrics
	Notifier notification.Notifier
	Ledger   ledger.Store
	Log      txlog.Store
}

// Setup configures middlewares and all application routes.
func Setup(app *fiber.App, d Deps) error {
	if d.Ledger == nil || d.Log == nil {
		return fmt.Errorf("ledger and log stores are required")
	}
	// Enforce backing services outside of dev, even though main also checks.
	if !isDev(d.Cfg.AppEnv) {
		if d.DB == nil {
			return fmt.Errorf("database is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Mongo == nil {
			return fmt.Errorf("mongo is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
		if d.Cache == nil {
			return fmt.Errorf("redis is required when APP_ENV=%s", d.Cfg.AppEnv)
		}
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Notifier == nil {
		d.Notifier = notification.NewLoggerNotifier(d.Logger)
	}

	// Middlewares
	app.Use(recover.New())
	app.Use(middleware.RequestID())
	// Plain text access log in desired format: [HH:MM:SS] 200 -  145ms METHOD /path
	app.Use(logger.New(logger.Config{
		Format:     "[${time}] ${status} -  ${latency} ${method} ${path}\n",
		TimeFormat: "15:04:05",
		TimeZone:   "Local",
	}))
	app.Use(d.Metrics.Middleware())
	app.Use(middleware.Audit(d.Logger))

	// Public
	RegisterHealthRoutes(app, d)
	if d.Metrics != nil {
		app.Get("/metrics", adaptor.HTTPHandler(d.Metrics.Handler()))
	}

	// Services and handlers
	journal := txlog.NewJournal(d.Log, d.Logger, d.Notifier, d.Metrics)
	accountSvc := accounts.NewService(d.Ledger, journal, d.Notifier, d.Logger, d.Metrics)
	walletSvc := wallet.NewService(d.Ledger, journal, d.Notifier, d.Logger, d.Metrics)
	fundingSvc, err := funding.NewService(d.Ledger, d.Log, d.Metrics)
	if err != nil {
		return err
	}

	accountHandler := accounts.NewHandler(accountSvc)
	walletHandler := wallet.NewHandler(walletSvc)
	fundingHandler := funding.NewHandler(fundingSvc)
	historyHandler := txlog.NewHandler(d.Log)

	// API routes
	api := app.Group("/api/v1")
	api.Get("/ping", func(c *fiber.Ctx) error {
		return c.Status(http.StatusOK).JSON(fiber.Map{
			"status":     "ok",
			"request_id": middleware.RequestIDFrom(c),
			"timestamp":  time.Now().UTC().Format(time.RFC3339Nano),
		})
	})

	// Protected routes
	protected := api.Group("", middleware.Identity([]byte(d.Cfg.JWTSecret)))
	if d.Cache != nil {
		protected.Use(middleware.RateLimit(d.Cache, d.Cfg.RateLimitMax, d.Cfg.RateLimitWindow, d.Logger))
		protected.Use(middleware.Idempotency(d.Cache, d.Cfg.IdempotencyTTL, d.Cfg.RequireIdempotencyKey, d.Logger))
	}
	RegisterAccountRoutes(protected, accountHandler)
	RegisterFundingRoutes(protected, fundingHandler)
	RegisterWalletRoutes(protected, walletHandler)
	RegisterTransactionRoutes(protected, historyHandler)
	RegisterAdminRoutes(protected, accountHandler)

	return nil
}

func isDev(env string) bool {
	switch strings.ToLower(env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}
