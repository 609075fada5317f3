package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultAppName           = "Bankee"
	defaultAppEnv            = "development"
	defaultPort              = "8080"
	defaultLogLevel          = "info"
	defaultMongoDatabase     = "bankee"
	defaultKafkaTopic        = "bankee.notifications"
	defaultShutdownDelay     = 10 * time.Second
	defaultIdempotencyTTL    = 24 * time.Hour
	defaultRateLimitMax      = 100
	defaultRateLimitWindow   = 15 * time.Minute
	defaultLedgerLockTimeout = 5 * time.Second
	defaultSettlementGrace   = 60 * time.Second
	defaultReconcileInterval = 60 * time.Second
	defaultReconcileClaimTTL = 5 * time.Minute
	defaultReconcileBatch    = 500
	defaultDotEnvFile        = ".env"
)

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName               string
	AppEnv                string
	Port                  string
	LogLevel              string
	DatabaseURL           string
	MongoURI              string
	MongoDatabase         string
	RedisURL              string
	JWTSecret             string
	KafkaBrokers          []string
	KafkaTopic            string
	ShutdownPeriod        time.Duration
	IdempotencyTTL        time.Duration
	RequireIdempotencyKey bool
	RateLimitMax          int
	RateLimitWindow       time.Duration
	LedgerLockTimeout     time.Duration
	SettlementGrace       time.Duration
	ReconcileInterval     time.Duration
	ReconcileClaimTTL     time.Duration
	ReconcileBatchSize    int
	AutoMigrate           bool
}

// Load reads configuration from the environment. Values from the given
// dotenv files (".env" when none are named) fill in variables the
// environment leaves unset; missing files are ignored.
func Load(files ...string) (Config, error) {
	dotenv, err := readDotEnv(files)
	if err != nil {
		return Config{}, err
	}
	env := func(key string) string {
		if v, ok := os.LookupEnv(key); ok && v != "" {
			return v
		}
		return dotenv[key]
	}
	return parse(env)
}

func parse(env func(string) string) (Config, error) {
	get := func(key, fallback string) string {
		if v := env(key); v != "" {
			return v
		}
		return fallback
	}

	cfg := Config{
		AppName:       get("APP_NAME", defaultAppName),
		AppEnv:        get("APP_ENV", defaultAppEnv),
		Port:          get("PORT", defaultPort),
		LogLevel:      strings.ToLower(get("LOG_LEVEL", defaultLogLevel)),
		DatabaseURL:   env("DATABASE_URL"),
		MongoURI:      env("MONGO_URI"),
		MongoDatabase: get("MONGO_DATABASE", defaultMongoDatabase),
		RedisURL:      env("REDIS_URL"),
		JWTSecret:     env("JWT_SECRET"),
		KafkaBrokers:  splitList(env("KAFKA_BROKERS")),
		KafkaTopic:    get("KAFKA_TOPIC", defaultKafkaTopic),
	}

	var err error
	durations := []struct {
		name     string
		fallback time.Duration
		dst      *time.Duration
	}{
		{"SHUTDOWN_TIMEOUT", defaultShutdownDelay, &cfg.ShutdownPeriod},
		{"IDEMPOTENCY_TTL", defaultIdempotencyTTL, &cfg.IdempotencyTTL},
		{"RATE_LIMIT_WINDOW", defaultRateLimitWindow, &cfg.RateLimitWindow},
		{"LEDGER_LOCK_TIMEOUT", defaultLedgerLockTimeout, &cfg.LedgerLockTimeout},
		{"SETTLEMENT_GRACE", defaultSettlementGrace, &cfg.SettlementGrace},
		{"RECONCILE_INTERVAL", defaultReconcileInterval, &cfg.ReconcileInterval},
		{"RECONCILE_CLAIM_TTL", defaultReconcileClaimTTL, &cfg.ReconcileClaimTTL},
	}
	for _, d := range durations {
		if *d.dst, err = duration(env, d.name, d.fallback); err != nil {
			return Config{}, err
		}
	}

	if cfg.RateLimitMax, err = integer(env, "RATE_LIMIT_MAX", defaultRateLimitMax); err != nil {
		return Config{}, err
	}
	if cfg.ReconcileBatchSize, err = integer(env, "RECONCILE_BATCH_SIZE", defaultReconcileBatch); err != nil {
		return Config{}, err
	}
	if cfg.RequireIdempotencyKey, err = boolean(env, "REQUIRE_IDEMPOTENCY_KEY", false); err != nil {
		return Config{}, err
	}
	if cfg.AutoMigrate, err = boolean(env, "AUTO_MIGRATE", false); err != nil {
		return Config{}, err
	}

	if cfg.SettlementGrace < 0 {
		return Config{}, fmt.Errorf("SETTLEMENT_GRACE must not be negative")
	}
	if cfg.ReconcileInterval < time.Second {
		return Config{}, fmt.Errorf("RECONCILE_INTERVAL must be at least 1s")
	}

	for _, required := range []struct{ name, value string }{
		{"DATABASE_URL", cfg.DatabaseURL},
		{"MONGO_URI", cfg.MongoURI},
		{"REDIS_URL", cfg.RedisURL},
		{"JWT_SECRET", cfg.JWTSecret},
	} {
		if required.value == "" {
			return Config{}, fmt.Errorf("%s must be set", required.name)
		}
	}

	return cfg, nil
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}

// duration reads NAME_SECONDS as whole seconds, falling back to NAME as a
// Go duration string.
func duration(env func(string) string, name string, fallback time.Duration) (time.Duration, error) {
	secondsVar := name + "_SECONDS"
	if v := env(secondsVar); v != "" {
		seconds, err := strconv.Atoi(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", secondsVar, err)
		}
		return time.Duration(seconds) * time.Second, nil
	}
	if v := env(name); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return 0, fmt.Errorf("invalid %s: %w", name, err)
		}
		return d, nil
	}
	return fallback, nil
}

func integer(env func(string) string, name string, fallback int) (int, error) {
	v := env(name)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s: %w", name, err)
	}
	return n, nil
}

func boolean(env func(string) string, name string, fallback bool) (bool, error) {
	v := env(name)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("invalid %s: %w", name, err)
	}
	return b, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func readDotEnv(files []string) (map[string]string, error) {
	if len(files) == 0 {
		files = []string{defaultDotEnvFile}
	}
	values := make(map[string]string)
	for _, file := range files {
		vars, err := godotenv.Read(file)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		for k, v := range vars {
			if _, seen := values[k]; !seen {
				values[k] = v
			}
		}
	}
	return values, nil
}
