package routes

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/congo-pay/bankee/internal/accounts"
	"github.com/congo-pay/bankee/internal/config"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/logging"
	"github.com/congo-pay/bankee/internal/metrics"
	"github.com/congo-pay/bankee/internal/middleware"
	"github.com/congo-pay/bankee/internal/txlog"
)

const secret = "routes-secret"

func testApp(t *testing.T) *fiber.App {
	t.Helper()
	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	err := Setup(app, Deps{
		Cfg:     config.Config{AppEnv: "test", JWTSecret: secret},
		Logger:  logger,
		Metrics: metrics.New(),
		Ledger:  ledger.NewInMemory(time.Second),
		Log:     txlog.NewInMemory(),
	})
	require.NoError(t, err)
	return app
}

func token(t *testing.T, userID int64, role string) string {
	t.Helper()
	claims := middleware.Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func do(t *testing.T, app *fiber.App, method, path, bearer, body string) (int, []byte) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	if bearer != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+bearer)
	}
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, raw
}

func TestSetupServesLedgerFlow(t *testing.T) {
	app := testApp(t)
	admin := token(t, 1, middleware.RoleAdmin)
	user := token(t, 7, middleware.RoleUser)

	status, raw := do(t, app, fiber.MethodPost, "/api/v1/admin/users/7/provision", user, "")
	require.Equal(t, fiber.StatusForbidden, status, string(raw))

	status, raw = do(t, app, fiber.MethodPost, "/api/v1/admin/users/7/provision", admin, "")
	require.Equal(t, fiber.StatusCreated, status, string(raw))
	var holdings accounts.ProvisionResponse
	require.NoError(t, json.Unmarshal(raw, &holdings))

	accountPath := "/api/v1/accounts/" + strconv.FormatInt(holdings.Account.ID, 10)
	status, raw = do(t, app, fiber.MethodPost, accountPath+"/deposit", user, `{"amount":"100"}`)
	require.Equal(t, fiber.StatusOK, status, string(raw))

	status, raw = do(t, app, fiber.MethodGet, accountPath+"/balance", user, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var balance accounts.BalanceResponse
	require.NoError(t, json.Unmarshal(raw, &balance))
	assert.Equal(t, "100.00", balance.Balance)

	walletPath := "/api/v1/wallets/" + strconv.FormatInt(holdings.Wallet.ID, 10)
	status, raw = do(t, app, fiber.MethodPost, walletPath+"/fund", user, `{"amount":25}`)
	require.Equal(t, fiber.StatusAccepted, status, string(raw))

	status, raw = do(t, app, fiber.MethodGet, "/api/v1/transactions/7", user, "")
	require.Equal(t, fiber.StatusOK, status, string(raw))
	var history txlog.HistoryResponse
	require.NoError(t, json.Unmarshal(raw, &history))
	require.EqualValues(t, 2, history.Total)
	assert.Equal(t, string(txlog.TypeWalletFund), history.Data.Transactions[0].Type)
	assert.Equal(t, string(txlog.StatusPending), history.Data.Transactions[0].Status)

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/transactions/8", user, "")
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestSetupPublicEndpoints(t *testing.T) {
	app := testApp(t)

	status, raw := do(t, app, fiber.MethodGet, "/healthz", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"postgres":"disabled"`)

	status, raw = do(t, app, fiber.MethodGet, "/api/v1/ping", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), `"request_id"`)

	status, _ = do(t, app, fiber.MethodGet, "/api/v1/accounts/1/balance", "", "")
	assert.Equal(t, fiber.StatusUnauthorized, status)

	status, raw = do(t, app, fiber.MethodGet, "/metrics", "", "")
	require.Equal(t, fiber.StatusOK, status)
	assert.Contains(t, string(raw), "go_goroutines")
}

func TestSetupRequiresBackingServicesOutsideDev(t *testing.T) {
	err := Setup(fiber.New(), Deps{
		Cfg:    config.Config{AppEnv: "production", JWTSecret: secret},
		Ledger: ledger.NewInMemory(time.Second),
		Log:    txlog.NewInMemory(),
	})
	require.Error(t, err)

	err = Setup(fiber.New(), Deps{Cfg: config.Config{AppEnv: "test"}})
	require.Error(t, err)
}

func TestHealthHidesDependencyErrors(t *testing.T) {
	mr := miniredis.RunT(t)
	addr := mr.Addr()
	cache := redis.NewClient(&redis.Options{Addr: addr})
	t.Cleanup(func() { _ = cache.Close() })
	mr.Close()

	logger := logging.Discard()
	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logger)})
	require.NoError(t, Setup(app, Deps{
		Cfg:    config.Config{AppEnv: "test", JWTSecret: secret},
		Cache:  cache,
		Logger: logger,
		Ledger: ledger.NewInMemory(time.Second),
		Log:    txlog.NewInMemory(),
	}))

	status, raw := do(t, app, fiber.MethodGet, "/healthz", "", "")
	require.Equal(t, fiber.StatusServiceUnavailable, status)
	assert.Contains(t, string(raw), `"redis":"unavailable"`)
	assert.NotContains(t, string(raw), addr)
}
