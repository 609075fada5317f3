package middleware

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testSecret = []byte("test-secret")

func signToken(t *testing.T, secret []byte, claims Claims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
	require.NoError(t, err)
	return token
}

func identityApp() *fiber.App {
	app := fiber.New()
	app.Use(Identity(testSecret))
	app.Get("/whoami", func(c *fiber.Ctx) error {
		caller, err := MustCaller(c)
		if err != nil {
			return err
		}
		return c.JSON(fiber.Map{"user_id": caller.UserID, "role": caller.Role})
	})
	app.Get("/admin", RequireRole(RoleAdmin), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusNoContent)
	})
	return app
}

func call(t *testing.T, app *fiber.App, path, token string) int {
	t.Helper()
	req := httptest.NewRequest(fiber.MethodGet, path, nil)
	if token != "" {
		req.Header.Set(fiber.HeaderAuthorization, "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	resp.Body.Close()
	return resp.StatusCode
}

func TestIdentityAcceptsValidToken(t *testing.T) {
	app := identityApp()
	token := signToken(t, testSecret, Claims{
		UserID:           7,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))},
	})
	assert.Equal(t, fiber.StatusOK, call(t, app, "/whoami", token))
	assert.Equal(t, fiber.StatusForbidden, call(t, app, "/admin", token))
}

func TestIdentityFallsBackToSubject(t *testing.T) {
	app := identityApp()
	token := signToken(t, testSecret, Claims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "12",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})
	assert.Equal(t, fiber.StatusNoContent, call(t, app, "/admin", token))
}

func TestIdentityRejections(t *testing.T) {
	app := identityApp()
	future := jwt.NewNumericDate(time.Now().Add(time.Hour))

	cases := map[string]string{
		"missing":      "",
		"wrong secret": signToken(t, []byte("other"), Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: future}}),
		"expired": signToken(t, testSecret, Claims{UserID: 1, RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Minute)),
		}}),
		"no expiry":   signToken(t, testSecret, Claims{UserID: 1}),
		"bad subject": signToken(t, testSecret, Claims{RegisteredClaims: jwt.RegisteredClaims{Subject: "abc", ExpiresAt: future}}),
	}
	for name, token := range cases {
		assert.Equal(t, fiber.StatusUnauthorized, call(t, app, "/whoami", token), name)
	}
}
