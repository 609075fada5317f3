package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
)

const (
	localCaller = "caller"

	// RoleAdmin grants access to other users' data and provisioning.
	RoleAdmin = "admin"
	// RoleUser is the default role.
	RoleUser = "user"
)

// Caller is the verified identity attached to a request.
type Caller struct {
	UserID int64
	Role   string
}

// IsAdmin reports whether the caller holds the admin role.
func (c Caller) IsAdmin() bool {
	return c.Role == RoleAdmin
}

// Claims is the token payload minted by the identity provider. The user id
// is read from uid and falls back to the subject.
type Claims struct {
	UserID int64  `json:"uid,omitempty"`
	Role   string `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// Identity verifies HS256 bearer tokens and attaches the Caller to the request.
func Identity(secret []byte) fiber.Handler {
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(c *fiber.Ctx) error {
		authz := c.Get(fiber.HeaderAuthorization)
		if !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			return fiber.NewError(http.StatusUnauthorized, "missing bearer token")
		}
		raw := strings.TrimSpace(authz[len("Bearer "):])

		var claims Claims
		if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
			return fiber.NewError(http.StatusUnauthorized, "invalid token")
		}

		userID := claims.UserID
		if userID == 0 {
			parsed, err := strconv.ParseInt(claims.Subject, 10, 64)
			if err != nil {
				return fiber.NewError(http.StatusUnauthorized, "invalid token subject")
			}
			userID = parsed
		}
		if userID <= 0 {
			return fiber.NewError(http.StatusUnauthorized, "invalid token subject")
		}

		role := claims.Role
		if role == "" {
			role = RoleUser
		}
		SetCaller(c, Caller{UserID: userID, Role: role})
		return c.Next()
	}
}

// RequireRole rejects callers that do not hold role.
func RequireRole(role string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		caller, ok := CallerFrom(c)
		if !ok {
			return fiber.NewError(http.StatusUnauthorized, "unauthorized")
		}
		if caller.Role != role {
			return fiber.NewError(http.StatusForbidden, "forbidden")
		}
		return c.Next()
	}
}

// SetCaller attaches caller to the request context.
func SetCaller(c *fiber.Ctx, caller Caller) {
	c.Locals(localCaller, caller)
}

// CallerFrom returns the verified caller of the request.
func CallerFrom(c *fiber.Ctx) (Caller, bool) {
	caller, ok := c.Locals(localCaller).(Caller)
	return caller, ok && caller.UserID > 0
}

// MustCaller is CallerFrom for handlers mounted behind Identity.
func MustCaller(c *fiber.Ctx) (Caller, error) {
	caller, ok := CallerFrom(c)
	if !ok {
		return Caller{}, fiber.NewError(http.StatusUnauthorized, "unauthorized")
	}
	return caller, nil
}
