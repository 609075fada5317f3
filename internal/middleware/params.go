package middleware

import (
	"strconv"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/apperr"
)

// ParamID parses a positive integer route parameter.
func ParamID(c *fiber.Ctx, name string) (int64, error) {
	id, err := strconv.ParseInt(c.Params(name), 10, 64)
	if err != nil || id <= 0 {
		return 0, apperr.Invalid("%s must be a positive integer", name)
	}
	return id, nil
}

// ParseBody decodes the request body into out. Decoder errors are not
// returned to the client.
func ParseBody(c *fiber.Ctx, out any) error {
	if err := c.BodyParser(out); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	return nil
}
