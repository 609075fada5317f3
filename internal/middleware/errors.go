package middleware

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/apperr"
)

// ErrorResponse is the JSON body of every failed request.
type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// ErrorHandler renders fiber and domain errors as ErrorResponse. Details of
// unclassified errors are logged and never returned to the client.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		if errors.As(err, &fe) {
			return c.Status(fe.Code).JSON(ErrorResponse{Code: fe.Code, Message: fe.Message})
		}

		status := apperr.Status(err)
		if status >= http.StatusInternalServerError && logger != nil {
			logger.Error("handler error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", RequestIDFrom(c)),
				slog.Any("error", err),
			)
		}
		return c.Status(status).JSON(ErrorResponse{Code: status, Message: apperr.Message(err)})
	}
}
