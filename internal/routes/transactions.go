package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/txlog"
)

// RegisterTransactionRoutes wires the transaction history endpoint.
func RegisterTransactionRoutes(r fiber.Router, h *txlog.Handler) {
	r.Get("/transactions/:userId", h.History)
}
