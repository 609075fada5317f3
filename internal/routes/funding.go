package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/funding"
)

// RegisterFundingRoutes wires the wallet funding intake endpoint.
func RegisterFundingRoutes(r fiber.Router, h *funding.Handler) {
	r.Post("/wallets/:walletId/fund", h.Fund)
}
