package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/wallet"
)

// RegisterWalletRoutes wires wallet ledger endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Post("/wallets/transfer", h.Transfer)
	r.Post("/wallets/:walletId/withdraw", h.Withdraw)
	r.Get("/wallets/:walletId/balance", h.Balance)
}
