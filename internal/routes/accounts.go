package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/accounts"
	"github.com/congo-pay/bankee/internal/middleware"
)

// RegisterAccountRoutes wires account ledger endpoints.
func RegisterAccountRoutes(r fiber.Router, h *accounts.Handler) {
	r.Post("/accounts/transfer", h.Transfer)
	r.Post("/accounts/:accountId/deposit", h.Deposit)
	r.Post("/accounts/:accountId/withdraw", h.Withdraw)
	r.Get("/accounts/:accountId/balance", h.Balance)
}

// RegisterAdminRoutes wires operator endpoints restricted to the admin role.
func RegisterAdminRoutes(r fiber.Router, h *accounts.Handler) {
	admin := r.Group("/admin", middleware.RequireRole(middleware.RoleAdmin))
	admin.Post("/users/:userId/provision", h.Provision)
}
