package accounts

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/middleware"
)

// Handler exposes account HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an account HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Deposit credits the caller's account.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	return h.movement(c, h.service.Deposit)
}

// Withdraw debits the caller's account.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	return h.movement(c, h.service.Withdraw)
}

type movementFunc func(ctx context.Context, accountID, userID int64, amount decimal.Decimal) (Result, error)

func (h *Handler) movement(c *fiber.Ctx, apply movementFunc) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	accountID, err := middleware.ParamID(c, "accountId")
	if err != nil {
		return err
	}
	var req AmountRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	res, err := apply(c.UserContext(), accountID, caller.UserID, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(MovementResponse{
		AccountID:     res.AccountID,
		Amount:        req.Amount.StringFixed(ledger.Scale),
		BalanceBefore: res.BalanceBefore.StringFixed(ledger.Scale),
		BalanceAfter:  res.BalanceAfter.StringFixed(ledger.Scale),
		TransactionID: res.RecordID,
	})
}

// Transfer moves funds from one of the caller's accounts to another account.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req TransferRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		UserID:        caller.UserID,
		Amount:        req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(TransferResponse{
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        req.Amount.StringFixed(ledger.Scale),
		BalanceBefore: res.From.Before.StringFixed(ledger.Scale),
		BalanceAfter:  res.From.After.StringFixed(ledger.Scale),
		TransactionID: res.RecordID,
	})
}

// Balance returns the balance of one of the caller's accounts.
func (h *Handler) Balance(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	accountID, err := middleware.ParamID(c, "accountId")
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), accountID, caller.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(BalanceResponse{
		AccountID: accountID,
		Balance:   balance.StringFixed(ledger.Scale),
		Timestamp: time.Now().UTC(),
	})
}

// Provision creates the ledger rows of a user. Mounted behind RequireRole(admin).
func (h *Handler) Provision(c *fiber.Ctx) error {
	userID, err := middleware.ParamID(c, "userId")
	if err != nil {
		return err
	}
	holdings, err := h.service.Provision(c.UserContext(), userID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusCreated).JSON(ProvisionResponse{
		UserID:  userID,
		Account: toHolding(holdings.Account),
		Wallet:  toHolding(holdings.Wallet),
	})
}

func toHolding(row ledger.Row) HoldingResponse {
	return HoldingResponse{ID: row.ID, Reference: row.Ref, Balance: row.Balance.StringFixed(ledger.Scale)}
}
