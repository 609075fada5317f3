package wallet

import (
	"net/http"

	"github.com/gofiber/fiber/v2"
	"github.com/shopspring/decimal"

	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/middleware"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type withdrawRequest struct {
	Amount decimal.Decimal `json:"amount"`
}

type transferRequest struct {
	FromWalletID int64           `json:"from_wallet_id"`
	ToWalletID   int64           `json:"to_wallet_id"`
	Amount       decimal.Decimal `json:"amount"`
}

type movementResponse struct {
	WalletID      int64  `json:"wallet_id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	TransactionID string `json:"transaction_id,omitempty"`
}

type transferResponse struct {
	FromWalletID  int64  `json:"from_wallet_id"`
	ToWalletID    int64  `json:"to_wallet_id"`
	Amount        string `json:"amount"`
	BalanceBefore string `json:"balance_before"`
	BalanceAfter  string `json:"balance_after"`
	TransactionID string `json:"transaction_id,omitempty"`
}

// Withdraw debits the caller's wallet.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	walletID, err := middleware.ParamID(c, "walletId")
	if err != nil {
		return err
	}
	var req withdrawRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	res, err := h.service.Withdraw(c.UserContext(), walletID, caller.UserID, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(movementResponse{
		WalletID:      walletID,
		Amount:        req.Amount.StringFixed(ledger.Scale),
		BalanceBefore: res.BalanceBefore.StringFixed(ledger.Scale),
		BalanceAfter:  res.BalanceAfter.StringFixed(ledger.Scale),
		TransactionID: res.RecordID,
	})
}

// Transfer moves funds between wallets.
func (h *Handler) Transfer(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	var req transferRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	res, err := h.service.Transfer(c.UserContext(), TransferInput{
		FromWalletID: req.FromWalletID,
		ToWalletID:   req.ToWalletID,
		UserID:       caller.UserID,
		Amount:       req.Amount,
	})
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(transferResponse{
		FromWalletID:  req.FromWalletID,
		ToWalletID:    req.ToWalletID,
		Amount:        req.Amount.StringFixed(ledger.Scale),
		BalanceBefore: res.FromBalanceBefore.StringFixed(ledger.Scale),
		BalanceAfter:  res.FromBalanceAfter.StringFixed(ledger.Scale),
		TransactionID: res.RecordID,
	})
}

// Balance returns the wallet balance.
func (h *Handler) Balance(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	walletID, err := middleware.ParamID(c, "walletId")
	if err != nil {
		return err
	}
	balance, err := h.service.Balance(c.UserContext(), walletID, caller.UserID)
	if err != nil {
		return err
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"wallet_id":  balance.WalletID,
		"wallet_ref": balance.WalletRef,
		"balance":    balance.Amount.StringFixed(ledger.Scale),
		"timestamp":  balance.AsOf,
	})
}
