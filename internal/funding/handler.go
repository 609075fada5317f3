package funding

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/middleware"
)

// Handler exposes the wallet funding endpoint.
type Handler struct {
	service *Service
}

// NewHandler constructs a funding handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Fund accepts a funding intent for the caller's wallet and answers 202.
func (h *Handler) Fund(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	walletID, err := middleware.ParamID(c, "walletId")
	if err != nil {
		return err
	}
	var req FundRequest
	if err := middleware.ParseBody(c, &req); err != nil {
		return err
	}

	result, err := h.service.Fund(c.UserContext(), walletID, caller.UserID, req.Amount)
	if err != nil {
		return err
	}
	return c.Status(http.StatusAccepted).JSON(toResponse(result))
}

func toResponse(result FundingResult) FundResponse {
	return FundResponse{
		Message:       "Funding pending",
		WalletRef:     result.WalletRef,
		TransactionID: result.RecordID,
		Status:        string(result.Status),
		Amount:        result.Amount.StringFixed(ledger.Scale),
	}
}
