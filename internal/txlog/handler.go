package txlog

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/middleware"
)

const dateOnly = "2006-01-02"

// Handler exposes the transaction history endpoint.
type Handler struct {
	store Store
}

// NewHandler builds a history handler over store.
func NewHandler(store Store) *Handler {
	return &Handler{store: store}
}

// History lists a user's records newest first. Callers only see their own
// history unless they hold the admin role.
func (h *Handler) History(c *fiber.Ctx) error {
	caller, err := middleware.MustCaller(c)
	if err != nil {
		return err
	}
	userID, err := middleware.ParamID(c, "userId")
	if err != nil {
		return err
	}
	if userID != caller.UserID && !caller.IsAdmin() {
		return fiber.NewError(http.StatusForbidden, "forbidden")
	}

	filter, err := parseFilter(c)
	if err != nil {
		return err
	}
	filter.UserID = userID

	page, err := h.store.Find(c.UserContext(), filter)
	if err != nil {
		return err
	}

	var resp HistoryResponse
	resp.Total = page.Total
	resp.Data.Transactions = make([]RecordResponse, 0, len(page.Records))
	for _, rec := range page.Records {
		resp.Data.Transactions = append(resp.Data.Transactions, ToResponse(rec))
	}
	resp.Data.Pagination = PaginationResponse{Page: page.Page, Limit: page.Limit, TotalPages: page.TotalPages()}
	return c.Status(http.StatusOK).JSON(resp)
}

func parseFilter(c *fiber.Ctx) (Filter, error) {
	var f Filter
	if v := c.Query("type"); v != "" {
		if !ValidType(Type(v)) {
			return f, apperr.Invalid("unknown transaction type %q", v)
		}
		f.Type = Type(v)
	}
	if v := c.Query("status"); v != "" {
		if !ValidStatus(Status(v)) {
			return f, apperr.Invalid("unknown status %q", v)
		}
		f.Status = Status(v)
	}

	var err error
	if f.Since, err = parseDate(c.Query("start_date"), false); err != nil {
		return f, apperr.Invalid("start_date: %v", err)
	}
	if f.Until, err = parseDate(c.Query("end_date"), true); err != nil {
		return f, apperr.Invalid("end_date: %v", err)
	}
	if !f.Since.IsZero() && !f.Until.IsZero() && f.Until.Before(f.Since) {
		return f, apperr.Invalid("end_date is before start_date")
	}

	if f.Page, err = parsePositive(c.Query("page"), DefaultPage); err != nil {
		return f, apperr.Invalid("page: %v", err)
	}
	if f.Limit, err = parsePositive(c.Query("limit"), DefaultLimit); err != nil {
		return f, apperr.Invalid("limit: %v", err)
	}
	return f.Normalize(), nil
}

// parseDate accepts RFC 3339 timestamps or plain dates. A plain end date
// covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(dateOnly, raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}

func parsePositive(raw string, fallback int) (int, error) {
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, err
	}
	if n < 1 {
		return fallback, nil
	}
	return n, nil
}
