package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/congo-pay/bankee/internal/apperr"
	"github.com/congo-pay/bankee/internal/ledger"
	"github.com/congo-pay/bankee/internal/logging"
	"github.com/congo-pay/bankee/internal/middleware"
	"github.com/congo-pay/bankee/internal/txlog"
)

func newService() (*Service, ledger.Store, txlog.Store) {
	store := ledger.NewInMemory(200 * time.Millisecond)
	log := txlog.NewInMemory()
	journal := txlog.NewJournal(log, logging.Discard(), nil, nil)
	return NewService(store, journal, nil, logging.Discard(), nil), store, log
}

func TestServiceWithdrawInsufficientFunds(t *testing.T) {
	svc, store, log := newService()
	ledger.Seed(store, ledger.Row{Kind: ledger.KindWallet, ID: 2, UserID: 5, Balance: ledger.Amount("20")})

	_, err := svc.Withdraw(context.Background(), 2, 5, ledger.Amount("50"))
	if !errors.Is(err, apperr.ErrInsufficientFunds) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	balance, err := svc.Balance(context.Background(), 2, 5)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !balance.Amount.Equal(ledger.Amount("20")) {
		t.Fatalf("expected balance 20, got %s", balance.Amount)
	}
	if n := len(txlog.All(log)); n != 0 {
		t.Fatalf("expected no records, got %d", n)
	}
}

func TestServiceWithdrawJournals(t *testing.T) {
	svc, store, log := newService()
	ledger.Seed(store, ledger.Row{Kind: ledger.KindWallet, ID: 2, UserID: 5, Ref: "WALFIXED", Balance: ledger.Amount("20")})

	res, err := svc.Withdraw(context.Background(), 2, 5, ledger.Amount("7.25"))
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if !res.BalanceAfter.Equal(ledger.Amount("12.75")) {
		t.Fatalf("unexpected balance after %s", res.BalanceAfter)
	}
	rec, ok := txlog.Lookup(log, res.RecordID)
	if !ok {
		t.Fatal("withdraw not journaled")
	}
	if rec.Type != txlog.TypeWalletWithdraw || rec.WalletRef != "WALFIXED" || rec.FromWalletID == nil || *rec.FromWalletID != 2 {
		t.Fatalf("unexpected record %+v", rec)
	}
}

func TestServiceTransferBetweenWallets(t *testing.T) {
	svc, store, log := newService()
	ledger.Seed(store, ledger.Row{Kind: ledger.KindWallet, ID: 1, UserID: 5, Balance: ledger.Amount("10")})
	ledger.Seed(store, ledger.Row{Kind: ledger.KindWallet, ID: 2, UserID: 6, Balance: ledger.Amount("1")})

	res, err := svc.Transfer(context.Background(), TransferInput{FromWalletID: 1, ToWalletID: 2, UserID: 5, Amount: ledger.Amount("4")})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	if !res.FromBalanceAfter.Equal(ledger.Amount("6")) || !res.ToBalanceAfter.Equal(ledger.Amount("5")) {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.RecipientID != 6 {
		t.Fatalf("expected recipient 6, got %d", res.RecipientID)
	}

	records := txlog.All(log)
	if len(records) != 1 || records[0].Type != txlog.TypeWalletTransfer {
		t.Fatalf("expected one WALLET_TRANSFER record, got %+v", records)
	}

	// the caller does not own wallet 2
	if _, err := svc.Transfer(context.Background(), TransferInput{FromWalletID: 2, ToWalletID: 1, UserID: 5, Amount: ledger.Amount("1")}); !errors.Is(err, apperr.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestHandlerWalletEndpoints(t *testing.T) {
	svc, store, _ := newService()
	ledger.Seed(store, ledger.Row{Kind: ledger.KindWallet, ID: 1, UserID: 5, Balance: ledger.Amount("10")})
	ledger.Seed(store, ledger.Row{Kind: ledger.KindWallet, ID: 2, UserID: 6, Balance: ledger.Amount("0")})

	app := fiber.New(fiber.Config{ErrorHandler: middleware.ErrorHandler(logging.Discard())})
	app.Use(func(c *fiber.Ctx) error {
		id, _ := strconv.ParseInt(c.Get("X-Test-User"), 10, 64)
		middleware.SetCaller(c, middleware.Caller{UserID: id, Role: middleware.RoleUser})
		return c.Next()
	})
	h := NewHandler(svc)
	app.Post("/wallets/transfer", h.Transfer)
	app.Post("/wallets/:walletId/withdraw", h.Withdraw)
	app.Get("/wallets/:walletId/balance", h.Balance)

	send := func(method, path, body string) (int, map[string]any) {
		t.Helper()
		var reader io.Reader
		if body != "" {
			reader = strings.NewReader(body)
		}
		req := httptest.NewRequest(method, path, reader)
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
		req.Header.Set("X-Test-User", "5")
		resp, err := app.Test(req)
		if err != nil {
			t.Fatalf("%s %s: %v", method, path, err)
		}
		defer resp.Body.Close()
		out := map[string]any{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		return resp.StatusCode, out
	}

	status, body := send(fiber.MethodPost, "/wallets/transfer", `{"from_wallet_id":1,"to_wallet_id":2,"amount":"2.5"}`)
	if status != fiber.StatusOK || body["balance_after"] != "7.50" {
		t.Fatalf("transfer: %d %v", status, body)
	}
	status, body = send(fiber.MethodPost, "/wallets/1/withdraw", `{"amount":100}`)
	if status != fiber.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d %v", status, body)
	}
	status, body = send(fiber.MethodGet, "/wallets/1/balance", "")
	if status != fiber.StatusOK || body["balance"] != "7.50" {
		t.Fatalf("balance: %d %v", status, body)
	}
	status, _ = send(fiber.MethodGet, "/wallets/2/balance", "")
	if status != fiber.StatusNotFound {
		t.Fatalf("expected 404 for foreign wallet, got %d", status)
	}
}
