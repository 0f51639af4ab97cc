package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/middleware"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/service"
)

// stubService реализует только нужные тестам методы; остальные паникуют через nil-интерфейс.
type stubService struct {
	Service

	walletResp *model.Wallet
	walletErr  error

	transferResp *model.LedgerTransaction
	transferErr  error

	paymentResp *service.PaymentResult
	paymentErr  error
	gotPayment  service.VerifiedPayment

	conversionResp *model.Conversion
	conversionErr  error

	ordersResp []model.MarketOrder
	ordersErr  error

	settleBuyer int64
	settleOrder int64
}

func (s *stubService) Wallet(ctx context.Context, userID int64) (*model.Wallet, error) {
	return s.walletResp, s.walletErr
}

func (s *stubService) Transfer(ctx context.Context, userID int64, receiver string, amount int64) (*model.LedgerTransaction, error) {
	return s.transferResp, s.transferErr
}

func (s *stubService) ApplyVerifiedPayment(ctx context.Context, p service.VerifiedPayment) (*service.PaymentResult, error) {
	s.gotPayment = p
	return s.paymentResp, s.paymentErr
}

func (s *stubService) ConvertPoints(ctx context.Context, userID, points int64, address string) (*model.Conversion, error) {
	return s.conversionResp, s.conversionErr
}

func (s *stubService) Orders(ctx context.Context, buyerID int64) ([]model.MarketOrder, error) {
	return s.ordersResp, s.ordersErr
}

func (s *stubService) SettleOrder(ctx context.Context, buyerID, orderID int64, paymentRef string) (*model.MarketOrder, error) {
	s.settleBuyer, s.settleOrder = buyerID, orderID
	return &model.MarketOrder{ID: orderID, BuyerID: buyerID, Status: model.OrderCompleted, Settled: true}, nil
}

func newTestHandler(t *testing.T, svc Service) *Handler {
	t.Helper()

	logger, err := zap.NewDevelopment()
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}

	auth := middleware.NewAuthMiddleware("test-secret")

	return NewHandler(svc, logger, auth)
}

func authCookie(h *Handler, role middleware.Role, id int64) *http.Cookie {
	rec := httptest.NewRecorder()
	h.authMiddleware.SetAuthCookie(rec, middleware.Subject{Role: role, ID: id})
	return rec.Result().Cookies()[0]
}

func serve(h *Handler, method, target string, body any, cookie *http.Cookie) *http.Response {
	var rd io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rd = bytes.NewReader(b)
	}

	req := httptest.NewRequest(method, target, rd)
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	h.SetupRouter().ServeHTTP(rec, req)
	return rec.Result()
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{model.ErrNotFound, http.StatusNotFound},
		{fmt.Errorf("wallet x: %w", model.ErrNotFound), http.StatusNotFound},
		{model.ErrInsufficientFunds, http.StatusPaymentRequired},
		{model.ErrInsufficientPoints, http.StatusPaymentRequired},
		{model.ErrInvalidAmount, http.StatusUnprocessableEntity},
		{model.ErrInvalidAddress, http.StatusUnprocessableEntity},
		{service.ErrMissingReference, http.StatusUnprocessableEntity},
		{model.ErrInvalidState, http.StatusConflict},
		{model.ErrAlreadySettled, http.StatusConflict},
		{model.ErrAlreadyCompleted, http.StatusConflict},
		{model.ErrWalletNotConnected, http.StatusPreconditionFailed},
		{fmt.Errorf("%w: rpc timeout", model.ErrExternalService), http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Fatalf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}

func TestGetWallet_JSONResponse(t *testing.T) {
	svc := &stubService{walletResp: &model.Wallet{Handle: "user5@greenpay", Balance: 1500}}
	h := newTestHandler(t, svc)

	res := serve(h, http.MethodGet, "/api/wallet", nil, authCookie(h, middleware.RoleUser, 5))
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if ct := res.Header.Get("Content-Type"); ct != "application/json" {
		t.Fatalf("content-type = %q, want application/json", ct)
	}

	var got walletResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Handle != "user5@greenpay" || got.Balance != 1500 {
		t.Fatalf("wallet = %+v", got)
	}
}

func TestRouter_Roles(t *testing.T) {
	svc := &stubService{walletResp: &model.Wallet{Handle: "h"}}
	h := newTestHandler(t, svc)

	tests := []struct {
		name   string
		cookie *http.Cookie
		method string
		target string
		want   int
	}{
		{name: "anonymous", method: http.MethodGet, target: "/api/wallet", want: http.StatusUnauthorized},
		{name: "company on user route", cookie: authCookie(h, middleware.RoleCompany, 3), method: http.MethodGet, target: "/api/wallet", want: http.StatusForbidden},
		{name: "user on company route", cookie: authCookie(h, middleware.RoleUser, 3), method: http.MethodGet, target: "/api/market/orders", want: http.StatusForbidden},
		{name: "user on admin route", cookie: authCookie(h, middleware.RoleUser, 3), method: http.MethodPost, target: "/api/admin/payments", want: http.StatusForbidden},
		{name: "unknown route", cookie: authCookie(h, middleware.RoleUser, 3), method: http.MethodGet, target: "/api/nothing", want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := serve(h, tt.method, tt.target, nil, tt.cookie)
			res.Body.Close()
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
}

func TestTransfer(t *testing.T) {
	tests := []struct {
		name string
		body transferRequest
		err  error
		want int
	}{
		{name: "ok", body: transferRequest{Receiver: "b@greenpay", Amount: 100}, want: http.StatusOK},
		{name: "empty receiver", body: transferRequest{Receiver: "  ", Amount: 100}, want: http.StatusBadRequest},
		{name: "insufficient funds", body: transferRequest{Receiver: "b@greenpay", Amount: 1000}, err: model.ErrInsufficientFunds, want: http.StatusPaymentRequired},
		{name: "unknown receiver", body: transferRequest{Receiver: "x@greenpay", Amount: 1}, err: model.ErrNotFound, want: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{
				transferResp: &model.LedgerTransaction{Reference: "ref", Amount: tt.body.Amount, Status: model.LedgerSuccess, CreatedAt: time.Now()},
				transferErr:  tt.err,
			}
			h := newTestHandler(t, svc)

			res := serve(h, http.MethodPost, "/api/wallet/transfer", tt.body, authCookie(h, middleware.RoleUser, 1))
			res.Body.Close()
			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
		})
	}
}

func TestInternalErrorNotLeaked(t *testing.T) {
	svc := &stubService{walletErr: errors.New("pg: password authentication failed for user secret")}
	h := newTestHandler(t, svc)

	res := serve(h, http.MethodGet, "/api/wallet", nil, authCookie(h, middleware.RoleUser, 1))
	defer res.Body.Close()

	if res.StatusCode != http.StatusInternalServerError {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusInternalServerError)
	}
	body, _ := io.ReadAll(res.Body)
	if strings.Contains(string(body), "secret") {
		t.Fatalf("internal error leaked: %q", body)
	}
}

func TestApplyPayment(t *testing.T) {
	ref := "pay_1"
	ft := &model.FinancialTransaction{ID: 9, Amount: 50000, PaymentRef: &ref, CreatedAt: time.Now()}

	tests := []struct {
		name      string
		duplicate bool
		want      int
	}{
		{name: "new", want: http.StatusCreated},
		{name: "duplicate", duplicate: true, want: http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &stubService{paymentResp: &service.PaymentResult{Transaction: ft, PointsAwarded: 85, Duplicate: tt.duplicate}}
			h := newTestHandler(t, svc)

			body := verifiedPaymentRequest{UserID: 4, PaymentRef: ref, Amount: 50000, Category: "Travel"}
			res := serve(h, http.MethodPost, "/api/admin/payments", body, authCookie(h, middleware.RoleAdmin, 1))
			defer res.Body.Close()

			if res.StatusCode != tt.want {
				t.Fatalf("status = %d, want %d", res.StatusCode, tt.want)
			}
			if svc.gotPayment.UserID != 4 || svc.gotPayment.Category != "Travel" {
				t.Fatalf("payment = %+v", svc.gotPayment)
			}

			var got paymentResponse
			if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if got.PointsAwarded != 85 || got.Transaction.PaymentRef != ref {
				t.Fatalf("response = %+v", got)
			}
		})
	}
}

func TestConvert_MintFailureReturnsConversion(t *testing.T) {
	svc := &stubService{
		conversionResp: &model.Conversion{ID: 3, Points: 100, TokenAmount: decimal.NewFromInt(100), Status: model.ConversionMintFailed, Attempts: 1},
		conversionErr:  fmt.Errorf("mint: %w", model.ErrExternalService),
	}
	h := newTestHandler(t, svc)

	res := serve(h, http.MethodPost, "/api/points/convert", convertRequest{Points: 100}, authCookie(h, middleware.RoleUser, 1))
	defer res.Body.Close()

	if res.StatusCode != http.StatusBadGateway {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadGateway)
	}

	var got conversionResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.Status != string(model.ConversionMintFailed) || got.Tokens != "100" {
		t.Fatalf("conversion = %+v", got)
	}
}

func TestGetOrders_NoContent(t *testing.T) {
	svc := &stubService{ordersResp: []model.MarketOrder{}}
	h := newTestHandler(t, svc)

	res := serve(h, http.MethodGet, "/api/market/orders", nil, authCookie(h, middleware.RoleCompany, 2))
	res.Body.Close()

	if res.StatusCode != http.StatusNoContent {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusNoContent)
	}
}

func TestSettleOrder(t *testing.T) {
	svc := &stubService{}
	h := newTestHandler(t, svc)
	cookie := authCookie(h, middleware.RoleCompany, 2)

	res := serve(h, http.MethodPost, "/api/market/orders/abc/settle", settleRequest{}, cookie)
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}

	res = serve(h, http.MethodPost, "/api/market/orders/17/settle", settleRequest{PaymentRef: "pay_9"}, cookie)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
	if svc.settleBuyer != 2 || svc.settleOrder != 17 {
		t.Fatalf("settle called with buyer=%d order=%d", svc.settleBuyer, svc.settleOrder)
	}
}

func TestIssueSession(t *testing.T) {
	svc := &stubService{walletResp: &model.Wallet{Handle: "h"}}
	h := newTestHandler(t, svc)

	res := serve(h, http.MethodPost, "/api/admin/sessions", sessionRequest{Role: "user", ID: 5}, authCookie(h, middleware.RoleAdmin, 1))
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}

	var got sessionResponse
	if err := json.NewDecoder(res.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}

	res = serve(h, http.MethodGet, "/api/wallet", nil, &http.Cookie{Name: "auth_token", Value: got.Token})
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("issued token rejected: status = %d", res.StatusCode)
	}

	res = serve(h, http.MethodPost, "/api/admin/sessions", sessionRequest{Role: "root", ID: 5}, authCookie(h, middleware.RoleAdmin, 1))
	res.Body.Close()
	if res.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusBadRequest)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestHandler(t, &stubService{})

	res := serve(h, http.MethodGet, "/metrics", nil, nil)
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", res.StatusCode, http.StatusOK)
	}
}
