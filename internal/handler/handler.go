// Package handler содержит HTTP-обработчики API сервиса greenledger.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/mmeshcher/greenledger/internal/carbon"
	"github.com/mmeshcher/greenledger/internal/ecopoints"
	"github.com/mmeshcher/greenledger/internal/gamification"
	"github.com/mmeshcher/greenledger/internal/marketplace"
	"github.com/mmeshcher/greenledger/internal/middleware"
	"github.com/mmeshcher/greenledger/internal/model"
	"github.com/mmeshcher/greenledger/internal/service"
)

const (
	defaultLimit = 50
	maxLimit     = 500
)

// Service определяет контракт бизнес-логики, используемой HTTP-обработчиками.
type Service interface {
	ApplyVerifiedPayment(ctx context.Context, p service.VerifiedPayment) (*service.PaymentResult, error)
	PayMerchant(ctx context.Context, userID int64, merchantHandle string, amount int64, orderRef string) (*service.PaymentResult, error)
	Wallet(ctx context.Context, userID int64) (*model.Wallet, error)
	TopUp(ctx context.Context, userID, amount int64) (*model.LedgerTransaction, error)
	Transfer(ctx context.Context, userID int64, receiver string, amount int64) (*model.LedgerTransaction, error)
	WalletHistory(ctx context.Context, userID int64, limit int) ([]model.LedgerTransaction, error)
	Transactions(ctx context.Context, userID int64, limit int) ([]model.FinancialTransaction, error)
	Estimate(ctx context.Context, amount int64, category string) (carbon.Result, error)
	Savings(ctx context.Context, userID int64) (*service.Savings, error)
	Profile(ctx context.Context, userID int64) (*gamification.Profile, error)
	ConnectChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64, address string) error
	ChainAddress(ctx context.Context, owner model.OwnerType, ownerID int64) (string, error)

	PointsBalance(ctx context.Context, userID int64) (*model.PointsBalance, error)
	PointsHistory(ctx context.Context, userID int64, limit int) ([]model.PointsTransaction, error)
	Convertible(ctx context.Context, userID int64) (ecopoints.Convertible, error)
	RedeemPoints(ctx context.Context, userID, points int64, description string) (*model.PointsTransaction, error)
	ConvertPoints(ctx context.Context, userID, points int64, address string) (*model.Conversion, error)
	Conversions(ctx context.Context, userID int64, limit int) ([]model.Conversion, error)

	Credits(ctx context.Context, userID int64) (*model.CreditHolding, error)
	MintCredits(ctx context.Context, userID int64) (marketplace.MintResult, error)
	MarketSummary(ctx context.Context) (marketplace.Summary, error)
	SetCreditPrice(ctx context.Context, pricePerCredit int64) error
	CreditPrice(ctx context.Context) (int64, error)
	CreateListing(ctx context.Context, sellerID, savingID int64, credits float64, pricePerCredit int64) (*model.Listing, error)
	ReviewListing(ctx context.Context, listingID int64, approve bool) (*model.Listing, error)
	Listings(ctx context.Context, offset, limit int) ([]model.Listing, error)
	CreateOrder(ctx context.Context, buyerID, listingID int64, credits float64) (*model.MarketOrder, error)
	Orders(ctx context.Context, buyerID int64) ([]model.MarketOrder, error)
	SettleOrder(ctx context.Context, buyerID, orderID int64, paymentRef string) (*model.MarketOrder, error)
}

// Handler реализует HTTP-обработчики API сервиса greenledger.
type Handler struct {
	service        Service
	logger         *zap.Logger
	authMiddleware *middleware.AuthMiddleware
}

// NewHandler создаёт новый экземпляр обработчика HTTP-запросов.
func NewHandler(s Service, logger *zap.Logger, auth *middleware.AuthMiddleware) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		service:        s,
		logger:         logger,
		authMiddleware: auth,
	}
}

// statusFor сопоставляет доменную ошибку HTTP-статусу. Неизвестные ошибки дают 500.
func statusFor(err error) int {
	switch {
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrInsufficientFunds), errors.Is(err, model.ErrInsufficientPoints):
		return http.StatusPaymentRequired
	case errors.Is(err, model.ErrInvalidAmount),
		errors.Is(err, model.ErrInvalidAddress),
		errors.Is(err, service.ErrMissingReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrInvalidState),
		errors.Is(err, model.ErrAlreadySettled),
		errors.Is(err, model.ErrAlreadyCompleted),
		errors.Is(err, model.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, model.ErrWalletNotConnected):
		return http.StatusPreconditionFailed
	case errors.Is(err, model.ErrExternalService):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, msg string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		fields := []zap.Field{zap.Error(err)}
		if s, ok := middleware.GetSubjectFromContext(r.Context()); ok {
			fields = append(fields, zap.String("subject", s.String()))
		}
		h.logger.Error(msg, fields...)
	}
	http.Error(w, http.StatusText(status), status)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	defer r.Body.Close()
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return false
	}
	return true
}

func subject(w http.ResponseWriter, r *http.Request) (middleware.Subject, bool) {
	s, ok := middleware.GetSubjectFromContext(r.Context())
	if !ok {
		http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
	}
	return s, ok
}

func ownerOf(s middleware.Subject) model.OwnerType {
	if s.Role == middleware.RoleCompany {
		return model.OwnerCompany
	}
	return model.OwnerUser
}

func queryInt(r *http.Request, name string, def int) int {
	v, err := strconv.Atoi(r.URL.Query().Get(name))
	if err != nil || v < 0 {
		return def
	}
	return v
}

func queryLimit(r *http.Request) int {
	limit := queryInt(r, "limit", defaultLimit)
	if limit == 0 || limit > maxLimit {
		return defaultLimit
	}
	return limit
}

func pathID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return 0, false
	}
	return id, true
}

type sessionRequest struct {
	Role string `json:"role"`
	ID   int64  `json:"id"`
}

type sessionResponse struct {
	Token string `json:"token"`
}

// IssueSession выдаёт подписанный токен субъекта. Доступно администратору.
func (h *Handler) IssueSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decode(w, r, &req) {
		return
	}

	s, ok := middleware.ParseSubject(req.Role + ":" + strconv.FormatInt(req.ID, 10))
	if !ok {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	h.logger.Info("session issued", zap.String("subject", s.String()))
	writeJSON(w, http.StatusOK, sessionResponse{Token: h.authMiddleware.Sign(s)})
}
