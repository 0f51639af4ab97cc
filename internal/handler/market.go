package handler

import (
	"net/http"
)

// GetCredits пересчитывает и возвращает углеродные кредиты текущего пользователя.
func (h *Handler) GetCredits(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	c, err := h.service.Credits(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "get credits error", err)
		return
	}
	writeJSON(w, http.StatusOK, creditsResponse{CarbonKg: c.CarbonKg, Credits: c.Credits})
}

// MintCredits выпускает токены кредитов текущего пользователя.
func (h *Handler) MintCredits(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	res, err := h.service.MintCredits(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "mint credits error", err)
		return
	}
	writeJSON(w, http.StatusOK, mintResponse{Minted: res.Minted.String(), TxHash: res.TxHash})
}

// GetSummary возвращает сводку по экономии площадки.
func (h *Handler) GetSummary(w http.ResponseWriter, r *http.Request) {
	sum, err := h.service.MarketSummary(r.Context())
	if err != nil {
		h.fail(w, r, "market summary error", err)
		return
	}
	writeJSON(w, http.StatusOK, summaryResponse{
		TotalSavedKg:  sum.TotalSavedKg,
		TotalCredits:  sum.TotalCredits,
		IssuedCredits: sum.IssuedCredits,
		KgPerCredit:   sum.KgPerCredit,
	})
}

// GetPrice возвращает текущую цену кредита. 0 означает, что цена не задана.
func (h *Handler) GetPrice(w http.ResponseWriter, r *http.Request) {
	p, err := h.service.CreditPrice(r.Context())
	if err != nil {
		h.fail(w, r, "credit price error", err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{PricePerCredit: p})
}

// SetPrice устанавливает цену кредита.
func (h *Handler) SetPrice(w http.ResponseWriter, r *http.Request) {
	var req priceResponse
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.SetCreditPrice(r.Context(), req.PricePerCredit); err != nil {
		h.fail(w, r, "set credit price error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type listingRequest struct {
	SavingID       int64   `json:"saving_id"`
	Credits        float64 `json:"credits"`
	PricePerCredit int64   `json:"price_per_credit"`
}

// CreateListing выставляет кредиты текущего пользователя на продажу.
func (h *Handler) CreateListing(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req listingRequest
	if !decode(w, r, &req) {
		return
	}

	l, err := h.service.CreateListing(r.Context(), s.ID, req.SavingID, req.Credits, req.PricePerCredit)
	if err != nil {
		h.fail(w, r, "create listing error", err)
		return
	}
	writeJSON(w, http.StatusCreated, toListing(*l))
}

// GetListings возвращает доступные лоты.
func (h *Handler) GetListings(w http.ResponseWriter, r *http.Request) {
	ls, err := h.service.Listings(r.Context(), queryInt(r, "offset", 0), queryLimit(r))
	if err != nil {
		h.fail(w, r, "get listings error", err)
		return
	}

	if len(ls) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]listingResponse, 0, len(ls))
	for _, l := range ls {
		resp = append(resp, toListing(l))
	}
	writeJSON(w, http.StatusOK, resp)
}

type reviewRequest struct {
	Approve bool `json:"approve"`
}

// ReviewListing одобряет или отклоняет лот.
func (h *Handler) ReviewListing(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req reviewRequest
	if !decode(w, r, &req) {
		return
	}

	l, err := h.service.ReviewListing(r.Context(), id, req.Approve)
	if err != nil {
		h.fail(w, r, "review listing error", err)
		return
	}
	writeJSON(w, http.StatusOK, toListing(*l))
}

type orderRequest struct {
	ListingID int64   `json:"listing_id"`
	Credits   float64 `json:"credits"`
}

// CreateOrder создаёт заказ текущей компании на лот.
func (h *Handler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req orderRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := h.service.CreateOrder(r.Context(), s.ID, req.ListingID, req.Credits)
	if err != nil {
		h.fail(w, r, "create order error", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOrder(*o))
}

// GetOrders возвращает заказы текущей компании.
func (h *Handler) GetOrders(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	orders, err := h.service.Orders(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "get orders error", err)
		return
	}

	if len(orders) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, toOrder(o))
	}
	writeJSON(w, http.StatusOK, resp)
}

type settleRequest struct {
	PaymentRef string `json:"payment_ref"`
}

// SettleOrder завершает оплаченный заказ текущей компании.
func (h *Handler) SettleOrder(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}
	id, ok := pathID(w, r)
	if !ok {
		return
	}

	var req settleRequest
	if !decode(w, r, &req) {
		return
	}

	o, err := h.service.SettleOrder(r.Context(), s.ID, id, req.PaymentRef)
	if err != nil {
		h.fail(w, r, "settle order error", err)
		return
	}
	writeJSON(w, http.StatusOK, toOrder(*o))
}
