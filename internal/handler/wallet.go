package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/mmeshcher/greenledger/internal/service"
)

// GetWallet возвращает кошелёк текущего пользователя.
func (h *Handler) GetWallet(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	wal, err := h.service.Wallet(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "get wallet error", err)
		return
	}

	writeJSON(w, http.StatusOK, walletResponse{Handle: wal.Handle, Balance: wal.Balance})
}

// GetWalletHistory возвращает переводы кошелька текущего пользователя.
func (h *Handler) GetWalletHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	txs, err := h.service.WalletHistory(r.Context(), s.ID, queryLimit(r))
	if err != nil {
		h.fail(w, r, "wallet history error", err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]ledgerResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, toLedger(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

type amountRequest struct {
	Amount int64 `json:"amount"`
}

// TopUp зачисляет внешнее поступление на кошелёк текущего пользователя.
func (h *Handler) TopUp(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req amountRequest
	if !decode(w, r, &req) {
		return
	}

	lt, err := h.service.TopUp(r.Context(), s.ID, req.Amount)
	if err != nil {
		h.fail(w, r, "top up error", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedger(*lt))
}

type transferRequest struct {
	Receiver string `json:"receiver"`
	Amount   int64  `json:"amount"`
}

// Transfer переводит средства с кошелька текущего пользователя.
func (h *Handler) Transfer(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req transferRequest
	if !decode(w, r, &req) {
		return
	}

	req.Receiver = strings.TrimSpace(req.Receiver)
	if req.Receiver == "" {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	lt, err := h.service.Transfer(r.Context(), s.ID, req.Receiver, req.Amount)
	if err != nil {
		h.fail(w, r, "transfer error", err)
		return
	}
	writeJSON(w, http.StatusOK, toLedger(*lt))
}

type payRequest struct {
	Merchant string `json:"merchant"`
	Amount   int64  `json:"amount"`
	OrderRef string `json:"order_ref"`
}

// Pay оплачивает покупку у торговца с кошелька текущего пользователя.
func (h *Handler) Pay(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req payRequest
	if !decode(w, r, &req) {
		return
	}

	res, err := h.service.PayMerchant(r.Context(), s.ID, strings.TrimSpace(req.Merchant), req.Amount, req.OrderRef)
	if err != nil {
		h.fail(w, r, "merchant payment error", err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toPayment(res))
}

type verifiedPaymentRequest struct {
	UserID      int64  `json:"user_id"`
	PaymentRef  string `json:"payment_ref"`
	Amount      int64  `json:"amount"`
	Currency    string `json:"currency"`
	Category    string `json:"category"`
	Subcategory string `json:"subcategory"`
}

// ApplyPayment принимает подтверждённый шлюзом платёж. 201 для нового платежа, 200 для повторного.
func (h *Handler) ApplyPayment(w http.ResponseWriter, r *http.Request) {
	var req verifiedPaymentRequest
	if !decode(w, r, &req) {
		return
	}

	if req.UserID <= 0 {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}

	res, err := h.service.ApplyVerifiedPayment(r.Context(), service.VerifiedPayment{
		UserID:      req.UserID,
		PaymentRef:  req.PaymentRef,
		Amount:      req.Amount,
		Currency:    req.Currency,
		Category:    req.Category,
		Subcategory: req.Subcategory,
	})
	if err != nil {
		h.fail(w, r, "apply payment error", err)
		return
	}

	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	writeJSON(w, status, toPayment(res))
}

// GetTransactions возвращает финансовые операции текущего пользователя.
func (h *Handler) GetTransactions(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	txs, err := h.service.Transactions(r.Context(), s.ID, queryLimit(r))
	if err != nil {
		h.fail(w, r, "get transactions error", err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]transactionResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, toTransaction(t))
	}
	writeJSON(w, http.StatusOK, resp)
}

type estimateResponse struct {
	Category string  `json:"category"`
	Factor   float64 `json:"factor"`
	Emission float64 `json:"emission_kg"`
	Saved    float64 `json:"saved_kg"`
}

// Estimate рассчитывает выбросы для суммы и категории без сохранения.
func (h *Handler) Estimate(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	amount, err := strconv.ParseInt(q.Get("amount"), 10, 64)
	if err != nil {
		http.Error(w, http.StatusText(http.StatusBadRequest), http.StatusBadRequest)
		return
	}
	category := q.Get("category")

	res, err := h.service.Estimate(r.Context(), amount, category)
	if err != nil {
		h.fail(w, r, "estimate error", err)
		return
	}

	writeJSON(w, http.StatusOK, estimateResponse{
		Category: category,
		Factor:   res.Factor,
		Emission: res.Emission,
		Saved:    res.Saved,
	})
}

// GetSavings возвращает углеродную экономию текущего пользователя.
func (h *Handler) GetSavings(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	sv, err := h.service.Savings(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "get savings error", err)
		return
	}
	writeJSON(w, http.StatusOK, toSavings(sv))
}

// GetProfile возвращает сводку геймификации текущего пользователя.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	p, err := h.service.Profile(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "get profile error", err)
		return
	}
	writeJSON(w, http.StatusOK, toProfile(p))
}

type addressRequest struct {
	Address string `json:"address"`
}

// ConnectAddress привязывает адрес в блокчейне к текущему пользователю или компании.
func (h *Handler) ConnectAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req addressRequest
	if !decode(w, r, &req) {
		return
	}

	if err := h.service.ConnectChainAddress(r.Context(), ownerOf(s), s.ID, strings.TrimSpace(req.Address)); err != nil {
		h.fail(w, r, "connect address error", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetAddress возвращает привязанный адрес текущего пользователя или компании.
func (h *Handler) GetAddress(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	addr, err := h.service.ChainAddress(r.Context(), ownerOf(s), s.ID)
	if err != nil {
		h.fail(w, r, "get address error", err)
		return
	}
	writeJSON(w, http.StatusOK, addressRequest{Address: addr})
}
