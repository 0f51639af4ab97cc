package handler

import (
	"net/http"

	"go.uber.org/zap"
)

// GetPoints возвращает баланс эко-баллов текущего пользователя.
func (h *Handler) GetPoints(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	b, err := h.service.PointsBalance(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "get points error", err)
		return
	}
	writeJSON(w, http.StatusOK, pointsBalanceResponse{Total: b.TotalPoints, Lifetime: b.LifetimePoints})
}

// GetPointsHistory возвращает журнал эко-баллов текущего пользователя.
func (h *Handler) GetPointsHistory(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	txs, err := h.service.PointsHistory(r.Context(), s.ID, queryLimit(r))
	if err != nil {
		h.fail(w, r, "points history error", err)
		return
	}

	if len(txs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]pointsTxResponse, 0, len(txs))
	for _, t := range txs {
		resp = append(resp, pointsTxResponse{
			ID:            t.ID,
			Points:        t.Points,
			Action:        string(t.Action),
			Description:   t.Description,
			TransactionID: t.TransactionID,
			CreatedAt:     formatTime(t.CreatedAt),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetConvertible возвращает баллы, доступные для конвертации по порогу.
func (h *Handler) GetConvertible(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	c, err := h.service.Convertible(r.Context(), s.ID)
	if err != nil {
		h.fail(w, r, "convertible error", err)
		return
	}
	writeJSON(w, http.StatusOK, convertibleResponse{Available: c.Available, Remainder: c.Remainder, Threshold: c.Threshold})
}

type redeemRequest struct {
	Points      int64  `json:"points"`
	Description string `json:"description"`
}

// Redeem списывает эко-баллы текущего пользователя.
func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req redeemRequest
	if !decode(w, r, &req) {
		return
	}

	t, err := h.service.RedeemPoints(r.Context(), s.ID, req.Points, req.Description)
	if err != nil {
		h.fail(w, r, "redeem error", err)
		return
	}
	writeJSON(w, http.StatusOK, pointsTxResponse{
		ID:          t.ID,
		Points:      t.Points,
		Action:      string(t.Action),
		Description: t.Description,
		CreatedAt:   formatTime(t.CreatedAt),
	})
}

type convertRequest struct {
	Points  int64  `json:"points"`
	Address string `json:"address"`
}

// Convert конвертирует эко-баллы в токены.
// Если выпуск не удался, баллы остаются списанными и конвертация возвращается со статусом 502.
func (h *Handler) Convert(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	var req convertRequest
	if !decode(w, r, &req) {
		return
	}

	c, err := h.service.ConvertPoints(r.Context(), s.ID, req.Points, req.Address)
	if err != nil && c != nil {
		h.logger.Warn("conversion pending reconciliation",
			zap.String("subject", s.String()),
			zap.Int64("conversionID", c.ID),
			zap.Error(err),
		)
		writeJSON(w, statusFor(err), toConversion(*c))
		return
	}
	if err != nil {
		h.fail(w, r, "convert error", err)
		return
	}
	writeJSON(w, http.StatusOK, toConversion(*c))
}

// GetConversions возвращает конвертации текущего пользователя.
func (h *Handler) GetConversions(w http.ResponseWriter, r *http.Request) {
	s, ok := subject(w, r)
	if !ok {
		return
	}

	cs, err := h.service.Conversions(r.Context(), s.ID, queryLimit(r))
	if err != nil {
		h.fail(w, r, "conversions error", err)
		return
	}

	if len(cs) == 0 {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	resp := make([]conversionResponse, 0, len(cs))
	for _, c := range cs {
		resp = append(resp, toConversion(c))
	}
	writeJSON(w, http.StatusOK, resp)
}
