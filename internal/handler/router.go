package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/mmeshcher/greenledger/internal/metrics"
	custommiddleware "github.com/mmeshcher/greenledger/internal/middleware"
)

// SetupRouter настраивает HTTP-маршруты и middleware сервиса greenledger.
func (h *Handler) SetupRouter() *chi.Mux {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(metrics.Instrument)
	r.Use(custommiddleware.GzipMiddleware)
	r.Use(custommiddleware.Logger(h.logger))

	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Use(h.authMiddleware.Middleware)

		r.Get("/carbon/estimate", h.Estimate)
		r.Get("/market/listings", h.GetListings)
		r.Get("/market/summary", h.GetSummary)
		r.Get("/market/price", h.GetPrice)

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequireRole(custommiddleware.RoleUser, custommiddleware.RoleCompany))

			r.Get("/chain/address", h.GetAddress)
			r.Put("/chain/address", h.ConnectAddress)
		})

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequireRole(custommiddleware.RoleUser))

			r.Get("/wallet", h.GetWallet)
			r.Get("/wallet/history", h.GetWalletHistory)
			r.Post("/wallet/topup", h.TopUp)
			r.Post("/wallet/transfer", h.Transfer)
			r.Post("/wallet/pay", h.Pay)

			r.Get("/transactions", h.GetTransactions)
			r.Get("/carbon/savings", h.GetSavings)
			r.Get("/profile", h.GetProfile)

			r.Get("/points", h.GetPoints)
			r.Get("/points/history", h.GetPointsHistory)
			r.Get("/points/convertible", h.GetConvertible)
			r.Post("/points/redeem", h.Redeem)
			r.Post("/points/convert", h.Convert)
			r.Get("/points/conversions", h.GetConversions)

			r.Get("/market/credits", h.GetCredits)
			r.Post("/market/credits/mint", h.MintCredits)
			r.Post("/market/listings", h.CreateListing)
		})

		r.Group(func(r chi.Router) {
			r.Use(custommiddleware.RequireRole(custommiddleware.RoleCompany))

			r.Post("/market/orders", h.CreateOrder)
			r.Get("/market/orders", h.GetOrders)
			r.Post("/market/orders/{id}/settle", h.SettleOrder)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(custommiddleware.RequireRole(custommiddleware.RoleAdmin))

			r.Post("/sessions", h.IssueSession)
			r.Post("/payments", h.ApplyPayment)
			r.Post("/listings/{id}/review", h.ReviewListing)
			r.Put("/market/price", h.SetPrice)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusNotFound), http.StatusNotFound)
	})

	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
	})

	return r
}
