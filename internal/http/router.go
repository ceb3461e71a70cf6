package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(handler *Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(Logger)
	r.Use(Recoverer)
	r.Use(Timeout)
	r.Use(CORS)

	r.Get("/healthz", handler.Health)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/sales", handler.ListSales)
		r.Post("/sales", handler.CreateSale)
		r.Post("/sales/quote", handler.QuoteSale)
		r.Get("/sales/{id}", handler.GetSale)
		r.Patch("/sales/{id}", handler.UpdateSale)
		r.Delete("/sales/{id}", handler.DeleteSale)
		r.Post("/sales/{id}/cancel", handler.CancelSale)
		r.Get("/sales/{id}/payments", handler.ListPayments)
		r.Post("/sales/{id}/payments", handler.RecordPayment)

		r.Post("/inventory/adjustments", handler.AdjustInventory)
		r.Post("/inventory/adjustments/import-excel", handler.ImportAdjustmentsExcel)
		r.Get("/inventory/movements", handler.ListMovements)
		r.Get("/inventory/{productId}", handler.GetInventory)

		r.Get("/settings", handler.GetSettings)
		r.Patch("/settings", handler.UpdateSettings)

		r.Post("/customers", handler.CreateCustomer)
		r.Get("/customers/{id}", handler.GetCustomer)

		r.Get("/audit", handler.ListAudit)
		r.Get("/audit/count", handler.CountAudit)
	})

	return r
}
