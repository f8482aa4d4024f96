package products

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermQuotationView, shared.PermQuotationCreate))
		r.Get("/products", h.List)
		r.Get("/products/{id}", h.Show)
	})
}
