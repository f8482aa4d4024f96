package quotations

import (
	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(shared.PermQuotationView))
		r.Get("/quotations", h.List)
		r.Get("/quotations/{id}", h.Show)
		r.Get("/quotations/{id}/activities", h.Activities)
		r.Get("/quotations/{id}/pdf", h.PDF)
		// Admin rights are checked by the workflow policy.
		r.Post("/quotations/{id}/decision", h.Decide)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotationCreate))
		r.Post("/quotations", h.Create)
		r.Post("/cart/checkout", h.Checkout)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(shared.PermQuotationEdit))
		r.Put("/quotations/{id}", h.Update)
		r.Post("/quotations/{id}/submit", h.Submit)
		r.Post("/quotations/{id}/cancel", h.Cancel)
		r.Post("/quotations/{id}/attachments", h.AddAttachment)
	})
}
