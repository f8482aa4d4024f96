package notifications

import "github.com/go-chi/chi/v5"

// MountRoutes registers the JSON endpoints under /notifications.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.List)
	r.Post("/{id}/read", h.MarkRead)
	r.Delete("/{id}", h.Delete)
}

// MountStream registers the long-lived SSE endpoint. It must be mounted
// outside request timeout and compression middleware.
func (h *Handler) MountStream(r chi.Router) {
	r.Get("/stream/notifications", h.Stream)
}
