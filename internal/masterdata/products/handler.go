package products

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/rbac"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := ListFilters{
		Search:     q.Get("search"),
		SortBy:     q.Get("sort"),
		SortDir:    q.Get("dir"),
		ActiveOnly: q.Get("include_inactive") != "true",
	}
	var err error
	if filters.Page, err = queryInt(q.Get("page")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if filters.PerPage, err = queryInt(q.Get("per_page")); err != nil {
		httpx.RespondError(w, err)
		return
	}

	items, total, err := h.service.List(r.Context(), filters)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"products":   items,
		"pagination": shared.NewPagination(filters.Page, filters.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, fmt.Errorf("%w: invalid product id", shared.ErrValidation))
		return
	}
	product, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, product)
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q is not a valid non-negative integer", shared.ErrValidation, raw)
	}
	return v, nil
}
