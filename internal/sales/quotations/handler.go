package quotations

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/rbac"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// IdempotencyKeyHeader carries the client generated key for cart checkout.
const IdempotencyKeyHeader = "Idempotency-Key"

// PDFRenderer renders a loaded quotation as a PDF document.
type PDFRenderer interface {
	RenderQuotationPDF(ctx context.Context, q *Quotation) ([]byte, error)
}

type Handler struct {
	logger  *slog.Logger
	service *Service
	rbac    rbac.Middleware
	pdf     PDFRenderer
}

func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware, pdf PDFRenderer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, pdf: pdf}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	req := ListQuotationsRequest{}
	if status := strings.TrimSpace(q.Get("status")); status != "" {
		s := QuotationStatus(strings.ToUpper(status))
		req.Status = &s
	}
	var err error
	if req.Page, err = intParam(q.Get("page")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if req.PerPage, err = intParam(q.Get("per_page")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if raw := q.Get("created_by"); raw != "" {
		createdBy, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			httpx.RespondError(w, fmt.Errorf("%w: created_by must be an integer", shared.ErrValidation))
			return
		}
		req.CreatedBy = &createdBy
	}

	items, total, err := h.service.List(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"quotations": items,
		"pagination": shared.NewPagination(req.Page, req.PerPage, total),
	})
}

func (h *Handler) Show(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	q, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CreateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Create(r.Context(), actor, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.created(w, q)
}

func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	actor, ok := h.actor(w, r)
	if !ok {
		return
	}
	var req CheckoutRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.CheckoutCart(r.Context(), actor, r.Header.Get(IdempotencyKeyHeader), req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.created(w, q)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req UpdateQuotationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Update(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Submit(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	q, err := h.service.SendForApproval(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Decide(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req DecisionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	q, err := h.service.Decide(r.Context(), actor, id, req.Action, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Cancel(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req CancelRequest
	if r.ContentLength != 0 {
		if err := httpx.DecodeJSON(r, &req); err != nil {
			httpx.RespondError(w, err)
			return
		}
		if err := shared.ValidateStruct(req); err != nil {
			httpx.RespondError(w, err)
			return
		}
	}
	q, err := h.service.Cancel(r.Context(), actor, id, req.Reason)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, q)
}

func (h *Handler) Activities(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	limit, err := intParam(r.URL.Query().Get("limit"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	acts, err := h.service.ListActivities(r.Context(), actor, id, limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"activities": acts})
}

func (h *Handler) AddAttachment(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	var req AttachmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	att, err := h.service.AddAttachment(r.Context(), actor, id, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, att)
}

func (h *Handler) PDF(w http.ResponseWriter, r *http.Request) {
	actor, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if h.pdf == nil {
		httpx.Problem(w, http.StatusServiceUnavailable, "PDF rendering unavailable", "")
		return
	}
	q, err := h.service.Get(r.Context(), actor, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	doc, err := h.pdf.RenderQuotationPDF(r.Context(), q)
	if err != nil {
		h.logger.Error("render quotation pdf", slog.Int64("quotation_id", id), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "PDF rendering failed", "")
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename="%s.pdf"`, q.Number))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(doc)
}

func (h *Handler) created(w http.ResponseWriter, q *Quotation) {
	w.Header().Set("Location", fmt.Sprintf("/quotations/%d", q.ID))
	httpx.JSON(w, http.StatusCreated, q)
}

func (h *Handler) actor(w http.ResponseWriter, r *http.Request) (Actor, bool) {
	userID, perms, err := h.rbac.Permissions(r)
	if err != nil {
		httpx.RespondError(w, err)
		return Actor{}, false
	}
	return ActorFromPermissions(userID, perms), true
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (Actor, int64, bool) {
	actor, ok := h.actor(w, r)
	if !ok {
		return Actor{}, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid quotation id", shared.ErrValidation))
		return Actor{}, 0, false
	}
	return actor, id, true
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: %q is not a valid non-negative integer", shared.ErrValidation, raw)
	}
	return v, nil
}
