package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// Subscriber opens live notification feeds.
type Subscriber interface {
	Subscribe(ctx context.Context, userID int64) (*Subscription, error)
}

type Handler struct {
	logger    *slog.Logger
	service   *Service
	hub       Subscriber
	heartbeat time.Duration
}

func NewHandler(logger *slog.Logger, service *Service, hub Subscriber, heartbeat time.Duration) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if heartbeat <= 0 {
		heartbeat = 25 * time.Second
	}
	return &Handler{logger: logger, service: service, hub: hub, heartbeat: heartbeat}
}

func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	filter := ListFilter{UnreadOnly: r.URL.Query().Get("unread") == "1"}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.RespondError(w, fmt.Errorf("%w: limit must be a non-negative integer", shared.ErrValidation))
			return
		}
		filter.Limit = limit
	}
	items, err := h.service.List(r.Context(), userID, filter)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"notifications": items})
}

func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.MarkRead(r.Context(), userID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, id, ok := h.target(w, r)
	if !ok {
		return
	}
	if err := h.service.Delete(r.Context(), userID, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stream holds a Server-Sent Events connection open and relays the user's
// notifications as they are published.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return
	}
	rc := http.NewResponseController(w)
	_ = rc.SetWriteDeadline(time.Time{})

	sub, err := h.hub.Subscribe(r.Context(), userID)
	if err != nil {
		h.logger.Error("open notification stream", slog.Int64("user_id", userID), slog.Any("error", err))
		httpx.Problem(w, http.StatusServiceUnavailable, "Service Unavailable", "notification stream unavailable")
		return
	}
	defer func() { _ = sub.Close() }()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	connID := uuid.NewString()
	fmt.Fprintf(w, "event: connected\ndata: {\"connection_id\":%q}\n\n", connID)
	if err := rc.Flush(); err != nil {
		h.logger.Warn("notification stream not flushable", slog.Any("error", err))
		return
	}
	logger := h.logger.With(slog.Int64("user_id", userID), slog.String("connection_id", connID))
	logger.Debug("notification stream opened")

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			logger.Debug("notification stream closed")
			return
		case n, ok := <-sub.Events:
			if !ok {
				return
			}
			data, err := json.Marshal(n)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "id: %d\nevent: notification\ndata: %s\n\n", n.ID, data)
			if err := rc.Flush(); err != nil {
				return
			}
		case <-heartbeat.C:
			fmt.Fprint(w, ": keepalive\n\n")
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

func (h *Handler) target(w http.ResponseWriter, r *http.Request) (int64, int64, bool) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, shared.ErrUnauthorized)
		return 0, 0, false
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		httpx.RespondError(w, fmt.Errorf("%w: invalid notification id", shared.ErrValidation))
		return 0, 0, false
	}
	return userID, id, true
}
