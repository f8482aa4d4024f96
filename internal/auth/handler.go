package auth

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/rbac"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger         *slog.Logger
	service        *Service
	sessionManager *shared.SessionManager
	csrfManager    *shared.CSRFManager
	rbac           rbac.Middleware
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, sessions *shared.SessionManager, csrf *shared.CSRFManager, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:         logger,
		service:        service,
		sessionManager: sessions,
		csrfManager:    csrf,
		rbac:           rbac,
	}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/csrf", h.csrfToken)
	r.Post("/login", h.handleLogin)
	r.Post("/logout", h.handleLogout)
	r.With(h.rbac.RequireSession).Get("/me", h.me)
}

func (h *Handler) csrfToken(w http.ResponseWriter, r *http.Request) {
	token, err := h.csrfManager.EnsureToken(r.Context(), shared.SessionFromContext(r.Context()))
	if err != nil {
		h.logger.Error("issue csrf token", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]string{"csrf_token": token})
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess == nil {
		h.logger.Error("session missing during login")
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	var req LoginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := shared.ValidateStruct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}

	user, err := h.service.Authenticate(r.Context(), req.Email, req.Password)
	if err != nil {
		if shared.ErrorKind(err) == shared.KindPersistence {
			h.logger.Error("authenticate", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}

	sess.Renew()
	sess.SetUser(strconv.FormatInt(user.ID, 10))
	info := SessionInfo{
		ID:        sess.ID,
		UserID:    user.ID,
		ExpiresAt: time.Now().Add(h.sessionManager.TTL()),
		IP:        r.RemoteAddr,
		UserAgent: r.UserAgent(),
	}
	if err := h.service.RegisterSession(r.Context(), info); err != nil {
		h.logger.Warn("register session", slog.Any("error", err))
	}
	h.logger.Info("user logged in", slog.Int64("user_id", user.ID))
	httpx.JSON(w, http.StatusOK, user)
}

func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	sess := shared.SessionFromContext(r.Context())
	if sess != nil {
		if err := h.service.RemoveSession(r.Context(), sess.ID); err != nil {
			h.logger.Warn("remove session", slog.Any("error", err))
		}
		h.sessionManager.Destroy(sess)
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) me(w http.ResponseWriter, r *http.Request) {
	userID, perms, err := h.rbac.Permissions(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if perms == nil {
		perms = []string{}
	}
	httpx.JSON(w, http.StatusOK, Me{UserID: userID, Permissions: perms})
}
