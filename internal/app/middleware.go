package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/unrolled/secure"

	"github.com/odyssey-erp/odyssey-quote/internal/observability"
	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

const (
	defaultRateLimitPerMinute = 120
	defaultRequestTimeout     = 30 * time.Second
)

var (
	errMissingSession = errors.New("missing session")
	errInvalidCSRF    = errors.New("invalid csrf token")
)

// MiddlewareConfig aggregates dependencies shared by the middleware stack.
type MiddlewareConfig struct {
	Logger         *slog.Logger
	Config         *Config
	SessionManager *shared.SessionManager
	CSRFManager    *shared.CSRFManager
	Metrics        *observability.Metrics
}

func (c MiddlewareConfig) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// MiddlewareStack installs the chain shared by every route, streams included.
func MiddlewareStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	stack := []func(http.Handler) http.Handler{
		middleware.RealIP,
		middleware.RequestID,
		sessions(cfg),
		middleware.Recoverer,
		secureHeaders(cfg),
		rateLimit(cfg),
		csrfGuard(cfg),
	}
	if cfg.Metrics != nil {
		stack = append(stack, cfg.Metrics.Middleware)
	}
	return stack
}

// BoundedStack holds the middleware for ordinary request/response routes.
// Streams are mounted outside it.
func BoundedStack(cfg MiddlewareConfig) []func(http.Handler) http.Handler {
	timeout := defaultRequestTimeout
	if cfg.Config != nil && cfg.Config.AppRequestTimeout > 0 {
		timeout = cfg.Config.AppRequestTimeout
	}
	return []func(http.Handler) http.Handler{
		middleware.Timeout(timeout),
		middleware.Compress(5),
	}
}

// sessions loads the session before the handler runs and commits it right
// before the first header byte, so the Set-Cookie header still goes out.
func sessions(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sess, err := cfg.SessionManager.Load(r.Context(), r)
			if err != nil {
				logger.Error("load session", slog.Any("error", err))
				httpx.Problem(w, http.StatusInternalServerError, http.StatusText(http.StatusInternalServerError), "")
				return
			}
			r = r.WithContext(shared.ContextWithSession(r.Context(), sess))
			sw := &sessionWriter{ResponseWriter: w, commit: func() {
				if err := cfg.SessionManager.Commit(r.Context(), w, r, sess); err != nil {
					logger.Error("commit session", slog.Any("error", err))
				}
			}}
			next.ServeHTTP(sw, r)
			sw.flushCommit()
		})
	}
}

type sessionWriter struct {
	http.ResponseWriter
	commit    func()
	committed bool
}

func (w *sessionWriter) flushCommit() {
	if w.committed {
		return
	}
	w.committed = true
	w.commit()
}

func (w *sessionWriter) WriteHeader(status int) {
	w.flushCommit()
	w.ResponseWriter.WriteHeader(status)
}

func (w *sessionWriter) Write(b []byte) (int, error) {
	w.flushCommit()
	return w.ResponseWriter.Write(b)
}

// Unwrap lets http.ResponseController flush streams through the wrapper.
func (w *sessionWriter) Unwrap() http.ResponseWriter {
	return w.ResponseWriter
}

func secureHeaders(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.logger()
	sec := secure.New(secure.Options{
		FrameDeny:             true,
		ContentTypeNosniff:    true,
		BrowserXssFilter:      true,
		ReferrerPolicy:        "strict-origin-when-cross-origin",
		PermissionsPolicy:     "camera=(), microphone=(), geolocation=()",
		ContentSecurityPolicy: "default-src 'none'; frame-ancestors 'none'",
		SSLRedirect:           cfg.Config != nil && cfg.Config.IsProduction(),
		SSLProxyHeaders:       map[string]string{"X-Forwarded-Proto": "https"},
	})
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := sec.Process(w, r); err != nil {
				logger.Warn("request blocked by secure headers", slog.Any("error", err))
				httpx.Problem(w, http.StatusBadRequest, http.StatusText(http.StatusBadRequest), "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func rateLimit(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	limit := defaultRateLimitPerMinute
	if cfg.Config != nil && cfg.Config.RateLimitPerMinute > 0 {
		limit = cfg.Config.RateLimitPerMinute
	}
	return httprate.Limit(limit, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Problem(w, http.StatusTooManyRequests, http.StatusText(http.StatusTooManyRequests), "rate limit exceeded")
		}),
	)
}

// csrfGuard demands X-CSRF-Token on every state-changing method.
func csrfGuard(cfg MiddlewareConfig) func(http.Handler) http.Handler {
	logger := cfg.logger()
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if safeMethod(r.Method) {
				next.ServeHTTP(w, r)
				return
			}
			if err := verifyCSRF(r.Context(), cfg.CSRFManager, r); err != nil {
				logger.Warn("csrf rejected", slog.String("method", r.Method), slog.String("path", r.URL.Path), slog.String("request_id", middleware.GetReqID(r.Context())))
				httpx.Problem(w, http.StatusForbidden, http.StatusText(http.StatusForbidden), err.Error())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func verifyCSRF(ctx context.Context, csrf *shared.CSRFManager, r *http.Request) error {
	sess := shared.SessionFromContext(ctx)
	if sess == nil {
		return errMissingSession
	}
	if err := csrf.VerifyToken(ctx, sess, r.Header.Get(shared.CSRFHeader)); err != nil {
		return errInvalidCSRF
	}
	return nil
}

func safeMethod(method string) bool {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions, http.MethodTrace:
		return true
	}
	return false
}
