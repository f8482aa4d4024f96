package rbac

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

type permissionsContextKey struct{}

// ContextWithPermissions stores the resolved permissions of the current user.
func ContextWithPermissions(ctx context.Context, perms []string) context.Context {
	return context.WithValue(ctx, permissionsContextKey{}, perms)
}

// PermissionsFromContext returns permissions resolved earlier in the chain.
func PermissionsFromContext(ctx context.Context) ([]string, bool) {
	perms, ok := ctx.Value(permissionsContextKey{}).([]string)
	return perms, ok
}

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service PermissionSource
	Logger  *slog.Logger
}

// Permissions returns the current user's permissions, reusing the ones a
// previous middleware already loaded.
func (m Middleware) Permissions(r *http.Request) (int64, []string, error) {
	userID, ok := shared.UserIDFromContext(r.Context())
	if !ok {
		return 0, nil, fmt.Errorf("%w: login required", shared.ErrUnauthorized)
	}
	if perms, ok := PermissionsFromContext(r.Context()); ok {
		return userID, perms, nil
	}
	perms, err := m.Service.EffectivePermissions(r.Context(), userID)
	if err != nil {
		if m.Logger != nil {
			m.Logger.Error("rbac load permissions", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return 0, nil, fmt.Errorf("%w: load permissions", shared.ErrPersistence)
	}
	return userID, perms, nil
}

// RequireSession rejects requests without an authenticated user.
func (m Middleware) RequireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := shared.UserIDFromContext(r.Context()); !ok {
			httpx.RespondError(w, fmt.Errorf("%w: login required", shared.ErrUnauthorized))
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...string) func(http.Handler) http.Handler {
	required := normalize(perms)
	return m.require("any", required, func(g grantSet) bool { return g.any(required) })
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...string) func(http.Handler) http.Handler {
	required := normalize(perms)
	return m.require("all", required, func(g grantSet) bool { return g.all(required) })
}

func (m Middleware) require(mode string, required []string, allowed func(grantSet) bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, granted, err := m.Permissions(r)
			if err != nil {
				httpx.RespondError(w, err)
				return
			}
			if !allowed(newGrantSet(granted)) {
				if m.Logger != nil {
					m.Logger.Debug("rbac denied", slog.String("mode", mode), slog.Int64("user_id", userID), slog.Any("required", required))
				}
				httpx.RespondError(w, fmt.Errorf("%w: missing permission", shared.ErrForbidden))
				return
			}
			next.ServeHTTP(w, r.WithContext(ContextWithPermissions(r.Context(), granted)))
		})
	}
}

// grantSet is a case-insensitive lookup over granted permission names.
type grantSet map[string]struct{}

func newGrantSet(granted []string) grantSet {
	g := make(grantSet, len(granted))
	for _, p := range granted {
		g[strings.ToLower(p)] = struct{}{}
	}
	return g
}

func (g grantSet) has(perm string) bool {
	_, ok := g[perm]
	return ok
}

// any is true for an empty requirement.
func (g grantSet) any(required []string) bool {
	if len(required) == 0 {
		return true
	}
	return slices.ContainsFunc(required, g.has)
}

func (g grantSet) all(required []string) bool {
	for _, p := range required {
		if !g.has(p) {
			return false
		}
	}
	return true
}

// normalize lowercases, trims and dedupes, preserving first-seen order.
func normalize(perms []string) []string {
	out := make([]string, 0, len(perms))
	for _, p := range perms {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" && !slices.Contains(out, p) {
			out = append(out, p)
		}
	}
	return out
}
