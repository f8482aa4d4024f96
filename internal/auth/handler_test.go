package auth_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-quote/internal/auth"
	"github.com/odyssey-erp/odyssey-quote/internal/rbac"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
	_ "github.com/odyssey-erp/odyssey-quote/testing"
)

type stubRepo struct {
	user     *auth.User
	err      error
	sessions map[string]int64
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	if s.err != nil {
		return nil, s.err
	}
	if s.user == nil || !strings.EqualFold(s.user.Email, email) {
		return nil, shared.ErrNotFound
	}
	return s.user, nil
}

func (s *stubRepo) CreateSession(ctx context.Context, id string, userID int64, expiresAt time.Time, ip, ua string) error {
	if s.sessions == nil {
		s.sessions = map[string]int64{}
	}
	s.sessions[id] = userID
	return nil
}

func (s *stubRepo) DeleteSession(ctx context.Context, id string) error {
	delete(s.sessions, id)
	return nil
}

type staticPermissions []string

func (p staticPermissions) EffectivePermissions(ctx context.Context, userID int64) ([]string, error) {
	return p, nil
}

type authEnv struct {
	router   http.Handler
	sessions *shared.SessionManager
	repo     *stubRepo
}

func newAuthEnv(t *testing.T, user *auth.User) *authEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = redisClient.Close() })
	sessionManager := shared.NewSessionManager(redisClient, "test_session", "secret", time.Hour, false)
	csrfManager := shared.NewCSRFManager("csrfsecret")
	repo := &stubRepo{user: user}
	mw := rbac.Middleware{Service: staticPermissions{shared.PermQuotationView}}
	handler := auth.NewHandler(nil, auth.NewService(repo), sessionManager, csrfManager, mw)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessionManager.Load(req.Context(), req)
			require.NoError(t, err)
			ctx := shared.ContextWithSession(req.Context(), sess)
			rec := httptest.NewRecorder()
			next.ServeHTTP(rec, req.WithContext(ctx))
			require.NoError(t, sessionManager.Commit(ctx, w, req, sess))
			for k, v := range rec.Header() {
				w.Header()[k] = v
			}
			w.WriteHeader(rec.Code)
			_, _ = w.Write(rec.Body.Bytes())
		})
	})
	r.Route("/auth", handler.MountRoutes)
	return &authEnv{router: r, sessions: sessionManager, repo: repo}
}

func (e *authEnv) send(method, path, body string, cookies []*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}
	res := httptest.NewRecorder()
	e.router.ServeHTTP(res, req)
	return res
}

func activeUser(t *testing.T) *auth.User {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	require.NoError(t, err)
	return &auth.User{ID: 7, Email: "user@test.local", Name: "Sales Rep", PasswordHash: string(hashed), IsActive: true}
}

func TestCSRFTokenIsStablePerSession(t *testing.T) {
	env := newAuthEnv(t, nil)

	res := env.send(http.MethodGet, "/auth/csrf", "", nil)
	require.Equal(t, http.StatusOK, res.Code)
	var first map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&first))
	require.NotEmpty(t, first["csrf_token"])

	res = env.send(http.MethodGet, "/auth/csrf", "", res.Result().Cookies())
	var second map[string]string
	require.NoError(t, json.NewDecoder(res.Body).Decode(&second))
	assert.Equal(t, first["csrf_token"], second["csrf_token"])
}

func TestLoginAndMe(t *testing.T) {
	env := newAuthEnv(t, activeUser(t))

	res := env.send(http.MethodPost, "/auth/login", `{"email":"USER@test.local","password":"correctpass"}`, nil)
	require.Equal(t, http.StatusOK, res.Code, res.Body.String())
	assert.NotContains(t, res.Body.String(), "password_hash")
	cookies := res.Result().Cookies()
	require.NotEmpty(t, cookies)
	assert.Len(t, env.repo.sessions, 1)

	res = env.send(http.MethodGet, "/auth/me", "", cookies)
	require.Equal(t, http.StatusOK, res.Code)
	var me auth.Me
	require.NoError(t, json.NewDecoder(res.Body).Decode(&me))
	assert.Equal(t, int64(7), me.UserID)
	assert.Equal(t, []string{shared.PermQuotationView}, me.Permissions)

	res = env.send(http.MethodPost, "/auth/logout", "", cookies)
	assert.Equal(t, http.StatusNoContent, res.Code)
	assert.Empty(t, env.repo.sessions)

	res = env.send(http.MethodGet, "/auth/me", "", cookies)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginRotatesSessionID(t *testing.T) {
	env := newAuthEnv(t, activeUser(t))

	res := env.send(http.MethodGet, "/auth/csrf", "", nil)
	before := res.Result().Cookies()
	require.NotEmpty(t, before)

	res = env.send(http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, before)
	require.Equal(t, http.StatusOK, res.Code)
	after := res.Result().Cookies()
	require.NotEmpty(t, after)
	assert.NotEqual(t, before[0].Value, after[0].Value)

	res = env.send(http.MethodGet, "/auth/me", "", before)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
	res = env.send(http.MethodGet, "/auth/me", "", after)
	assert.Equal(t, http.StatusOK, res.Code)
}

func TestLoginInvalidCredentials(t *testing.T) {
	env := newAuthEnv(t, activeUser(t))

	cases := map[string]string{
		"wrong password": `{"email":"user@test.local","password":"wrongpass"}`,
		"unknown user":   `{"email":"ghost@test.local","password":"correctpass"}`,
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			res := env.send(http.MethodPost, "/auth/login", body, nil)
			assert.Equal(t, http.StatusUnauthorized, res.Code)
			assert.Contains(t, res.Body.String(), shared.KindUnauthorized)
		})
	}
}

func TestLoginInactiveUser(t *testing.T) {
	user := activeUser(t)
	user.IsActive = false
	env := newAuthEnv(t, user)

	res := env.send(http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, nil)
	assert.Equal(t, http.StatusUnauthorized, res.Code)
}

func TestLoginValidation(t *testing.T) {
	env := newAuthEnv(t, activeUser(t))

	res := env.send(http.MethodPost, "/auth/login", `{"email":"not-an-email","password":"short"}`, nil)
	assert.Equal(t, http.StatusBadRequest, res.Code)
	assert.Contains(t, res.Body.String(), "email must be a valid email")
	assert.Contains(t, res.Body.String(), "password must be at least 8")
}

func TestLoginStoreFailureIsHidden(t *testing.T) {
	env := newAuthEnv(t, activeUser(t))
	env.repo.err = errors.New("connection refused")

	res := env.send(http.MethodPost, "/auth/login", `{"email":"user@test.local","password":"correctpass"}`, nil)
	assert.Equal(t, http.StatusInternalServerError, res.Code)
	assert.NotContains(t, res.Body.String(), "connection refused")
}
