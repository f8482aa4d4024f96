package notifications

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

type fakeRepo struct {
	mu    sync.Mutex
	items map[int64]Notification
	err   error
}

func newFakeRepo(items ...Notification) *fakeRepo {
	repo := &fakeRepo{items: make(map[int64]Notification)}
	for _, n := range items {
		repo.items[n.ID] = n
	}
	return repo
}

func (f *fakeRepo) List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	var out []Notification
	for _, n := range f.items {
		if n.UserID != userID || (filter.UnreadOnly && n.Read) {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

func (f *fakeRepo) MarkRead(ctx context.Context, userID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	n.Read = true
	f.items[id] = n
	return nil
}

func (f *fakeRepo) Delete(ctx context.Context, userID, id int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.items[id]
	if !ok || n.UserID != userID {
		return ErrNotFound
	}
	delete(f.items, id)
	return nil
}

type testEnv struct {
	sessions *shared.SessionManager
	hub      *Hub
	repo     *fakeRepo
	router   http.Handler
}

func newTestEnv(t *testing.T, userID string, repo *fakeRepo) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	sessions := shared.NewSessionManager(client, "test_session", "secret", time.Hour, false)
	hub := NewHub(client, nil)
	handler := NewHandler(nil, NewService(repo, nil), hub, 50*time.Millisecond)

	r := chi.NewRouter()
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			sess, err := sessions.Load(req.Context(), req)
			require.NoError(t, err)
			if userID != "" {
				sess.SetUser(userID)
			}
			next.ServeHTTP(w, req.WithContext(shared.ContextWithSession(req.Context(), sess)))
		})
	})
	r.Route("/notifications", handler.MountRoutes)
	handler.MountStream(r)
	return &testEnv{sessions: sessions, hub: hub, repo: repo, router: r}
}

func TestListReturnsOwnNotifications(t *testing.T) {
	repo := newFakeRepo(
		Notification{ID: 1, UserID: 7, Title: "mine"},
		Notification{ID: 2, UserID: 7, Title: "mine read", Read: true},
		Notification{ID: 3, UserID: 8, Title: "theirs"},
	)
	env := newTestEnv(t, "7", repo)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/?unread=1", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Notifications []Notification `json:"notifications"`
	}
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&body))
	require.Len(t, body.Notifications, 1)
	assert.Equal(t, "mine", body.Notifications[0].Title)
}

func TestListRequiresSessionUser(t *testing.T) {
	env := newTestEnv(t, "", newFakeRepo())

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/", nil))

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestMarkReadAndDelete(t *testing.T) {
	repo := newFakeRepo(Notification{ID: 1, UserID: 7}, Notification{ID: 2, UserID: 8})
	env := newTestEnv(t, "7", repo)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/notifications/1/read", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	assert.True(t, repo.items[1].Read)

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/notifications/2", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code, "cannot delete another user's notification")

	rr = httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodDelete, "/notifications/1", nil))
	assert.Equal(t, http.StatusNoContent, rr.Code)
	_, exists := repo.items[1]
	assert.False(t, exists)
}

func TestListHidesStoreErrors(t *testing.T) {
	repo := newFakeRepo()
	repo.err = errors.New("connection refused")
	env := newTestEnv(t, "7", repo)

	rr := httptest.NewRecorder()
	env.router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/notifications/", nil))

	assert.Equal(t, http.StatusInternalServerError, rr.Code)
	assert.NotContains(t, rr.Body.String(), "connection refused")
}

func TestStreamRelaysPublishedNotifications(t *testing.T) {
	env := newTestEnv(t, "7", newFakeRepo())
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/stream/notifications", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	readUntil := func(prefix string) string {
		for {
			line, err := reader.ReadString('\n')
			require.NoError(t, err)
			if strings.HasPrefix(line, prefix) {
				return strings.TrimSpace(strings.TrimPrefix(line, prefix))
			}
		}
	}

	readUntil("event: connected")
	require.NoError(t, env.hub.Publish(ctx, Notification{ID: 77, UserID: 7, Title: "Quotation rejected"}))

	readUntil("event: notification")
	data := readUntil("data: ")
	var got Notification
	require.NoError(t, json.Unmarshal([]byte(data), &got))
	assert.Equal(t, int64(77), got.ID)
	assert.Equal(t, "Quotation rejected", got.Title)

	assert.Equal(t, "", readUntil(": keepalive"))
}
