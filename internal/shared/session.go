package shared

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const sessionKeyPrefix = "session:"

// SessionManager stores cookie sessions in Redis.
type SessionManager struct {
	client     *redis.Client
	cookieName string
	ttl        time.Duration
	secure     bool
	secret     []byte
}

// Session is the per-request view of a stored session. Changes are
// persisted by SessionManager.Commit.
type Session struct {
	ID         string
	values     map[string]string
	userID     string
	previousID string
	stored     bool
	dirty      bool
	destroyed  bool
}

type sessionRecord struct {
	Values map[string]string `json:"values"`
	UserID string            `json:"user_id"`
}

// NewSessionManager constructs a SessionManager. Cookie values are the
// session ID signed with secret.
func NewSessionManager(client *redis.Client, cookieName string, secret string, ttl time.Duration, secure bool) *SessionManager {
	return &SessionManager{
		client:     client,
		cookieName: cookieName,
		ttl:        ttl,
		secure:     secure,
		secret:     []byte(secret),
	}
}

// TTL exposes the configured session lifetime.
func (sm *SessionManager) TTL() time.Duration {
	return sm.ttl
}

// Load returns the session named by the request cookie, or a fresh one when
// the cookie is absent or its record has expired.
func (sm *SessionManager) Load(ctx context.Context, r *http.Request) (*Session, error) {
	cookie, err := r.Cookie(sm.cookieName)
	if errors.Is(err, http.ErrNoCookie) {
		return sm.fresh(), nil
	}
	if err != nil {
		return nil, err
	}
	id, ok := sm.verify(cookie.Value)
	if !ok {
		return sm.fresh(), nil
	}

	raw, err := sm.client.Get(ctx, sessionKeyPrefix+id).Bytes()
	if errors.Is(err, redis.Nil) {
		return sm.fresh(), nil
	}
	if err != nil {
		return nil, fmt.Errorf("session: load: %w", err)
	}

	var rec sessionRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	if rec.Values == nil {
		rec.Values = make(map[string]string)
	}
	return &Session{ID: id, values: rec.Values, userID: rec.UserID, stored: true}, nil
}

// Commit writes pending changes to Redis and refreshes the cookie.
func (sm *SessionManager) Commit(ctx context.Context, w http.ResponseWriter, r *http.Request, sess *Session) error {
	if sess == nil {
		return nil
	}
	if sess.previousID != "" {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.previousID).Err(); err != nil {
			return fmt.Errorf("session: drop rotated id: %w", err)
		}
		sess.previousID = ""
	}

	if sess.destroyed {
		if err := sm.client.Del(ctx, sessionKeyPrefix+sess.ID).Err(); err != nil {
			return fmt.Errorf("session: destroy: %w", err)
		}
		http.SetCookie(w, sm.cookie("", -1))
		return nil
	}

	if sess.dirty || !sess.stored {
		data, err := json.Marshal(sessionRecord{Values: sess.values, UserID: sess.userID})
		if err != nil {
			return err
		}
		if err := sm.client.Set(ctx, sessionKeyPrefix+sess.ID, data, sm.ttl).Err(); err != nil {
			return fmt.Errorf("session: save: %w", err)
		}
		sess.stored = true
		sess.dirty = false
	}
	http.SetCookie(w, sm.cookie(sm.sign(sess.ID), 0))
	return nil
}

// Destroy marks the session for deletion on the next Commit.
func (sm *SessionManager) Destroy(sess *Session) {
	if sess != nil {
		sess.destroyed = true
	}
}

func (sm *SessionManager) cookie(value string, maxAge int) *http.Cookie {
	c := &http.Cookie{
		Name:     sm.cookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   sm.secure,
		SameSite: http.SameSiteStrictMode,
	}
	if maxAge >= 0 {
		c.Expires = time.Now().Add(sm.ttl)
	}
	return c
}

func (sm *SessionManager) sign(id string) string {
	mac := hmac.New(sha256.New, sm.secret)
	_, _ = mac.Write([]byte(id))
	return id + "." + base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
}

func (sm *SessionManager) verify(value string) (string, bool) {
	id, _, ok := strings.Cut(value, ".")
	if !ok || id == "" {
		return "", false
	}
	return id, hmac.Equal([]byte(value), []byte(sm.sign(id)))
}

func (sm *SessionManager) fresh() *Session {
	return &Session{ID: uuid.NewString(), values: make(map[string]string), dirty: true}
}

// Set stores a key-value pair.
func (s *Session) Set(key, value string) {
	if s.values == nil {
		s.values = make(map[string]string)
	}
	s.values[key] = value
	s.dirty = true
}

// Get retrieves a value.
func (s *Session) Get(key string) string {
	return s.values[key]
}

// SetUser associates the session with a user ID.
func (s *Session) SetUser(id string) {
	s.userID = id
	s.dirty = true
}

// User returns the current user ID.
func (s *Session) User() string {
	return s.userID
}

// Renew moves the session data to a fresh ID. The old record is removed on
// the next Commit. Call it whenever the session's privilege changes.
func (s *Session) Renew() {
	if s.stored && s.previousID == "" {
		s.previousID = s.ID
	}
	s.ID = uuid.NewString()
	s.stored = false
	s.dirty = true
}
