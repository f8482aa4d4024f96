package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// timingHash is compared against when the email is unknown so both paths
// cost one bcrypt comparison.
var timingHash, _ = bcrypt.GenerateFromPassword([]byte("odyssey-timing-guard"), bcrypt.DefaultCost)

// SessionInfo describes a login session recorded for auditing.
type SessionInfo struct {
	ID        string
	UserID    int64
	ExpiresAt time.Time
	IP        string
	UserAgent string
}

// Service wraps authentication business rules.
type Service struct {
	repo Repository
}

// NewService constructs a new Service.
func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

// Authenticate validates email/password credentials. Unknown users,
// inactive users and wrong passwords all yield ErrInvalidCredentials.
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	user, err := s.repo.FindByEmail(ctx, email)
	switch {
	case errors.Is(err, shared.ErrNotFound):
		_ = bcrypt.CompareHashAndPassword(timingHash, []byte(password))
		return nil, shared.ErrInvalidCredentials
	case err != nil:
		return nil, fmt.Errorf("%w: find user: %v", shared.ErrPersistence, err)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	if !user.IsActive {
		return nil, shared.ErrInvalidCredentials
	}
	return user, nil
}

// RegisterSession records a login in postgres.
func (s *Service) RegisterSession(ctx context.Context, info SessionInfo) error {
	if info.ID == "" || info.UserID <= 0 {
		return fmt.Errorf("%w: session id and user are required", shared.ErrValidation)
	}
	return s.repo.CreateSession(ctx, info.ID, info.UserID, info.ExpiresAt, info.IP, truncate(info.UserAgent, 512))
}

// RemoveSession deletes a session record from postgres.
func (s *Service) RemoveSession(ctx context.Context, id string) error {
	if id == "" {
		return nil
	}
	return s.repo.DeleteSession(ctx, id)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
