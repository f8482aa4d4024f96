package notifications

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

type Service struct {
	repo   Repository
	logger *slog.Logger
}

func NewService(repo Repository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{repo: repo, logger: logger}
}

func (s *Service) List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, error) {
	if userID <= 0 {
		return nil, shared.ErrUnauthorized
	}
	items, err := s.repo.List(ctx, userID, filter)
	if err != nil {
		return nil, s.wrap(err, "list notifications", 0)
	}
	if items == nil {
		items = []Notification{}
	}
	return items, nil
}

func (s *Service) MarkRead(ctx context.Context, userID, id int64) error {
	if userID <= 0 {
		return shared.ErrUnauthorized
	}
	return s.wrap(s.repo.MarkRead(ctx, userID, id), "mark notification read", id)
}

func (s *Service) Delete(ctx context.Context, userID, id int64) error {
	if userID <= 0 {
		return shared.ErrUnauthorized
	}
	return s.wrap(s.repo.Delete(ctx, userID, id), "delete notification", id)
}

func (s *Service) wrap(err error, op string, id int64) error {
	if err == nil || shared.IsDomainError(err) {
		return err
	}
	s.logger.Error("notification store failure", slog.String("op", op), slog.Int64("notification_id", id), slog.Any("error", err))
	return fmt.Errorf("%w: %s", shared.ErrPersistence, op)
}
