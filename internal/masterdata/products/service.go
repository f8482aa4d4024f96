package products

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

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

// List browses the catalog. Paging defaults to 20 rows, capped at 100.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	page := shared.NewPagination(filters.Page, filters.PerPage, 0)
	filters.Page, filters.PerPage = page.Page, page.PerPage
	filters.Search = strings.TrimSpace(filters.Search)

	items, total, err := s.repo.List(ctx, filters)
	if err != nil {
		return nil, 0, s.storeErr(err, "list products")
	}
	if items == nil {
		items = []Product{}
	}
	return items, total, nil
}

func (s *Service) Get(ctx context.Context, id int64) (Product, error) {
	if id <= 0 {
		return Product{}, fmt.Errorf("%w: invalid product id", shared.ErrValidation)
	}
	p, err := s.repo.Get(ctx, id)
	if err != nil {
		return Product{}, s.storeErr(err, "get product")
	}
	return p, nil
}

// Save validates and upserts a product by code.
func (s *Service) Save(ctx context.Context, p Product) (Product, error) {
	p.Code = strings.ToUpper(strings.TrimSpace(p.Code))
	p.Name = strings.TrimSpace(p.Name)
	if err := shared.ValidateStruct(p); err != nil {
		return Product{}, err
	}
	if p.Price.IsNegative() {
		return Product{}, fmt.Errorf("%w: price must not be negative", shared.ErrValidation)
	}
	saved, err := s.repo.Upsert(ctx, p)
	if err != nil {
		return Product{}, s.storeErr(err, "save product")
	}
	return saved, nil
}

func (s *Service) storeErr(err error, op string) error {
	if errors.Is(err, shared.ErrNotFound) {
		return err
	}
	s.logger.Error("products store failure", slog.String("op", op), slog.Any("error", err))
	return fmt.Errorf("%w: %s", shared.ErrPersistence, op)
}
