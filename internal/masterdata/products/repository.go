package products

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// ErrNotFound is returned when a product does not exist.
var ErrNotFound = fmt.Errorf("product %w", shared.ErrNotFound)

type Repository interface {
	List(ctx context.Context, filters ListFilters) ([]Product, int, error)
	Get(ctx context.Context, id int64) (Product, error)
	Upsert(ctx context.Context, product Product) (Product, error)
}

type repository struct {
	db db.DBTX
}

func NewRepository(conn db.DBTX) Repository {
	return &repository{db: conn}
}

const productColumns = `id, code, name, description, price, is_active, created_at, updated_at`

func (r *repository) List(ctx context.Context, filters ListFilters) ([]Product, int, error) {
	var (
		where []string
		args  []any
	)
	if filters.Search != "" {
		args = append(args, "%"+filters.Search+"%")
		n := strconv.Itoa(len(args))
		where = append(where, `(name ILIKE $`+n+` OR code ILIKE $`+n+`)`)
	}
	if filters.ActiveOnly {
		where = append(where, `is_active`)
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM products`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + productColumns + ` FROM products` + clause + ` ORDER BY ` + sortOrder(filters.SortBy, filters.SortDir)
	if filters.PerPage > 0 {
		page := shared.NewPagination(filters.Page, filters.PerPage, 0)
		args = append(args, page.PerPage, page.Offset())
		query += ` LIMIT $` + strconv.Itoa(len(args)-1) + ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	products, err := pgx.CollectRows(rows, pgx.RowToStructByPos[Product])
	if err != nil {
		return nil, 0, err
	}
	return products, total, nil
}

func (r *repository) Get(ctx context.Context, id int64) (Product, error) {
	rows, err := r.db.Query(ctx, `SELECT `+productColumns+` FROM products WHERE id = $1`, id)
	if err != nil {
		return Product{}, err
	}
	p, err := pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Product])
	if errors.Is(err, pgx.ErrNoRows) {
		return Product{}, ErrNotFound
	}
	return p, err
}

// Upsert inserts a product or refreshes the row sharing its code.
func (r *repository) Upsert(ctx context.Context, p Product) (Product, error) {
	const query = `INSERT INTO products (code, name, description, price, is_active, created_at, updated_at)
VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, description = EXCLUDED.description,
	price = EXCLUDED.price, is_active = EXCLUDED.is_active, updated_at = NOW()
RETURNING ` + productColumns
	rows, err := r.db.Query(ctx, query, p.Code, p.Name, p.Description, p.Price, p.IsActive)
	if err != nil {
		return Product{}, err
	}
	return pgx.CollectExactlyOneRow(rows, pgx.RowToStructByPos[Product])
}

func sortOrder(sortBy, sortDir string) string {
	dir := "ASC"
	if sortDir == "desc" {
		dir = "DESC"
	}
	switch sortBy {
	case "code":
		return "code " + dir
	case "price":
		return "price " + dir + ", id"
	case "created_at":
		return "created_at " + dir + ", id"
	default:
		return "name " + dir + ", id"
	}
}
