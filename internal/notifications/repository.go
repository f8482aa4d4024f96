package notifications

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-quote/internal/platform/db"
	"github.com/odyssey-erp/odyssey-quote/internal/shared"
)

// ErrNotFound is returned when the notification does not exist or belongs to
// another user.
var ErrNotFound = fmt.Errorf("notification: %w", shared.ErrNotFound)

type Repository interface {
	List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, error)
	MarkRead(ctx context.Context, userID, id int64) error
	Delete(ctx context.Context, userID, id int64) error
}

type repository struct {
	db db.DBTX
}

func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{db: pool}
}

// Insert writes n using q, which may be a transaction owned by the caller so
// the notification commits together with the event it describes.
func Insert(ctx context.Context, q db.DBTX, n Notification) (Notification, error) {
	err := q.QueryRow(ctx, `
		INSERT INTO notifications (user_id, quotation_id, title, message, is_read, created_at)
		VALUES ($1, $2, $3, $4, FALSE, NOW())
		RETURNING id, created_at`,
		n.UserID, n.QuotationID, n.Title, n.Message,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return Notification{}, fmt.Errorf("insert notification: %w", err)
	}
	n.Read = false
	return n, nil
}

func (r *repository) List(ctx context.Context, userID int64, filter ListFilter) ([]Notification, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	rows, err := r.db.Query(ctx, `
		SELECT id, user_id, quotation_id, title, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1 AND ($2 = FALSE OR is_read = FALSE)
		ORDER BY created_at DESC, id DESC
		LIMIT $3`, userID, filter.UnreadOnly, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Notification
	for rows.Next() {
		var n Notification
		if err := rows.Scan(&n.ID, &n.UserID, &n.QuotationID, &n.Title, &n.Message, &n.Read, &n.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *repository) MarkRead(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) Delete(ctx context.Context, userID, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM notifications WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
