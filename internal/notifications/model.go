// Package notifications stores per-user notifications and fans them out to
// connected clients over Redis pub/sub.
package notifications

import (
	"context"
	"time"
)

type Notification struct {
	ID          int64     `json:"id"`
	UserID      int64     `json:"user_id"`
	QuotationID *int64    `json:"quotation_id,omitempty"`
	Title       string    `json:"title"`
	Message     string    `json:"message"`
	Read        bool      `json:"read"`
	CreatedAt   time.Time `json:"created_at"`
}

// Dispatcher delivers a stored notification to live clients. Delivery is
// best effort; callers log and drop dispatch errors.
type Dispatcher interface {
	Dispatch(ctx context.Context, n Notification) error
}

// ListFilter narrows a user's notification listing.
type ListFilter struct {
	UnreadOnly bool
	Limit      int
}
