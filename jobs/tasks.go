package jobs

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
)

// Queues, highest priority first. Live notifications must not wait behind
// maintenance sweeps.
const (
	QueueCritical    = "critical"
	QueueDefault     = "default"
	QueueMaintenance = "maintenance"
)

// QueueWeights feeds asynq's weighted priority scheduling.
var QueueWeights = map[string]int{
	QueueCritical:    6,
	QueueDefault:     3,
	QueueMaintenance: 1,
}

// QueueNames lists the queues in priority order.
func QueueNames() []string {
	return []string{QueueCritical, QueueDefault, QueueMaintenance}
}

const (
	// TaskNotificationPublish pushes a stored notification to live streams.
	TaskNotificationPublish = "notification:publish"
	// TaskQuotationExpire sweeps quotations past their validity date.
	TaskQuotationExpire = "quotation:expire"
	// TaskIdempotencyCleanup prunes old checkout idempotency keys.
	TaskIdempotencyCleanup = "idempotency:cleanup"
)

// NotificationPayload carries a persisted notification to the worker.
type NotificationPayload struct {
	NotificationID int64     `json:"notification_id"`
	UserID         int64     `json:"user_id"`
	QuotationID    *int64    `json:"quotation_id,omitempty"`
	Title          string    `json:"title"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

func (p NotificationPayload) notification() notifications.Notification {
	return notifications.Notification{
		ID:          p.NotificationID,
		UserID:      p.UserID,
		QuotationID: p.QuotationID,
		Title:       p.Title,
		Message:     p.Message,
		CreatedAt:   p.CreatedAt,
	}
}

// NewNotificationTask constructs an Asynq task for n.
func NewNotificationTask(n notifications.Notification) (*asynq.Task, error) {
	data, err := json.Marshal(NotificationPayload{
		NotificationID: n.ID,
		UserID:         n.UserID,
		QuotationID:    n.QuotationID,
		Title:          n.Title,
		Message:        n.Message,
		CreatedAt:      n.CreatedAt,
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotificationPublish, data,
		asynq.Queue(QueueCritical), asynq.MaxRetry(5), asynq.Timeout(30*time.Second)), nil
}

// QuotationExpirePayload optionally pins the sweep date; zero means now.
type QuotationExpirePayload struct {
	AsOf *time.Time `json:"as_of,omitempty"`
}

// NewQuotationExpireTask constructs the expiry sweep task.
func NewQuotationExpireTask(asOf *time.Time) (*asynq.Task, error) {
	data, err := json.Marshal(QuotationExpirePayload{AsOf: asOf})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskQuotationExpire, data,
		asynq.Queue(QueueMaintenance), asynq.MaxRetry(3), asynq.Timeout(5*time.Minute)), nil
}

// IdempotencyCleanupPayload defines how long checkout keys are retained.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs the key pruning task.
func NewIdempotencyCleanupTask(retentionHours int) (*asynq.Task, error) {
	data, err := json.Marshal(IdempotencyCleanupPayload{RetentionHours: retentionHours})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data,
		asynq.Queue(QueueMaintenance), asynq.MaxRetry(1), asynq.Timeout(time.Minute)), nil
}
