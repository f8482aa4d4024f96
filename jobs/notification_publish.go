package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
)

// Publisher delivers a notification to subscribed streams.
type Publisher interface {
	Publish(ctx context.Context, n notifications.Notification) error
}

// NotificationPublishJob forwards queued notifications to the pub/sub hub.
type NotificationPublishJob struct {
	Publisher Publisher
	Logger    *slog.Logger
}

// NewNotificationPublishJob wires dependencies for the publish handler.
func NewNotificationPublishJob(publisher Publisher, logger *slog.Logger) *NotificationPublishJob {
	return &NotificationPublishJob{Publisher: publisher, Logger: logger}
}

// Handle processes TaskNotificationPublish tasks. Malformed payloads are not
// retried; hub failures are.
func (j *NotificationPublishJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Publisher == nil {
		return errors.New("notification publish: handler not configured")
	}
	var payload NotificationPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("notification publish: decode payload: %v: %w", err, asynq.SkipRetry)
	}
	if payload.UserID <= 0 || payload.NotificationID <= 0 {
		return fmt.Errorf("notification publish: missing recipient or id: %w", asynq.SkipRetry)
	}
	if err := j.Publisher.Publish(ctx, payload.notification()); err != nil {
		j.logger().Warn("publish notification", slog.Int64("notification_id", payload.NotificationID), slog.Any("error", err))
		return err
	}
	j.logger().Debug("notification published", slog.Int64("notification_id", payload.NotificationID), slog.Int64("user_id", payload.UserID))
	return nil
}

func (j *NotificationPublishJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskNotificationPublish))
	}
	return slog.Default().With(slog.String("job", TaskNotificationPublish))
}

// Enqueuer submits tasks to the queue.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// NotificationDispatcher implements notifications.Dispatcher by queueing a
// publish task, so delivery survives web process restarts.
type NotificationDispatcher struct {
	queue Enqueuer
}

// NewNotificationDispatcher builds a dispatcher on top of queue.
func NewNotificationDispatcher(queue Enqueuer) *NotificationDispatcher {
	return &NotificationDispatcher{queue: queue}
}

func (d *NotificationDispatcher) Dispatch(ctx context.Context, n notifications.Notification) error {
	if d == nil || d.queue == nil {
		return errors.New("notification dispatcher: queue not configured")
	}
	task, err := NewNotificationTask(n)
	if err != nil {
		return err
	}
	if _, err := d.queue.EnqueueContext(ctx, task); err != nil {
		return fmt.Errorf("notification dispatcher: enqueue: %w", err)
	}
	return nil
}

var _ notifications.Dispatcher = (*NotificationDispatcher)(nil)
