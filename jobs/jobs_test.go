package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/odyssey-erp/odyssey-quote/internal/jobs"
	"github.com/odyssey-erp/odyssey-quote/internal/notifications"
)

func TestNotificationPublishDeliversThroughHub(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	hub := notifications.NewHub(client, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sub, err := hub.Subscribe(ctx, 10)
	require.NoError(t, err)
	defer sub.Close()

	quotationID := int64(3)
	task, err := NewNotificationTask(notifications.Notification{
		ID: 42, UserID: 10, QuotationID: &quotationID, Title: "Quotation approved", Message: "Quotation QT-2610-0003 was approved.",
	})
	require.NoError(t, err)
	require.NoError(t, NewNotificationPublishJob(hub, nil).Handle(ctx, task))

	select {
	case n := <-sub.Events:
		assert.Equal(t, int64(42), n.ID)
		assert.Equal(t, "Quotation approved", n.Title)
		require.NotNil(t, n.QuotationID)
		assert.Equal(t, int64(3), *n.QuotationID)
	case <-ctx.Done():
		t.Fatal("notification was not delivered")
	}
}

type failingPublisher struct{ calls int }

func (p *failingPublisher) Publish(ctx context.Context, n notifications.Notification) error {
	p.calls++
	return errors.New("redis down")
}

func TestNotificationPublishRetryPolicy(t *testing.T) {
	pub := &failingPublisher{}
	job := NewNotificationPublishJob(pub, nil)

	err := job.Handle(context.Background(), asynq.NewTask(TaskNotificationPublish, []byte("{not json")))
	assert.ErrorIs(t, err, asynq.SkipRetry)

	err = job.Handle(context.Background(), asynq.NewTask(TaskNotificationPublish, []byte(`{"notification_id":1}`)))
	assert.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, pub.calls)

	task, err := NewNotificationTask(notifications.Notification{ID: 1, UserID: 2})
	require.NoError(t, err)
	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.NotErrorIs(t, err, asynq.SkipRetry)
	assert.Equal(t, 1, pub.calls)
}

type recordingQueue struct {
	tasks []*asynq.Task
	err   error
}

func (q *recordingQueue) EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	if q.err != nil {
		return nil, q.err
	}
	q.tasks = append(q.tasks, task)
	return &asynq.TaskInfo{ID: "t1", Queue: QueueDefault, Type: task.Type()}, nil
}

func TestNotificationDispatcherEnqueuesPayload(t *testing.T) {
	queue := &recordingQueue{}
	dispatcher := NewNotificationDispatcher(queue)
	created := time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC)

	require.NoError(t, dispatcher.Dispatch(context.Background(), notifications.Notification{
		ID: 9, UserID: 10, Title: "Quotation rejected", Message: "budget", CreatedAt: created,
	}))
	require.Len(t, queue.tasks, 1)
	assert.Equal(t, TaskNotificationPublish, queue.tasks[0].Type())

	var payload NotificationPayload
	require.NoError(t, json.Unmarshal(queue.tasks[0].Payload(), &payload))
	assert.Equal(t, int64(9), payload.NotificationID)
	assert.Equal(t, int64(10), payload.UserID)
	assert.True(t, created.Equal(payload.CreatedAt))

	queue.err = errors.New("redis down")
	assert.Error(t, dispatcher.Dispatch(context.Background(), notifications.Notification{ID: 1, UserID: 1}))
}

type stubExpirer struct {
	asOf    time.Time
	expired int
	err     error
}

func (s *stubExpirer) ExpireOverdue(ctx context.Context, now time.Time) (int, error) {
	s.asOf = now
	return s.expired, s.err
}

func TestQuotationExpiryJob(t *testing.T) {
	now := time.Date(2026, 10, 16, 0, 15, 0, 0, time.UTC)
	expirer := &stubExpirer{expired: 4}
	job := NewQuotationExpiryJob(expirer, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
	job.clock = func() time.Time { return now }

	task, err := NewQuotationExpireTask(nil)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.True(t, now.Equal(expirer.asOf))

	pinned := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	task, err = NewQuotationExpireTask(&pinned)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.True(t, pinned.Equal(expirer.asOf))

	expirer.err = errors.New("expire quotation 7: persistence failure")
	assert.Error(t, job.Handle(context.Background(), task))

	assert.ErrorIs(t, job.Handle(context.Background(), asynq.NewTask(TaskQuotationExpire, []byte("]"))), asynq.SkipRetry)
}

type stubPruner struct {
	olderThan time.Duration
}

func (s *stubPruner) Cleanup(ctx context.Context, olderThan time.Duration) (int64, error) {
	s.olderThan = olderThan
	return 2, nil
}

func TestIdempotencyCleanupJobDefaultsRetention(t *testing.T) {
	pruner := &stubPruner{}
	job := NewIdempotencyCleanupJob(pruner, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	assert.Equal(t, 72*time.Hour, pruner.olderThan)

	task, err := NewIdempotencyCleanupTask(6)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 6*time.Hour, pruner.olderThan)
}

type stubInspector struct {
	infos map[string]*asynq.QueueInfo
	err   error
}

func (s stubInspector) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	info, ok := s.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func TestHealthHandler(t *testing.T) {
	serve := func(h *Handler) *httptest.ResponseRecorder {
		r := chi.NewRouter()
		r.Route("/jobs", h.MountRoutes)
		rr := httptest.NewRecorder()
		r.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
		return rr
	}
	type body struct {
		Queues []QueueHealth `json:"queues"`
	}

	rr := serve(NewHandler(stubInspector{infos: map[string]*asynq.QueueInfo{
		QueueCritical: {Queue: QueueCritical, Pending: 3, Retry: 1},
	}}, nil))
	require.Equal(t, http.StatusOK, rr.Code)
	var got body
	require.NoError(t, json.NewDecoder(rr.Body).Decode(&got))
	assert.Equal(t, []QueueHealth{
		{Queue: QueueCritical, Pending: 3, Retry: 1},
		{Queue: QueueDefault},
		{Queue: QueueMaintenance},
	}, got.Queues)

	rr = serve(NewHandler(stubInspector{err: errors.New("no redis")}, nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)

	rr = serve(NewHandler(nil, nil))
	assert.Equal(t, http.StatusOK, rr.Code)
}

func TestTasksTargetTheirQueues(t *testing.T) {
	cases := map[string]func() (*asynq.Task, error){
		QueueCritical: func() (*asynq.Task, error) {
			return NewNotificationTask(notifications.Notification{ID: 1, UserID: 2})
		},
		QueueMaintenance: func() (*asynq.Task, error) { return NewQuotationExpireTask(nil) },
	}
	mr := miniredis.RunT(t)
	client := asynq.NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	for queue, build := range cases {
		task, err := build()
		require.NoError(t, err)
		info, err := client.Enqueue(task)
		require.NoError(t, err)
		assert.Equal(t, queue, info.Queue, task.Type())
	}

	cleanup, err := NewIdempotencyCleanupTask(24)
	require.NoError(t, err)
	info, err := client.Enqueue(cleanup)
	require.NoError(t, err)
	assert.Equal(t, QueueMaintenance, info.Queue)
	assert.Equal(t, 1, info.MaxRetry)
}

func TestNewWorkerRejectsIncompleteHandlers(t *testing.T) {
	_, err := NewWorker(WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: "127.0.0.1:0"},
		Handlers:  []TaskHandler{{Type: TaskQuotationExpire}},
	})
	assert.ErrorContains(t, err, TaskQuotationExpire)
}
