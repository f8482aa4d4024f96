package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-quote/internal/jobs"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Expirer moves overdue quotations to EXPIRED.
type Expirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

// QuotationExpiryJob runs the scheduled validity sweep.
type QuotationExpiryJob struct {
	Expirer Expirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
	clock   func() time.Time
}

// NewQuotationExpiryJob wires dependencies for the expiry handler.
func NewQuotationExpiryJob(expirer Expirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *QuotationExpiryJob {
	return &QuotationExpiryJob{
		Expirer: expirer,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle processes TaskQuotationExpire tasks.
func (j *QuotationExpiryJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("quotation expiry: handler not configured")
	}
	var payload QuotationExpirePayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return fmt.Errorf("quotation expiry: decode payload: %v: %w", err, asynq.SkipRetry)
		}
	}
	asOf := j.now()
	if payload.AsOf != nil {
		asOf = payload.AsOf.UTC()
	}

	tracker := j.metrics().Track(TaskQuotationExpire)
	logger := j.logger().With(slog.String("as_of", asOf.Format(time.DateOnly)))
	logger.Info("starting quotation expiry sweep")

	started := time.Now()
	expired, err := j.Expirer.ExpireOverdue(ctx, asOf)
	j.metrics().AddExpired(expired)
	if err != nil {
		logger.Error("quotation expiry sweep", slog.Int("expired", expired), slog.Any("error", err))
		return tracker.End(err)
	}
	logger.Info("completed quotation expiry sweep", slog.Int("expired", expired), slog.Duration("duration", time.Since(started)))
	return tracker.End(nil)
}

func (j *QuotationExpiryJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskQuotationExpire))
	}
	return slog.Default().With(slog.String("job", TaskQuotationExpire))
}

func (j *QuotationExpiryJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *QuotationExpiryJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
