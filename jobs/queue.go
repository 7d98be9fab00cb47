package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/habiliai/agentmarket/entity"
	"github.com/habiliai/agentmarket/errors"
	"github.com/habiliai/agentmarket/internal/clock"
	"github.com/habiliai/agentmarket/internal/db"
	"github.com/habiliai/agentmarket/internal/metrics"
	"github.com/habiliai/agentmarket/internal/mylog"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type (
	Handler func(ctx context.Context, payload json.RawMessage) error

	// Queue is a durable deferred-execution queue. A job becomes due at its
	// notBefore time and is handed to the handler registered for its kind.
	// A failing handler dead-letters the job. A job interrupted by worker
	// shutdown, or whose lease expired while running, is handed out again,
	// so handlers must tolerate running more than once.
	Queue interface {
		Register(kind string, handler Handler)
		Enqueue(ctx context.Context, kind string, payload any, notBefore time.Time) (*entity.Job, error)
		RunDue(ctx context.Context) (int, error)
		Work(ctx context.Context, pollInterval time.Duration)
		GetJob(ctx context.Context, id string) (*entity.Job, error)
	}

	queue struct {
		logger      *slog.Logger
		db          *gorm.DB
		clock       clock.Clock
		batchSize   int
		lease       time.Duration
		maxAttempts int

		mu       sync.RWMutex
		handlers map[string]Handler
	}
)

var (
	_ Queue = (*queue)(nil)
)

const (
	DefaultLease       = time.Minute
	DefaultMaxAttempts = 3
)

type QueueOption func(*queue)

// WithLease sets how long a claimed job may stay running before another
// RunDue call takes it over.
func WithLease(lease time.Duration) QueueOption {
	return func(q *queue) {
		if lease > 0 {
			q.lease = lease
		}
	}
}

// WithMaxAttempts sets how many claims a job gets before an expired lease
// dead-letters it instead of running it again.
func WithMaxAttempts(n int) QueueOption {
	return func(q *queue) {
		if n > 0 {
			q.maxAttempts = n
		}
	}
}

func NewQueue(gormDB *gorm.DB, logger *slog.Logger, clk clock.Clock, batchSize int, opts ...QueueOption) Queue {
	if batchSize <= 0 {
		batchSize = 32
	}
	q := &queue{
		logger:      logger,
		db:          gormDB,
		clock:       clk,
		batchSize:   batchSize,
		lease:       DefaultLease,
		maxAttempts: DefaultMaxAttempts,
		handlers:    make(map[string]Handler),
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// HandlerFor adapts a typed handler to a Handler by decoding the JSON
// payload into T.
func HandlerFor[T any](fn func(ctx context.Context, payload T) error) Handler {
	return func(ctx context.Context, raw json.RawMessage) error {
		var payload T
		if err := json.Unmarshal(raw, &payload); err != nil {
			return errors.Wrapf(err, "failed to decode job payload")
		}
		return fn(ctx, payload)
	}
}

func (q *queue) Register(kind string, handler Handler) {
	q.mu.Lock()
	defer q.mu.Unlock()

	q.handlers[kind] = handler
}

func (q *queue) handler(kind string) (Handler, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()

	h, ok := q.handlers[kind]
	return h, ok
}

// Enqueue stores a job. When ctx carries an open database transaction the
// job is inserted inside it, so it only becomes visible if the enclosing
// unit of work commits.
func (q *queue) Enqueue(ctx context.Context, kind string, payload any, notBefore time.Time) (*entity.Job, error) {
	_, tx := db.OpenSession(ctx, q.db)

	raw, err := json.Marshal(payload)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to encode job payload")
	}

	job := entity.Job{
		Kind:      kind,
		Payload:   datatypes.JSON(raw),
		NotBefore: notBefore.UTC(),
		Status:    entity.JobStatusQueued,
	}
	if err := tx.Create(&job).Error; err != nil {
		return nil, errors.Wrapf(err, "failed to enqueue job")
	}

	return &job, nil
}

func (q *queue) GetJob(ctx context.Context, id string) (*entity.Job, error) {
	_, tx := db.OpenSession(ctx, q.db)

	var job entity.Job
	if r := tx.Find(&job, "id = ?", id); r.Error != nil {
		return nil, errors.Wrapf(r.Error, "failed to find job")
	} else if r.RowsAffected == 0 {
		return nil, errors.Wrapf(errors.ErrNotFound, "job %s not found", id)
	}

	return &job, nil
}

// RunDue runs every job that is due at the current clock time, including
// running jobs whose lease has expired, and returns the number of jobs this
// call claimed.
func (q *queue) RunDue(ctx context.Context) (int, error) {
	now := q.clock.Now().UTC()

	var due []entity.Job
	if err := q.db.WithContext(ctx).
		Where("(status = ? AND not_before <= ?) OR (status = ? AND claimed_at <= ?)",
			entity.JobStatusQueued, now,
			entity.JobStatusRunning, now.Add(-q.lease)).
		Order("not_before ASC").
		Limit(q.batchSize).
		Find(&due).Error; err != nil {
		return 0, errors.Wrapf(err, "failed to find due jobs")
	}

	claimed := 0
	for _, job := range due {
		if ctx.Err() != nil {
			return claimed, ctx.Err()
		}

		if job.Status == entity.JobStatusRunning && job.Attempts >= q.maxAttempts {
			if err := q.bury(ctx, job); err != nil {
				return claimed, err
			}
			continue
		}

		ok, err := q.claim(ctx, job, now)
		if err != nil {
			return claimed, err
		}
		if !ok {
			continue
		}
		claimed++

		q.run(ctx, job)
	}

	return claimed, nil
}

// claim takes the lease on a job in the state it was read in. It reports
// false when another worker got there first.
func (q *queue) claim(ctx context.Context, job entity.Job, now time.Time) (bool, error) {
	r := q.db.WithContext(ctx).
		Model(&entity.Job{}).
		Where("id = ? AND status = ? AND attempts = ?", job.ID, job.Status, job.Attempts).
		Updates(map[string]any{
			"status":     entity.JobStatusRunning,
			"attempts":   gorm.Expr("attempts + 1"),
			"claimed_at": now,
		})
	if r.Error != nil {
		return false, errors.Wrapf(r.Error, "failed to claim job")
	}

	return r.RowsAffected == 1, nil
}

// bury dead-letters a job whose lease expired on its last attempt.
func (q *queue) bury(ctx context.Context, job entity.Job) error {
	r := q.db.WithContext(ctx).
		Model(&entity.Job{}).
		Where("id = ? AND status = ? AND attempts = ?", job.ID, job.Status, job.Attempts).
		Updates(map[string]any{
			"status":     entity.JobStatusDead,
			"last_error": fmt.Sprintf("lease expired after %d attempts", job.Attempts),
		})
	if r.Error != nil {
		return errors.Wrapf(r.Error, "failed to dead-letter job")
	}
	if r.RowsAffected == 1 {
		metrics.JobsProcessed.WithLabelValues(job.Kind, string(entity.JobStatusDead)).Inc()
		q.logger.Error("job lease expired too often", "job_id", job.ID, "kind", job.Kind, "attempts", job.Attempts)
	}
	return nil
}

func (q *queue) run(ctx context.Context, job entity.Job) {
	logger := q.logger.With("job_id", job.ID, "kind", job.Kind)

	status := entity.JobStatusDone
	var lastError string

	h, ok := q.handler(job.Kind)
	if !ok {
		status = entity.JobStatusDead
		lastError = "no handler registered for kind " + job.Kind
		logger.Error("dropping job without handler")
	} else if err := h(context.WithoutCancel(ctx), json.RawMessage(job.Payload)); err != nil {
		lastError = err.Error()
		if ctx.Err() != nil {
			status = entity.JobStatusQueued
			logger.Warn("job interrupted by shutdown, requeue", mylog.Err(err))
		} else {
			status = entity.JobStatusDead
			logger.Error("job failed", mylog.Err(err))
		}
	} else {
		logger.Debug("job done")
	}

	metrics.JobsProcessed.WithLabelValues(job.Kind, string(status)).Inc()

	result := map[string]any{
		"status":     status,
		"last_error": lastError,
	}
	if status == entity.JobStatusQueued {
		result["claimed_at"] = nil
	}
	if err := q.db.WithContext(context.WithoutCancel(ctx)).
		Model(&entity.Job{}).
		Where("id = ? AND attempts = ?", job.ID, job.Attempts+1).
		Updates(result).Error; err != nil {
		logger.Error("failed to record job result", mylog.Err(err))
	}
}

// Work polls for due jobs until ctx is cancelled.
func (q *queue) Work(ctx context.Context, pollInterval time.Duration) {
	q.logger.Info("start job worker", "poll_interval", pollInterval)
	defer q.logger.Info("stop job worker")

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := q.RunDue(ctx); err != nil && ctx.Err() == nil {
				q.logger.Error("failed to run due jobs", mylog.Err(err))
			}
		}
	}
}
