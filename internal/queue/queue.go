// Package queue persists writes that could not reach the server and replays
// them once connectivity returns.
package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"goflare.io/punchclock/internal/config"
	"goflare.io/punchclock/internal/kv"
	"goflare.io/punchclock/internal/models"
	"goflare.io/punchclock/pkg/serialization"
)

var (
	// ErrInvalidMutation is returned by Enqueue for an empty endpoint or unknown verb.
	ErrInvalidMutation = errors.New("invalid mutation")
	// ErrExhausted wraps the last failure of an abandoned mutation.
	ErrExhausted = errors.New("mutation abandoned after max attempts")
)

// Executor replays one mutation against the server.
type Executor func(ctx context.Context, m models.Mutation) error

// AbandonFunc is notified once per abandoned mutation, after the pass persisted.
type AbandonFunc func(m models.Mutation, err error)

// Report summarizes one Process pass.
type Report struct {
	Succeeded int
	Retried   int
	Abandoned int
	// Skipped is set when another pass was already running.
	Skipped bool
}

// Option customizes a Queue.
type Option func(*Queue)

// WithOnAbandoned registers fn to be called for every abandoned mutation.
func WithOnAbandoned(fn AbandonFunc) Option {
	return func(q *Queue) {
		q.onAbandoned = fn
	}
}

// Queue is an ordered, persisted list of pending mutations. Safe for concurrent use.
type Queue struct {
	mu    sync.Mutex
	items []models.Mutation

	// persistMu serializes store writes so the newest snapshot lands last.
	persistMu sync.Mutex

	store       kv.Store
	key         string
	codec       serialization.Codec
	maxAttempts int
	limiter     *rate.Limiter
	now         func() time.Time
	processing  atomic.Bool
	onAbandoned AbandonFunc

	metrics *models.Metrics
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New creates a Queue and restores the items persisted by a previous run.
// An unreadable persisted list is logged and discarded.
func New(ctx context.Context, store kv.Store, cfg *config.Config, metrics *models.Metrics, opts ...Option) *Queue {
	if metrics == nil {
		metrics = models.NewMetrics()
	}

	q := &Queue{
		store:       store,
		key:         cfg.QueueConfig.StorageKey,
		codec:       cfg.Serialization,
		maxAttempts: cfg.QueueConfig.MaxAttempts,
		limiter:     rate.NewLimiter(cfg.QueueConfig.ReplayRate, cfg.QueueConfig.ReplayBurst),
		now:         cfg.Now,
		metrics:     metrics,
		tracer:      otel.Tracer("punchclock/queue"),
		logger:      cfg.Logger.Named("queue"),
	}
	for _, opt := range opts {
		opt(q)
	}

	q.restore(ctx)
	return q
}

func (q *Queue) restore(ctx context.Context) {
	raw, err := q.store.Get(ctx, q.key)
	if errors.Is(err, kv.ErrNotFound) {
		return
	}
	if err != nil {
		q.metrics.StoreErrors.Inc()
		q.logger.Warn("Failed to restore offline queue", zap.Error(err))
		return
	}

	var items []models.Mutation
	if err := q.codec.Unmarshal([]byte(raw), &items); err != nil {
		q.logger.Warn("Discarding unreadable offline queue", zap.Error(err))
		return
	}

	q.mu.Lock()
	q.items = items
	q.mu.Unlock()

	if len(items) > 0 {
		q.logger.Info("Restored offline queue", zap.Int("pending", len(items)))
	}
}

// Enqueue appends a mutation and persists the queue. A persistence failure
// is logged and the mutation stays queued in memory.
func (q *Queue) Enqueue(ctx context.Context, endpoint string, verb models.Verb, payload any) (models.Mutation, error) {
	if endpoint == "" || !verb.Valid() {
		return models.Mutation{}, fmt.Errorf("%w: %s %q", ErrInvalidMutation, verb, endpoint)
	}

	var data json.RawMessage
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return models.Mutation{}, fmt.Errorf("%w: payload: %w", ErrInvalidMutation, err)
		}
		data = b
	}

	id, err := uuid.NewV7()
	if err != nil {
		return models.Mutation{}, fmt.Errorf("failed to generate mutation id: %w", err)
	}

	m := models.Mutation{
		ID:         id.String(),
		Endpoint:   endpoint,
		Verb:       verb,
		Payload:    data,
		EnqueuedAt: q.now().UnixMilli(),
	}

	q.mu.Lock()
	q.items = append(q.items, m)
	pending := len(q.items)
	q.mu.Unlock()

	q.metrics.Enqueued.Inc()
	q.logger.Info("Queued offline mutation",
		zap.String("id", m.ID),
		zap.String("endpoint", endpoint),
		zap.String("verb", string(verb)),
		zap.Int("pending", pending),
	)

	q.persist(ctx)
	return m, nil
}

// Process replays a snapshot of the queue in enqueue order. Succeeded items are
// removed, failed ones count an attempt and are abandoned at the attempt limit.
// Items enqueued while the pass runs are left for the next pass. Only one pass
// runs at a time; a concurrent call returns a Skipped report.
func (q *Queue) Process(ctx context.Context, exec Executor) Report {
	if !q.processing.CompareAndSwap(false, true) {
		return Report{Skipped: true}
	}
	defer q.processing.Store(false)

	ctx, span := q.tracer.Start(ctx, "Queue.Process")
	defer span.End()

	var (
		report    Report
		abandoned []models.Mutation
		causes    []error
	)

	for _, m := range q.Items() {
		if err := q.limiter.Wait(ctx); err != nil {
			break
		}

		err := exec(ctx, m)
		if err != nil && ctx.Err() != nil {
			// interrupted, not a failed attempt
			break
		}

		q.mu.Lock()
		idx := q.indexOf(m.ID)
		if idx < 0 {
			q.mu.Unlock()
			continue
		}
		switch {
		case err == nil:
			q.removeAt(idx)
			report.Succeeded++
		case q.items[idx].Attempts+1 >= q.maxAttempts:
			item := q.items[idx]
			item.Attempts++
			q.removeAt(idx)
			abandoned = append(abandoned, item)
			causes = append(causes, fmt.Errorf("%w: %w", ErrExhausted, err))
			report.Abandoned++
		default:
			q.items[idx].Attempts++
			report.Retried++
		}
		q.mu.Unlock()

		if err != nil {
			q.logger.Debug("Replay failed", zap.String("id", m.ID), zap.Error(err))
		}
	}

	q.persist(context.WithoutCancel(ctx))

	q.metrics.Replayed.Add(int64(report.Succeeded))
	q.metrics.Abandoned.Add(int64(report.Abandoned))
	for i, m := range abandoned {
		q.logger.Warn("Abandoned offline mutation",
			zap.String("id", m.ID),
			zap.String("endpoint", m.Endpoint),
			zap.Int("attempts", m.Attempts),
			zap.Error(causes[i]),
		)
		if q.onAbandoned != nil {
			q.onAbandoned(m, causes[i])
		}
	}

	span.SetAttributes(
		attribute.Int("succeeded", report.Succeeded),
		attribute.Int("retried", report.Retried),
		attribute.Int("abandoned", report.Abandoned),
	)
	return report
}

// Len returns the number of pending mutations.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Items returns a snapshot of the pending mutations in enqueue order.
func (q *Queue) Items() []models.Mutation {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]models.Mutation, len(q.items))
	copy(out, q.items)
	return out
}

// Pending reports whether any queued mutation satisfies match. Mutations
// being replayed stay pending until they succeed or are abandoned.
func (q *Queue) Pending(match func(models.Mutation) bool) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, m := range q.items {
		if match(m) {
			return true
		}
	}
	return false
}

// Clear drops every pending mutation, persisted copy included.
func (q *Queue) Clear(ctx context.Context) {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	q.mu.Lock()
	q.items = nil
	q.mu.Unlock()

	if err := q.store.Remove(ctx, q.key); err != nil {
		q.metrics.StoreErrors.Inc()
		q.logger.Warn("Failed to remove persisted offline queue", zap.Error(err))
	}
}

func (q *Queue) indexOf(id string) int {
	for i := range q.items {
		if q.items[i].ID == id {
			return i
		}
	}
	return -1
}

func (q *Queue) removeAt(i int) {
	q.items = append(q.items[:i], q.items[i+1:]...)
}

func (q *Queue) persist(ctx context.Context) {
	q.persistMu.Lock()
	defer q.persistMu.Unlock()

	items := q.Items()
	raw, err := q.codec.Marshal(items)
	if err != nil {
		q.logger.Error("Failed to encode offline queue", zap.Error(err))
		return
	}
	if err := q.store.Set(ctx, q.key, string(raw)); err != nil {
		q.metrics.StoreErrors.Inc()
		q.logger.Warn("Failed to persist offline queue",
			zap.Int("pending", len(items)),
			zap.Error(err),
		)
	}
}
