package attendance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"goflare.io/punchclock/internal/api"
	"goflare.io/punchclock/internal/cache/ttl"
	"goflare.io/punchclock/internal/config"
	"goflare.io/punchclock/internal/models"
	"goflare.io/punchclock/internal/retrier"
)

var (
	// ErrSessionExpired means no employee id is known; the user must log in again.
	ErrSessionExpired = errors.New("session expired")
	// ErrActionInFlight rejects a second action for an employee whose first is pending.
	ErrActionInFlight = errors.New("attendance action already in progress")
	// ErrDayCompleted means both check-in and check-out are recorded for today.
	ErrDayCompleted = errors.New("attendance already completed for today")
	// ErrSuperseded is returned by a refresh cancelled by a newer one.
	ErrSuperseded = errors.New("refresh superseded by a newer one")
)

// Remote is the part of the attendance API the reconciler calls.
type Remote interface {
	ViewEmployee(ctx context.Context, employeeID string) (models.EmployeeProfile, error)
	CheckIn(ctx context.Context, employeeID string) (api.ActionResult, error)
	CheckOut(ctx context.Context, employeeID string) (api.ActionResult, error)
}

// Enqueuer stores an action for replay once the device is online.
type Enqueuer interface {
	Enqueue(ctx context.Context, endpoint string, verb models.Verb, payload any) (models.Mutation, error)
	Pending(match func(models.Mutation) bool) bool
}

type actionPayload struct {
	ID string `json:"id"`
}

// Result is the outcome of PerformAction.
type Result struct {
	Action  Action
	Message string
	// Queued is set when the action was stored for replay instead of sent.
	Queued bool
	// Status is the server-confirmed state after the action, nil when the
	// follow-up refresh failed or the action was queued.
	Status *DayStatus
}

// Option customizes a Reconciler.
type Option func(*Reconciler)

// WithQueue enables offline queueing of actions.
func WithQueue(q Enqueuer) Option {
	return func(r *Reconciler) {
		r.queue = q
	}
}

// WithConnectivity sets the online check. Without it the device is assumed online.
func WithConnectivity(online func() bool) Option {
	return func(r *Reconciler) {
		if online != nil {
			r.online = online
		}
	}
}

type refresh struct {
	gen    uint64
	cancel context.CancelFunc
}

// Reconciler keeps the displayed attendance state equal to the server's.
// Actions never patch local state: a successful action invalidates the
// employee's cache entries and forces a re-fetch.
type Reconciler struct {
	remote  Remote
	cache   *ttl.Cache
	queue   Enqueuer
	online  func() bool
	retrier *retrier.Retrier
	loc     *time.Location
	now     func() time.Time

	group singleflight.Group

	mu        sync.Mutex
	inFlight  map[string]struct{}
	gens      map[string]uint64
	refreshes map[string]*refresh

	metrics *models.Metrics
	tracer  trace.Tracer
	logger  *zap.Logger
}

// New creates a Reconciler.
func New(remote Remote, cache *ttl.Cache, cfg *config.Config, metrics *models.Metrics, opts ...Option) (*Reconciler, error) {
	if metrics == nil {
		metrics = models.NewMetrics()
	}
	rc := cfg.ResilienceConfig
	rt, err := retrier.NewRetrier(rc.MaxRetries, rc.InitialInterval, rc.MaxInterval, rc.Multiplier, rc.RandomizationFactor, rc.Backoff, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create retrier: %w", err)
	}

	r := &Reconciler{
		remote:    remote,
		cache:     cache,
		online:    func() bool { return true },
		retrier:   rt,
		loc:       cfg.Location,
		now:       cfg.Now,
		inFlight:  make(map[string]struct{}),
		gens:      make(map[string]uint64),
		refreshes: make(map[string]*refresh),
		metrics:   metrics,
		tracer:    otel.Tracer("punchclock/attendance"),
		logger:    cfg.Logger.Named("attendance"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// ProfileKey is the cache key of an employee's profile and timelog.
func ProfileKey(employeeID string) string {
	return "employee_" + employeeID
}

// Today returns today's status from the cached timelog, loading it on a miss.
func (r *Reconciler) Today(ctx context.Context, employeeID string) (DayStatus, error) {
	if employeeID == "" {
		return DayStatus{}, ErrSessionExpired
	}
	profile, err := r.Profile(ctx, employeeID)
	if err != nil {
		return DayStatus{}, err
	}
	return Derive(profile.Timelog, r.now(), r.loc), nil
}

// Profile returns the cached employee profile, loading it on a miss.
// Concurrent loads of one employee share a single request.
func (r *Reconciler) Profile(ctx context.Context, employeeID string) (models.EmployeeProfile, error) {
	if employeeID == "" {
		return models.EmployeeProfile{}, ErrSessionExpired
	}

	var profile models.EmployeeProfile
	if r.cache.Get(ctx, ProfileKey(employeeID), &profile) {
		return profile, nil
	}

	key := ProfileKey(employeeID)
	v, err, _ := r.group.Do(key, func() (any, error) {
		gen := r.generation(employeeID)
		// detached so one caller's cancellation does not fail the others
		return r.fetch(context.WithoutCancel(ctx), employeeID, gen)
	})
	if err != nil {
		return models.EmployeeProfile{}, err
	}
	return v.(models.EmployeeProfile), nil
}

// Refresh re-fetches the employee's timelog from the server, bypassing the
// cache. A newer Refresh cancels an older one still running, and results of
// loads started before the newest refresh are never cached.
func (r *Reconciler) Refresh(ctx context.Context, employeeID string) (DayStatus, error) {
	if employeeID == "" {
		return DayStatus{}, ErrSessionExpired
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	r.mu.Lock()
	if prev, ok := r.refreshes[employeeID]; ok {
		prev.cancel()
	}
	r.gens[employeeID]++
	gen := r.gens[employeeID]
	r.refreshes[employeeID] = &refresh{gen: gen, cancel: cancel}
	r.mu.Unlock()
	r.group.Forget(ProfileKey(employeeID))

	defer func() {
		r.mu.Lock()
		if cur, ok := r.refreshes[employeeID]; ok && cur.gen == gen {
			delete(r.refreshes, employeeID)
		}
		r.mu.Unlock()
	}()

	profile, err := r.fetch(ctx, employeeID, gen)
	if err != nil {
		if ctx.Err() != nil && r.generation(employeeID) != gen {
			return DayStatus{}, ErrSuperseded
		}
		return DayStatus{}, err
	}
	return Derive(profile.Timelog, r.now(), r.loc), nil
}

// Invalidate drops every cache entry of the employee and discards loads
// already in flight.
func (r *Reconciler) Invalidate(ctx context.Context, employeeID string) {
	r.mu.Lock()
	r.gens[employeeID]++
	r.mu.Unlock()
	r.group.Forget(ProfileKey(employeeID))

	n := r.cache.InvalidatePattern(ctx, employeeID)
	r.logger.Debug("Invalidated employee cache", zap.String("employee", employeeID), zap.Int("entries", n))
}

func (r *Reconciler) generation(employeeID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gens[employeeID]
}

// fetch loads the profile and caches it when gen is still current.
func (r *Reconciler) fetch(ctx context.Context, employeeID string, gen uint64) (models.EmployeeProfile, error) {
	profile, err := r.remote.ViewEmployee(ctx, employeeID)
	if err != nil {
		return models.EmployeeProfile{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gens[employeeID] != gen {
		r.logger.Debug("Discarding stale timelog", zap.String("employee", employeeID))
		return profile, nil
	}
	if err := r.cache.Set(ctx, ProfileKey(employeeID), profile); err != nil {
		r.logger.Warn("Failed to cache profile", zap.String("employee", employeeID), zap.Error(err))
	}
	return profile, nil
}

// PerformAction checks the employee in or out, whichever today's state allows.
// Only one action per employee may run at a time, and an action still waiting
// in the offline queue counts as running. Transient failures are
// retried; when the device is offline the action is queued for replay. On
// success the displayed state is re-read from the server.
func (r *Reconciler) PerformAction(ctx context.Context, employeeID string) (Result, error) {
	if employeeID == "" {
		return Result{}, ErrSessionExpired
	}
	if !r.acquire(employeeID) {
		return Result{}, ErrActionInFlight
	}
	defer r.release(employeeID)

	if r.queued(employeeID) {
		return Result{}, ErrActionInFlight
	}

	ctx, span := r.tracer.Start(ctx, "Reconciler.PerformAction", trace.WithAttributes(attribute.String("employee", employeeID)))
	defer span.End()

	status, err := r.Today(ctx, employeeID)
	if err != nil {
		span.RecordError(err)
		return Result{}, err
	}
	action := status.Action
	if action == ActionNone {
		return Result{}, ErrDayCompleted
	}
	span.SetAttributes(attribute.String("action", action.String()))

	if !r.online() && r.queue != nil {
		return r.enqueue(ctx, action, employeeID)
	}

	var res api.ActionResult
	err = r.retrier.Run(ctx, func() error {
		var err error
		res, err = r.send(ctx, action, employeeID)
		return err
	})
	if err != nil {
		r.metrics.ActionFailures.Inc()
		if errors.Is(err, api.ErrNetworkUnreachable) && r.queue != nil {
			r.logger.Info("Server unreachable, queueing action", zap.String("action", action.String()), zap.Error(err))
			return r.enqueue(ctx, action, employeeID)
		}
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		r.logger.Warn("Attendance action failed",
			zap.String("employee", employeeID),
			zap.String("action", action.String()),
			zap.Error(err),
		)
		return Result{}, err
	}

	r.metrics.Actions.Inc()
	result := Result{Action: action, Message: res.Message}
	if result.Message == "" {
		result.Message = successMessage(action)
	}

	r.Invalidate(ctx, employeeID)
	fresh, err := r.Refresh(ctx, employeeID)
	if err != nil {
		// the next Today call reloads from the server
		r.logger.Warn("Refresh after action failed", zap.String("employee", employeeID), zap.Error(err))
		return result, nil
	}
	result.Status = &fresh
	return result, nil
}

func (r *Reconciler) send(ctx context.Context, action Action, employeeID string) (api.ActionResult, error) {
	if action == ActionCheckOut {
		return r.remote.CheckOut(ctx, employeeID)
	}
	return r.remote.CheckIn(ctx, employeeID)
}

func (r *Reconciler) enqueue(ctx context.Context, action Action, employeeID string) (Result, error) {
	payload := actionPayload{ID: employeeID}
	if _, err := r.queue.Enqueue(ctx, action.Endpoint(), models.VerbPost, payload); err != nil {
		return Result{}, fmt.Errorf("failed to queue %s: %w", action, err)
	}
	return Result{
		Action:  action,
		Queued:  true,
		Message: queuedMessage(action),
	}, nil
}

// queued reports whether a check-in or check-out of employeeID waits for replay.
func (r *Reconciler) queued(employeeID string) bool {
	if r.queue == nil {
		return false
	}
	return r.queue.Pending(func(m models.Mutation) bool {
		if m.Endpoint != ActionCheckIn.Endpoint() && m.Endpoint != ActionCheckOut.Endpoint() {
			return false
		}
		var p actionPayload
		return json.Unmarshal(m.Payload, &p) == nil && p.ID == employeeID
	})
}

func (r *Reconciler) acquire(employeeID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, busy := r.inFlight[employeeID]; busy {
		return false
	}
	r.inFlight[employeeID] = struct{}{}
	return true
}

func (r *Reconciler) release(employeeID string) {
	r.mu.Lock()
	delete(r.inFlight, employeeID)
	r.mu.Unlock()
}

func successMessage(a Action) string {
	if a == ActionCheckOut {
		return "Checked out successfully"
	}
	return "Checked in successfully"
}

func queuedMessage(a Action) string {
	if a == ActionCheckOut {
		return "You are offline. Your check-out will be sent when you are back online."
	}
	return "You are offline. Your check-in will be sent when you are back online."
}
