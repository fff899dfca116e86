// Package punchclock is the client-side synchronization layer of the
// attendance service: an expiring cache, an offline write queue, a fast-path
// identity cache and the check-in state reconciler, all over one durable
// key-value store.
package punchclock

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"goflare.io/punchclock/internal/api"
	"goflare.io/punchclock/internal/attendance"
	"goflare.io/punchclock/internal/cache/ttl"
	"goflare.io/punchclock/internal/config"
	"goflare.io/punchclock/internal/connectivity"
	"goflare.io/punchclock/internal/identity"
	"goflare.io/punchclock/internal/kv"
	"goflare.io/punchclock/internal/metrics"
	"goflare.io/punchclock/internal/models"
	"goflare.io/punchclock/internal/queue"
)

type (
	User              = models.User
	Profile           = models.EmployeeProfile
	DayRecord         = models.DayRecord
	Quote             = models.Quote
	Mutation          = models.Mutation
	AuthState         = identity.AuthState
	DayStatus         = attendance.DayStatus
	ActionResult      = attendance.Result
	ConnectivityState = connectivity.State
	QueueReport       = queue.Report
	Store             = kv.Store
)

// Client 是同步層的唯一入口，每個行程建立一個
type Client struct {
	cfg        *config.Config
	metrics    *models.Metrics
	cache      *ttl.Cache
	identity   *identity.Cache
	queue      *queue.Queue
	api        *api.Client
	reconciler *attendance.Reconciler
	monitor    *connectivity.Monitor

	onSessionExpired func()
	prefetch         bool

	// background tracks detached work (verification, prefetch) for Close.
	background sync.WaitGroup
	closeOnce  sync.Once
	logger     *zap.Logger
}

// New 初始化 Client，接受多個配置選項
func New(ctx context.Context, store Store, opts ...Option) (*Client, error) {
	if store == nil {
		return nil, errors.New("store must not be nil")
	}

	o := &options{prefetch: true}
	for _, opt := range opts {
		if err := opt(o); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	cfg, err := config.NewConfig(o.config...)
	if err != nil {
		return nil, fmt.Errorf("failed to create config: %w", err)
	}

	m := models.NewMetrics()
	if o.registerer != nil {
		if err := metrics.Register(o.registerer, m); err != nil {
			return nil, fmt.Errorf("failed to register metrics: %w", err)
		}
	}

	c := &Client{
		cfg:              cfg,
		metrics:          m,
		monitor:          connectivity.New(cfg.Logger),
		onSessionExpired: o.onSessionExpired,
		prefetch:         o.prefetch,
		logger:           cfg.Logger.Named("punchclock"),
	}

	c.cache, err = ttl.New(ctx, store, cfg, m)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize cache: %w", err)
	}

	c.identity, err = identity.New(ctx, store, cfg, m, c.verify)
	if err != nil {
		c.cache.Close()
		return nil, fmt.Errorf("failed to initialize identity cache: %w", err)
	}

	c.api = api.New(cfg,
		api.WithHTTPClient(o.httpClient),
		api.WithTokenSource(c.identity.Token),
	)

	var queueOpts []queue.Option
	if o.onAbandoned != nil {
		queueOpts = append(queueOpts, queue.WithOnAbandoned(o.onAbandoned))
	}
	c.queue = queue.New(ctx, store, cfg, m, queueOpts...)

	c.reconciler, err = attendance.New(c.api, c.cache, cfg, m,
		attendance.WithQueue(c.queue),
		attendance.WithConnectivity(c.monitor.Online),
	)
	if err != nil {
		c.Close()
		return nil, fmt.Errorf("failed to initialize reconciler: %w", err)
	}

	c.monitor.OnOnline(func(ctx context.Context) {
		c.DrainQueue(ctx)
	})

	c.logger.Info("Client ready",
		zap.String("api", cfg.APIBaseURL),
		zap.Int("pending_mutations", c.queue.Len()),
	)
	return c, nil
}

// Close 等待背景工作結束並釋放資源
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.background.Wait()
		if c.cache != nil {
			c.cache.Close()
		}
		if c.identity != nil {
			c.identity.Close()
		}
	})
	return nil
}

// Metrics 返回共享的計數器
func (c *Client) Metrics() *models.Metrics {
	return c.metrics
}

// goDetached runs fn detached from the caller's cancellation and tracks it for Close.
func (c *Client) goDetached(ctx context.Context, fn func(ctx context.Context)) {
	ctx = context.WithoutCancel(ctx)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		fn(ctx)
	}()
}

// observe logs the user out when err is an explicit rejection by the server.
func (c *Client) observe(ctx context.Context, err error) error {
	if errors.Is(err, api.ErrAuthRejected) {
		c.expireSession(ctx)
	}
	return err
}
