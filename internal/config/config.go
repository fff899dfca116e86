package config

import (
	"errors"
	"time"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"goflare.io/punchclock/internal/retrier"
	"goflare.io/punchclock/pkg/serialization"
)

// Config 同步層的配置
type Config struct {
	APIBaseURL   string
	QuoteURL     string
	Location     *time.Location
	Now          func() time.Time
	HTTPTimeouts HTTPTimeoutConfig

	CacheConfig      CacheConfig
	IdentityConfig   IdentityConfig
	QueueConfig      QueueConfig
	ResilienceConfig ResilienceConfig
	Serialization    serialization.Codec
	Logger           *zap.Logger
}

// HTTPTimeoutConfig 每類網路呼叫的逾時
type HTTPTimeoutConfig struct {
	Request time.Duration
	Verify  time.Duration
	Quote   time.Duration
}

// CacheConfig 緩存相關配置
type CacheConfig struct {
	Namespace         string
	DefaultExpiration time.Duration
	MaxEntries        int
	EnableHotCache    bool
	HotCacheSize      int64
	QuoteExpiration   time.Duration
	BloomFilter       BloomFilterConfig
}

// BloomFilterConfig 用於布隆過濾器的配置
type BloomFilterConfig struct {
	Enabled           bool
	ExpectedItems     uint
	FalsePositiveRate float64
}

// IdentityConfig 身份快取配置
type IdentityConfig struct {
	Namespace      string
	MaxAge         time.Duration
	TokenKey       string
	ProfileKey     string
	CheckJWTExpiry bool
}

// QueueConfig 離線佇列配置
type QueueConfig struct {
	StorageKey  string
	MaxAttempts int
	ReplayRate  rate.Limit
	ReplayBurst int
}

// ResilienceConfig 用於設置重試和熔斷器
type ResilienceConfig struct {
	CircuitBreaker      gobreaker.Settings
	MaxRetries          int
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	Backoff             retrier.BackoffStrategy
}

// Option 函數類型
type Option func(*Config) error

var (
	ErrMaxEntriesZero  = errors.New("max entries must be at least 1")
	ErrMaxAttemptsZero = errors.New("max attempts must be at least 1")
	ErrInvalidTimeout  = errors.New("timeouts must be positive")
)

// NewConfig 創建一個默認的 Config，允許覆蓋特定參數
func NewConfig(options ...Option) (*Config, error) {
	defaultLogger, err := zap.NewProduction()
	if err != nil {
		return nil, err
	}

	codec, err := serialization.NewCodec(serialization.JSONType)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		APIBaseURL: "http://localhost:3000",
		QuoteURL:   "https://zenquotes.io/api/today",
		Location:   time.Local,
		Now:        time.Now,
		HTTPTimeouts: HTTPTimeoutConfig{
			Request: 30 * time.Second,
			Verify:  5 * time.Second,
			Quote:   2 * time.Second,
		},
		CacheConfig: CacheConfig{
			Namespace:         "cache_",
			DefaultExpiration: 5 * time.Minute,
			MaxEntries:        50,
			EnableHotCache:    true,
			HotCacheSize:      256,
			QuoteExpiration:   24 * time.Hour,
			BloomFilter: BloomFilterConfig{
				Enabled:           true,
				ExpectedItems:     1000,
				FalsePositiveRate: 0.01,
			},
		},
		IdentityConfig: IdentityConfig{
			Namespace:      "identity_",
			MaxAge:         24 * time.Hour,
			TokenKey:       "auth_token",
			ProfileKey:     "user_data",
			CheckJWTExpiry: true,
		},
		QueueConfig: QueueConfig{
			StorageKey:  "offline_queue",
			MaxAttempts: 3,
			ReplayRate:  rate.Inf,
			ReplayBurst: 1,
		},
		ResilienceConfig: ResilienceConfig{
			CircuitBreaker: gobreaker.Settings{
				Name:        "AttendanceAPI",
				MaxRequests: 1,
				Interval:    60 * time.Second,
				Timeout:     30 * time.Second,
				ReadyToTrip: func(counts gobreaker.Counts) bool {
					return counts.ConsecutiveFailures > 5
				},
			},
			MaxRetries:          2,
			InitialInterval:     500 * time.Millisecond,
			MaxInterval:         2 * time.Second,
			Multiplier:          2,
			RandomizationFactor: 0.1,
			Backoff:             retrier.ExponentialBackoff,
		},
		Serialization: codec,
		Logger:        defaultLogger,
	}

	for _, option := range options {
		if err := option(cfg); err != nil {
			return nil, err
		}
	}

	if cfg.CacheConfig.MaxEntries < 1 {
		return nil, ErrMaxEntriesZero
	}
	if cfg.QueueConfig.MaxAttempts < 1 {
		return nil, ErrMaxAttemptsZero
	}
	if cfg.HTTPTimeouts.Request <= 0 || cfg.HTTPTimeouts.Verify <= 0 || cfg.HTTPTimeouts.Quote <= 0 {
		return nil, ErrInvalidTimeout
	}

	return cfg, nil
}

// WithLogger 設置自定義 Logger
func WithLogger(logger *zap.Logger) Option {
	return func(c *Config) error {
		if logger != nil {
			c.Logger = logger
		}
		return nil
	}
}

// WithClock 設置時間來源
func WithClock(now func() time.Time) Option {
	return func(c *Config) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		c.Now = now
		return nil
	}
}

// WithLocation 設置判斷「今天」所用的時區
func WithLocation(loc *time.Location) Option {
	return func(c *Config) error {
		if loc == nil {
			return errors.New("location must not be nil")
		}
		c.Location = loc
		return nil
	}
}

// WithAPIBaseURL 設置考勤服務位址
func WithAPIBaseURL(url string) Option {
	return func(c *Config) error {
		if url == "" {
			return errors.New("api base url must not be empty")
		}
		c.APIBaseURL = url
		return nil
	}
}

// WithQuoteURL 設置每日一句服務位址
func WithQuoteURL(url string) Option {
	return func(c *Config) error {
		c.QuoteURL = url
		return nil
	}
}

// WithDefaultExpiration 設置默認的過期時間
func WithDefaultExpiration(ttl time.Duration) Option {
	return func(c *Config) error {
		if ttl <= 0 {
			return errors.New("default expiration must be positive")
		}
		c.CacheConfig.DefaultExpiration = ttl
		return nil
	}
}

// WithMaxEntries 設置緩存項目上限
func WithMaxEntries(n int) Option {
	return func(c *Config) error {
		if n < 1 {
			return ErrMaxEntriesZero
		}
		c.CacheConfig.MaxEntries = n
		return nil
	}
}

// WithHotCache 開關記憶體熱層
func WithHotCache(enabled bool) Option {
	return func(c *Config) error {
		c.CacheConfig.EnableHotCache = enabled
		return nil
	}
}

// WithBloomFilter 開關布隆過濾器
func WithBloomFilter(enabled bool) Option {
	return func(c *Config) error {
		c.CacheConfig.BloomFilter.Enabled = enabled
		return nil
	}
}

// WithSerialization 設置序列化方式
func WithSerialization(typ string) Option {
	return func(c *Config) error {
		codec, err := serialization.NewCodec(typ)
		if err != nil {
			return err
		}
		c.Serialization = codec
		return nil
	}
}

// WithReplayRate 設置離線佇列重播速率
func WithReplayRate(limit rate.Limit, burst int) Option {
	return func(c *Config) error {
		if burst < 1 {
			burst = 1
		}
		c.QueueConfig.ReplayRate = limit
		c.QueueConfig.ReplayBurst = burst
		return nil
	}
}

// WithCircuitBreaker 設置熔斷器
func WithCircuitBreaker(settings gobreaker.Settings) Option {
	return func(c *Config) error {
		c.ResilienceConfig.CircuitBreaker = settings
		return nil
	}
}

// WithRetry 設置考勤操作的重試策略
func WithRetry(attempts int, initial, max time.Duration) Option {
	return func(c *Config) error {
		if attempts < 1 {
			return errors.New("retry attempts must be at least 1")
		}
		c.ResilienceConfig.MaxRetries = attempts
		c.ResilienceConfig.InitialInterval = initial
		c.ResilienceConfig.MaxInterval = max
		return nil
	}
}

// WithBackoff 設置重試退避策略：exponential、linear 或 fibonacci
func WithBackoff(name string) Option {
	return func(c *Config) error {
		strategy, err := retrier.ParseBackoffStrategy(name)
		if err != nil {
			return err
		}
		c.ResilienceConfig.Backoff = strategy
		return nil
	}
}

// WithTimeouts 設置網路逾時
func WithTimeouts(request, verify, quote time.Duration) Option {
	return func(c *Config) error {
		c.HTTPTimeouts = HTTPTimeoutConfig{Request: request, Verify: verify, Quote: quote}
		return nil
	}
}
