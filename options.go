package punchclock

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"goflare.io/punchclock/internal/config"
)

// Option 定義初始化 Client 的選項
type Option func(*options) error

type options struct {
	config           []config.Option
	httpClient       *http.Client
	registerer       prometheus.Registerer
	onSessionExpired func()
	onAbandoned      func(Mutation, error)
	prefetch         bool
}

func configOption(opt config.Option) Option {
	return func(o *options) error {
		o.config = append(o.config, opt)
		return nil
	}
}

// WithLogger 設置自定義的日誌記錄器
func WithLogger(logger *zap.Logger) Option {
	return configOption(config.WithLogger(logger))
}

// WithClock 設置時間來源
func WithClock(now func() time.Time) Option {
	return configOption(config.WithClock(now))
}

// WithLocation 設置判斷「今天」的時區
func WithLocation(loc *time.Location) Option {
	return configOption(config.WithLocation(loc))
}

// WithAPIBaseURL 設置考勤服務位址
func WithAPIBaseURL(url string) Option {
	return configOption(config.WithAPIBaseURL(url))
}

// WithQuoteURL 設置每日一句服務位址
func WithQuoteURL(url string) Option {
	return configOption(config.WithQuoteURL(url))
}

// WithDefaultExpiration 設置默認的過期時間
func WithDefaultExpiration(ttl time.Duration) Option {
	return configOption(config.WithDefaultExpiration(ttl))
}

// WithMaxEntries 設置緩存項目上限
func WithMaxEntries(n int) Option {
	return configOption(config.WithMaxEntries(n))
}

// WithHotCache 開關記憶體熱層
func WithHotCache(enabled bool) Option {
	return configOption(config.WithHotCache(enabled))
}

// WithSerialization 設置序列化方式 ("json" 或 "gob")
func WithSerialization(serializer string) Option {
	return configOption(config.WithSerialization(serializer))
}

// WithReplayRate 設置離線佇列重播速率
func WithReplayRate(limit rate.Limit, burst int) Option {
	return configOption(config.WithReplayRate(limit, burst))
}

// WithRetry 設置考勤操作的重試策略
func WithRetry(attempts int, initial, max time.Duration) Option {
	return configOption(config.WithRetry(attempts, initial, max))
}

// WithBackoff 設置重試退避策略：exponential、linear 或 fibonacci
func WithBackoff(strategy string) Option {
	return configOption(config.WithBackoff(strategy))
}

// WithCircuitBreaker 設置熔斷器
func WithCircuitBreaker(settings gobreaker.Settings) Option {
	return configOption(config.WithCircuitBreaker(settings))
}

// WithTimeouts 設置網路逾時
func WithTimeouts(request, verify, quote time.Duration) Option {
	return configOption(config.WithTimeouts(request, verify, quote))
}

// WithConfigFile 從 YAML 檔案載入配置，後面的選項可覆蓋
func WithConfigFile(path string) Option {
	return func(o *options) error {
		f, err := config.LoadFile(path)
		if err != nil {
			return err
		}
		opts, err := f.Options()
		if err != nil {
			return err
		}
		o.config = append(o.config, opts...)
		return nil
	}
}

// WithHTTPClient 設置 HTTP 客戶端
func WithHTTPClient(hc *http.Client) Option {
	return func(o *options) error {
		o.httpClient = hc
		return nil
	}
}

// WithRegisterer 將計數器註冊到 Prometheus
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(o *options) error {
		o.registerer = reg
		return nil
	}
}

// WithOnSessionExpired 伺服器拒絕憑證並登出後呼叫
func WithOnSessionExpired(fn func()) Option {
	return func(o *options) error {
		o.onSessionExpired = fn
		return nil
	}
}

// WithOnAbandoned 離線操作重試耗盡被丟棄時呼叫
func WithOnAbandoned(fn func(Mutation, error)) Option {
	return func(o *options) error {
		o.onAbandoned = fn
		return nil
	}
}

// WithPrefetch 登入後是否預先載入個人資料與每日一句
func WithPrefetch(enabled bool) Option {
	return func(o *options) error {
		o.prefetch = enabled
		return nil
	}
}
