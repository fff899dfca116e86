package punchclock

import (
	"context"
	"time"

	"go.uber.org/zap"

	"goflare.io/punchclock/internal/api"
)

const prefetchTimeout = 5 * time.Second

// QuoteOfTheDay 返回每日一句；服務不可用時使用內建語錄且不快取
func (c *Client) QuoteOfTheDay(ctx context.Context) Quote {
	key := "quote_" + c.cfg.Now().In(c.cfg.Location).Format("20060102")

	var q Quote
	if c.cache.Get(ctx, key, &q) {
		return q
	}

	q, err := c.api.FetchQuote(ctx)
	if err != nil {
		c.logger.Debug("Quote service unavailable, using built-in quote", zap.Error(err))
		return api.FallbackQuote(c.cfg.Now().In(c.cfg.Location))
	}
	if err := c.cache.Set(ctx, key, q, c.cfg.CacheConfig.QuoteExpiration); err != nil {
		c.logger.Warn("Failed to cache quote", zap.Error(err))
	}
	return q
}

// warm loads the data of the first screen in the background after login.
func (c *Client) warm(ctx context.Context, employeeID string) {
	tasks := map[string]func(ctx context.Context) error{
		"profile": func(ctx context.Context) error {
			_, err := c.reconciler.Profile(ctx, employeeID)
			return err
		},
		"quote": func(ctx context.Context) error {
			c.QuoteOfTheDay(ctx)
			return nil
		},
	}

	for name, task := range tasks {
		c.goDetached(ctx, func(ctx context.Context) {
			ctx, cancel := context.WithTimeout(ctx, prefetchTimeout)
			defer cancel()

			if err := task(ctx); err != nil {
				c.logger.Warn("Failed to prefetch", zap.String("task", name), zap.Error(err))
			}
		})
	}
}
