package punchclock

import (
	"context"

	"go.uber.org/zap"
)

// SetConnectivity 更新網路狀態；從離線恢復時會重播離線佇列
func (c *Client) SetConnectivity(ctx context.Context, state ConnectivityState) {
	c.monitor.Update(ctx, state)
}

// WatchConnectivity applies connectivity reports until ctx is done or
// updates is closed.
func (c *Client) WatchConnectivity(ctx context.Context, updates <-chan ConnectivityState) error {
	return c.monitor.Run(ctx, updates)
}

// Online 返回最近一次回報的網路狀態
func (c *Client) Online() bool {
	return c.monitor.Online()
}

// DrainQueue replays pending mutations. After any success the cached data of
// the logged in employee is dropped so the next read shows server state.
func (c *Client) DrainQueue(ctx context.Context) QueueReport {
	report := c.queue.Process(ctx, c.api.Execute)
	if report.Skipped {
		return report
	}

	if report.Succeeded > 0 {
		if id, err := c.employeeID(ctx); err == nil {
			c.reconciler.Invalidate(ctx, id)
		}
	}

	if report.Succeeded+report.Retried+report.Abandoned > 0 {
		c.logger.Info("Drained offline queue",
			zap.Int("succeeded", report.Succeeded),
			zap.Int("retried", report.Retried),
			zap.Int("abandoned", report.Abandoned),
			zap.Int("pending", c.queue.Len()),
		)
	}
	return report
}

// PendingMutations 返回離線佇列中等待重播的數量
func (c *Client) PendingMutations() int {
	return c.queue.Len()
}
