package punchclock

import (
	"context"
	"fmt"

	"goflare.io/punchclock/internal/api"
	"goflare.io/punchclock/internal/cache/ttl"
	"goflare.io/punchclock/internal/models"
)

// Today 返回今天的考勤狀態
func (c *Client) Today(ctx context.Context) (DayStatus, error) {
	id, err := c.employeeID(ctx)
	if err != nil {
		return DayStatus{}, err
	}
	status, err := c.reconciler.Today(ctx, id)
	return status, c.observe(ctx, err)
}

// Refresh 略過快取重新讀取今天的考勤狀態
func (c *Client) Refresh(ctx context.Context) (DayStatus, error) {
	id, err := c.employeeID(ctx)
	if err != nil {
		return DayStatus{}, err
	}
	status, err := c.reconciler.Refresh(ctx, id)
	return status, c.observe(ctx, err)
}

// PerformAction 依今天的狀態打卡上班或下班
func (c *Client) PerformAction(ctx context.Context) (ActionResult, error) {
	id, err := c.employeeID(ctx)
	if err != nil {
		return ActionResult{}, err
	}
	res, err := c.reconciler.PerformAction(ctx, id)
	return res, c.observe(ctx, err)
}

// Profile 返回員工資料與考勤紀錄
func (c *Client) Profile(ctx context.Context) (Profile, error) {
	id, err := c.employeeID(ctx)
	if err != nil {
		return Profile{}, err
	}
	profile, err := c.reconciler.Profile(ctx, id)
	return profile, c.observe(ctx, err)
}

// MonthlyTimelog 返回某月的考勤紀錄
func (c *Client) MonthlyTimelog(ctx context.Context, month, year int) ([]DayRecord, error) {
	id, err := c.employeeID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validMonth(month, year); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("timelog_%s_%d_%d", id, month, year)
	days, err := ttl.GetOrSet(ctx, c.cache, key, func(ctx context.Context) ([]DayRecord, error) {
		return c.api.FilterTimelog(ctx, id, month, year)
	})
	return days, c.observe(ctx, err)
}

// Payslip 返回某月的薪資單，內容由伺服器定義
func (c *Client) Payslip(ctx context.Context, month, year int) (models.Payslip, error) {
	id, err := c.employeeID(ctx)
	if err != nil {
		return nil, err
	}
	if err := validMonth(month, year); err != nil {
		return nil, err
	}

	key := fmt.Sprintf("payslip_%s_%d_%d", id, month, year)
	payslip, err := ttl.GetOrSet(ctx, c.cache, key, func(ctx context.Context) (models.Payslip, error) {
		return c.api.Payslip(ctx, id, month, year)
	})
	return payslip, c.observe(ctx, err)
}

func validMonth(month, year int) error {
	if month < 1 || month > 12 || year < 1970 {
		return &api.Error{
			Kind:    api.KindValidation,
			Message: "Please choose a valid month.",
			Err:     fmt.Errorf("invalid month %d/%d", month, year),
		}
	}
	return nil
}
