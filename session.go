package punchclock

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"goflare.io/punchclock/internal/api"
)

// Login 以帳號密碼登入，保存憑證並寫入身份快取
func (c *Client) Login(ctx context.Context, username, password string) (User, error) {
	profile, token, err := c.api.Login(ctx, api.Credentials{Username: username, Password: password})
	if err != nil {
		return User{}, err
	}

	user := profile.User()
	if err := c.identity.StoreCredentials(ctx, user, token); err != nil {
		return User{}, fmt.Errorf("failed to persist session: %w", err)
	}
	c.identity.CacheAuthData(ctx, user, token)

	c.logger.Info("Logged in", zap.String("employee", user.ID))

	if c.prefetch {
		c.warm(ctx, user.ID)
	}
	return user, nil
}

// Logout 清除身份快取、憑證、一般快取與離線佇列
func (c *Client) Logout(ctx context.Context) error {
	c.identity.ClearAuthCache(ctx)
	c.cache.Clear(ctx)
	c.queue.Clear(ctx)
	if err := c.identity.ClearCredentials(ctx); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	c.logger.Info("Logged out")
	return nil
}

// FastAuthState 僅讀取本地狀態判斷是否已登入
func (c *Client) FastAuthState(ctx context.Context) AuthState {
	return c.identity.FastAuthState(ctx)
}

// VerifySession confirms state with the server in the background and returns
// a channel receiving the outcome. Acceptance, network failures included,
// refreshes the identity record; an explicit rejection logs the user out and
// fires the session-expired hook.
func (c *Client) VerifySession(ctx context.Context, state AuthState) <-chan bool {
	result := make(chan bool, 1)
	if !state.Authenticated {
		result <- false
		close(result)
		return result
	}

	c.goDetached(ctx, func(ctx context.Context) {
		defer close(result)

		ok := c.identity.VerifyInBackground(ctx, state.Token)
		if ok {
			c.identity.CacheAuthData(ctx, state.Principal, state.Token)
		} else {
			c.expireSession(ctx)
		}
		result <- ok
	})
	return result
}

// verify backs the identity cache's background check.
func (c *Client) verify(ctx context.Context, token string) error {
	principal := c.identity.FastAuthState(ctx).Principal
	if principal.ID == "" {
		return fmt.Errorf("%w: no stored principal", ErrSessionExpired)
	}
	return c.api.Verify(ctx, token, principal.ID)
}

func (c *Client) expireSession(ctx context.Context) {
	c.logger.Warn("Session rejected by server, logging out")
	if err := c.Logout(ctx); err != nil {
		c.logger.Error("Failed to clear rejected session", zap.Error(err))
	}
	if c.onSessionExpired != nil {
		c.onSessionExpired()
	}
}

// employeeID returns the logged in employee, or ErrSessionExpired.
func (c *Client) employeeID(ctx context.Context) (string, error) {
	state := c.identity.FastAuthState(ctx)
	if !state.Authenticated || state.Principal.ID == "" {
		return "", ErrSessionExpired
	}
	return state.Principal.ID, nil
}
