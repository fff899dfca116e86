// Package identity answers "who is logged in" from local state only and
// verifies the answer against the server in the background.
package identity

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"goflare.io/punchclock/internal/api"
	"goflare.io/punchclock/internal/cache/ttl"
	"goflare.io/punchclock/internal/config"
	"goflare.io/punchclock/internal/kv"
	"goflare.io/punchclock/internal/models"
)

const recordKey = "record"

// VerifyFunc performs one authenticated request with token.
type VerifyFunc func(ctx context.Context, token string) error

// AuthState is the locally derived authentication state.
type AuthState struct {
	Authenticated bool
	Principal     models.User
	Token         string
	// ShouldVerify asks the caller to confirm the session in the background.
	ShouldVerify bool
}

// Cache keeps the fast-path identity record and the raw login credentials.
type Cache struct {
	records *ttl.Cache
	store   kv.Store

	tokenKey   string
	profileKey string
	maxAge     time.Duration
	checkJWT   bool
	verify     VerifyFunc
	now        func() time.Time

	metrics *models.Metrics
	logger  *zap.Logger
}

// New creates an identity Cache. Records live in their own namespace of store
// so clearing the general cache never logs the user out.
func New(ctx context.Context, store kv.Store, cfg *config.Config, metrics *models.Metrics, verify VerifyFunc) (*Cache, error) {
	if metrics == nil {
		metrics = models.NewMetrics()
	}
	ic := cfg.IdentityConfig

	records, err := ttl.New(ctx, store, cfg, metrics,
		ttl.WithNamespace(ic.Namespace),
		ttl.WithDefaultTTL(ic.MaxAge),
		ttl.WithMaxEntries(1),
	)
	if err != nil {
		return nil, err
	}

	return &Cache{
		records:    records,
		store:      store,
		tokenKey:   ic.TokenKey,
		profileKey: ic.ProfileKey,
		maxAge:     ic.MaxAge,
		checkJWT:   ic.CheckJWTExpiry,
		verify:     verify,
		now:        cfg.Now,
		metrics:    metrics,
		logger:     cfg.Logger.Named("identity"),
	}, nil
}

// FastAuthState derives the auth state without touching the network. A fresh
// trusted record needs no verification; raw credentials alone do. Failures
// read as unauthenticated.
func (c *Cache) FastAuthState(ctx context.Context) AuthState {
	var rec models.IdentityRecord
	if c.records.Get(ctx, recordKey, &rec) && c.fresh(rec) {
		return AuthState{
			Authenticated: true,
			Principal:     rec.Principal,
			Token:         rec.Token,
		}
	}

	token, err := c.store.Get(ctx, c.tokenKey)
	if err != nil || token == "" {
		c.readFailed("token", err)
		return AuthState{}
	}
	raw, err := c.store.Get(ctx, c.profileKey)
	if err != nil {
		c.readFailed("profile", err)
		return AuthState{}
	}

	var user models.User
	if err := json.Unmarshal([]byte(raw), &user); err != nil || user.ID == "" {
		c.logger.Warn("Stored profile is unreadable", zap.Error(err))
		return AuthState{}
	}

	return AuthState{
		Authenticated: true,
		Principal:     user,
		Token:         token,
		ShouldVerify:  true,
	}
}

func (c *Cache) fresh(rec models.IdentityRecord) bool {
	if !rec.Trusted || rec.Token == "" {
		return false
	}
	age := c.now().Sub(time.UnixMilli(rec.CachedAt))
	if age < 0 || age >= c.maxAge {
		return false
	}
	if c.checkJWT && tokenExpired(rec.Token, c.now()) {
		return false
	}
	return true
}

// tokenExpired reports whether token is a JWT whose exp has passed. Tokens
// that are not JWTs never expire locally.
func tokenExpired(token string, now time.Time) bool {
	claims := jwt.RegisteredClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return false
	}
	if claims.ExpiresAt == nil {
		return false
	}
	return !now.Before(claims.ExpiresAt.Time)
}

func (c *Cache) readFailed(what string, err error) {
	if err == nil || errors.Is(err, kv.ErrNotFound) {
		return
	}
	c.metrics.StoreErrors.Inc()
	c.logger.Warn("Failed to read stored credentials", zap.String("what", what), zap.Error(err))
}

// VerifyInBackground confirms token with the server. It reports false only
// when the server explicitly rejects the token; network failures keep the
// session.
func (c *Cache) VerifyInBackground(ctx context.Context, token string) bool {
	c.metrics.Verifications.Inc()
	if c.verify == nil {
		return true
	}

	err := c.verify(ctx, token)
	switch {
	case err == nil:
		return true
	case errors.Is(err, api.ErrAuthRejected):
		c.metrics.Rejections.Inc()
		c.logger.Info("Session rejected by server")
		return false
	default:
		c.logger.Warn("Session verification inconclusive, keeping session", zap.Error(err))
		return true
	}
}

// CacheAuthData records principal and token as freshly verified.
func (c *Cache) CacheAuthData(ctx context.Context, principal models.User, token string) {
	rec := models.IdentityRecord{
		Principal: principal,
		Token:     token,
		CachedAt:  c.now().UnixMilli(),
		Trusted:   true,
	}
	if err := c.records.Set(ctx, recordKey, rec); err != nil {
		c.logger.Warn("Failed to cache identity", zap.Error(err))
	}
}

// ClearAuthCache forgets the fast-path record.
func (c *Cache) ClearAuthCache(ctx context.Context) {
	c.records.Clear(ctx)
}

// StoreCredentials persists the raw token and profile written at login.
func (c *Cache) StoreCredentials(ctx context.Context, principal models.User, token string) error {
	profile, err := json.Marshal(principal)
	if err != nil {
		return err
	}
	if err := c.store.Set(ctx, c.tokenKey, token); err != nil {
		return err
	}
	return c.store.Set(ctx, c.profileKey, string(profile))
}

// ClearCredentials removes the raw token and profile.
func (c *Cache) ClearCredentials(ctx context.Context) error {
	return c.store.RemoveMany(ctx, []string{c.tokenKey, c.profileKey})
}

// Token returns the stored bearer token, or "" when logged out.
func (c *Cache) Token(ctx context.Context) string {
	token, err := c.store.Get(ctx, c.tokenKey)
	if err != nil {
		c.readFailed("token", err)
		return ""
	}
	return token
}

// Close releases the record cache.
func (c *Cache) Close() {
	c.records.Close()
}
