// Package api is the HTTP client of the remote attendance service.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"goflare.io/punchclock/internal/config"
	"goflare.io/punchclock/internal/retrier"
)

const maxBodySize = 4 << 20

// TokenSource returns the bearer credential for the next call, or "".
type TokenSource func(ctx context.Context) string

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

// WithTokenSource sets where bearer credentials come from.
func WithTokenSource(ts TokenSource) Option {
	return func(c *Client) {
		c.tokens = ts
	}
}

// Client calls the attendance service. Calls go through a circuit breaker that
// trips on transient failures only; auth and validation errors never open it.
type Client struct {
	baseURL    string
	quoteURL   string
	httpClient *http.Client
	tokens     TokenSource
	breaker    *gobreaker.CircuitBreaker
	timeouts   config.HTTPTimeoutConfig
	now        func() time.Time

	tracer trace.Tracer
	logger *zap.Logger
}

// New creates a Client from cfg.
func New(cfg *config.Config, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(cfg.APIBaseURL, "/"),
		quoteURL:   cfg.QuoteURL,
		httpClient: &http.Client{},
		timeouts:   cfg.HTTPTimeouts,
		now:        cfg.Now,
		tracer:     otel.Tracer("punchclock/api"),
		logger:     cfg.Logger.Named("api"),
	}
	for _, opt := range opts {
		opt(c)
	}

	settings := cfg.ResilienceConfig.CircuitBreaker
	if settings.IsSuccessful == nil {
		settings.IsSuccessful = func(err error) bool {
			return err == nil || !retrier.IsTemporary(err)
		}
	}
	onStateChange := settings.OnStateChange
	settings.OnStateChange = func(name string, from, to gobreaker.State) {
		c.logger.Warn("Circuit breaker state changed",
			zap.String("breaker", name),
			zap.String("from", from.String()),
			zap.String("to", to.String()),
		)
		if onStateChange != nil {
			onStateChange(name, from, to)
		}
	}
	c.breaker = gobreaker.NewCircuitBreaker(settings)

	return c
}

// BreakerState returns the current circuit breaker state.
func (c *Client) BreakerState() gobreaker.State {
	return c.breaker.State()
}

type request struct {
	op      string
	method  string
	path    string
	body    any
	out     any
	token   string
	timeout time.Duration
}

func (c *Client) token(ctx context.Context) string {
	if c.tokens == nil {
		return ""
	}
	return c.tokens(ctx)
}

// do runs r through the circuit breaker.
func (c *Client) do(ctx context.Context, r request) error {
	ctx, span := c.tracer.Start(ctx, "API."+r.op, trace.WithAttributes(
		attribute.String("http.method", r.method),
		attribute.String("http.route", r.path),
	))
	defer span.End()

	_, err := c.breaker.Execute(func() (any, error) {
		return nil, c.roundTrip(ctx, r)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = newError(KindUnreachable, 0, "", err)
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		c.logger.Debug("API call failed",
			zap.String("op", r.op),
			zap.String("path", r.path),
			zap.Error(err),
		)
	}
	return err
}

func (c *Client) roundTrip(ctx context.Context, r request) error {
	timeout := r.timeout
	if timeout <= 0 {
		timeout = c.timeouts.Request
	}
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := encodeBody(r.body)
	if err != nil {
		return newError(KindValidation, 0, "", fmt.Errorf("encode request: %w", err))
	}

	req, err := http.NewRequestWithContext(reqCtx, r.method, c.baseURL+r.path, body)
	if err != nil {
		return newError(KindValidation, 0, "", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if r.token != "" {
		req.Header.Set("Authorization", "Bearer "+r.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return transportError(ctx, reqCtx, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return transportError(ctx, reqCtx, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return statusError(resp.StatusCode, data)
	}

	if r.out != nil && len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, r.out); err != nil {
			return newError(KindServer, resp.StatusCode, "", fmt.Errorf("decode response: %w", err))
		}
	}
	return nil
}

func encodeBody(v any) (io.Reader, error) {
	switch b := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(b) == 0 {
			return nil, nil
		}
		return bytes.NewReader(b), nil
	default:
		data, err := json.Marshal(b)
		if err != nil {
			return nil, err
		}
		return bytes.NewReader(data), nil
	}
}

// transportError classifies a failure that produced no response. A canceled
// caller context is returned as is.
func transportError(parent, reqCtx context.Context, err error) error {
	if parent.Err() != nil {
		return parent.Err()
	}
	if errors.Is(reqCtx.Err(), context.DeadlineExceeded) {
		return newError(KindTimeout, 0, "", err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return newError(KindTimeout, 0, "", err)
	}
	return newError(KindUnreachable, 0, "", err)
}
