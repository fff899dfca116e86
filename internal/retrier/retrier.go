package retrier

import (
	"context"
	"errors"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
	"time"
)

const (
	minMaxAttempts = 1
	minBaseDelay   = time.Millisecond
	minFactor      = 1.0
	maxJitter      = 1.0
)

// ExponentialBackoff represents a backoff strategy where intervals exponentially increase.
// LinearBackoff represents a backoff strategy where intervals increase linearly.
// FibonacciBackoff represents a backoff strategy where intervals increase based on the Fibonacci sequence.
const (
	ExponentialBackoff BackoffStrategy = iota
	LinearBackoff
	FibonacciBackoff
)

var (
	// ErrInvalidMaxAttempts is returned when the max attempts parameter is invalid.
	ErrInvalidMaxAttempts = errors.New("max attempts must be at least 1")
	// ErrInvalidBaseDelay is returned when the base delay parameter is invalid.
	ErrInvalidBaseDelay = errors.New("base delay must be at least 1ms")
	// ErrInvalidFactor is returned when the factor parameter is invalid.
	ErrInvalidFactor = errors.New("factor must be at least 1.0")
	// ErrInvalidJitter is returned when the jitter parameter is invalid.
	ErrInvalidJitter = errors.New("jitter must be between 0 and 1")
	// ErrMaxAttempts wraps the last error once every attempt failed.
	ErrMaxAttempts = errors.New("max retry attempts reached")
)

// BackoffStrategy defines the strategy used for calculating backoff intervals in retry mechanisms.
type BackoffStrategy int

// ErrUnknownStrategy is returned by ParseBackoffStrategy for an unsupported name.
var ErrUnknownStrategy = errors.New("unknown backoff strategy")

func (s BackoffStrategy) String() string {
	switch s {
	case ExponentialBackoff:
		return "exponential"
	case LinearBackoff:
		return "linear"
	case FibonacciBackoff:
		return "fibonacci"
	default:
		return fmt.Sprintf("BackoffStrategy(%d)", int(s))
	}
}

// ParseBackoffStrategy maps a configuration name to a strategy. An empty name
// selects ExponentialBackoff.
func ParseBackoffStrategy(name string) (BackoffStrategy, error) {
	switch name {
	case "", "exponential":
		return ExponentialBackoff, nil
	case "linear":
		return LinearBackoff, nil
	case "fibonacci":
		return FibonacciBackoff, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownStrategy, name)
	}
}

// Retrier provides functionality to execute a function with retry logic based on different backoff strategies.
type Retrier struct {
	maxAttempts int
	baseDelay   time.Duration
	maxDelay    time.Duration
	factor      float64
	jitter      float64
	strategy    BackoffStrategy

	fibMu          sync.Mutex
	fibonacciCache []time.Duration

	TempErrorFunc func(error) bool // Custom temporary error function
}

// NewRetrier creates a new Retrier instance with specified parameters for handling retry logic.
// Parameters:
// - maxAttempts: maximum number of attempts, the first call included.
// - baseDelay: basic delay duration between retries.
// - maxDelay: maximum allowed delay duration between retries.
// - factor: multiplier for exponential backoff calculation.
// - jitter: randomness factor to avoid retry storms.
// - strategy: backoff strategy to use (e.g., ExponentialBackoff, LinearBackoff, FibonacciBackoff).
// - tempErrorFunc: optional function to determine if an error is temporary.
func NewRetrier(maxAttempts int, baseDelay, maxDelay time.Duration, factor, jitter float64, strategy BackoffStrategy, tempErrorFunc func(error) bool) (*Retrier, error) {
	if maxAttempts < minMaxAttempts {
		return nil, ErrInvalidMaxAttempts
	}
	if baseDelay < minBaseDelay {
		return nil, ErrInvalidBaseDelay
	}
	if factor < minFactor {
		return nil, ErrInvalidFactor
	}
	if jitter < 0 || jitter > maxJitter {
		return nil, ErrInvalidJitter
	}
	if maxDelay < baseDelay {
		maxDelay = baseDelay
	}

	return &Retrier{
		maxAttempts:    maxAttempts,
		baseDelay:      baseDelay,
		maxDelay:       maxDelay,
		factor:         factor,
		jitter:         jitter,
		strategy:       strategy,
		fibonacciCache: []time.Duration{0, baseDelay},
		TempErrorFunc:  tempErrorFunc,
	}, nil
}

// MaxAttempts returns the configured attempt ceiling.
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Run executes the provided function with retries according to the Retrier's configuration.
// Non-temporary errors are returned unwrapped after the first attempt.
func (r *Retrier) Run(ctx context.Context, fn func() error) error {
	var err error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}

		if !r.isTemporary(err) {
			return err
		}

		if attempt == r.maxAttempts-1 {
			break
		}

		delay := r.calculateDelay(attempt)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	return fmt.Errorf("%w: %w", ErrMaxAttempts, err)
}

func (r *Retrier) isTemporary(err error) bool {
	if r.TempErrorFunc != nil {
		return r.TempErrorFunc(err)
	}
	return IsTemporary(err)
}

// calculateDelay computes the delay duration based on the retry attempt and backoff strategy.
func (r *Retrier) calculateDelay(attempt int) time.Duration {
	var delay float64

	switch r.strategy {
	case LinearBackoff:
		delay = float64(r.baseDelay) * float64(attempt+1)
	case FibonacciBackoff:
		delay = float64(r.getFibonacciDelay(attempt + 1))
	default:
		delay = float64(r.baseDelay) * math.Pow(r.factor, float64(attempt))
	}

	if delay > float64(r.maxDelay) {
		delay = float64(r.maxDelay)
	}

	delay += rand.Float64() * r.jitter * delay
	if delay > float64(time.Hour) {
		delay = float64(time.Hour)
	}
	return time.Duration(delay)
}

// getFibonacciDelay returns the delay for the given attempt using the Fibonacci sequence.
func (r *Retrier) getFibonacciDelay(attempt int) time.Duration {
	r.fibMu.Lock()
	defer r.fibMu.Unlock()

	for len(r.fibonacciCache) <= attempt {
		n := len(r.fibonacciCache)
		next := r.fibonacciCache[n-1] + r.fibonacciCache[n-2]
		if next > r.maxDelay {
			next = r.maxDelay
		}
		r.fibonacciCache = append(r.fibonacciCache, next)
	}
	return r.fibonacciCache[attempt]
}
