// Package connectivity tracks network reachability reported by the host and
// fires listeners when the device comes back online.
package connectivity

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// State is one connectivity report. A nil IsInternetReachable means the
// host has not probed reachability yet.
type State struct {
	IsConnected         bool
	IsInternetReachable *bool
	Type                string
}

// Online reports whether s allows network calls.
func (s State) Online() bool {
	if !s.IsConnected {
		return false
	}
	return s.IsInternetReachable == nil || *s.IsInternetReachable
}

// Listener is called on every transition to online.
type Listener func(ctx context.Context)

// Monitor is safe for concurrent use.
type Monitor struct {
	mu        sync.RWMutex
	known     bool
	current   State
	listeners []Listener

	logger *zap.Logger
}

// New creates a Monitor in the unknown state.
func New(logger *zap.Logger) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Monitor{logger: logger.Named("connectivity")}
}

// OnOnline registers l.
func (m *Monitor) OnOnline(l Listener) {
	m.mu.Lock()
	m.listeners = append(m.listeners, l)
	m.mu.Unlock()
}

// Online reports the last known state. Unknown counts as online so the first
// request is attempted instead of queued.
func (m *Monitor) Online() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return !m.known || m.current.Online()
}

// Current returns the last reported state and whether any was reported.
func (m *Monitor) Current() (State, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, m.known
}

// Update records s. Listeners run synchronously when s moves the monitor
// from offline or unknown to online. It reports whether they ran.
func (m *Monitor) Update(ctx context.Context, s State) bool {
	m.mu.Lock()
	wasOnline := m.known && m.current.Online()
	m.known = true
	m.current = s
	listeners := append([]Listener(nil), m.listeners...)
	m.mu.Unlock()

	online := s.Online()
	if online == wasOnline {
		return false
	}

	m.logger.Info("Connectivity changed",
		zap.Bool("online", online),
		zap.String("type", s.Type),
	)
	if !online {
		return false
	}

	for _, l := range listeners {
		l(ctx)
	}
	return true
}

// Run applies updates until ctx is done or updates is closed.
func (m *Monitor) Run(ctx context.Context, updates <-chan State) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case s, ok := <-updates:
			if !ok {
				return nil
			}
			m.Update(ctx, s)
		}
	}
}
