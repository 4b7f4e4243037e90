// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/tillrun/internal/activity"
	"github.com/jeranaias/tillrun/internal/auth"
)

const (
	// DefaultInterval is the gap between monitor ticks.
	DefaultInterval = 30 * time.Second

	// DefaultIdleTimeout is the maximum idle duration before forced logout.
	DefaultIdleTimeout = 60 * time.Minute
)

// Reason explains a forced logout.
type Reason string

const (
	// ReasonIdle means the idle timeout elapsed with no recorded activity.
	ReasonIdle Reason = "idle_timeout"

	// ReasonTokenExpired means the access token's deadline passed.
	ReasonTokenExpired Reason = "token_expired"
)

// =============================================================================
// MONITOR
// =============================================================================

// Monitor periodically checks the session for idle and token expiry.
type Monitor struct {
	state   *auth.State
	tracker *activity.Tracker

	interval    time.Duration
	idleTimeout time.Duration
	now         func() time.Time

	onForcedLogout func(Reason)

	mu     sync.Mutex
	cancel context.CancelFunc
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithInterval overrides the tick interval.
func WithInterval(d time.Duration) Option {
	return func(m *Monitor) { m.interval = d }
}

// WithIdleTimeout overrides the idle timeout.
func WithIdleTimeout(d time.Duration) Option {
	return func(m *Monitor) { m.idleTimeout = d }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// OnForcedLogout sets the callback invoked after a forced logout, once
// the auth state is already cleared. The UI uses it to return to the
// sign-in screen.
func OnForcedLogout(fn func(Reason)) Option {
	return func(m *Monitor) { m.onForcedLogout = fn }
}

// NewMonitor creates a monitor over the given auth state and tracker.
func NewMonitor(state *auth.State, tracker *activity.Tracker, opts ...Option) *Monitor {
	m := &Monitor{
		state:       state,
		tracker:     tracker,
		interval:    DefaultInterval,
		idleTimeout: DefaultIdleTimeout,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Start launches the tick loop. Starting a running monitor is a no-op.
// If no activity stamp exists yet (right after login, before any
// interaction) the stamp is seeded now, so an unknown last-activity is
// never mistaken for infinite idle time.
func (m *Monitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		return
	}

	if _, ok := m.tracker.Read(); !ok {
		m.tracker.Seed(m.now())
	}

	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	go m.run(ctx)
}

// Stop cancels the pending tick. Safe to call repeatedly and
// concurrently, including from the forced-logout path itself.
func (m *Monitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// Running reports whether the tick loop is scheduled.
func (m *Monitor) Running() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancel != nil
}

// run executes ticks until cancelled or the session ends. A plain timer
// is rearmed after each check so a tick always completes before the
// next one is scheduled.
func (m *Monitor) run(ctx context.Context) {
	timer := time.NewTimer(m.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if !m.Check() {
				m.Stop()
				return
			}
			timer.Reset(m.interval)
		}
	}
}

// Check runs one monitor tick. It returns false when no further ticks
// should be scheduled: the session ended, expired, or idled out.
func (m *Monitor) Check() bool {
	if !m.state.Authenticated() {
		return false
	}

	now := m.now()

	if deadline, ok := m.state.Deadline(); ok && !now.Before(deadline) {
		m.forceLogout(ReasonTokenExpired)
		return false
	}

	last, ok := m.tracker.Read()
	if !ok {
		// Activity unknown: storage may be unavailable or the stamp was
		// cleared underneath us. Re-seed instead of assuming expiry.
		m.tracker.Seed(now)
		return true
	}

	if now.Sub(last) > m.idleTimeout {
		m.forceLogout(ReasonIdle)
		return false
	}

	return true
}

// forceLogout clears the session and the activity stamp, then notifies.
func (m *Monitor) forceLogout(reason Reason) {
	m.state.Logout()
	m.tracker.Clear()
	log.Printf("SESSION_FORCED_LOGOUT | reason=%s", reason)

	if m.onForcedLogout != nil {
		m.onForcedLogout(reason)
	}
}
