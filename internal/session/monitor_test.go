// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"encoding/base64"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/jeranaias/tillrun/internal/activity"
	"github.com/jeranaias/tillrun/internal/auth"
	"github.com/jeranaias/tillrun/internal/kv"
)

// harness wires a monitor against in-memory state with a manual clock.
type harness struct {
	state   *auth.State
	tracker *activity.Tracker
	monitor *Monitor
	now     time.Time
	reasons []Reason
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()

	h := &harness{now: time.UnixMilli(1_756_700_000_000)}
	clock := func() time.Time { return h.now }

	h.state = auth.NewState(kv.OpenMemory())
	h.tracker = activity.NewTracker(kv.OpenMemory(), activity.WithClock(clock))

	opts = append([]Option{
		WithClock(clock),
		OnForcedLogout(func(r Reason) { h.reasons = append(h.reasons, r) }),
	}, opts...)
	h.monitor = NewMonitor(h.state, h.tracker, opts...)
	return h
}

func (h *harness) login(accessToken string) {
	h.state.Login(auth.User{ID: "u-1", Username: "cashier1", Role: auth.RoleCashier}, accessToken, "refresh")
}

func expToken(at time.Time) string {
	payload := base64.RawURLEncoding.EncodeToString([]byte(fmt.Sprintf(`{"exp":%d}`, at.Unix())))
	return "h." + payload + ".s"
}

// =============================================================================
// TICK SEMANTICS
// =============================================================================

func TestCheck_FreshSessionStaysAuthenticated(t *testing.T) {
	h := newHarness(t)
	h.login(auth.OfflineToken)
	h.tracker.Seed(h.now)

	require.True(t, h.monitor.Check())
	require.True(t, h.state.Authenticated())
	require.Empty(t, h.reasons)
}

func TestCheck_StopsWhenNoSession(t *testing.T) {
	h := newHarness(t)

	require.False(t, h.monitor.Check())
	require.Empty(t, h.reasons)
}

func TestCheck_IdleTimeoutForcesLogout(t *testing.T) {
	h := newHarness(t)
	h.login(auth.OfflineToken)
	h.tracker.Seed(h.now)

	h.now = h.now.Add(DefaultIdleTimeout + time.Minute)

	require.False(t, h.monitor.Check())
	require.False(t, h.state.Authenticated())
	require.Equal(t, []Reason{ReasonIdle}, h.reasons)

	// Activity stamp cleared so the next login starts a fresh window.
	_, ok := h.tracker.Read()
	require.False(t, ok)
}

func TestCheck_IdleScenario59And61Minutes(t *testing.T) {
	h := newHarness(t)
	h.login(auth.OfflineToken)
	h.tracker.Seed(h.now) // login at t=0, no activity afterwards

	h.now = h.now.Add(59 * time.Minute)
	require.True(t, h.monitor.Check())
	require.True(t, h.state.Authenticated())

	h.now = h.now.Add(2 * time.Minute) // t=61min
	require.False(t, h.monitor.Check())
	require.False(t, h.state.Authenticated())
	_, ok := h.tracker.Read()
	require.False(t, ok)
}

func TestCheck_TokenExpiryBeatsFreshActivity(t *testing.T) {
	h := newHarness(t)
	start := h.now
	h.login(expToken(start.Add(10 * time.Minute)))
	h.tracker.Seed(start)

	// Activity refreshed every 5 minutes, token expires at t=10min.
	h.now = start.Add(5 * time.Minute)
	h.tracker.Seed(h.now)

	h.now = start.Add(11 * time.Minute)
	require.False(t, h.monitor.Check())
	require.False(t, h.state.Authenticated())
	require.Equal(t, []Reason{ReasonTokenExpired}, h.reasons)
}

func TestCheck_ExactDeadlineIsExpired(t *testing.T) {
	h := newHarness(t)
	h.login(expToken(h.now))
	h.tracker.Seed(h.now)

	require.False(t, h.monitor.Check())
	require.Equal(t, []Reason{ReasonTokenExpired}, h.reasons)
}

func TestCheck_MalformedTokenDoesNotForceLogout(t *testing.T) {
	h := newHarness(t)
	h.login("not-a-real-token")
	h.tracker.Seed(h.now)

	require.True(t, h.monitor.Check())
	require.True(t, h.state.Authenticated())
}

func TestCheck_UnknownActivityIsSeededNotExpired(t *testing.T) {
	h := newHarness(t)
	h.login(auth.OfflineToken)
	// No stamp at all: monitor must seed, not log out.

	require.True(t, h.monitor.Check())
	require.True(t, h.state.Authenticated())

	last, ok := h.tracker.Read()
	require.True(t, ok)
	require.Equal(t, h.now.UnixMilli(), last.UnixMilli())
}

// =============================================================================
// LIFECYCLE
// =============================================================================

func TestStart_SeedsActivityStamp(t *testing.T) {
	h := newHarness(t, WithInterval(time.Hour))
	h.login(auth.OfflineToken)

	h.monitor.Start()
	defer h.monitor.Stop()

	last, ok := h.tracker.Read()
	require.True(t, ok)
	require.Equal(t, h.now.UnixMilli(), last.UnixMilli())
}

func TestStart_Twice(t *testing.T) {
	h := newHarness(t, WithInterval(time.Hour))
	h.login(auth.OfflineToken)

	h.monitor.Start()
	h.monitor.Start()
	require.True(t, h.monitor.Running())

	h.monitor.Stop()
	require.False(t, h.monitor.Running())
}

func TestStop_Reentrant(t *testing.T) {
	h := newHarness(t, WithInterval(time.Hour))
	h.login(auth.OfflineToken)
	h.monitor.Start()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.monitor.Stop()
		}()
	}
	wg.Wait()
	require.False(t, h.monitor.Running())
}

func TestRun_StopsTickingAfterForcedLogout(t *testing.T) {
	h := newHarness(t, WithInterval(10*time.Millisecond))
	h.login(auth.OfflineToken)
	h.tracker.Seed(h.now)
	h.now = h.now.Add(DefaultIdleTimeout + time.Minute)

	h.monitor.Start()

	require.Eventually(t, func() bool {
		return !h.monitor.Running()
	}, 2*time.Second, 5*time.Millisecond)
	require.False(t, h.state.Authenticated())
}

func TestRun_StopsTickingAfterExplicitLogout(t *testing.T) {
	h := newHarness(t, WithInterval(10*time.Millisecond))
	h.login(auth.OfflineToken)
	h.monitor.Start()

	// Explicit user logout elsewhere; the monitor notices and unwinds.
	h.state.Logout()

	require.Eventually(t, func() bool {
		return !h.monitor.Running()
	}, 2*time.Second, 5*time.Millisecond)
	// Explicit logout is not a forced logout: no callback.
	require.Empty(t, h.reasons)
}
