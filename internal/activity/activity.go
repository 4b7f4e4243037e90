// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package activity

import (
	"log"
	"strconv"
	"time"

	"github.com/jeranaias/tillrun/internal/kv"
)

// DefaultThrottle is the minimum gap between persisted activity stamps.
const DefaultThrottle = 10 * time.Second

// Key is the namespace key holding the stamp, milliseconds since epoch.
const Key = "last_activity"

// =============================================================================
// TRACKER
// =============================================================================

// Tracker stamps and reads the shared last-activity timestamp.
type Tracker struct {
	store    *kv.Store
	throttle time.Duration
	now      func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithThrottle overrides the minimum interval between persisted stamps.
func WithThrottle(d time.Duration) Option {
	return func(t *Tracker) { t.throttle = d }
}

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// NewTracker creates a tracker over the given activity namespace.
func NewTracker(store *kv.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		throttle: DefaultThrottle,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Record stamps the current time, unless the previous stamp is younger
// than the throttle interval. Storage failures are logged and swallowed;
// recording activity must never block the action that caused it.
func (t *Tracker) Record() {
	now := t.now()
	if last, ok := t.Read(); ok && now.Sub(last) < t.throttle {
		return
	}
	t.Seed(now)
}

// Seed stamps the given time unconditionally. The session monitor uses
// it to start a fresh idle window at login, before any interaction.
func (t *Tracker) Seed(at time.Time) {
	v := strconv.FormatInt(at.UnixMilli(), 10)
	if err := t.store.Set(Key, v); err != nil {
		log.Printf("ACTIVITY_WRITE_FAILED | %v", err)
	}
}

// Read returns the last stamp. ok is false when no stamp was ever
// recorded or storage is unusable; callers must treat that as "unknown"
// rather than as an expired idle window.
func (t *Tracker) Read() (time.Time, bool) {
	v, ok := t.store.Get(Key)
	if !ok {
		return time.Time{}, false
	}
	ms, err := strconv.ParseInt(v, 10, 64)
	if err != nil || ms <= 0 {
		return time.Time{}, false
	}
	return time.UnixMilli(ms), true
}

// Clear removes the stamp so the next login starts a fresh idle window.
func (t *Tracker) Clear() {
	if err := t.store.Delete(Key); err != nil {
		log.Printf("ACTIVITY_CLEAR_FAILED | %v", err)
	}
}
