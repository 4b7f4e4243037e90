// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package activity tracks the wall-clock time of the last user action.
//
// One logical timestamp exists per state directory; every runtime
// instance sharing that directory reads and writes the same key with
// last-write-wins semantics. Writes are throttled so a user dragging a
// scanner or pointer around does not turn into a write storm; a race
// between instances can therefore delay idle-window reset detection by
// at most the throttle interval, never corrupt the value.
//
// # Key Types
//
//   - Tracker: Record/Read/Clear over the shared timestamp
//
// # Usage
//
//	tracker := activity.NewTracker(store)
//	tracker.Record()               // on any user interaction
//	last, ok := tracker.Read()     // ok=false means "unknown", not "idle"
//	tracker.Clear()                // on logout
package activity
