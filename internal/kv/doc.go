// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package kv provides flat key/value persistence for the tillrun runtime.
//
// Each namespace is a single JSON file inside the shared state directory.
// Namespaces are isolated from one another; there is no atomic update
// across two namespaces. Concurrent runtime instances share the same
// files with last-write-wins semantics.
//
// Reads degrade to "absent" on any storage failure and writes are plain
// errors the caller may swallow: session bookkeeping must never block the
// user action that triggered it.
//
// # Key Types
//
//   - Store: one persisted namespace
//   - Watcher: fsnotify-based change notification for the state directory
//
// # Usage
//
// Open a namespace and read/write keys:
//
//	store := kv.Open(stateDir, "activity")
//	store.Set("last_activity", "1756700000000")
//	v, ok := store.Get("last_activity")
//
// Observe writes made by other runtime instances:
//
//	w, err := kv.NewWatcher(stateDir, 250*time.Millisecond)
//	w.Start()
//	for ev := range w.Events() { ... }
package kv
