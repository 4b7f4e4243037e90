// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package runtime assembles the client runtime: auth state, activity
// tracking, the session monitor, preferences, and the audit outbox with
// its background syncer, all wired over one shared state directory.
//
// # Key Types
//
//   - Runtime: the assembled components plus lifecycle control.
//
// # Usage
//
//	cfg, err := config.Load()
//	// handle err
//	rt, err := runtime.Open(cfg)
//	// handle err
//	rt.Start()
//	defer rt.Close()
//
// Open builds everything but starts nothing; Start launches the session
// monitor, the audit syncer, and the state directory watcher. When the
// state directory cannot be created the runtime degrades to in-memory
// stores: every operation still works, nothing survives the process.
package runtime
