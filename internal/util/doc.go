// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package util provides shared helpers for the tillrun client runtime.
//
// # Key Functions
//
// File Operations:
//   - WriteFileAtomic: crash-safe file writing with fsync
//
// # Usage
//
//	// Write state files atomically so a crash never leaves a torn file
//	err := util.WriteFileAtomic(path, data, 0600)
package util
