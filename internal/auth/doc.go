// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package auth owns the process-wide authentication state.
//
// The state holds the signed-in user (never their credential secret),
// the access and refresh tokens, the role, and the forced-password-change
// flag. It persists across restarts, sealed with AES-GCM before it
// touches disk, and is re-validated for freshness by the session
// monitor's next tick rather than trusted on load.
//
// No credential validation happens here: the remote authentication
// endpoint is the sole authority, and Login stores whatever it returned.
//
// # Key Types
//
//   - State: login/logout/role state with persistence
//   - User: the signed-in user's profile
//   - Sealer: AES-GCM sealing for tokens at rest
//
// # Usage
//
//	state := auth.NewState(store, auth.WithSealer(sealer))
//	state.Login(user, access, refresh)
//	if state.HasRole(auth.RoleAdmin) { ... }
//	state.Logout()
//
// Token deadlines are derived without verifying signatures:
//
//	deadline, ok := auth.TokenDeadline(access)
package auth
