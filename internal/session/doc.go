// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package session enforces idle and token-expiry logout.
//
// A Monitor periodically compares the current time against the shared
// last-activity stamp and the access token's deadline, and forces a
// logout when either threshold is crossed. Forced logout is not an
// error: it is a defined terminal transition reported through a
// callback.
//
// Each tick completes before the next one is scheduled, so two checks
// never run concurrently. The monitor stops itself once no session is
// active, and Stop cancels the pending tick so a stale timer can never
// fire against a cleared session.
//
// # Key Types
//
//   - Monitor: the periodic checker, bound to the session lifetime
//   - Reason: why a forced logout happened
//
// # Usage
//
//	mon := session.NewMonitor(state, tracker,
//		session.OnForcedLogout(func(r session.Reason) { ... }))
//	mon.Start()
//	defer mon.Stop()
package session
