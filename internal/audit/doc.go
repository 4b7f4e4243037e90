// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// Package audit implements the offline-durable audit outbox.
//
// Every tracked user action becomes an Entry, committed locally with
// status "pending" before anything touches the network. A background
// Syncer later delivers pending entries to the remote sink and flips
// their status to "synced" (or "failed", with a retry count). Once
// Append returns, the entry survives a restart even if the network was
// down at append time.
//
// Append is fire-and-forget by design: a failure to record an audit
// entry is logged and swallowed, never propagated, so audit bookkeeping
// can never abort or roll back the business operation it accompanies.
// Synced entries are retained locally as immutable records; retention
// policy belongs to the remote sink.
//
// # Key Types
//
//   - Entry: one audit record with delivery status
//   - Store: sqlite-backed local commit log
//   - Outbox: Append + actor resolution
//   - Syncer: rate-limited background delivery to a Sink
//
// # Usage
//
//	outbox := audit.NewOutbox(store, state)
//	outbox.Append(audit.ActionCreate, audit.EntityProduct,
//		audit.WithEntityID(p.ID), audit.WithEntityName(p.Name))
//
//	syncer := audit.NewSyncer(store, sink)
//	go syncer.Run(ctx)
package audit
