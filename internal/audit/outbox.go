// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"log"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// OUTBOX
// =============================================================================

// ActorSource resolves the identity actions are attributed to.
// auth.State implements it.
type ActorSource interface {
	Actor() (id, name string, ok bool)
}

// Outbox appends locally committed audit entries for tracked actions.
type Outbox struct {
	store  *Store
	actors ActorSource
	now    func() time.Time
}

// OutboxOption configures an Outbox.
type OutboxOption func(*Outbox)

// WithClock substitutes the wall clock, for tests.
func WithClock(now func() time.Time) OutboxOption {
	return func(o *Outbox) { o.now = now }
}

// NewOutbox creates an outbox writing to store, attributing entries to
// the actor resolved from actors.
func NewOutbox(store *Store, actors ActorSource, opts ...OutboxOption) *Outbox {
	o := &Outbox{
		store:  store,
		actors: actors,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// AppendOption attaches optional fields to an entry.
type AppendOption func(*Entry)

// WithEntityID records the identity of the affected entity.
func WithEntityID(id string) AppendOption {
	return func(e *Entry) { e.EntityID = id }
}

// WithEntityName records a display name for the affected entity.
func WithEntityName(name string) AppendOption {
	return func(e *Entry) { e.EntityName = name }
}

// WithDetail records free-text detail.
func WithDetail(detail string) AppendOption {
	return func(e *Entry) { e.Detail = detail }
}

// WithActor attributes the entry to an explicit actor instead of the
// outbox's ActorSource. Needed when the action being audited is the one
// that cleared the session, such as a forced logout.
func WithActor(id, name string) AppendOption {
	return func(e *Entry) {
		e.ActorID = id
		e.ActorName = name
	}
}

// Append commits a new pending entry for the current actor.
//
// With no actor signed in the call is a silent no-op: there is nothing
// meaningful to attribute the action to, and the triggering operation
// must never block on audit availability. Commit failures are logged
// and swallowed for the same reason. Two appends with identical fields
// produce two distinct entries; there is no deduplication.
func (o *Outbox) Append(action, entity string, opts ...AppendOption) {
	e := Entry{
		ID:        uuid.NewString(),
		Action:    action,
		Entity:    entity,
		Timestamp: o.now().UnixMilli(),
		Status:    StatusPending,
	}
	for _, opt := range opts {
		opt(&e)
	}

	if e.ActorID == "" {
		actorID, actorName, ok := o.actors.Actor()
		if !ok {
			return
		}
		e.ActorID = actorID
		e.ActorName = actorName
	}

	if err := o.store.Insert(e); err != nil {
		log.Printf("AUDIT_APPEND_FAILED | action=%s entity=%s err=%v", action, entity, err)
	}
}
