// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// fakeActor is a substitutable ActorSource.
type fakeActor struct {
	id, name string
	present  bool
}

func (f *fakeActor) Actor() (string, string, bool) {
	return f.id, f.name, f.present
}

func TestOutbox_AppendCommitsPendingEntry(t *testing.T) {
	store := testStore(t)
	actor := &fakeActor{id: "u-1", name: "M. Reyes", present: true}
	before := time.Now().UnixMilli()
	outbox := NewOutbox(store, actor)

	outbox.Append(ActionUpdate, EntityProduct,
		WithEntityID("p-7"),
		WithEntityName("Filter Papers"),
		WithDetail("price 3.20 -> 3.50"))

	after := time.Now().UnixMilli()

	entries, err := store.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	e := entries[0]
	require.NotEmpty(t, e.ID)
	require.Equal(t, "u-1", e.ActorID)
	require.Equal(t, "M. Reyes", e.ActorName)
	require.Equal(t, ActionUpdate, e.Action)
	require.Equal(t, EntityProduct, e.Entity)
	require.Equal(t, "p-7", e.EntityID)
	require.Equal(t, "Filter Papers", e.EntityName)
	require.Equal(t, "price 3.20 -> 3.50", e.Detail)
	require.Equal(t, StatusPending, e.Status)
	require.Zero(t, e.Retries)
	require.GreaterOrEqual(t, e.Timestamp, before)
	require.LessOrEqual(t, e.Timestamp, after)
}

func TestOutbox_AppendWithoutActorIsSilentNoop(t *testing.T) {
	store := testStore(t)
	outbox := NewOutbox(store, &fakeActor{present: false})

	outbox.Append(ActionDelete, EntityCustomer, WithEntityID("c-3"))

	entries, err := store.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestOutbox_AppendWithExplicitActorBypassesSource(t *testing.T) {
	store := testStore(t)
	outbox := NewOutbox(store, &fakeActor{present: false})

	outbox.Append(ActionLogout, EntitySession,
		WithActor("u-1", "M. Reyes"),
		WithDetail("idle_timeout"))

	entries, err := store.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "u-1", entries[0].ActorID)
	require.Equal(t, "M. Reyes", entries[0].ActorName)
	require.Equal(t, "idle_timeout", entries[0].Detail)
}

func TestOutbox_AppendRoundTripByIdentity(t *testing.T) {
	store := testStore(t)
	outbox := NewOutbox(store, &fakeActor{id: "u-1", name: "M. Reyes", present: true})

	outbox.Append(ActionCreate, EntitySale, WithEntityID("s-100"))

	entries, err := store.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	got, err := store.Get(entries[0].ID)
	require.NoError(t, err)
	require.Equal(t, entries[0], got)
}

func TestOutbox_IdenticalAppendsYieldDistinctEntries(t *testing.T) {
	store := testStore(t)
	outbox := NewOutbox(store, &fakeActor{id: "u-1", name: "M. Reyes", present: true})

	outbox.Append(ActionCreate, EntitySale, WithEntityID("s-100"))
	outbox.Append(ActionCreate, EntitySale, WithEntityID("s-100"))

	entries, err := store.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	require.NotEqual(t, entries[0].ID, entries[1].ID)

	// Both independently retrievable.
	for _, e := range entries {
		got, err := store.Get(e.ID)
		require.NoError(t, err)
		require.Equal(t, "s-100", got.EntityID)
	}
}

func TestOutbox_AppendOrderIsTimestampOrder(t *testing.T) {
	store := testStore(t)
	now := time.UnixMilli(1_756_700_000_000)
	outbox := NewOutbox(store, &fakeActor{id: "u-1", name: "M. Reyes", present: true},
		WithClock(func() time.Time {
			now = now.Add(time.Millisecond)
			return now
		}))

	outbox.Append(ActionCreate, EntitySale, WithDetail("first"))
	outbox.Append(ActionUpdate, EntitySale, WithDetail("second"))
	outbox.Append(ActionDelete, EntitySale, WithDetail("third"))

	entries, err := store.ListByStatus(StatusPending)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "first", entries[0].Detail)
	require.Equal(t, "second", entries[1].Detail)
	require.Equal(t, "third", entries[2].Detail)
}

func TestEntry_String(t *testing.T) {
	e := Entry{
		ActorName: "M. Reyes",
		Action:    ActionUpdate,
		Entity:    EntityProduct,
		EntityID:  "p-7",
		Timestamp: 1_756_700_000_000,
		Status:    StatusPending,
	}
	line := e.String()
	require.Contains(t, line, "M. Reyes")
	require.Contains(t, line, "update")
	require.Contains(t, line, "product/p-7")
	require.Contains(t, line, "pending")
}
