// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// =============================================================================
// STORE TESTS
// =============================================================================

func TestStore_SetGet(t *testing.T) {
	store := Open(t.TempDir(), "test")

	require.NoError(t, store.Set("theme", "dark"))

	v, ok := store.Get("theme")
	require.True(t, ok)
	require.Equal(t, "dark", v)
}

func TestStore_GetAbsent(t *testing.T) {
	store := Open(t.TempDir(), "test")

	_, ok := store.Get("missing")
	require.False(t, ok)
}

func TestStore_GetAbsentOnCorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "test.json"), []byte("{not json"), 0600))

	store := Open(dir, "test")
	_, ok := store.Get("anything")
	require.False(t, ok)
}

func TestStore_SurvivesReopen(t *testing.T) {
	dir := t.TempDir()

	store := Open(dir, "test")
	require.NoError(t, store.Set("k", "v"))

	reopened := Open(dir, "test")
	v, ok := reopened.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)
}

func TestStore_Delete(t *testing.T) {
	store := Open(t.TempDir(), "test")

	require.NoError(t, store.Set("k", "v"))
	require.NoError(t, store.Delete("k"))

	_, ok := store.Get("k")
	require.False(t, ok)
}

func TestStore_DeleteAbsentIsNoop(t *testing.T) {
	store := Open(t.TempDir(), "test")
	require.NoError(t, store.Delete("never-set"))
}

func TestStore_NamespacesAreIsolated(t *testing.T) {
	dir := t.TempDir()
	a := Open(dir, "alpha")
	b := Open(dir, "beta")

	require.NoError(t, a.Set("k", "from-alpha"))

	_, ok := b.Get("k")
	require.False(t, ok)
}

func TestStore_CrossInstanceVisibility(t *testing.T) {
	dir := t.TempDir()
	writer := Open(dir, "shared")
	reader := Open(dir, "shared")

	require.NoError(t, writer.Set("stamp", "123"))

	v, ok := reader.Get("stamp")
	require.True(t, ok)
	require.Equal(t, "123", v)
}

func TestStore_Memory(t *testing.T) {
	store := OpenMemory()
	require.False(t, store.Persistent())

	require.NoError(t, store.Set("k", "v"))
	v, ok := store.Get("k")
	require.True(t, ok)
	require.Equal(t, "v", v)

	require.NoError(t, store.Delete("k"))
	_, ok = store.Get("k")
	require.False(t, ok)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	store := Open(t.TempDir(), "test")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = store.Set("k", "v")
			_, _ = store.Get("k")
		}()
	}
	wg.Wait()
}

// =============================================================================
// WATCHER TESTS
// =============================================================================

func TestWatcher_SeesForeignWrites(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	// Write from a second store instance, as another process would.
	other := Open(dir, "activity")
	require.NoError(t, other.Set("last_activity", "1"))

	select {
	case ev := <-w.Events():
		require.Equal(t, "activity", ev.Namespace)
	case <-time.After(2 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestWatcher_IgnoresForeignFiles(t *testing.T) {
	dir := t.TempDir()

	w, err := NewWatcher(dir, 50*time.Millisecond)
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("x"), 0600))

	select {
	case ev := <-w.Events():
		t.Fatalf("unexpected event for %q", ev.Namespace)
	case <-time.After(300 * time.Millisecond):
	}
}

func TestNamespaceFor(t *testing.T) {
	tests := []struct {
		path string
		ns   string
		ok   bool
	}{
		{"/state/activity.json", "activity", true},
		{"/state/session.json", "session", true},
		{"/state/.tillrun-tmp-123", "", false},
		{"/state/readme.md", "", false},
	}

	for _, tt := range tests {
		ns, ok := namespaceFor(tt.path)
		require.Equal(t, tt.ok, ok, tt.path)
		require.Equal(t, tt.ns, ns, tt.path)
	}
}
