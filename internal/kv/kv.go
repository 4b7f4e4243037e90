// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/jeranaias/tillrun/internal/util"
)

// =============================================================================
// STORE
// =============================================================================

// Store is one persisted key/value namespace.
//
// File-backed stores re-read the backing file on every Get so that writes
// from other runtime instances are always visible; the file holds at most
// a handful of keys, so there is nothing worth caching. A memory store
// (OpenMemory) backs nothing and exists for hosts without a usable state
// directory.
type Store struct {
	path string // empty for memory stores
	mu   sync.Mutex
	mem  map[string]string // nil for file-backed stores
}

// Open returns the file-backed store for a namespace inside dir.
// The backing file is created lazily on first Set.
func Open(dir, namespace string) *Store {
	return &Store{path: filepath.Join(dir, namespace+".json")}
}

// OpenMemory returns a process-local store with no persistence. Used as
// the fallback when no state directory is available; data does not
// survive a restart, which callers must already tolerate.
func OpenMemory() *Store {
	return &Store{mem: make(map[string]string)}
}

// Persistent reports whether values survive a process restart.
func (s *Store) Persistent() bool {
	return s.mem == nil
}

// Get returns the value for key. Any storage failure (missing file,
// unreadable file, corrupt JSON) reads as "absent", never as an error.
func (s *Store) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem != nil {
		v, ok := s.mem[key]
		return v, ok
	}

	m := s.load()
	v, ok := m[key]
	return v, ok
}

// Set writes key=value. The write is atomic with respect to crashes and
// last-write-wins with respect to other instances.
func (s *Store) Set(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem != nil {
		s.mem[key] = value
		return nil
	}

	m := s.load()
	m[key] = value
	return s.flush(m)
}

// Delete removes key. Deleting an absent key is a no-op.
func (s *Store) Delete(key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.mem != nil {
		delete(s.mem, key)
		return nil
	}

	m := s.load()
	if _, ok := m[key]; !ok {
		return nil
	}
	delete(m, key)
	return s.flush(m)
}

// load reads the namespace file into a map. Every failure mode collapses
// to an empty map: an unreadable namespace is an empty namespace.
func (s *Store) load() map[string]string {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return make(map[string]string)
	}

	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil || m == nil {
		return make(map[string]string)
	}
	return m
}

// flush writes the full namespace map back to disk.
func (s *Store) flush(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encode namespace: %w", err)
	}
	// Namespace files can hold sealed tokens; keep them private.
	return util.WriteFileAtomic(s.path, data, 0600)
}
