// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package kv

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// =============================================================================
// STATE DIRECTORY WATCHER
// =============================================================================

// Event reports that a namespace was modified, possibly by another
// runtime instance sharing the state directory.
type Event struct {
	Namespace string
}

// Watcher emits debounced change events for the namespace files in a
// state directory. Several writes landing within the debounce window
// collapse into one event per namespace.
type Watcher struct {
	dir      string
	fsw      *fsnotify.Watcher
	debounce time.Duration
	events   chan Event

	mu      sync.Mutex
	pending map[string]time.Time // namespace -> last change seen

	ctx    context.Context
	cancel context.CancelFunc
}

// NewWatcher creates a watcher for dir. Call Start to begin watching.
func NewWatcher(dir string, debounce time.Duration) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Watcher{
		dir:      dir,
		fsw:      fsw,
		debounce: debounce,
		events:   make(chan Event, 16),
		pending:  make(map[string]time.Time),
		ctx:      ctx,
		cancel:   cancel,
	}, nil
}

// Events returns the channel change events are delivered on. The channel
// is closed when the watcher shuts down.
func (w *Watcher) Events() <-chan Event {
	return w.events
}

// Start begins watching the state directory.
func (w *Watcher) Start() error {
	if err := w.fsw.Add(w.dir); err != nil {
		return err
	}
	go w.collect()
	go w.drain()
	return nil
}

// Close stops watching and releases resources.
func (w *Watcher) Close() error {
	w.cancel()
	return w.fsw.Close()
}

// collect records raw fsnotify events into the pending set.
func (w *Watcher) collect() {
	for {
		select {
		case <-w.ctx.Done():
			return
		case ev, ok := <-w.fsw.Events:
			if !ok {
				return
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			ns, ok := namespaceFor(ev.Name)
			if !ok {
				continue
			}
			w.mu.Lock()
			w.pending[ns] = time.Now()
			w.mu.Unlock()
		case _, ok := <-w.fsw.Errors:
			if !ok {
				return
			}
			// Watch errors are non-fatal: the stores still work, the
			// runtime just falls back to noticing changes on its own
			// schedule.
		}
	}
}

// drain flushes pending namespaces whose debounce window has elapsed.
func (w *Watcher) drain() {
	ticker := time.NewTicker(w.debounce / 2)
	defer ticker.Stop()
	defer close(w.events)

	for {
		select {
		case <-w.ctx.Done():
			return
		case now := <-ticker.C:
			w.mu.Lock()
			var ready []string
			for ns, last := range w.pending {
				if now.Sub(last) >= w.debounce {
					ready = append(ready, ns)
					delete(w.pending, ns)
				}
			}
			w.mu.Unlock()

			for _, ns := range ready {
				select {
				case w.events <- Event{Namespace: ns}:
				default:
					// A slow consumer drops events rather than
					// blocking the watcher; consumers re-read the
					// store anyway.
				}
			}
		}
	}
}

// namespaceFor maps a changed path to its namespace name. Temp files
// from atomic writes and foreign files are ignored.
func namespaceFor(path string) (string, bool) {
	base := filepath.Base(path)
	if strings.HasPrefix(base, ".tillrun-tmp-") {
		return "", false
	}
	if !strings.HasSuffix(base, ".json") {
		return "", false
	}
	return strings.TrimSuffix(base, ".json"), true
}
