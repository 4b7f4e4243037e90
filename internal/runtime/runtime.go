// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package runtime

import (
	"context"
	"log"
	"os"
	"sync"
	"time"

	"github.com/jeranaias/tillrun/internal/activity"
	"github.com/jeranaias/tillrun/internal/audit"
	"github.com/jeranaias/tillrun/internal/auth"
	"github.com/jeranaias/tillrun/internal/config"
	"github.com/jeranaias/tillrun/internal/kv"
	"github.com/jeranaias/tillrun/internal/prefs"
	"github.com/jeranaias/tillrun/internal/session"
)

// Namespace names under the state directory.
const (
	nsActivity = "activity"
	nsSession  = "session"
	nsPrefs    = "prefs"
)

// watchDebounce collapses bursts of sibling-process writes into one
// reload per namespace.
const watchDebounce = 200 * time.Millisecond

// =============================================================================
// RUNTIME
// =============================================================================

// Runtime holds the wired components. Fields are assigned once in Open
// and never replaced; the components carry their own locks.
type Runtime struct {
	cfg config.Config

	State   *auth.State
	Tracker *activity.Tracker
	Prefs   *prefs.Prefs
	Audit   *audit.Store
	Outbox  *audit.Outbox
	Monitor *session.Monitor
	Syncer  *audit.Syncer // nil when no sink URL is configured

	watcher *kv.Watcher // nil when the state dir is unavailable

	mu            sync.Mutex
	lastActorID   string
	lastActorName string
	cancel        context.CancelFunc
	wg            sync.WaitGroup
}

// Open validates cfg and builds the runtime. Nothing is started; call
// Start. The audit store is the one component whose failure is fatal,
// the rest degrade with a log line.
func Open(cfg config.Config) (*Runtime, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	persistent := true
	if err := os.MkdirAll(cfg.StateDir, 0700); err != nil {
		log.Printf("STATE_DIR_UNAVAILABLE | dir=%s err=%v", cfg.StateDir, err)
		persistent = false
	}

	openStore := func(ns string) *kv.Store {
		if !persistent {
			return kv.OpenMemory()
		}
		return kv.Open(cfg.StateDir, ns)
	}

	var stateOpts []auth.StateOption
	if cfg.Security.SealSession && persistent {
		sealer, err := newSealer(cfg)
		if err != nil {
			log.Printf("SESSION_SEAL_UNAVAILABLE | %v", err)
		} else {
			stateOpts = append(stateOpts, auth.WithSealer(sealer))
		}
	}

	r := &Runtime{cfg: cfg}
	r.State = auth.NewState(openStore(nsSession), stateOpts...)
	r.Tracker = activity.NewTracker(openStore(nsActivity),
		activity.WithThrottle(cfg.Activity.Throttle()))
	r.Prefs = prefs.New(openStore(nsPrefs))
	r.rememberActor()

	dbPath := cfg.AuditDBPath()
	if !persistent {
		dbPath = ":memory:"
	}
	store, err := audit.OpenStore(dbPath)
	if err != nil {
		return nil, err
	}
	r.Audit = store
	r.Outbox = audit.NewOutbox(store, r.State)

	if cfg.Audit.SinkURL != "" {
		sink := audit.NewHTTPSink(cfg.Audit.SinkURL,
			audit.WithToken(r.State.AccessToken))
		r.Syncer = audit.NewSyncer(store, sink,
			audit.WithSyncInterval(cfg.Audit.SyncInterval()),
			audit.WithMaxRetries(cfg.Audit.MaxRetries),
			audit.WithDeliveryRate(cfg.Audit.DeliveryPerSecond))
	}

	r.Monitor = session.NewMonitor(r.State, r.Tracker,
		session.WithInterval(cfg.Session.TickInterval()),
		session.WithIdleTimeout(cfg.Session.IdleTimeout()),
		session.OnForcedLogout(r.recordForcedLogout))

	if persistent {
		w, err := kv.NewWatcher(cfg.StateDir, watchDebounce)
		if err != nil {
			log.Printf("STATE_WATCH_UNAVAILABLE | %v", err)
		} else {
			r.watcher = w
		}
	}

	return r, nil
}

// newSealer prefers a passphrase-derived key when the configured
// environment variable carries one, otherwise a random keyfile.
func newSealer(cfg config.Config) (*auth.Sealer, error) {
	if env := cfg.Security.PassphraseEnv; env != "" {
		if pass := os.Getenv(env); pass != "" {
			return auth.NewSealerWithPassphrase(cfg.StateDir, pass)
		}
	}
	return auth.NewSealer(cfg.StateDir)
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// Start launches the background pieces: the session monitor when a
// session was restored, the audit syncer, and the state dir watcher.
func (r *Runtime) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.mu.Unlock()

	if r.State.Authenticated() {
		r.Monitor.Start()
	}

	if r.Syncer != nil {
		r.wg.Add(1)
		go func() {
			defer r.wg.Done()
			r.Syncer.Run(ctx)
		}()
	}

	if r.watcher != nil {
		if err := r.watcher.Start(); err != nil {
			log.Printf("STATE_WATCH_UNAVAILABLE | %v", err)
			r.watcher = nil
		} else {
			r.wg.Add(1)
			go func() {
				defer r.wg.Done()
				r.watchLoop(ctx)
			}()
		}
	}
}

// Close stops the background pieces and releases the audit store.
func (r *Runtime) Close() error {
	r.Monitor.Stop()

	r.mu.Lock()
	cancel := r.cancel
	r.cancel = nil
	r.mu.Unlock()
	if cancel != nil {
		cancel()
	}

	if r.watcher != nil {
		r.watcher.Close()
	}
	r.wg.Wait()
	return r.Audit.Close()
}

// watchLoop reloads the auth state when a sibling process rewrites the
// session namespace. Activity and prefs need no reload: their reads go
// back to disk every time.
func (r *Runtime) watchLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-r.watcher.Events():
			if !ok {
				return
			}
			if ev.Namespace != nsSession {
				continue
			}
			wasAuthenticated := r.State.Authenticated()
			r.State.Reload()
			r.rememberActor()
			if r.State.Authenticated() && !wasAuthenticated {
				r.Monitor.Start()
			}
			if !r.State.Authenticated() && wasAuthenticated {
				r.Monitor.Stop()
				log.Printf("SESSION_ENDED_ELSEWHERE |")
			}
		}
	}
}

// =============================================================================
// SESSION OPERATIONS
// =============================================================================

// Login installs the session, resets the idle window, starts the
// monitor, and audits the sign-in.
func (r *Runtime) Login(user auth.User, accessToken, refreshToken string) {
	r.State.Login(user, accessToken, refreshToken)
	r.rememberActor()
	r.Tracker.Seed(time.Now())
	r.Monitor.Start()
	r.Outbox.Append(audit.ActionLogin, audit.EntitySession,
		audit.WithEntityID(user.ID))
}

// Logout audits the sign-out while the actor is still resolvable, then
// tears the session down. Safe to call while logged out.
func (r *Runtime) Logout() {
	if id, _, ok := r.State.Actor(); ok {
		r.Outbox.Append(audit.ActionLogout, audit.EntitySession,
			audit.WithEntityID(id))
	}
	r.Monitor.Stop()
	r.State.Logout()
	r.Tracker.Clear()
}

// SyncNow flushes the outbox once, outside the background schedule.
func (r *Runtime) SyncNow(ctx context.Context) (audit.Stats, error) {
	if r.Syncer == nil {
		return audit.Stats{}, nil
	}
	return r.Syncer.SyncOnce(ctx)
}

// recordForcedLogout is the monitor callback. The session is already
// gone when it fires, so the entry is attributed to the last known
// actor.
func (r *Runtime) recordForcedLogout(reason session.Reason) {
	r.mu.Lock()
	id, name := r.lastActorID, r.lastActorName
	r.mu.Unlock()
	if id == "" {
		return
	}
	r.Outbox.Append(audit.ActionLogout, audit.EntitySession,
		audit.WithActor(id, name),
		audit.WithEntityID(id),
		audit.WithDetail(string(reason)))
}

// rememberActor snapshots the current actor for attribution after the
// session is cleared.
func (r *Runtime) rememberActor() {
	id, name, ok := r.State.Actor()
	if !ok {
		return
	}
	r.mu.Lock()
	r.lastActorID, r.lastActorName = id, name
	r.mu.Unlock()
}
