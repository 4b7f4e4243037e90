// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package auth

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/jeranaias/tillrun/internal/kv"
)

// SessionKey is the namespace key holding the persisted session record.
const SessionKey = "session"

// =============================================================================
// AUTH STATE
// =============================================================================

// State is the process-wide authentication state. It is created once at
// runtime start, restored from the session namespace, and injected into
// the session monitor and the audit outbox rather than reached through
// a package global.
//
// Invariant: authenticated is true exactly when a user is present.
type State struct {
	mu sync.RWMutex

	user                *User
	accessToken         string
	refreshToken        string
	forcePasswordChange bool

	store  *kv.Store
	sealer *Sealer
}

// sessionRecord is the on-disk shape of the session. Tokens are sealed
// before marshaling when a sealer is configured.
type sessionRecord struct {
	User                *User  `json:"user"`
	AccessToken         string `json:"access_token"`
	RefreshToken        string `json:"refresh_token"`
	ForcePasswordChange bool   `json:"force_password_change"`
}

// StateOption configures a State.
type StateOption func(*State)

// WithSealer encrypts tokens at rest with the given sealer.
func WithSealer(s *Sealer) StateOption {
	return func(st *State) { st.sealer = s }
}

// NewState creates the auth state over the session namespace and
// restores any persisted session. A restored session is NOT assumed
// fresh: the session monitor re-checks the token deadline and the idle
// window on its next tick.
func NewState(store *kv.Store, opts ...StateOption) *State {
	st := &State{store: store}
	for _, opt := range opts {
		opt(st)
	}
	st.Reload()
	return st
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Login unconditionally replaces the session with the profile and token
// pair returned by the remote endpoint. No validation happens here.
func (s *State) Login(user User, accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u := user
	s.user = &u
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.forcePasswordChange = user.ForcePasswordChange
	s.persistLocked()
}

// Logout clears every session field. Idempotent: logging out while
// logged out observably changes nothing.
func (s *State) Logout() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil && s.accessToken == "" && s.refreshToken == "" {
		return
	}

	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.forcePasswordChange = false

	if err := s.store.Delete(SessionKey); err != nil {
		log.Printf("SESSION_CLEAR_FAILED | %v", err)
	}
}

// SetTokens replaces the token pair after a refresh. The idle window is
// deliberately not reset: a background credential refresh is not user
// activity.
func (s *State) SetTokens(accessToken, refreshToken string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return
	}
	s.accessToken = accessToken
	s.refreshToken = refreshToken
	s.persistLocked()
}

// ClearForcePasswordChange acknowledges a completed password change:
// the top-level flag and the embedded user flag flip to false, every
// other field stays untouched. No-op without a user.
func (s *State) ClearForcePasswordChange() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.user == nil {
		return
	}
	s.forcePasswordChange = false
	s.user.ForcePasswordChange = false
	s.persistLocked()
}

// =============================================================================
// QUERIES
// =============================================================================

// Authenticated reports whether a session is active.
func (s *State) Authenticated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil
}

// User returns a copy of the signed-in user's profile.
func (s *State) User() (User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return User{}, false
	}
	return *s.user, true
}

// HasRole reports whether the signed-in user holds the role. Always
// false without a session.
func (s *State) HasRole(role string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.user != nil && s.user.Role == role
}

// ForcePasswordChange reports whether the user must change credentials
// before full access.
func (s *State) ForcePasswordChange() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.forcePasswordChange
}

// AccessToken returns the current access token, empty without a session.
func (s *State) AccessToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.accessToken
}

// RefreshToken returns the current refresh token, empty without a session.
func (s *State) RefreshToken() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.refreshToken
}

// Deadline returns the access token's expiry instant, or ok=false when
// the token is absent, malformed, or the non-expiring sentinel.
func (s *State) Deadline() (time.Time, bool) {
	return TokenDeadline(s.AccessToken())
}

// Actor resolves the identity audit entries are attributed to.
// ok is false without a session.
func (s *State) Actor() (id, name string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.user == nil {
		return "", "", false
	}
	return s.user.ID, s.user.Label(), true
}

// =============================================================================
// PERSISTENCE
// =============================================================================

// persistLocked writes the session record, best-effort. A failed write
// costs session survival across a restart, never the login itself.
func (s *State) persistLocked() {
	rec := sessionRecord{
		User:                s.user,
		AccessToken:         s.accessToken,
		RefreshToken:        s.refreshToken,
		ForcePasswordChange: s.forcePasswordChange,
	}

	if s.sealer != nil {
		var err error
		if rec.AccessToken, err = s.sealer.Seal(rec.AccessToken); err != nil {
			log.Printf("SESSION_SEAL_FAILED | %v", err)
			return
		}
		if rec.RefreshToken, err = s.sealer.Seal(rec.RefreshToken); err != nil {
			log.Printf("SESSION_SEAL_FAILED | %v", err)
			return
		}
	}

	data, err := json.Marshal(rec)
	if err != nil {
		log.Printf("SESSION_PERSIST_FAILED | %v", err)
		return
	}
	if err := s.store.Set(SessionKey, string(data)); err != nil {
		log.Printf("SESSION_PERSIST_FAILED | %v", err)
	}
}

// Reload replaces the in-memory session with whatever the session
// namespace currently holds. Used at construction and again when a
// sibling process rewrites the namespace. Anything unreadable, such as
// a corrupt record or a failed unseal, reads as "no session".
func (s *State) Reload() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.user = nil
	s.accessToken = ""
	s.refreshToken = ""
	s.forcePasswordChange = false

	raw, ok := s.store.Get(SessionKey)
	if !ok {
		return
	}

	var rec sessionRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil || rec.User == nil {
		return
	}

	if s.sealer != nil {
		var err error
		if rec.AccessToken, err = s.sealer.Unseal(rec.AccessToken); err != nil {
			log.Printf("SESSION_UNSEAL_FAILED | %v", err)
			return
		}
		if rec.RefreshToken, err = s.sealer.Unseal(rec.RefreshToken); err != nil {
			log.Printf("SESSION_UNSEAL_FAILED | %v", err)
			return
		}
	}

	s.user = rec.User
	s.accessToken = rec.AccessToken
	s.refreshToken = rec.RefreshToken
	s.forcePasswordChange = rec.ForcePasswordChange
}
