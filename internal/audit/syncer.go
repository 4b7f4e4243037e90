// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package audit

import (
	"context"
	"log"
	"time"

	"golang.org/x/time/rate"
)

const (
	// DefaultSyncInterval is the gap between background drain passes.
	DefaultSyncInterval = 30 * time.Second

	// DefaultMaxRetries is how many delivery attempts an entry gets
	// before the syncer stops requeueing it.
	DefaultMaxRetries = 5

	// DefaultDeliveryRate bounds deliveries per second so a large
	// offline backlog does not hammer the collector when the network
	// returns.
	DefaultDeliveryRate = 10
)

// =============================================================================
// SYNCER
// =============================================================================

// Stats summarizes one drain pass.
type Stats struct {
	Synced int
	Failed int
}

// Syncer drains pending entries from the store to the remote sink.
// Delivery runs entirely outside the Append path: the outbox commits
// locally and the syncer reconciles later, so losing the network never
// loses an audit record.
type Syncer struct {
	store      *Store
	sink       Sink
	interval   time.Duration
	maxRetries int
	limiter    *rate.Limiter
}

// SyncerOption configures a Syncer.
type SyncerOption func(*Syncer)

// WithSyncInterval overrides the drain interval.
func WithSyncInterval(d time.Duration) SyncerOption {
	return func(s *Syncer) { s.interval = d }
}

// WithMaxRetries overrides the retry budget per entry.
func WithMaxRetries(n int) SyncerOption {
	return func(s *Syncer) { s.maxRetries = n }
}

// WithDeliveryRate overrides deliveries per second.
func WithDeliveryRate(perSecond float64) SyncerOption {
	return func(s *Syncer) {
		s.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewSyncer creates a syncer draining store into sink.
func NewSyncer(store *Store, sink Sink, opts ...SyncerOption) *Syncer {
	s := &Syncer{
		store:      store,
		sink:       sink,
		interval:   DefaultSyncInterval,
		maxRetries: DefaultMaxRetries,
		limiter:    rate.NewLimiter(rate.Limit(DefaultDeliveryRate), 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run drains on a fixed interval until the context is cancelled. Each
// pass completes before the next is scheduled.
func (s *Syncer) Run(ctx context.Context) {
	timer := time.NewTimer(s.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if _, err := s.SyncOnce(ctx); err != nil && ctx.Err() == nil {
				log.Printf("AUDIT_SYNC_FAILED | %v", err)
			}
			timer.Reset(s.interval)
		}
	}
}

// SyncOnce requeues retryable failures, then delivers every pending
// entry in append order. Per-entry failures mark the entry failed and
// continue; only a cancelled context aborts the pass.
func (s *Syncer) SyncOnce(ctx context.Context) (Stats, error) {
	var stats Stats

	if _, err := s.store.RequeueFailed(s.maxRetries); err != nil {
		return stats, err
	}

	pending, err := s.store.ListByStatus(StatusPending)
	if err != nil {
		return stats, err
	}

	for _, e := range pending {
		if err := s.limiter.Wait(ctx); err != nil {
			return stats, err
		}

		if err := s.sink.Deliver(ctx, e); err != nil {
			if ctx.Err() != nil {
				return stats, ctx.Err()
			}
			log.Printf("AUDIT_DELIVERY_FAILED | id=%s retries=%d err=%v", e.ID, e.Retries, err)
			if err := s.store.MarkFailed(e.ID); err != nil {
				log.Printf("AUDIT_MARK_FAILED | id=%s err=%v", e.ID, err)
			}
			stats.Failed++
			continue
		}

		if err := s.store.MarkSynced(e.ID); err != nil {
			// The sink has the entry but the local flip failed; the
			// entry stays pending and will be delivered again. The
			// sink deduplicates by entry ID.
			log.Printf("AUDIT_MARK_SYNCED_FAILED | id=%s err=%v", e.ID, err)
			continue
		}
		stats.Synced++
	}

	return stats, nil
}
