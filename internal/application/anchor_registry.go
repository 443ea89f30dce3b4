package application

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	defaultAnchorSweepInterval = 5 * time.Minute
	defaultAnchorMaxAge        = 24 * time.Hour
)

type AnchorRegistryConfig struct {
	SweepInterval time.Duration
	MaxAge        time.Duration
}

func (c AnchorRegistryConfig) withDefaults() AnchorRegistryConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultAnchorSweepInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaultAnchorMaxAge
	}
	return c
}

// AnchorRegistry tracks every correlation token handed out by the bridge.
// All mutations go through Update; nothing outside the registry touches a
// stored record.
type AnchorRegistry struct {
	mu      sync.RWMutex
	records map[domain.AnchorID]domain.Anchor
	clock   ports.Clock
	cfg     AnchorRegistryConfig
}

func NewAnchorRegistry(clock ports.Clock, cfg AnchorRegistryConfig) *AnchorRegistry {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &AnchorRegistry{
		records: make(map[domain.AnchorID]domain.Anchor),
		clock:   clock,
		cfg:     cfg.withDefaults(),
	}
}

// Generate produces a fresh anchor id. The id is not tracked until Track
// is called with it.
func (r *AnchorRegistry) Generate() domain.AnchorID {
	return domain.NewAnchorID(r.clock.Now())
}

// Track registers an anchor as created. Re-tracking an id that is already
// present is an error: a reused token would correlate two requests.
func (r *AnchorRegistry) Track(id domain.AnchorID, metadata map[string]string) (domain.Anchor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.records[id]; exists {
		return domain.Anchor{}, fmt.Errorf("track %s: %w", id, domain.ErrAnchorTracked)
	}

	now := r.clock.Now()
	record := domain.Anchor{
		ID:           id,
		CreatedAt:    now,
		LastActivity: now,
		Status:       domain.AnchorStatusCreated,
		Metadata:     copyMetadata(metadata),
	}
	r.records[id] = record

	return record, nil
}

// Update applies a mutation to a tracked anchor and refreshes its
// activity. Updates against unknown ids are deliberate no-ops: the
// observation channel can report events after eviction, and those must
// not take the bridge down.
func (r *AnchorRegistry) Update(id domain.AnchorID, apply func(*domain.Anchor)) (domain.Anchor, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		logger.Warn("update for unknown anchor %s ignored", id)
		return domain.Anchor{}, false
	}

	if apply != nil {
		apply(&record)
	}
	record.ID = id
	if now := r.clock.Now(); now.After(record.LastActivity) {
		record.LastActivity = now
	}
	r.records[id] = record

	return record, true
}

func (r *AnchorRegistry) SetStatus(id domain.AnchorID, status domain.AnchorStatus) (domain.Anchor, bool) {
	return r.Update(id, func(a *domain.Anchor) {
		a.Status = status
	})
}

func (r *AnchorRegistry) Get(id domain.AnchorID) (domain.Anchor, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	record, ok := r.records[id]
	return record, ok
}

func (r *AnchorRegistry) ListByStatus(status domain.AnchorStatus) []domain.Anchor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Anchor, 0)
	for _, record := range r.records {
		if record.Status == status {
			matches = append(matches, record)
		}
	}
	sortAnchors(matches)

	return matches
}

// ListRecent returns anchors whose last activity falls inside the window.
func (r *AnchorRegistry) ListRecent(window time.Duration) []domain.Anchor {
	cutoff := r.clock.Now().Add(-window)

	r.mu.RLock()
	defer r.mu.RUnlock()

	matches := make([]domain.Anchor, 0)
	for _, record := range r.records {
		if record.LastActivity.After(cutoff) {
			matches = append(matches, record)
		}
	}
	sortAnchors(matches)

	return matches
}

func (r *AnchorRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Sweep evicts records whose last activity predates the max-age cutoff.
// An in-flight anchor is never evicted regardless of age: losing it would
// orphan a streaming consumer.
func (r *AnchorRegistry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.cfg.MaxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, record := range r.records {
		if record.Status.InFlight() {
			continue
		}
		if record.LastActivity.Before(cutoff) {
			delete(r.records, id)
			evicted++
		}
	}

	return evicted
}

// Run sweeps on a fixed interval until ctx is cancelled.
func (r *AnchorRegistry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.cfg.SweepInterval):
			if evicted := r.Sweep(); evicted > 0 {
				logger.Info("anchor sweep evicted %d records", evicted)
			}
		}
	}
}

func copyMetadata(metadata map[string]string) map[string]string {
	if len(metadata) == 0 {
		return nil
	}

	copied := make(map[string]string, len(metadata))
	for key, value := range metadata {
		copied[key] = value
	}

	return copied
}

func sortAnchors(anchors []domain.Anchor) {
	sort.Slice(anchors, func(i, j int) bool {
		if anchors[i].CreatedAt.Equal(anchors[j].CreatedAt) {
			return anchors[i].ID < anchors[j].ID
		}
		return anchors[i].CreatedAt.Before(anchors[j].CreatedAt)
	})
}
