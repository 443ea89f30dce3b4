package application

import (
	"context"
	"sync"
	"time"

	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	defaultContextSweepInterval = 5 * time.Minute
	defaultContextMaxAge        = 24 * time.Hour
	defaultMaxContexts          = 1000
)

type ContextRegistryConfig struct {
	SweepInterval time.Duration
	MaxAge        time.Duration
	MaxContexts   int
}

func (c ContextRegistryConfig) withDefaults() ContextRegistryConfig {
	if c.SweepInterval <= 0 {
		c.SweepInterval = defaultContextSweepInterval
	}
	if c.MaxAge <= 0 {
		c.MaxAge = defaultContextMaxAge
	}
	if c.MaxContexts <= 0 {
		c.MaxContexts = defaultMaxContexts
	}
	return c
}

// ContextRegistry tracks conversation contexts independently of anchors:
// contexts age out on their own TTL and are additionally capped in number,
// with the oldest non-active context evicted first when the cap is hit.
type ContextRegistry struct {
	mu      sync.RWMutex
	records map[domain.ContextID]domain.Context
	clock   ports.Clock
	cfg     ContextRegistryConfig
}

func NewContextRegistry(clock ports.Clock, cfg ContextRegistryConfig) *ContextRegistry {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &ContextRegistry{
		records: make(map[domain.ContextID]domain.Context),
		clock:   clock,
		cfg:     cfg.withDefaults(),
	}
}

// Create registers a context for a delivery source, evicting the oldest
// non-active context first if the registry is at capacity.
func (r *ContextRegistry) Create(source string) domain.Context {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) >= r.cfg.MaxContexts {
		r.evictOldestIdleLocked()
	}

	now := r.clock.Now()
	record := domain.Context{
		ID:           domain.NewContextID(now),
		CreatedAt:    now,
		LastActivity: now,
		Status:       domain.ContextStatusIdle,
		Source:       source,
	}
	r.records[record.ID] = record

	return record
}

// Get returns a context and refreshes its activity: reading a context
// counts as use, so recency-based eviction spares it.
func (r *ContextRegistry) Get(id domain.ContextID) (domain.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		return domain.Context{}, false
	}

	if now := r.clock.Now(); now.After(record.LastActivity) {
		record.LastActivity = now
		r.records[id] = record
	}

	return record, true
}

func (r *ContextRegistry) Update(id domain.ContextID, apply func(*domain.Context)) (domain.Context, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	record, ok := r.records[id]
	if !ok {
		logger.Warn("update for unknown context %s ignored", id)
		return domain.Context{}, false
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

func (r *ContextRegistry) Delete(id domain.ContextID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.records[id]; !ok {
		return false
	}
	delete(r.records, id)

	return true
}

// FindBySource returns the most recently active context for a source key.
func (r *ContextRegistry) FindBySource(source string) (domain.Context, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best domain.Context
	found := false
	for _, record := range r.records {
		if record.Source != source {
			continue
		}
		if !found || record.LastActivity.After(best.LastActivity) {
			best = record
			found = true
		}
	}

	return best, found
}

func (r *ContextRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// Sweep evicts contexts whose last activity predates the TTL cutoff.
// Active contexts survive regardless of age.
func (r *ContextRegistry) Sweep() int {
	cutoff := r.clock.Now().Add(-r.cfg.MaxAge)

	r.mu.Lock()
	defer r.mu.Unlock()

	evicted := 0
	for id, record := range r.records {
		if record.Status == domain.ContextStatusActive {
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
func (r *ContextRegistry) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.clock.After(r.cfg.SweepInterval):
			if evicted := r.Sweep(); evicted > 0 {
				logger.Info("context sweep evicted %d records", evicted)
			}
		}
	}
}

// Snapshot returns a copy of every tracked context, for persistence.
func (r *ContextRegistry) Snapshot() []domain.Context {
	r.mu.RLock()
	defer r.mu.RUnlock()

	contexts := make([]domain.Context, 0, len(r.records))
	for _, record := range r.records {
		contexts = append(contexts, record)
	}

	return contexts
}

// Restore loads persisted contexts, keeping the newer record when an id
// is already present.
func (r *ContextRegistry) Restore(contexts []domain.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, record := range contexts {
		if record.ID == "" {
			continue
		}
		if existing, ok := r.records[record.ID]; ok && existing.LastActivity.After(record.LastActivity) {
			continue
		}
		// A restored context is never mid-conversation.
		record.Status = domain.ContextStatusIdle
		r.records[record.ID] = record
	}
}

func (r *ContextRegistry) evictOldestIdleLocked() {
	var oldest domain.ContextID
	var oldestActivity time.Time
	for id, record := range r.records {
		if record.Status == domain.ContextStatusActive {
			continue
		}
		if oldest == "" || record.LastActivity.Before(oldestActivity) {
			oldest = id
			oldestActivity = record.LastActivity
		}
	}

	if oldest != "" {
		delete(r.records, oldest)
		logger.Info("context cap reached, evicted %s", oldest)
	}
}
