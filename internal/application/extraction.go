package application

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/bnema/deskbridge/internal/domain"
	"github.com/bnema/deskbridge/internal/logger"
	"github.com/bnema/deskbridge/internal/ports"
)

const (
	defaultProbeRetries   = 2
	defaultProbeTimeout   = 10 * time.Second
	defaultNoiseThreshold = 10
)

type EngineConfig struct {
	// Retries is the number of probe attempts per strategy before moving
	// to the next one.
	Retries int
	// ProbeTimeout bounds a single probe call.
	ProbeTimeout time.Duration
	// NoiseThreshold is the minimum content length treated as a real
	// answer rather than rendering noise.
	NoiseThreshold int
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.Retries <= 0 {
		c.Retries = defaultProbeRetries
	}
	if c.ProbeTimeout <= 0 {
		c.ProbeTimeout = defaultProbeTimeout
	}
	if c.NoiseThreshold <= 0 {
		c.NoiseThreshold = defaultNoiseThreshold
	}
	return c
}

type ExtractionResult struct {
	Success  bool
	Content  string
	Strategy string
	Attempt  int
}

// responseTrack is the per-anchor fingerprint state used for change
// detection. Content length never regresses across emitted updates.
type responseTrack struct {
	injectedAt  time.Time
	fingerprint uint64
	length      int
}

// ExtractionEngine decides, for a given anchor, what the current
// best-known response content is and whether generation has finished,
// using only the fallible probe surface. Transient probe failures are
// absorbed here; retry policy for whole requests belongs to the
// orchestrator.
type ExtractionEngine struct {
	prober     ports.Prober
	clock      ports.Clock
	cfg        EngineConfig
	strategies []ExtractionStrategy

	mu     sync.Mutex
	tracks map[domain.AnchorID]*responseTrack
}

func NewExtractionEngine(prober ports.Prober, clock ports.Clock, cfg EngineConfig) *ExtractionEngine {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &ExtractionEngine{
		prober:     prober,
		clock:      clock,
		cfg:        cfg.withDefaults(),
		strategies: DefaultStrategies(),
		tracks:     make(map[domain.AnchorID]*responseTrack),
	}
}

// RecordInjection starts change tracking for an anchor. Content for an
// anchor without a recorded injection cannot be evaluated as "new".
func (e *ExtractionEngine) RecordInjection(id domain.AnchorID, at time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracks[id] = &responseTrack{injectedAt: at}
}

// Forget drops the fingerprint state for an anchor.
func (e *ExtractionEngine) Forget(id domain.AnchorID) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.tracks, id)
}

// Extract runs the fallback chain: each strategy gets up to Retries probe
// attempts with a bounded per-call timeout, and the first one returning
// content above the noise threshold wins. A non-nil error is returned
// only when the chain was exhausted and the surface itself looked
// unreachable; everything else is reported through Success.
func (e *ExtractionEngine) Extract(ctx context.Context, anchor domain.Anchor) (ExtractionResult, error) {
	var lastErr error

	for _, strategy := range e.strategies {
		query := strategy.Build(anchor)
		for attempt := 1; attempt <= e.cfg.Retries; attempt++ {
			if err := ctx.Err(); err != nil {
				return ExtractionResult{}, err
			}

			value, err := e.probe(ctx, query)
			if err != nil {
				lastErr = err
				logger.Debug("probe %s attempt %d failed: %v", strategy.Name, attempt, err)
				continue
			}

			content := domain.ScrubResponse(value, anchor.ID)
			if domain.IsSubstantial(content, e.cfg.NoiseThreshold) {
				return ExtractionResult{
					Success:  true,
					Content:  content,
					Strategy: strategy.Name,
					Attempt:  attempt,
				}, nil
			}
		}
	}

	if lastErr != nil && errors.Is(lastErr, domain.ErrNoSurface) {
		return ExtractionResult{}, lastErr
	}

	return ExtractionResult{}, nil
}

// ContentNew reports whether content differs from the last fingerprint
// recorded for the anchor, updating the fingerprint when it does. Equal
// fingerprints and length regressions are silently skipped so downstream
// consumers never see duplicate or shrinking updates.
func (e *ExtractionEngine) ContentNew(id domain.AnchorID, content string) (bool, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	track, ok := e.tracks[id]
	if !ok {
		return false, fmt.Errorf("no injection recorded for %s: %w", id, domain.ErrAnchorNotFound)
	}

	fingerprint := domain.Fingerprint(content)
	if fingerprint == track.fingerprint {
		return false, nil
	}
	if len(content) < track.length {
		logger.Debug("content regression for %s ignored (%d < %d chars)", id, len(content), track.length)
		return false, nil
	}

	track.fingerprint = fingerprint
	track.length = len(content)

	return true, nil
}

// Busy probes the generation-in-progress indicator.
func (e *ExtractionEngine) Busy(ctx context.Context) (bool, error) {
	return e.probeBool(ctx, busyQuery)
}

// Completion derives the composite completion signal for one poll cycle.
// A failed busy probe yields an error and the caller must not declare
// completion — the conservative failure mode. The input-availability
// probe is diagnostic only; its failure is logged and ignored.
func (e *ExtractionEngine) Completion(ctx context.Context, content string) (domain.CompletionSignal, error) {
	busy, err := e.probeBool(ctx, busyQuery)
	if err != nil {
		return domain.CompletionSignal{}, fmt.Errorf("busy indicator unresolved: %w", err)
	}

	inputAvailable, err := e.probeBool(ctx, inputAvailableQuery)
	if err != nil {
		logger.Debug("input availability unresolved: %v", err)
		inputAvailable = false
	}

	return domain.CompletionSignal{
		StillBusy:      busy,
		HasContent:     domain.IsSubstantial(content, e.cfg.NoiseThreshold),
		InputAvailable: inputAvailable,
	}, nil
}

// SurfaceReady probes basic surface reachability, for health checks.
func (e *ExtractionEngine) SurfaceReady(ctx context.Context) (bool, error) {
	return e.probeBool(ctx, surfaceReadyQuery)
}

// InputAvailable probes the input surface, for health checks.
func (e *ExtractionEngine) InputAvailable(ctx context.Context) (bool, error) {
	return e.probeBool(ctx, inputAvailableQuery)
}

func (e *ExtractionEngine) probe(ctx context.Context, query string) (string, error) {
	probeCtx, cancel := context.WithTimeout(ctx, e.cfg.ProbeTimeout)
	defer cancel()

	value, err := e.prober.Probe(probeCtx, query)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return "", fmt.Errorf("%w: %v", domain.ErrProbeTimeout, err)
		}
		return "", err
	}

	return value, nil
}

func (e *ExtractionEngine) probeBool(ctx context.Context, query string) (bool, error) {
	value, err := e.probe(ctx, query)
	if err != nil {
		return false, err
	}

	parsed, err := strconv.ParseBool(strings.Trim(strings.TrimSpace(value), `"`))
	if err != nil {
		return false, fmt.Errorf("%w: %q", domain.ErrProbeMalformed, value)
	}

	return parsed, nil
}
