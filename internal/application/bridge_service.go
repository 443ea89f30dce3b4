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
	defaultMonitorTimeout = 60 * time.Second
	defaultPollInterval   = time.Second
	defaultStartTimeout   = 5 * time.Second
	defaultMaxConcurrent  = 4
)

type BridgeConfig struct {
	// Timeout is the default overall budget for one monitored response.
	Timeout time.Duration
	// PollInterval spaces observation ticks.
	PollInterval time.Duration
	// StartTimeout bounds the wait for the busy indicator to appear
	// before assuming the response has started anyway.
	StartTimeout time.Duration
	// MaxConcurrent caps simultaneously active monitors.
	MaxConcurrent int
	// Multiplex permits injecting a new request while another response
	// is still mid-stream. The shared surface renders everything into
	// one conversation, so this must stay off unless the target app is
	// known to keep independent threads.
	Multiplex bool
}

func (c BridgeConfig) withDefaults() BridgeConfig {
	if c.Timeout <= 0 {
		c.Timeout = defaultMonitorTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = defaultPollInterval
	}
	if c.StartTimeout <= 0 {
		c.StartTimeout = defaultStartTimeout
	}
	if c.MaxConcurrent <= 0 {
		c.MaxConcurrent = defaultMaxConcurrent
	}
	return c
}

// MonitorOptions override per-request knobs; zero values fall back to the
// service configuration.
type MonitorOptions struct {
	Timeout      time.Duration
	PollInterval time.Duration
}

type InjectOptions struct {
	Source    string
	ContextID domain.ContextID
	Metadata  map[string]string
}

type InjectResult struct {
	Anchor    domain.Anchor
	ContextID domain.ContextID
	Method    string
}

// StreamSink receives stream updates. Sinks must not panic; a panicking
// sink is caught and logged without aborting the poll loop.
type StreamSink func(domain.StreamUpdate)

// BridgeService owns the end-to-end lifecycle of one request: allocate
// anchor, format and inject, poll for response start, stream growth,
// detect completion, finalize. At most one monitor loop runs per anchor.
type BridgeService struct {
	anchors  *AnchorRegistry
	contexts *ContextRegistry
	engine   *ExtractionEngine
	injector ports.Injector
	clock    ports.Clock
	cfg      BridgeConfig

	mu     sync.Mutex
	active map[domain.AnchorID]context.CancelFunc
}

func NewBridgeService(anchors *AnchorRegistry, contexts *ContextRegistry, engine *ExtractionEngine, injector ports.Injector, clock ports.Clock, cfg BridgeConfig) *BridgeService {
	if clock == nil {
		clock = ports.SystemClock{}
	}

	return &BridgeService{
		anchors:  anchors,
		contexts: contexts,
		engine:   engine,
		injector: injector,
		clock:    clock,
		cfg:      cfg.withDefaults(),
		active:   make(map[domain.AnchorID]context.CancelFunc),
	}
}

// InjectAndTrack allocates an anchor, embeds it in the payload, delivers
// the payload to the input surface, and records the injection timestamp
// for change tracking. Unless multiplexing is enabled, injection is
// refused while any response is still being monitored: interleaved writes
// against the shared surface would cross-contaminate extractions.
func (s *BridgeService) InjectAndTrack(ctx context.Context, content string, opts InjectOptions) (InjectResult, error) {
	s.mu.Lock()
	if !s.cfg.Multiplex && len(s.active) > 0 {
		s.mu.Unlock()
		return InjectResult{}, domain.ErrSurfaceBusy
	}
	s.mu.Unlock()

	id := s.anchors.Generate()
	anchor, err := s.anchors.Track(id, opts.Metadata)
	if err != nil {
		return InjectResult{}, fmt.Errorf("track anchor: %w", err)
	}

	conversation := s.resolveContext(opts)
	s.anchors.Update(id, func(a *domain.Anchor) {
		a.ContextID = conversation.ID
	})
	s.contexts.Update(conversation.ID, func(c *domain.Context) {
		c.Anchor = id
	})

	payload := domain.AttachAnchor(content, id)
	result, err := s.injector.Inject(ctx, payload)
	if err != nil {
		s.anchors.SetStatus(id, domain.AnchorStatusFailed)
		return InjectResult{}, fmt.Errorf("inject payload for %s: %w", id, err)
	}

	s.engine.RecordInjection(id, s.clock.Now())
	anchor, _ = s.anchors.SetStatus(id, domain.AnchorStatusInjected)
	logger.Info("injected %s via %s", id, result.Method)

	return InjectResult{Anchor: anchor, ContextID: conversation.ID, Method: result.Method}, nil
}

// StreamResponse monitors the surface for the anchor's response, emitting
// a stream update per detected content growth and exactly one terminal
// update. Terminal failures (timeout, unreachable surface, cancellation)
// are reported inside the FinalResult; the error return is reserved for
// precondition violations such as an unknown anchor or a duplicate
// monitor.
func (s *BridgeService) StreamResponse(ctx context.Context, id domain.AnchorID, sink StreamSink, opts MonitorOptions) (domain.FinalResult, error) {
	anchor, ok := s.anchors.Get(id)
	if !ok {
		return domain.FinalResult{}, fmt.Errorf("stream %s: %w", id, domain.ErrAnchorNotFound)
	}

	monitorCtx, err := s.acquire(ctx, id)
	if err != nil {
		return domain.FinalResult{}, err
	}
	defer s.release(id)

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = s.cfg.Timeout
	}
	poll := opts.PollInterval
	if poll <= 0 {
		poll = s.cfg.PollInterval
	}

	start := s.clock.Now()
	deadline := start.Add(timeout)

	s.markContext(anchor.ContextID, domain.ContextStatusActive)
	s.awaitResponseStart(monitorCtx, poll, deadline)
	s.anchors.SetStatus(id, domain.AnchorStatusResponding)

	var lastContent string
	updates := 0

	finalize := func(status domain.AnchorStatus, success, complete bool, message string) domain.FinalResult {
		s.anchors.SetStatus(id, status)
		s.markContext(anchor.ContextID, domain.ContextStatusIdle)
		return domain.FinalResult{
			Anchor:   id,
			Success:  success,
			Complete: complete,
			Content:  lastContent,
			Message:  message,
			Elapsed:  s.clock.Now().Sub(start),
			Updates:  updates,
		}
	}

	for {
		select {
		case <-monitorCtx.Done():
			return finalize(domain.AnchorStatusFailed, false, false, "monitor cancelled"), nil
		case <-s.clock.After(poll):
		}

		if s.clock.Now().After(deadline) {
			logger.Warn("monitor for %s timed out after %s", id, timeout)
			return finalize(domain.AnchorStatusExpired, false, false,
				fmt.Sprintf("response monitor timed out after %s", timeout)), nil
		}

		extracted, err := s.engine.Extract(monitorCtx, anchor)
		if err != nil {
			if monitorCtx.Err() != nil {
				return finalize(domain.AnchorStatusFailed, false, false, "monitor cancelled"), nil
			}
			logger.Warn("surface unreachable while monitoring %s: %v", id, err)
			return finalize(domain.AnchorStatusFailed, false, false, "chat surface unreachable"), nil
		}

		if !extracted.Success {
			continue
		}

		signal, signalErr := s.engine.Completion(monitorCtx, extracted.Content)
		if signalErr == nil {
			logger.Debug("%s signal busy=%t content=%t input=%t",
				id, signal.StillBusy, signal.HasContent, signal.InputAvailable)
		} else {
			// Busy indicator unresolved: completion stays undeclared
			// for this tick no matter how much content there is.
			logger.Debug("completion check for %s: %v", id, signalErr)
		}

		if signalErr == nil && signal.Decided() {
			// One final pass: content may have grown between the last
			// poll and the completion signal.
			if final, ferr := s.engine.Extract(monitorCtx, anchor); ferr == nil && final.Success && len(final.Content) >= len(lastContent) {
				lastContent = final.Content
			} else if extracted.Content != lastContent && len(extracted.Content) >= len(lastContent) {
				lastContent = extracted.Content
			}
			_, _ = s.engine.ContentNew(id, lastContent)
			updates++
			s.emit(sink, domain.StreamUpdate{
				Anchor:    id,
				Content:   lastContent,
				Complete:  true,
				Timestamp: s.clock.Now(),
			})
			return finalize(domain.AnchorStatusComplete, true, true, ""), nil
		}

		grew, newErr := s.engine.ContentNew(id, extracted.Content)
		if newErr != nil {
			logger.Warn("change detection for %s: %v", id, newErr)
			continue
		}
		if !grew {
			continue
		}

		lastContent = extracted.Content
		updates++
		s.anchors.SetStatus(id, domain.AnchorStatusStreaming)
		s.emit(sink, domain.StreamUpdate{
			Anchor:    id,
			Content:   lastContent,
			Complete:  false,
			Timestamp: s.clock.Now(),
		})
	}
}

// ExtractResponse is the non-streaming convenience: it waits for
// completion and returns only the terminal result.
func (s *BridgeService) ExtractResponse(ctx context.Context, id domain.AnchorID, opts MonitorOptions) (domain.FinalResult, error) {
	return s.StreamResponse(ctx, id, nil, opts)
}

// CancelMonitor stops an active monitor. Already-emitted updates stand;
// the anchor lands in a terminal state so the single-flight slot frees.
func (s *BridgeService) CancelMonitor(id domain.AnchorID) bool {
	s.mu.Lock()
	cancel, ok := s.active[id]
	s.mu.Unlock()

	if !ok {
		return false
	}
	cancel()

	return true
}

// ActiveMonitors lists anchors currently being monitored.
func (s *BridgeService) ActiveMonitors() []domain.AnchorID {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]domain.AnchorID, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	return ids
}

func (s *BridgeService) acquire(ctx context.Context, id domain.AnchorID) (context.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.active[id]; busy {
		return nil, fmt.Errorf("stream %s: %w", id, domain.ErrMonitorActive)
	}
	if len(s.active) >= s.cfg.MaxConcurrent {
		return nil, fmt.Errorf("stream %s: %w", id, domain.ErrMonitorLimit)
	}

	monitorCtx, cancel := context.WithCancel(ctx)
	s.active[id] = cancel

	return monitorCtx, nil
}

func (s *BridgeService) release(id domain.AnchorID) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cancel, ok := s.active[id]; ok {
		cancel()
		delete(s.active, id)
	}
}

// awaitResponseStart watches for the busy indicator to appear. If it does
// not within the start budget, the response is assumed started anyway:
// blocking indefinitely on a missing start signal is worse than a few
// empty extraction ticks.
func (s *BridgeService) awaitResponseStart(ctx context.Context, poll time.Duration, deadline time.Time) {
	started := s.clock.Now()
	startDeadline := started.Add(s.cfg.StartTimeout)
	if startDeadline.After(deadline) {
		startDeadline = deadline
	}

	for {
		busy, err := s.engine.Busy(ctx)
		if err == nil && busy {
			return
		}
		if err != nil {
			logger.Debug("response-start probe: %v", err)
		}
		if s.clock.Now().After(startDeadline) {
			logger.Debug("no start signal within %s, assuming responding", s.cfg.StartTimeout)
			return
		}

		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(poll):
		}
	}
}

func (s *BridgeService) emit(sink StreamSink, update domain.StreamUpdate) {
	if sink == nil {
		return
	}
	defer func() {
		if recovered := recover(); recovered != nil {
			logger.Warn("delivery sink panicked on %s: %v", update.Anchor, recovered)
		}
	}()
	sink(update)
}

func (s *BridgeService) resolveContext(opts InjectOptions) domain.Context {
	if opts.ContextID != "" {
		if conversation, ok := s.contexts.Get(opts.ContextID); ok {
			s.contexts.Update(conversation.ID, func(c *domain.Context) {
				c.MessageCount++
			})
			return conversation
		}
		logger.Warn("context %s not found, creating a fresh one", opts.ContextID)
	}

	conversation := s.contexts.Create(opts.Source)
	s.contexts.Update(conversation.ID, func(c *domain.Context) {
		c.MessageCount++
	})

	return conversation
}

func (s *BridgeService) markContext(id domain.ContextID, status domain.ContextStatus) {
	if id == "" {
		return
	}
	s.contexts.Update(id, func(c *domain.Context) {
		c.Status = status
	})
}
