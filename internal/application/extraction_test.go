package application

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/deskbridge/internal/domain"
)

func newEngineForTest(t *testing.T, surface *fakeSurface, threshold int) (*ExtractionEngine, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	engine := NewExtractionEngine(surface, clock, EngineConfig{
		Retries:        2,
		ProbeTimeout:   time.Second,
		NoiseThreshold: threshold,
	})

	return engine, clock
}

func testAnchor() domain.Anchor {
	return domain.Anchor{ID: "msg_1700000000000_abcdef", Status: domain.AnchorStatusInjected}
}

func TestExtractReturnsFirstSubstantialContent(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{contents: []string{"a meaningful response"}}
	engine, _ := newEngineForTest(t, surface, 10)

	result, err := engine.Extract(context.Background(), testAnchor())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "a meaningful response", result.Content)
	assert.Equal(t, "anchor-sibling", result.Strategy)
	assert.Equal(t, 1, result.Attempt)
}

func TestExtractFallsThroughNoiseToLaterProbe(t *testing.T) {
	t.Parallel()

	// First probes return sub-threshold noise; a later one has content.
	surface := &fakeSurface{contents: []string{"", "...", "the actual answer arrived"}}
	engine, _ := newEngineForTest(t, surface, 10)

	result, err := engine.Extract(context.Background(), testAnchor())
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "the actual answer arrived", result.Content)
}

func TestExtractScrubsInjectedEcho(t *testing.T) {
	t.Parallel()

	anchor := testAnchor()
	echoed := "[BRIDGE: #general | User: bob | 2025-01-01 00:00:00] question [ref:" + string(anchor.ID) + "]\nThe answer is 4."
	surface := &fakeSurface{contents: []string{echoed}}
	engine, _ := newEngineForTest(t, surface, 5)

	result, err := engine.Extract(context.Background(), anchor)
	require.NoError(t, err)
	assert.True(t, result.Success)
	assert.Equal(t, "The answer is 4.", result.Content)
}

func TestExtractAllNoiseIsUnsuccessfulNotError(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{contents: []string{"hm"}}
	engine, _ := newEngineForTest(t, surface, 10)

	result, err := engine.Extract(context.Background(), testAnchor())
	require.NoError(t, err)
	assert.False(t, result.Success)
	assert.Empty(t, result.Content)
}

func TestExtractSurfaceGoneIsError(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{contentErr: domain.ErrNoSurface}
	engine, _ := newEngineForTest(t, surface, 10)

	_, err := engine.Extract(context.Background(), testAnchor())
	require.ErrorIs(t, err, domain.ErrNoSurface)
}

func TestExtractHonoursCancelledContext(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{contents: []string{"whatever content"}}
	engine, _ := newEngineForTest(t, surface, 10)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := engine.Extract(ctx, testAnchor())
	require.ErrorIs(t, err, context.Canceled)
}

func TestContentNewRequiresRecordedInjection(t *testing.T) {
	t.Parallel()

	engine, _ := newEngineForTest(t, &fakeSurface{}, 10)

	_, err := engine.ContentNew("msg_1_unknown", "content")
	require.ErrorIs(t, err, domain.ErrAnchorNotFound)
}

func TestContentNewDetectsGrowthOnly(t *testing.T) {
	t.Parallel()

	engine, clock := newEngineForTest(t, &fakeSurface{}, 10)
	id := domain.AnchorID("msg_1_tracked")
	engine.RecordInjection(id, clock.Now())

	grew, err := engine.ContentNew(id, "Hello")
	require.NoError(t, err)
	assert.True(t, grew)

	// Identical content never re-emits.
	grew, err = engine.ContentNew(id, "Hello")
	require.NoError(t, err)
	assert.False(t, grew)

	grew, err = engine.ContentNew(id, "Hello world")
	require.NoError(t, err)
	assert.True(t, grew)

	// A shrinking render is a glitch, not an update.
	grew, err = engine.ContentNew(id, "Hel")
	require.NoError(t, err)
	assert.False(t, grew)
}

func TestContentNewAfterForget(t *testing.T) {
	t.Parallel()

	engine, clock := newEngineForTest(t, &fakeSurface{}, 10)
	id := domain.AnchorID("msg_1_tracked")
	engine.RecordInjection(id, clock.Now())
	engine.Forget(id)

	_, err := engine.ContentNew(id, "content")
	require.ErrorIs(t, err, domain.ErrAnchorNotFound)
}

func TestCompletionSignal(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{busy: []bool{false}, input: true}
	engine, _ := newEngineForTest(t, surface, 10)

	signal, err := engine.Completion(context.Background(), "a substantial answer")
	require.NoError(t, err)
	assert.False(t, signal.StillBusy)
	assert.True(t, signal.HasContent)
	assert.True(t, signal.InputAvailable)
	assert.True(t, signal.Decided())

	signal, err = engine.Completion(context.Background(), "hm")
	require.NoError(t, err)
	assert.False(t, signal.HasContent)
	assert.False(t, signal.Decided(), "busy gone but no content is not completion")
}

func TestCompletionBusyProbeFailureIsError(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{busyErr: domain.ErrProbeTimeout}
	engine, _ := newEngineForTest(t, surface, 10)

	_, err := engine.Completion(context.Background(), "a substantial answer")
	require.ErrorIs(t, err, domain.ErrProbeTimeout,
		"an unresolved busy indicator must never read as completion")
}

func TestHealthProbes(t *testing.T) {
	t.Parallel()

	surface := &fakeSurface{ready: true, input: true}
	engine, _ := newEngineForTest(t, surface, 10)

	ready, err := engine.SurfaceReady(context.Background())
	require.NoError(t, err)
	assert.True(t, ready)

	available, err := engine.InputAvailable(context.Background())
	require.NoError(t, err)
	assert.True(t, available)
}
