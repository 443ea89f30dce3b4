package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/deskbridge/internal/domain"
)

func newAnchorRegistryForTest(t *testing.T) (*AnchorRegistry, *fakeClock) {
	t.Helper()
	clock := newFakeClock(time.Date(2025, 5, 1, 10, 0, 0, 0, time.UTC))
	registry := NewAnchorRegistry(clock, AnchorRegistryConfig{
		SweepInterval: time.Minute,
		MaxAge:        time.Hour,
	})

	return registry, clock
}

func TestAnchorRegistryTrackAndGet(t *testing.T) {
	t.Parallel()

	registry, clock := newAnchorRegistryForTest(t)

	id := registry.Generate()
	tracked, err := registry.Track(id, map[string]string{"user": "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.AnchorStatusCreated, tracked.Status)
	assert.Equal(t, clock.Now(), tracked.CreatedAt)
	assert.Equal(t, "alice", tracked.Metadata["user"])

	got, ok := registry.Get(id)
	require.True(t, ok)
	assert.Equal(t, tracked, got)
}

func TestAnchorRegistryTrackRejectsReuse(t *testing.T) {
	t.Parallel()

	registry, _ := newAnchorRegistryForTest(t)

	id := registry.Generate()
	_, err := registry.Track(id, nil)
	require.NoError(t, err)

	_, err = registry.Track(id, nil)
	require.ErrorIs(t, err, domain.ErrAnchorTracked)
	assert.Equal(t, 1, registry.Len())
}

func TestAnchorRegistryUpdateUnknownIsNoOp(t *testing.T) {
	t.Parallel()

	registry, _ := newAnchorRegistryForTest(t)

	_, ok := registry.SetStatus("msg_1_ghost", domain.AnchorStatusComplete)
	assert.False(t, ok)
	assert.Equal(t, 0, registry.Len())
}

func TestAnchorRegistryUpdateRefreshesActivity(t *testing.T) {
	t.Parallel()

	registry, clock := newAnchorRegistryForTest(t)

	id := registry.Generate()
	tracked, err := registry.Track(id, nil)
	require.NoError(t, err)

	clock.Advance(10 * time.Minute)
	updated, ok := registry.SetStatus(id, domain.AnchorStatusInjected)
	require.True(t, ok)
	assert.Equal(t, domain.AnchorStatusInjected, updated.Status)
	assert.True(t, updated.LastActivity.After(tracked.LastActivity))
}

func TestAnchorRegistrySweepEvictsStale(t *testing.T) {
	t.Parallel()

	registry, clock := newAnchorRegistryForTest(t)

	stale := registry.Generate()
	_, err := registry.Track(stale, nil)
	require.NoError(t, err)

	clock.Advance(2 * time.Hour)

	fresh := registry.Generate()
	_, err = registry.Track(fresh, nil)
	require.NoError(t, err)

	evicted := registry.Sweep()
	assert.Equal(t, 1, evicted)

	_, ok := registry.Get(stale)
	assert.False(t, ok)
	_, ok = registry.Get(fresh)
	assert.True(t, ok)
}

func TestAnchorRegistrySweepSparesInFlight(t *testing.T) {
	t.Parallel()

	registry, clock := newAnchorRegistryForTest(t)

	streaming := registry.Generate()
	_, err := registry.Track(streaming, nil)
	require.NoError(t, err)
	_, ok := registry.SetStatus(streaming, domain.AnchorStatusStreaming)
	require.True(t, ok)

	clock.Advance(48 * time.Hour)

	assert.Equal(t, 0, registry.Sweep())
	_, ok = registry.Get(streaming)
	assert.True(t, ok)
}

func TestAnchorRegistryListByStatus(t *testing.T) {
	t.Parallel()

	registry, clock := newAnchorRegistryForTest(t)

	first := registry.Generate()
	_, err := registry.Track(first, nil)
	require.NoError(t, err)

	clock.Advance(time.Second)

	second := registry.Generate()
	_, err = registry.Track(second, nil)
	require.NoError(t, err)
	registry.SetStatus(second, domain.AnchorStatusComplete)

	created := registry.ListByStatus(domain.AnchorStatusCreated)
	require.Len(t, created, 1)
	assert.Equal(t, first, created[0].ID)

	complete := registry.ListByStatus(domain.AnchorStatusComplete)
	require.Len(t, complete, 1)
	assert.Equal(t, second, complete[0].ID)
}

func TestAnchorRegistryListRecent(t *testing.T) {
	t.Parallel()

	registry, clock := newAnchorRegistryForTest(t)

	old := registry.Generate()
	_, err := registry.Track(old, nil)
	require.NoError(t, err)

	clock.Advance(30 * time.Minute)

	recent := registry.Generate()
	_, err = registry.Track(recent, nil)
	require.NoError(t, err)

	within := registry.ListRecent(10 * time.Minute)
	require.Len(t, within, 1)
	assert.Equal(t, recent, within[0].ID)

	assert.Len(t, registry.ListRecent(2*time.Hour), 2)
}
