package status

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bnema/deskbridge/internal/application"
	"github.com/bnema/deskbridge/internal/domain"
)

func TestRenderHealthySnapshot(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	snapshot := Snapshot{
		Health: application.HealthReport{
			Healthy: true,
			Components: map[string]application.ComponentHealth{
				application.ComponentSurface: {Healthy: true, LastCheck: now.Add(-10 * time.Second)},
				application.ComponentInput:   {Healthy: true, LastCheck: now.Add(-10 * time.Second)},
			},
			CheckedAt: now,
		},
		Contexts: 3,
	}

	out, err := Render(snapshot, RenderOptions{Now: now})
	require.NoError(t, err)

	assert.Contains(t, out, "Deskbridge Status")
	assert.Contains(t, out, "contexts: 3")
	assert.Contains(t, out, "healthy")
	assert.Contains(t, out, "surface")
	assert.Contains(t, out, "input")
	assert.Contains(t, out, "10s ago")
}

func TestRenderDegradedWithStaleCheck(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	snapshot := Snapshot{
		Health: application.HealthReport{
			Healthy: false,
			Components: map[string]application.ComponentHealth{
				application.ComponentInput: {Healthy: false, ConsecutiveFailures: 4, LastCheck: now.Add(-time.Hour)},
			},
		},
	}

	out, err := Render(snapshot, RenderOptions{Now: now, StaleAfter: 5 * time.Minute})
	require.NoError(t, err)

	assert.Contains(t, out, "degraded")
	assert.Contains(t, out, "failing (4 consecutive)")
	assert.Contains(t, out, "[stale]")
}

func TestRenderActiveMonitors(t *testing.T) {
	now := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)

	snapshot := Snapshot{
		Health: application.HealthReport{Healthy: true},
		Active: []domain.Anchor{
			{ID: "msg_1_abc", Status: domain.AnchorStatusStreaming, CreatedAt: now.Add(-42 * time.Second)},
		},
		Contexts: 1,
	}

	out, err := Render(snapshot, RenderOptions{Now: now})
	require.NoError(t, err)

	assert.Contains(t, out, "in flight:")
	assert.Contains(t, out, "msg_1_abc")
	assert.Contains(t, out, "streaming")
	assert.Contains(t, out, "42s ago")
}

func TestRenderNoChecksYet(t *testing.T) {
	out, err := Render(Snapshot{}, RenderOptions{})
	require.NoError(t, err)
	assert.Contains(t, out, "no health checks have run yet")
}
