package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewAnchorIDUniqueness(t *testing.T) {
	t.Parallel()

	now := time.Now()
	seen := make(map[AnchorID]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		id := NewAnchorID(now)
		_, dup := seen[id]
		require.False(t, dup, "duplicate anchor id %s", id)
		seen[id] = struct{}{}
	}
}

func TestAnchorTimestampRoundTrip(t *testing.T) {
	t.Parallel()

	at := time.Date(2025, 6, 1, 12, 30, 45, 0, time.UTC)
	id := NewAnchorID(at)

	recovered, err := AnchorTimestamp(id)
	require.NoError(t, err)
	assert.Equal(t, at.UnixMilli(), recovered.UnixMilli())
}

func TestAnchorTimestampMalformed(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		id   AnchorID
	}{
		{name: "empty", id: ""},
		{name: "wrong prefix", id: "req_1700000000000_abcdef"},
		{name: "missing suffix", id: "msg_1700000000000"},
		{name: "non numeric millis", id: "msg_notanumber_abcdef"},
		{name: "extra segments", id: "msg_1_2_3"},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			_, err := AnchorTimestamp(tc.id)
			require.Error(t, err)
		})
	}
}

func TestAnchorStatusHelpers(t *testing.T) {
	t.Parallel()

	assert.True(t, AnchorStatusResponding.InFlight())
	assert.True(t, AnchorStatusStreaming.InFlight())
	assert.False(t, AnchorStatusCreated.InFlight())
	assert.False(t, AnchorStatusComplete.InFlight())

	assert.True(t, AnchorStatusComplete.Terminal())
	assert.True(t, AnchorStatusFailed.Terminal())
	assert.True(t, AnchorStatusExpired.Terminal())
	assert.False(t, AnchorStatusStreaming.Terminal())
}

func TestNewContextIDUnique(t *testing.T) {
	t.Parallel()

	now := time.Now()
	seen := make(map[ContextID]struct{}, 1000)
	for i := 0; i < 1000; i++ {
		id := NewContextID(now)
		_, dup := seen[id]
		require.False(t, dup)
		seen[id] = struct{}{}
	}
}
