package store

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/fleetmeter/internal/core/model"
)

func event(character string, offset time.Duration, magnitude int64) model.CombatEvent {
	return model.CombatEvent{
		Timestamp: offset,
		Character: character,
		Source:    character,
		Target:    "Alpha",
		Kind:      model.ActionDamage,
		Magnitude: magnitude,
	}
}

func TestAppendMergesAcrossSources(t *testing.T) {
	s := New()

	require.NoError(t, s.Append(event("A", 1*time.Second, 100)))
	require.NoError(t, s.Append(event("A", 2*time.Second, 200)))
	// B lags behind A's tail and must merge into the middle.
	require.NoError(t, s.Append(event("B", 1500*time.Millisecond, 300)))

	events, _ := s.View()
	require.Len(t, events, 3)
	assert.Equal(t, "A", events[0].Character)
	assert.Equal(t, "B", events[1].Character)
	assert.Equal(t, "A", events[2].Character)
	for i := 1; i < len(events); i++ {
		assert.LessOrEqual(t, events[i-1].Timestamp, events[i].Timestamp)
	}
}

func TestAppendKeepsInsertionOrderOnTies(t *testing.T) {
	s := New()

	require.NoError(t, s.Append(event("A", time.Second, 1)))
	require.NoError(t, s.Append(event("B", time.Second, 2)))
	require.NoError(t, s.Append(event("C", time.Second, 3)))

	events, _ := s.View()
	require.Len(t, events, 3)
	assert.Equal(t, "A", events[0].Character)
	assert.Equal(t, "B", events[1].Character)
	assert.Equal(t, "C", events[2].Character)
}

func TestAppendRejectsSameSourceRegression(t *testing.T) {
	s := New()

	require.NoError(t, s.Append(event("A", 2*time.Second, 100)))
	err := s.Append(event("A", 1*time.Second, 200))
	assert.ErrorIs(t, err, ErrOutOfOrder)

	// Equal timestamps from the same source are fine.
	assert.NoError(t, s.Append(event("A", 2*time.Second, 300)))
	assert.Equal(t, 2, s.Len())
}

func TestVersionBumpsOnlyOnOutOfTailInsert(t *testing.T) {
	s := New()

	require.NoError(t, s.Append(event("A", 1*time.Second, 1)))
	require.NoError(t, s.Append(event("A", 2*time.Second, 1)))
	assert.Equal(t, uint64(0), s.Version())

	require.NoError(t, s.Append(event("B", 1500*time.Millisecond, 1)))
	assert.Equal(t, uint64(1), s.Version())

	// Tail append after the merge keeps the version stable.
	require.NoError(t, s.Append(event("B", 3*time.Second, 1)))
	assert.Equal(t, uint64(1), s.Version())
}

func TestEventsIn(t *testing.T) {
	s := New()
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Append(event("A", time.Duration(i)*time.Second, int64(i))))
	}

	got := s.EventsIn(3*time.Second, 6*time.Second)
	require.Len(t, got, 3)
	assert.Equal(t, 3*time.Second, got[0].Timestamp)
	assert.Equal(t, 5*time.Second, got[2].Timestamp)

	assert.Empty(t, s.EventsIn(20*time.Second, 30*time.Second))
}
