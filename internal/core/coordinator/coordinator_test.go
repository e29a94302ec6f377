package coordinator

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/fleetmeter/internal/core/aggregator"
	"github.com/evetools/fleetmeter/internal/core/constants"
	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/core/store"
	"github.com/evetools/fleetmeter/internal/testing/fixtures"
)

var sessionStart = time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)

func newTestCoordinator() (*Coordinator, *store.Store) {
	st := store.New()
	agg := aggregator.New(st, 5*time.Second)
	return New(st, agg, constants.TickInterval), st
}

func appendLines(t *testing.T, path string, lines ...string) {
	t.Helper()
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0644)
	require.NoError(t, err)
	defer f.Close()
	for _, line := range lines {
		_, err = f.WriteString(line + "\r\n")
		require.NoError(t, err)
	}
}

func combatAt(offset time.Duration, body string) string {
	return "[ " + sessionStart.Add(offset).Format(constants.TimestampLayout) + " ] (combat) " + body
}

func statusFor(statuses []model.SourceStatus, character string) (model.SourceStatus, bool) {
	for _, st := range statuses {
		if st.Character == character {
			return st, true
		}
	}
	return model.SourceStatus{}, false
}

func TestLiveTailFlow(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "log.txt")

	coord, st := newTestCoordinator()
	coord.SetSelection([]model.Selection{{Character: "Pilot One", Path: path, Enabled: true}})
	coord.Tick()

	status, ok := statusFor(coord.Statuses(), "Pilot One")
	require.True(t, ok)
	assert.Equal(t, model.SourceTailing, status.State)
	assert.Zero(t, st.Len(), "pre-existing lines are not backfilled")

	appendLines(t, path,
		combatAt(time.Second, "100 to Alpha - Laser - Hits"),
		combatAt(2*time.Second, "200 to Alpha - Laser - Penetrates"),
	)
	sample := coord.Tick()

	assert.Equal(t, 2, st.Len())
	assert.InDelta(t, 60.0, sample.Characters["Pilot One"].Outgoing.Damage, 0.5)
}

func TestMultiSourceMerge(t *testing.T) {
	dir := t.TempDir()
	pathA := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "a.txt")
	// B's session started 30s later; its offsets must rebase onto A's.
	pathB := fixtures.NewLog("Pilot Two", sessionStart.Add(30*time.Second)).Write(t, dir, "b.txt")

	coord, st := newTestCoordinator()
	coord.SetSelection([]model.Selection{
		{Character: "Pilot One", Path: pathA, Enabled: true},
		{Character: "Pilot Two", Path: pathB, Enabled: true},
	})
	coord.Tick()

	appendLines(t, pathA, combatAt(31*time.Second, "100 to Alpha - Laser - Hits"))
	appendLines(t, pathB,
		"[ "+sessionStart.Add(32*time.Second).Format(constants.TimestampLayout)+" ] (combat) 50 to Alpha - Laser - Hits")
	coord.Tick()

	events, _ := st.View()
	require.Len(t, events, 2)
	assert.Equal(t, "Pilot One", events[0].Character)
	assert.Equal(t, 31*time.Second, events[0].Timestamp)
	assert.Equal(t, "Pilot Two", events[1].Character)
	assert.Equal(t, 32*time.Second, events[1].Timestamp)
}

func TestSessionAnchorBindsEarliest(t *testing.T) {
	// Map iteration order must not decide which source's anchor becomes
	// the session zero point; repeat the two-source open enough times to
	// hit both orders.
	for i := 0; i < 20; i++ {
		dir := t.TempDir()
		pathA := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "a.txt")
		pathB := fixtures.NewLog("Pilot Two", sessionStart.Add(30*time.Second)).Write(t, dir, "b.txt")

		coord, st := newTestCoordinator()
		// Selection order lists the later session first on odd rounds.
		sel := []model.Selection{
			{Character: "Pilot One", Path: pathA, Enabled: true},
			{Character: "Pilot Two", Path: pathB, Enabled: true},
		}
		if i%2 == 1 {
			sel[0], sel[1] = sel[1], sel[0]
		}
		coord.SetSelection(sel)
		coord.Tick()

		appendLines(t, pathA, combatAt(31*time.Second, "100 to Alpha - Laser - Hits"))
		appendLines(t, pathB,
			"[ "+sessionStart.Add(32*time.Second).Format(constants.TimestampLayout)+" ] (combat) 50 to Alpha - Laser - Hits")
		coord.Tick()

		events, _ := st.View()
		require.Len(t, events, 2, "round %d", i)
		require.Equal(t, 31*time.Second, events[0].Timestamp, "round %d", i)
		require.Equal(t, 32*time.Second, events[1].Timestamp, "round %d", i)
	}
}

func TestSourceErrorSurfaces(t *testing.T) {
	coord, _ := newTestCoordinator()
	missing := filepath.Join(t.TempDir(), "gone.txt")
	coord.SetSelection([]model.Selection{{Character: "Pilot One", Path: missing, Enabled: true}})
	coord.Tick()

	status, ok := statusFor(coord.Statuses(), "Pilot One")
	require.True(t, ok)
	assert.Equal(t, model.SourceError, status.State)
	assert.NotEmpty(t, status.Error)
}

func TestWaitingAnchorResolvesInStream(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "log.txt")
	require.NoError(t, os.WriteFile(path, nil, 0644))

	coord, st := newTestCoordinator()
	coord.SetSelection([]model.Selection{{Character: "Pilot One", Path: path, Enabled: true}})
	coord.Tick()

	status, ok := statusFor(coord.Statuses(), "Pilot One")
	require.True(t, ok)
	assert.Equal(t, model.SourceWaitingAnchor, status.State)

	// Combat before the anchor is rejected, never guessed at.
	appendLines(t, path, combatAt(time.Second, "100 to Alpha - Laser - Hits"))
	coord.Tick()
	assert.Zero(t, st.Len())

	appendLines(t, path,
		"  Listener: Pilot One",
		"  Session Started: "+sessionStart.Format(constants.TimestampLayout),
		combatAt(2*time.Second, "100 to Alpha - Laser - Hits"),
	)
	coord.Tick()

	status, _ = statusFor(coord.Statuses(), "Pilot One")
	assert.Equal(t, model.SourceTailing, status.State)
	assert.Equal(t, 1, st.Len())
}

func TestHotRemoveKeepsHistory(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "log.txt")

	coord, st := newTestCoordinator()
	sel := []model.Selection{{Character: "Pilot One", Path: path, Enabled: true}}
	coord.SetSelection(sel)
	coord.Tick()

	appendLines(t, path, combatAt(time.Second, "100 to Alpha - Laser - Hits"))
	coord.Tick()
	require.Equal(t, 1, st.Len())

	// Disable the source: events stay stored but leave the sample.
	sel[0].Enabled = false
	coord.SetSelection(sel)
	sample := coord.Tick()

	assert.Equal(t, 1, st.Len())
	assert.NotContains(t, sample.Characters, "Pilot One")
	_, ok := statusFor(coord.Statuses(), "Pilot One")
	assert.False(t, ok)
}

func TestOutOfOrderLineDropped(t *testing.T) {
	dir := t.TempDir()
	path := fixtures.NewLog("Pilot One", sessionStart).Write(t, dir, "log.txt")

	coord, st := newTestCoordinator()
	coord.SetSelection([]model.Selection{{Character: "Pilot One", Path: path, Enabled: true}})
	coord.Tick()

	appendLines(t, path,
		combatAt(5*time.Second, "100 to Alpha - Laser - Hits"),
		combatAt(3*time.Second, "999 to Alpha - Laser - Hits"),
		combatAt(6*time.Second, "200 to Alpha - Laser - Hits"),
	)
	coord.Tick()

	events, _ := st.View()
	require.Len(t, events, 2)
	assert.Equal(t, int64(10000), events[0].Magnitude)
	assert.Equal(t, int64(20000), events[1].Magnitude)
}
