package formatter

import (
	"strings"
	"testing"
	"time"

	"github.com/bytedance/sonic"
	"github.com/mattn/go-runewidth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evetools/fleetmeter/internal/core/model"
)

func sampleWith(chars map[string]model.DirectionRates) model.WindowSample {
	var totals model.DirectionRates
	for _, dr := range chars {
		totals.Outgoing.Add(dr.Outgoing)
		totals.Incoming.Add(dr.Incoming)
	}
	return model.WindowSample{
		AsOf:       42 * time.Second,
		Window:     5 * time.Second,
		Characters: chars,
		Totals:     totals,
	}
}

func TestRowsOrderedByOutgoingDamage(t *testing.T) {
	sample := sampleWith(map[string]model.DirectionRates{
		"Charlie": {Outgoing: model.KindRates{Damage: 10}},
		"Alpha":   {Outgoing: model.KindRates{Damage: 30}},
		"Bravo":   {Outgoing: model.KindRates{Damage: 30}},
		"Idle":    {},
	})

	rows := Rows(sample)
	require.Len(t, rows, 4)
	assert.Equal(t, "Alpha", rows[0].Name)
	assert.Equal(t, "Bravo", rows[1].Name)
	assert.Equal(t, "Charlie", rows[2].Name)
	assert.Equal(t, "Idle", rows[3].Name)
}

func TestTableShowsTotalsForFleet(t *testing.T) {
	sample := sampleWith(map[string]model.DirectionRates{
		"Alpha": {Outgoing: model.KindRates{Damage: 30}},
		"Bravo": {Outgoing: model.KindRates{Damage: 12.5}},
	})

	out := Table(sample)
	assert.Contains(t, out, "Alpha")
	assert.Contains(t, out, "TOTAL")
	assert.Contains(t, out, "42.5")
	assert.Contains(t, out, "00:42")
}

func TestTableOmitsTotalsForSoloCharacter(t *testing.T) {
	sample := sampleWith(map[string]model.DirectionRates{
		"Alpha": {Outgoing: model.KindRates{Damage: 30}},
	})
	assert.NotContains(t, Table(sample), "TOTAL")
}

func TestTableAlignsWideRunes(t *testing.T) {
	sample := sampleWith(map[string]model.DirectionRates{
		"パイロット": {Outgoing: model.KindRates{Damage: 10}},
		"Al":    {Outgoing: model.KindRates{Damage: 5}},
	})

	var rows []string
	for _, line := range strings.Split(Table(sample), "\n") {
		if strings.HasPrefix(line, "|") {
			rows = append(rows, line)
		}
	}
	require.NotEmpty(t, rows)
	// Wide-rune padding keeps the display width of every row equal.
	for _, row := range rows[1:] {
		assert.Equal(t, runewidth.StringWidth(rows[0]), runewidth.StringWidth(row))
	}
}

func TestProgressLine(t *testing.T) {
	line := ProgressLine(model.ReplayProgress{
		Offset:   75 * time.Second,
		Start:    15 * time.Second,
		Duration: 10 * time.Minute,
		Speed:    2,
		Paused:   true,
	})
	assert.Contains(t, line, "paused")
	assert.Contains(t, line, "01:00")
	assert.Contains(t, line, "10:00")
	assert.Contains(t, line, "2x")
}

func TestJSONRoundTrip(t *testing.T) {
	sample := sampleWith(map[string]model.DirectionRates{
		"Alpha": {Outgoing: model.KindRates{Damage: 30, Repair: 2}},
	})
	statuses := []model.SourceStatus{{
		Character: "Alpha", State: model.SourceTailing, EventCount: 9,
	}}

	line, err := JSON(sample, statuses)
	require.NoError(t, err)

	var decoded struct {
		Sample  model.WindowSample   `json:"sample"`
		Sources []model.SourceStatus `json:"sources"`
	}
	require.NoError(t, sonic.Unmarshal([]byte(line), &decoded))
	assert.InDelta(t, 30.0, decoded.Sample.Characters["Alpha"].Outgoing.Damage, 1e-9)
	assert.Equal(t, uint64(9), decoded.Sources[0].EventCount)
}
