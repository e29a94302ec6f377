package formatter

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/mattn/go-runewidth"

	"github.com/evetools/fleetmeter/internal/core/model"
)

// topEntries caps the per-target and per-weapon breakdown rows.
const topEntries = 5

// characterRow is one display line of the per-character table.
type characterRow struct {
	Name        string
	OutDamage   float64
	InDamage    float64
	OutRepair   float64
	OutCap      float64
	OutDrain    float64
	NotifyCount int
}

// Rows flattens a sample into display rows, ordered by outgoing damage
// descending, name ascending on ties.
func Rows(sample model.WindowSample) []characterRow {
	rows := make([]characterRow, 0, len(sample.Characters))
	for name, rates := range sample.Characters {
		rows = append(rows, characterRow{
			Name:        name,
			OutDamage:   rates.Outgoing.Damage,
			InDamage:    rates.Incoming.Damage,
			OutRepair:   rates.Outgoing.Repair,
			OutCap:      rates.Outgoing.CapTransfer,
			OutDrain:    rates.Outgoing.EnergyDrain,
			NotifyCount: sample.NotifyCounts[name],
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].OutDamage != rows[j].OutDamage {
			return rows[i].OutDamage > rows[j].OutDamage
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// Table renders a sample as a bordered terminal table. Cell widths use
// display width, not byte length, so CJK entity names stay aligned.
func Table(sample model.WindowSample) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Window %s  @ %s\n",
		sample.Window, formatOffset(sample.AsOf))

	headers := []string{"Pilot", "DPS", "Inc DPS", "Rep/s", "Cap/s", "Neut/s", "Alerts"}
	rows := Rows(sample)

	cells := make([][]string, 0, len(rows)+1)
	for _, row := range rows {
		cells = append(cells, []string{
			row.Name,
			formatRate(row.OutDamage),
			formatRate(row.InDamage),
			formatRate(row.OutRepair),
			formatRate(row.OutCap),
			formatRate(row.OutDrain),
			formatCount(row.NotifyCount),
		})
	}
	if len(rows) > 1 {
		cells = append(cells, []string{
			"TOTAL",
			formatRate(sample.Totals.Outgoing.Damage),
			formatRate(sample.Totals.Incoming.Damage),
			formatRate(sample.Totals.Outgoing.Repair),
			formatRate(sample.Totals.Outgoing.CapTransfer),
			formatRate(sample.Totals.Outgoing.EnergyDrain),
			"",
		})
	}

	writeGrid(&b, headers, cells)

	if len(sample.OutgoingByTarget) > 0 {
		b.WriteString("\nTop targets:\n")
		writeBreakdown(&b, sample.OutgoingByTarget)
	}
	if len(sample.IncomingBySource) > 0 {
		b.WriteString("\nIncoming from:\n")
		writeBreakdown(&b, sample.IncomingBySource)
	}
	return b.String()
}

func writeGrid(b *strings.Builder, headers []string, cells [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = runewidth.StringWidth(h)
	}
	for _, row := range cells {
		for i, cell := range row {
			if w := runewidth.StringWidth(cell); w > widths[i] {
				widths[i] = w
			}
		}
	}

	writeRule(b, widths)
	writeRow(b, headers, widths)
	writeRule(b, widths)
	for _, row := range cells {
		writeRow(b, row, widths)
	}
	writeRule(b, widths)
}

func writeRow(b *strings.Builder, cells []string, widths []int) {
	b.WriteString("|")
	for i, cell := range cells {
		pad := widths[i] - runewidth.StringWidth(cell)
		if i == 0 {
			// Name column left-aligned, numbers right-aligned.
			b.WriteString(" " + cell + strings.Repeat(" ", pad) + " |")
		} else {
			b.WriteString(" " + strings.Repeat(" ", pad) + cell + " |")
		}
	}
	b.WriteString("\n")
}

func writeRule(b *strings.Builder, widths []int) {
	b.WriteString("+")
	for _, w := range widths {
		b.WriteString(strings.Repeat("-", w+2) + "+")
	}
	b.WriteString("\n")
}

func writeBreakdown(b *strings.Builder, rates map[string]float64) {
	type entry struct {
		name string
		rate float64
	}
	entries := make([]entry, 0, len(rates))
	for name, rate := range rates {
		entries = append(entries, entry{name, rate})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].rate != entries[j].rate {
			return entries[i].rate > entries[j].rate
		}
		return entries[i].name < entries[j].name
	})
	if len(entries) > topEntries {
		entries = entries[:topEntries]
	}
	for _, e := range entries {
		fmt.Fprintf(b, "  %s %s\n",
			runewidth.FillRight(e.name, 28), formatRate(e.rate))
	}
}

// StatusLines renders source statuses for the footer.
func StatusLines(statuses []model.SourceStatus) string {
	var b strings.Builder
	for _, st := range statuses {
		fmt.Fprintf(&b, "%s  %s  events=%d rejected=%d",
			runewidth.FillRight(st.Character, 24), st.State, st.EventCount, st.RejectedLines)
		if st.Error != "" {
			fmt.Fprintf(&b, "  (%s)", st.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// ProgressLine renders the replay transport state.
func ProgressLine(p model.ReplayProgress) string {
	state := "playing"
	if p.Paused {
		state = "paused"
	}
	return fmt.Sprintf("[%s] %s / %s  %.2gx",
		state, formatOffset(p.Offset-p.Start), formatOffset(p.Duration), p.Speed)
}

func formatRate(rate float64) string {
	return fmt.Sprintf("%.1f", rate)
}

func formatCount(n int) string {
	if n == 0 {
		return ""
	}
	return fmt.Sprintf("%d", n)
}

// ProgressOffset renders a session offset as h:mm:ss or mm:ss.
func ProgressOffset(d time.Duration) string {
	return formatOffset(d)
}

func formatOffset(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	d = d.Round(time.Second)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	s := (d % time.Minute) / time.Second
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%02d:%02d", m, s)
}
