package aggregator

import (
	"sort"
	"time"

	"github.com/evetools/fleetmeter/internal/core/constants"
	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/core/store"
)

// bucketKey addresses one aggregation cell.
type bucketKey struct {
	character string
	kind      model.ActionKind
	incoming  bool
}

// Aggregator maintains the trailing window [now-window, now] over the
// event store incrementally: two cursors bound the in-window range, and
// per-bucket integer sums are updated as events enter and leave. Sample
// cost is O(events crossing the boundary) for a monotonic now, and
// O(log N + K) after a seek, a window change, an active-set change, or an
// out-of-tail store insert. It never rescans the whole store.
//
// Sums are int64 centipoints; division by the window length happens only
// when a sample is emitted, so repeated add/remove cycles cannot drift.
type Aggregator struct {
	store  *store.Store
	window time.Duration

	startIdx    int
	endIdx      int
	lastNow     time.Duration
	lastVersion uint64
	primed      bool

	// active is the set of origin characters contributing to buckets.
	// nil means every origin contributes.
	active map[string]bool

	sums            map[bucketKey]int64
	outByTarget     map[string]int64
	outByWeapon     map[string]int64
	inBySource      map[string]int64
	outByCharTarget map[string]map[string]int64
	outByCharWeapon map[string]map[string]int64
	notifyCounts    map[string]int
}

func New(st *store.Store, window time.Duration) *Aggregator {
	a := &Aggregator{
		store:  st,
		window: window,
	}
	a.reset()
	return a
}

func (a *Aggregator) reset() {
	a.sums = make(map[bucketKey]int64)
	a.outByTarget = make(map[string]int64)
	a.outByWeapon = make(map[string]int64)
	a.inBySource = make(map[string]int64)
	a.outByCharTarget = make(map[string]map[string]int64)
	a.outByCharWeapon = make(map[string]map[string]int64)
	a.notifyCounts = make(map[string]int)
	a.primed = false
}

// Window returns the configured window duration.
func (a *Aggregator) Window() time.Duration {
	return a.window
}

// SetWindow changes the window duration. Takes effect on the next sample
// via a windowed rebuild.
func (a *Aggregator) SetWindow(window time.Duration) {
	if window != a.window {
		a.window = window
		a.primed = false
	}
}

// SetActiveSources restricts aggregation to the given origin characters.
// History stays in the store; the next sample rebuilds the window
// filtered to the new set, so a re-enabled source contributes its
// in-window history immediately.
func (a *Aggregator) SetActiveSources(characters []string) {
	active := make(map[string]bool, len(characters))
	for _, ch := range characters {
		active[ch] = true
	}
	a.active = active
	a.primed = false
}

// Invalidate forces the next sample to rebuild from binary search.
// Replay calls this on seek, where the entering/leaving assumption breaks.
func (a *Aggregator) Invalidate() {
	a.primed = false
}

// Sample computes the window snapshot for the given now. now is expected
// to be non-decreasing between samples; a backward jump is detected and
// handled by rebuilding.
func (a *Aggregator) Sample(now time.Duration) model.WindowSample {
	events, version := a.store.View()

	if !a.primed || version != a.lastVersion || now < a.lastNow {
		a.rebuild(events, now)
	} else {
		a.advance(events, now)
	}
	a.lastNow = now
	a.lastVersion = version

	return a.emit(now)
}

// advance folds only the events that crossed a window boundary since the
// previous sample.
func (a *Aggregator) advance(events []model.CombatEvent, now time.Duration) {
	winStart := now - a.window
	for a.endIdx < len(events) && events[a.endIdx].Timestamp <= now {
		a.apply(events[a.endIdx], +1)
		a.endIdx++
	}
	for a.startIdx < a.endIdx && events[a.startIdx].Timestamp < winStart {
		a.apply(events[a.startIdx], -1)
		a.startIdx++
	}
}

// rebuild locates the window bounds by binary search and refolds the
// in-window events from scratch.
func (a *Aggregator) rebuild(events []model.CombatEvent, now time.Duration) {
	a.reset()
	winStart := now - a.window

	a.startIdx = sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp >= winStart
	})
	a.endIdx = sort.Search(len(events), func(i int) bool {
		return events[i].Timestamp > now
	})
	for i := a.startIdx; i < a.endIdx; i++ {
		a.apply(events[i], +1)
	}
	a.primed = true
}

// apply adds (sign=+1) or removes (sign=-1) one event's contribution.
func (a *Aggregator) apply(ev model.CombatEvent, sign int64) {
	if a.active != nil && !a.active[ev.Character] {
		return
	}

	if ev.NotifyOnly {
		a.notifyCounts[ev.Character] += int(sign)
		if a.notifyCounts[ev.Character] <= 0 {
			delete(a.notifyCounts, ev.Character)
		}
		return
	}

	key := bucketKey{character: ev.Character, kind: ev.Kind, incoming: ev.Incoming}
	a.sums[key] += sign * ev.Magnitude
	if a.sums[key] == 0 {
		delete(a.sums, key)
	}

	if ev.Kind != model.ActionDamage {
		return
	}
	delta := sign * ev.Magnitude
	if ev.Incoming {
		addTo(a.inBySource, ev.Source, delta)
		return
	}
	addTo(a.outByTarget, ev.Target, delta)
	if ev.Weapon != "" {
		addTo(a.outByWeapon, ev.Weapon, delta)
	}
	addNested(a.outByCharTarget, ev.Character, ev.Target, delta)
	if ev.Weapon != "" {
		addNested(a.outByCharWeapon, ev.Character, ev.Weapon, delta)
	}
}

func addTo(m map[string]int64, key string, delta int64) {
	m[key] += delta
	if m[key] == 0 {
		delete(m, key)
	}
}

func addNested(m map[string]map[string]int64, outer, inner string, delta int64) {
	sub := m[outer]
	if sub == nil {
		sub = make(map[string]int64)
		m[outer] = sub
	}
	sub[inner] += delta
	if sub[inner] == 0 {
		delete(sub, inner)
		if len(sub) == 0 {
			delete(m, outer)
		}
	}
}

// emit converts the integer sums into a WindowSample. Global totals are
// produced by summing the per-character entries, so the sum-of-sums
// invariant holds by construction.
func (a *Aggregator) emit(now time.Duration) model.WindowSample {
	seconds := a.window.Seconds()
	if seconds <= 0 {
		seconds = 1
	}

	characters := make(map[string]model.DirectionRates, len(a.active))
	// Tracked characters with zero activity report rate 0, not absence.
	for ch := range a.active {
		characters[ch] = model.DirectionRates{}
	}
	for key, sum := range a.sums {
		rate := float64(sum) / constants.MagnitudeScale / seconds
		dr := characters[key.character]
		kr := &dr.Outgoing
		if key.incoming {
			kr = &dr.Incoming
		}
		switch key.kind {
		case model.ActionDamage:
			kr.Damage += rate
		case model.ActionRepair:
			kr.Repair += rate
		case model.ActionCapacitorTransfer:
			kr.CapTransfer += rate
		case model.ActionEnergyDrain:
			kr.EnergyDrain += rate
		}
		characters[key.character] = dr
	}

	var totals model.DirectionRates
	for _, dr := range characters {
		totals.Outgoing.Add(dr.Outgoing)
		totals.Incoming.Add(dr.Incoming)
	}

	sample := model.WindowSample{
		AsOf:             now,
		Window:           a.window,
		Characters:       characters,
		Totals:           totals,
		OutgoingByTarget: rateMap(a.outByTarget, seconds),
		OutgoingByWeapon: rateMap(a.outByWeapon, seconds),
		IncomingBySource: rateMap(a.inBySource, seconds),
	}
	if len(a.outByCharTarget) > 0 {
		sample.OutgoingByCharTarget = nestedRateMap(a.outByCharTarget, seconds)
	}
	if len(a.outByCharWeapon) > 0 {
		sample.OutgoingByCharWeapon = nestedRateMap(a.outByCharWeapon, seconds)
	}
	if len(a.notifyCounts) > 0 {
		counts := make(map[string]int, len(a.notifyCounts))
		for ch, n := range a.notifyCounts {
			counts[ch] = n
		}
		sample.NotifyCounts = counts
	}
	return sample
}

func rateMap(sums map[string]int64, seconds float64) map[string]float64 {
	if len(sums) == 0 {
		return nil
	}
	out := make(map[string]float64, len(sums))
	for key, sum := range sums {
		out[key] = float64(sum) / constants.MagnitudeScale / seconds
	}
	return out
}

func nestedRateMap(sums map[string]map[string]int64, seconds float64) map[string]map[string]float64 {
	out := make(map[string]map[string]float64, len(sums))
	for outer, sub := range sums {
		inner := make(map[string]float64, len(sub))
		for key, sum := range sub {
			inner[key] = float64(sum) / constants.MagnitudeScale / seconds
		}
		out[outer] = inner
	}
	return out
}
