package coordinator

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/evetools/fleetmeter/internal/core/aggregator"
	"github.com/evetools/fleetmeter/internal/core/constants"
	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/core/store"
	"github.com/evetools/fleetmeter/internal/data/classifier"
	"github.com/evetools/fleetmeter/internal/data/discovery"
	"github.com/evetools/fleetmeter/internal/data/tailer"
	"github.com/evetools/fleetmeter/internal/util"
)

// readConcurrency bounds how many source files are polled in parallel in
// one tick, so one slow file cannot serialize the others.
const readConcurrency = 8

// trackedSource is the coordinator-private state of one log under watch.
type trackedSource struct {
	character string
	path      string
	state     model.SourceState
	tailer    *tailer.Tailer
	cls       *classifier.Classifier

	// anchorDelta rebases this source's per-anchor offsets onto the
	// shared session anchor so merged timestamps stay comparable.
	anchorDelta time.Duration
	deltaSet    bool

	lastErr    error
	eventCount uint64
}

// Coordinator drives live mode: on each tick it polls every enabled
// source for appended lines, classifies them, appends accepted events to
// the shared store, and emits a window sample. Sources are added and
// removed against the user's selection without discarding history.
type Coordinator struct {
	store *store.Store
	agg   *aggregator.Aggregator
	tick  time.Duration

	sources map[string]*trackedSource

	selMu     sync.Mutex
	selection []model.Selection
	selDirty  bool

	statusMu sync.RWMutex
	statuses []model.SourceStatus

	sessionAnchor time.Time
	anchorSet     bool

	lastEventOffset time.Duration
	lastEventSeen   time.Time
	haveEvent       bool

	samples chan model.WindowSample
}

func New(st *store.Store, agg *aggregator.Aggregator, tick time.Duration) *Coordinator {
	if tick <= 0 {
		tick = constants.TickInterval
	}
	return &Coordinator{
		store:   st,
		agg:     agg,
		tick:    tick,
		sources: make(map[string]*trackedSource),
		samples: make(chan model.WindowSample, 16),
	}
}

// SetSelection replaces the tracked-source selection. The change is
// applied on the next tick, without rebuilding the event store.
func (c *Coordinator) SetSelection(selection []model.Selection) {
	c.selMu.Lock()
	defer c.selMu.Unlock()
	c.selection = append([]model.Selection(nil), selection...)
	c.selDirty = true
}

// Samples is the stream of window snapshots for the presentation layer.
// Slow consumers lose intermediate samples, never block the loop.
func (c *Coordinator) Samples() <-chan model.WindowSample {
	return c.samples
}

// Statuses returns the externally visible state of every tracked source,
// including those in error state.
func (c *Coordinator) Statuses() []model.SourceStatus {
	c.statusMu.RLock()
	defer c.statusMu.RUnlock()
	return append([]model.SourceStatus(nil), c.statuses...)
}

// Run drives the tick loop until ctx is cancelled. Cancellation is
// observed within one tick.
func (c *Coordinator) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	defer c.closeAll()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.Tick()
		}
	}
}

// Tick runs one reconcile/poll/classify/sample cycle. Exposed for tests
// and for callers that drive their own cadence.
func (c *Coordinator) Tick() model.WindowSample {
	c.reconcile()
	c.poll()

	now := c.currentOffset()
	sample := c.agg.Sample(now)

	select {
	case c.samples <- sample:
	default:
	}
	c.publishStatuses()
	return sample
}

// currentOffset projects "now" forward from the newest event's offset by
// the wall time elapsed since it was read, so rates decay smoothly
// between log writes.
func (c *Coordinator) currentOffset() time.Duration {
	if !c.haveEvent {
		return 0
	}
	return c.lastEventOffset + time.Since(c.lastEventSeen)
}

// reconcile applies a pending selection change: dropped paths close,
// new enabled paths open and start tailing at end-of-file. Past history
// of a newly added source is not backfilled; a re-enabled source's
// already-ingested history re-enters through the aggregator's
// active-set rebuild.
func (c *Coordinator) reconcile() {
	c.selMu.Lock()
	if !c.selDirty {
		c.selMu.Unlock()
		return
	}
	selection := append([]model.Selection(nil), c.selection...)
	c.selDirty = false
	c.selMu.Unlock()

	desired := make(map[string]model.Selection, len(selection))
	for _, sel := range selection {
		desired[sel.Path] = sel
	}

	for path, src := range c.sources {
		sel, keep := desired[path]
		if keep && sel.Enabled {
			continue
		}
		if src.tailer != nil {
			src.tailer.Close()
		}
		src.state = model.SourceDropped
		delete(c.sources, path)
		if !keep {
			util.LogInfof("Stopped tracking %s (%s)", src.character, path)
		}
	}

	toOpen := make([]string, 0, len(desired))
	for path, sel := range desired {
		if !sel.Enabled {
			continue
		}
		if _, exists := c.sources[path]; exists {
			continue
		}
		toOpen = append(toOpen, path)
	}
	sort.Strings(toOpen)

	// Probe headers first and bind the session anchor to the earliest
	// anchor in the batch, the same zero point replay derives. Opening in
	// path order alone is not enough: merged offsets must not depend on
	// which file happens to open first.
	probes := make(map[string]headerProbe, len(toOpen))
	for _, path := range toOpen {
		header, ok, err := discovery.ExtractHeader(path)
		probes[path] = headerProbe{header: header, ok: ok, err: err}
	}
	if !c.anchorSet {
		for _, path := range toOpen {
			probe := probes[path]
			if probe.err != nil || !probe.ok || !probe.header.AnchorKnown {
				continue
			}
			if !c.anchorSet || probe.header.SessionStart.Before(c.sessionAnchor) {
				c.sessionAnchor = probe.header.SessionStart
				c.anchorSet = true
			}
		}
	}

	for _, path := range toOpen {
		c.sources[path] = c.openSource(desired[path], probes[path])
	}

	c.agg.SetActiveSources(c.activeCharacters())
}

// headerProbe is one pre-read header, taken before any source of a
// reconcile batch is opened.
type headerProbe struct {
	header discovery.LogHeader
	ok     bool
	err    error
}

func (c *Coordinator) openSource(sel model.Selection, probe headerProbe) *trackedSource {
	src := &trackedSource{
		character: sel.Character,
		path:      sel.Path,
		state:     model.SourceUnopened,
	}

	header, ok, err := probe.header, probe.ok, probe.err
	if err != nil {
		src.state = model.SourceError
		src.lastErr = err
		util.LogErrorf("Failed to read header of %s: %v", sel.Path, err)
		return src
	}
	if ok && header.Character != "" {
		// The header's Listener field is authoritative over the selection.
		src.character = header.Character
	}

	t, err := tailer.Open(sel.Path)
	if err != nil {
		src.state = model.SourceError
		src.lastErr = err
		util.LogErrorf("Failed to open %s: %v", sel.Path, err)
		return src
	}
	src.tailer = t
	src.cls = classifier.New(src.character)

	if ok && header.AnchorKnown {
		src.cls.SetAnchor(header.SessionStart)
		c.bindAnchor(src)
		src.state = model.SourceTailing
	} else {
		// No anchor yet: surfaced as waiting, never approximated from the
		// first combat line's own timestamp.
		src.state = model.SourceWaitingAnchor
		util.LogWarnf("No session anchor in %s yet; waiting", sel.Path)
	}

	util.LogInfof("Started tracking %s (%s, %s)", src.character, sel.Path, t.Encoding())
	return src
}

// bindAnchor fixes the source's offset delta against the shared session
// anchor. Normally the anchor is already bound from the reconcile batch's
// earliest header; a source resolving its anchor mid-stream can establish
// it only when no header in the batch carried one.
func (c *Coordinator) bindAnchor(src *trackedSource) {
	anchor, ok := src.cls.Anchor()
	if !ok {
		return
	}
	if !c.anchorSet {
		c.sessionAnchor = anchor
		c.anchorSet = true
	}
	src.anchorDelta = anchor.Sub(c.sessionAnchor)
	src.deltaSet = true
}

type pollResult struct {
	src    *trackedSource
	events []model.CombatEvent
	err    error
}

// poll reads and classifies new lines from every tailing source. Reads
// run concurrently so independent sources do not serialize behind one
// slow file; appends happen afterwards on this goroutine in a stable
// per-path order.
func (c *Coordinator) poll() {
	paths := make([]string, 0, len(c.sources))
	for path, src := range c.sources {
		if src.state == model.SourceTailing || src.state == model.SourceWaitingAnchor {
			paths = append(paths, path)
		}
	}
	if len(paths) == 0 {
		return
	}
	sort.Strings(paths)

	results := make([]pollResult, len(paths))
	semaphore := make(chan struct{}, readConcurrency)
	var wg sync.WaitGroup

	for i, path := range paths {
		wg.Add(1)
		go func(i int, src *trackedSource) {
			defer wg.Done()
			semaphore <- struct{}{}
			defer func() { <-semaphore }()

			lines, err := src.tailer.ReadNewLines()
			if err != nil {
				results[i] = pollResult{src: src, err: err}
				return
			}
			var events []model.CombatEvent
			for _, line := range lines {
				if ev, ok := src.cls.Classify(line); ok {
					events = append(events, ev)
				}
			}
			results[i] = pollResult{src: src, events: events}
		}(i, c.sources[path])
	}
	wg.Wait()

	for _, res := range results {
		src := res.src
		if res.err != nil {
			src.state = model.SourceError
			src.lastErr = res.err
			util.LogErrorf("Read error on %s: %v", src.path, res.err)
			continue
		}
		if src.state == model.SourceWaitingAnchor && src.cls.AnchorResolved() {
			c.bindAnchor(src)
			src.state = model.SourceTailing
			util.LogInfof("Session anchor resolved for %s", src.character)
		}
		c.appendEvents(src, res.events)
	}
}

func (c *Coordinator) appendEvents(src *trackedSource, events []model.CombatEvent) {
	if len(events) == 0 {
		return
	}
	if !src.deltaSet {
		// Events cannot exist without a resolved anchor; the classifier
		// rejects them first. Guard anyway.
		return
	}

	seen := time.Now()
	for _, ev := range events {
		ev.Timestamp += src.anchorDelta
		if ev.Timestamp < 0 {
			util.LogWarnf("Dropping pre-session event from %s", src.character)
			continue
		}
		if err := c.store.Append(ev); err != nil {
			if errors.Is(err, store.ErrOutOfOrder) {
				util.LogErrorf("Out-of-order event from %s at %v dropped", src.character, ev.Timestamp)
				continue
			}
			util.LogErrorf("Failed to store event from %s: %v", src.character, err)
			continue
		}
		src.eventCount++
		if !c.haveEvent || ev.Timestamp > c.lastEventOffset {
			c.lastEventOffset = ev.Timestamp
		}
		c.haveEvent = true
		c.lastEventSeen = seen
	}
}

func (c *Coordinator) activeCharacters() []string {
	chars := make([]string, 0, len(c.sources))
	for _, src := range c.sources {
		if src.state == model.SourceTailing || src.state == model.SourceWaitingAnchor {
			chars = append(chars, src.character)
		}
	}
	return chars
}

func (c *Coordinator) publishStatuses() {
	statuses := make([]model.SourceStatus, 0, len(c.sources))
	for _, src := range c.sources {
		status := model.SourceStatus{
			Character:  src.character,
			Path:       src.path,
			State:      src.state,
			EventCount: src.eventCount,
		}
		if src.lastErr != nil {
			status.Error = src.lastErr.Error()
		}
		if src.cls != nil {
			stats := src.cls.Stats()
			status.RejectedLines = stats.Rejected + stats.AnchorPending
		}
		statuses = append(statuses, status)
	}
	sort.Slice(statuses, func(i, j int) bool {
		return statuses[i].Path < statuses[j].Path
	})

	c.statusMu.Lock()
	c.statuses = statuses
	c.statusMu.Unlock()
}

func (c *Coordinator) closeAll() {
	for _, src := range c.sources {
		if src.tailer != nil {
			src.tailer.Close()
		}
	}
}
