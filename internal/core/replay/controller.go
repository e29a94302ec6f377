package replay

import (
	"context"
	"sync"
	"time"

	"github.com/evetools/fleetmeter/internal/core/aggregator"
	"github.com/evetools/fleetmeter/internal/core/constants"
	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/core/store"
)

const (
	// MinSpeed and MaxSpeed bound the playback rate.
	MinSpeed = 0.25
	MaxSpeed = 16.0
)

// Controller replays a loaded session against its own store and
// aggregator. All events are in the store up front; playback only moves
// the virtual clock, so seeking in either direction needs no re-ingest
// and the same session always produces the same samples at the same
// offsets regardless of speed.
type Controller struct {
	session *Session
	store   *store.Store
	agg     *aggregator.Aggregator
	tick    time.Duration

	mu         sync.Mutex
	offset     time.Duration
	speed      float64
	paused     bool
	stopped    bool
	stepOnce   bool
	invalidate bool
	lastWall   time.Time
	echoIdx    int

	samples chan model.WindowSample
	echoes  chan EchoLine
}

// NewController builds a controller with the session fully ingested.
// Playback starts at the session's first event, playing at 1x.
func NewController(session *Session, window time.Duration) *Controller {
	st := store.New()
	for _, ev := range session.Events {
		// Session loading already enforced per-source order; appends into
		// a fresh store in merged order cannot fail.
		_ = st.Append(ev)
	}
	agg := aggregator.New(st, window)
	agg.SetActiveSources(session.Characters)

	return &Controller{
		session: session,
		store:   st,
		agg:     agg,
		tick:    constants.TickInterval,
		offset:  session.Start,
		speed:   1.0,
		samples: make(chan model.WindowSample, 16),
		echoes:  make(chan EchoLine, 256),
	}
}

// Samples is the stream of window snapshots at the virtual clock.
func (c *Controller) Samples() <-chan model.WindowSample {
	return c.samples
}

// Echoes streams the raw combat lines as the virtual clock passes them.
func (c *Controller) Echoes() <-chan EchoLine {
	return c.echoes
}

// Run drives playback until Stop is called or ctx is cancelled, checking
// both every tick.
func (c *Controller) Run(ctx context.Context) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()

	c.mu.Lock()
	c.lastWall = time.Now()
	c.mu.Unlock()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if done := c.step(); done {
				return
			}
		}
	}
}

// step advances the virtual clock by elapsed wall time scaled by speed,
// emits the sample for the new offset, and echoes the lines the clock
// passed. Returns true once stopped.
func (c *Controller) step() bool {
	c.mu.Lock()
	if c.stopped {
		c.mu.Unlock()
		return true
	}

	wallNow := time.Now()
	moved := c.stepOnce
	c.stepOnce = false
	if !c.paused {
		c.offset += time.Duration(float64(wallNow.Sub(c.lastWall)) * c.speed)
		if c.offset >= c.session.End {
			c.offset = c.session.End
			c.paused = true
		}
		moved = true
	}
	c.lastWall = wallNow

	offset := c.offset
	echoFrom := c.echoIdx
	echoTo := c.session.lineIndexAfter(offset)
	c.echoIdx = echoTo
	if c.invalidate {
		c.agg.Invalidate()
		c.invalidate = false
		moved = true
	}
	c.mu.Unlock()

	if !moved {
		return false
	}

	sample := c.agg.Sample(offset)
	select {
	case c.samples <- sample:
	default:
	}
	for i := echoFrom; i < echoTo; i++ {
		select {
		case c.echoes <- c.session.Lines[i]:
		default:
		}
	}
	return false
}

// Play resumes playback.
func (c *Controller) Play() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = false
	c.lastWall = time.Now()
}

// Pause freezes the virtual clock; the last sample stays valid.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = true
}

// TogglePause flips between playing and paused.
func (c *Controller) TogglePause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused = !c.paused
	c.lastWall = time.Now()
}

// SetSpeed changes the playback rate, clamped to [MinSpeed, MaxSpeed].
// Speed scales the clock only; it never changes which events fall in a
// window at a given offset.
func (c *Controller) SetSpeed(speed float64) {
	if speed < MinSpeed {
		speed = MinSpeed
	}
	if speed > MaxSpeed {
		speed = MaxSpeed
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.speed = speed
}

// Speed returns the current playback rate.
func (c *Controller) Speed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.speed
}

// Seek jumps the virtual clock to the given offset, clamped to the
// session range. The window state is rebuilt on the next tick; a sample
// is emitted even while paused.
func (c *Controller) Seek(offset time.Duration) {
	if offset < 0 {
		offset = 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset > c.session.End {
		offset = c.session.End
	}
	c.offset = offset
	c.echoIdx = c.session.lineIndexAfter(offset)
	c.invalidate = true
	c.stepOnce = true
	c.lastWall = time.Now()
}

// SeekBy moves the virtual clock relative to its current offset.
func (c *Controller) SeekBy(delta time.Duration) {
	c.mu.Lock()
	offset := c.offset + delta
	c.mu.Unlock()
	c.Seek(offset)
}

// Step emits one sample at the current offset even while paused.
func (c *Controller) Step() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stepOnce = true
}

// Progress reports the virtual clock state.
func (c *Controller) Progress() model.ReplayProgress {
	c.mu.Lock()
	defer c.mu.Unlock()
	return model.ReplayProgress{
		SessionID: c.session.ID,
		Offset:    c.offset,
		Start:     c.session.Start,
		Duration:  c.session.End - c.session.Start,
		Speed:     c.speed,
		Paused:    c.paused,
	}
}

// Stop ends playback; Run returns within one tick.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopped = true
}
