package replay

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/evetools/fleetmeter/internal/core/model"
	"github.com/evetools/fleetmeter/internal/data/classifier"
	"github.com/evetools/fleetmeter/internal/data/tailer"
	"github.com/evetools/fleetmeter/internal/util"
)

// EchoLine is one raw combat line of the merged timeline, kept for the
// replay text echo.
type EchoLine struct {
	Offset    time.Duration `json:"offset"`
	Character string        `json:"character"`
	Text      string        `json:"text"`
}

// Session is the fully classified, merged timeline of one or more log
// files, ready for deterministic playback. Events and Lines share the
// same ordering: ascending timestamp, source file order on ties.
type Session struct {
	ID         string
	Characters []string
	Events     []model.CombatEvent
	Lines      []EchoLine
	Start      time.Duration
	End        time.Duration
}

// timedLine keeps an accepted event paired with its raw text through the
// merge so the echo stream stays aligned with the event stream.
type timedLine struct {
	event model.CombatEvent
	raw   string
}

// LoadSession reads and classifies the given log files in full. Every
// file must carry a session anchor in its header; the earliest anchor
// across the files becomes the shared zero point, and all offsets are
// rebased onto it. Loading the same files always yields the same session
// (only the ID differs).
func LoadSession(paths []string) (*Session, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("replay: no log files given")
	}

	perSource := make([][]timedLine, 0, len(paths))
	anchors := make([]time.Time, 0, len(paths))
	characters := make([]string, 0, len(paths))

	for _, path := range paths {
		lines, err := tailer.ReadAllLines(path)
		if err != nil {
			return nil, fmt.Errorf("replay: reading %s: %w", path, err)
		}

		cls := classifier.New("")
		var accepted []timedLine
		var lastOffset time.Duration
		for _, line := range lines {
			ev, ok := cls.Classify(line)
			if !ok {
				continue
			}
			if len(accepted) > 0 && ev.Timestamp < lastOffset {
				util.LogWarnf("Out-of-order line in %s dropped", path)
				continue
			}
			lastOffset = ev.Timestamp
			accepted = append(accepted, timedLine{event: ev, raw: line})
		}

		anchor, ok := cls.Anchor()
		if !ok {
			return nil, fmt.Errorf("replay: %s has no session header", path)
		}
		if cls.Listener() == "" {
			return nil, fmt.Errorf("replay: %s has no listener header", path)
		}

		perSource = append(perSource, accepted)
		anchors = append(anchors, anchor)
		characters = append(characters, cls.Listener())
	}

	// The earliest source anchor is the session zero point.
	sessionAnchor := anchors[0]
	for _, a := range anchors[1:] {
		if a.Before(sessionAnchor) {
			sessionAnchor = a
		}
	}
	for i := range perSource {
		delta := anchors[i].Sub(sessionAnchor)
		for j := range perSource[i] {
			perSource[i][j].event.Timestamp += delta
		}
	}

	merged := mergeSources(perSource)

	session := &Session{
		ID:         uuid.New().String(),
		Characters: characters,
		Events:     make([]model.CombatEvent, len(merged)),
		Lines:      make([]EchoLine, len(merged)),
	}
	for i, tl := range merged {
		session.Events[i] = tl.event
		session.Lines[i] = EchoLine{
			Offset:    tl.event.Timestamp,
			Character: tl.event.Character,
			Text:      tl.raw,
		}
	}
	if len(merged) > 0 {
		session.Start = merged[0].event.Timestamp
		session.End = merged[len(merged)-1].event.Timestamp
	}
	return session, nil
}

// mergeSources performs a stable k-way merge of the per-source, already
// sorted event slices. On equal timestamps the lower source index wins,
// so the result is deterministic for a fixed input order.
func mergeSources(sources [][]timedLine) []timedLine {
	total := 0
	for _, src := range sources {
		total += len(src)
	}
	merged := make([]timedLine, 0, total)
	heads := make([]int, len(sources))

	for len(merged) < total {
		best := -1
		for i, src := range sources {
			if heads[i] >= len(src) {
				continue
			}
			if best < 0 || src[heads[i]].event.Timestamp < sources[best][heads[best]].event.Timestamp {
				best = i
			}
		}
		merged = append(merged, sources[best][heads[best]])
		heads[best]++
	}
	return merged
}

// lineIndexAfter returns the index of the first echo line strictly past
// the given offset.
func (s *Session) lineIndexAfter(offset time.Duration) int {
	return sort.Search(len(s.Lines), func(i int) bool {
		return s.Lines[i].Offset > offset
	})
}
