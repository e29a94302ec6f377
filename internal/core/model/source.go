package model

import "time"

// SourceState is the lifecycle state of one tracked log source.
type SourceState int

const (
	SourceUnopened SourceState = iota
	// SourceWaitingAnchor means the file is open but no session anchor has
	// been resolved yet; combat lines are rejected and counted until one is.
	SourceWaitingAnchor
	SourceTailing
	SourceError
	SourceDropped
)

func (s SourceState) String() string {
	switch s {
	case SourceUnopened:
		return "unopened"
	case SourceWaitingAnchor:
		return "waiting_anchor"
	case SourceTailing:
		return "tailing"
	case SourceError:
		return "error"
	case SourceDropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// Selection is one entry of the user's tracking/replay choice.
type Selection struct {
	Character string `json:"character"`
	Path      string `json:"path"`
	Enabled   bool   `json:"enabled"`
}

// SourceStatus is the externally visible state of a tracked source.
// A source in error state stays listed rather than silently vanishing.
type SourceStatus struct {
	Character     string      `json:"character"`
	Path          string      `json:"path"`
	State         SourceState `json:"state"`
	Error         string      `json:"error,omitempty"`
	RejectedLines uint64      `json:"rejectedLines"`
	EventCount    uint64      `json:"eventCount"`
}

// ReplayProgress reports the virtual clock of a replay session.
type ReplayProgress struct {
	SessionID string        `json:"sessionId"`
	Offset    time.Duration `json:"offset"`
	Start     time.Duration `json:"start"`
	Duration  time.Duration `json:"duration"`
	Speed     float64       `json:"speed"`
	Paused    bool          `json:"paused"`
}
