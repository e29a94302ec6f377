package model

import "time"

// ActionKind classifies what a combat line reports.
type ActionKind int

const (
	ActionDamage ActionKind = iota
	ActionRepair
	ActionCapacitorTransfer
	ActionEnergyDrain
)

func (k ActionKind) String() string {
	switch k {
	case ActionDamage:
		return "damage"
	case ActionRepair:
		return "repair"
	case ActionCapacitorTransfer:
		return "cap_transfer"
	case ActionEnergyDrain:
		return "energy_drain"
	default:
		return "unknown"
	}
}

// DrainMode distinguishes the two energy drain mechanics.
type DrainMode int

const (
	DrainNone DrainMode = iota
	DrainNeutralizer
	DrainNosferatu
)

func (m DrainMode) String() string {
	switch m {
	case DrainNeutralizer:
		return "neut"
	case DrainNosferatu:
		return "nos"
	default:
		return "none"
	}
}

// CombatEvent is one classified log line. Events are immutable after
// creation and owned by the event store for the lifetime of the session.
//
// Timestamp is an offset from the session anchor, not wall clock, so that
// events from sources with different anchors stay comparable after the
// coordinator rebases them onto a shared anchor.
type CombatEvent struct {
	Timestamp time.Duration `json:"timestamp"`
	Source    string        `json:"source"`
	Target    string        `json:"target"`
	Weapon    string        `json:"weapon,omitempty"`
	Quality   string        `json:"quality,omitempty"`
	Kind      ActionKind    `json:"kind"`
	Drain     DrainMode     `json:"drain,omitempty"`
	Incoming  bool          `json:"incoming"`

	// NotifyOnly marks magnitude-less pseudo-events (failed module
	// activation). They carry Magnitude 0 and never enter rate math.
	NotifyOnly bool `json:"notifyOnly,omitempty"`

	// Magnitude in centipoints (see constants.MagnitudeScale).
	Magnitude int64 `json:"magnitude"`

	// Character names the tracked log this event came from.
	Character string `json:"character"`
}
