package model

import "time"

// KindRates holds per-second rates for each action kind.
type KindRates struct {
	Damage      float64 `json:"damage"`
	Repair      float64 `json:"repair"`
	CapTransfer float64 `json:"capTransfer"`
	EnergyDrain float64 `json:"energyDrain"`
}

// Add accumulates other into r.
func (r *KindRates) Add(other KindRates) {
	r.Damage += other.Damage
	r.Repair += other.Repair
	r.CapTransfer += other.CapTransfer
	r.EnergyDrain += other.EnergyDrain
}

// DirectionRates splits rates by whether the listener was actor or recipient.
type DirectionRates struct {
	Outgoing KindRates `json:"outgoing"`
	Incoming KindRates `json:"incoming"`
}

// WindowSample is a point-in-time snapshot of the trailing window,
// produced by the aggregator at sampling cadence.
//
// Totals are computed by summing the per-character entries, never tracked
// independently, so the sum-of-sums invariant holds by construction.
type WindowSample struct {
	AsOf   time.Duration `json:"asOf"`
	Window time.Duration `json:"window"`

	Characters map[string]DirectionRates `json:"characters"`
	Totals     DirectionRates            `json:"totals"`

	// Damage breakdowns across the whole window
	OutgoingByTarget map[string]float64 `json:"outgoingByTarget,omitempty"`
	OutgoingByWeapon map[string]float64 `json:"outgoingByWeapon,omitempty"`
	IncomingBySource map[string]float64 `json:"incomingBySource,omitempty"`

	// Per-character damage breakdowns
	OutgoingByCharTarget map[string]map[string]float64 `json:"outgoingByCharTarget,omitempty"`
	OutgoingByCharWeapon map[string]map[string]float64 `json:"outgoingByCharWeapon,omitempty"`

	// Count of notification-only pseudo-events per character in window
	NotifyCounts map[string]int `json:"notifyCounts,omitempty"`
}
