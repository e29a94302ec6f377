package constants

import "time"

const (
	// Default trailing window for rate computation
	DefaultWindow = 5 * time.Second

	// Coordinator and replay tick cadence
	TickInterval = 250 * time.Millisecond

	// Magnitudes are accumulated as int64 centipoints so that window
	// sums never drift; divide by MagnitudeScale at emission time.
	MagnitudeScale = 100

	// Bracketed per-line timestamp and session header timestamp format
	TimestampLayout = "2006.01.02 15:04:05"

	// Number of leading lines inspected for the Listener/Session Started header
	HeaderScanLines = 20
)
