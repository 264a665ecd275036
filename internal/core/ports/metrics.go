package ports

import "time"

// Metrics defines the interface for recording build and server metrics.
//
//go:generate mockgen -source=metrics.go -destination=mocks/mock_metrics.go -package=mocks
type Metrics interface {
	// ObserveUnit counts a unit outcome: compiled, cached or failed.
	ObserveUnit(outcome string)
	// ObserveBuild records a driver run and its duration.
	ObserveBuild(outcome string, d time.Duration)
	// ObserveResolve records a resolution and its duration.
	ObserveResolve(outcome string, d time.Duration)
	// SetSessions sets the number of connected reload sessions.
	SetSessions(n int)
}
