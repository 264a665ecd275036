package ports

import "time"

// Reporter is the abstraction for build progress output.
// It decouples the driver from presentation.
//
//go:generate mockgen -source=reporter.go -destination=mocks/mock_reporter.go -package=mocks
type Reporter interface {
	// OnPlan is called once the driver knows which units it will process.
	// units are listed in execution order.
	OnPlan(units []string, targets []string)

	// OnUnitStart is called when a unit begins fingerprinting and compilation.
	OnUnitStart(unit string, startTime time.Time)

	// OnUnitComplete is called when a unit finishes.
	// cached is true when the output came from the build cache.
	OnUnitComplete(unit string, endTime time.Time, cached bool, err error)
}
