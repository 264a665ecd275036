package scheduler

import (
	"maps"

	"go.trai.ch/kiln/internal/core/domain"
)

// GetUnitStatusMap returns a copy of the internal unit status map.
// This is exported for testing purposes only.
func (s *Scheduler) GetUnitStatusMap() map[domain.InternedString]UnitStatus {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return maps.Clone(s.unitStatus)
}
