package system

import (
	"time"

	coresys "github.com/l1jgo/propsrv/internal/core/system"
	"github.com/l1jgo/propsrv/internal/world"
)

// CleanupSystem flushes the deferred entity destruction queue at tick end.
// Phase 6 (Cleanup).
type CleanupSystem struct {
	state *world.State
}

func NewCleanupSystem(state *world.State) *CleanupSystem {
	return &CleanupSystem{state: state}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	s.state.Flush()
}
