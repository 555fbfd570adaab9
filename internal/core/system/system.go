package system

import "time"

// Phase defines execution ordering within a single tick.
type Phase int

const (
	PhaseInput      Phase = iota // 0: drain peer queues, apply replication
	PhasePreUpdate               // 1: dispatch last tick's events
	PhaseUpdate                  // 2: entity logic
	PhasePostUpdate              // 3: reserved
	PhaseOutput                  // 4: encode deltas, flush peers
	PhasePersist                 // 5: change log + autosave
	PhaseCleanup                 // 6: destroy queued entities
)

// System is the interface every tick system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
