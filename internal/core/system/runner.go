package system

import (
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
)

// Runner drives the registered systems once per tick, ordered by phase.
// Systems sharing a phase keep their registration order.
type Runner struct {
	systems []System
	sorted  bool
	ticks   uint64
	log     *zap.Logger
}

func NewRunner(log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{
		systems: make([]System, 0, 8),
		log:     log,
	}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

// Tick runs every system. A panicking system is logged and skipped for
// this tick; the remaining phases still run.
func (r *Runner) Tick(dt time.Duration) {
	r.order()
	r.ticks++
	for _, s := range r.systems {
		r.run(s, dt)
	}
}

// TickPhase 只執行指定 Phase 的 System，不計入 tick 數。
// 用於兩次 tick 之間輪詢同步端輸入。
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.order()
	for _, s := range r.systems {
		if s.Phase() == phase {
			r.run(s, dt)
		}
	}
}

// Ticks returns the number of completed Tick calls.
func (r *Runner) Ticks() uint64 { return r.ticks }

func (r *Runner) Len() int { return len(r.systems) }

func (r *Runner) run(s System, dt time.Duration) {
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("系統 panic 已恢復",
				zap.String("system", fmt.Sprintf("%T", s)),
				zap.Int("phase", int(s.Phase())),
				zap.Uint64("tick", r.ticks),
				zap.Any("panic", rec),
			)
		}
	}()
	s.Update(dt)
}

func (r *Runner) order() {
	if r.sorted {
		return
	}
	sort.SliceStable(r.systems, func(i, j int) bool {
		return r.systems[i].Phase() < r.systems[j].Phase()
	})
	r.sorted = true
}
