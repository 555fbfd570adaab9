package system

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type step struct {
	phase Phase
	name  string
	log   *[]string
}

func (p step) Phase() Phase           { return p.phase }
func (p step) Update(_ time.Duration) { *p.log = append(*p.log, p.name) }

type panicker struct{}

func (panicker) Phase() Phase           { return PhaseUpdate }
func (panicker) Update(_ time.Duration) { panic("boom") }

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner(nil)
	r.Register(step{PhaseCleanup, "cleanup", &log})
	r.Register(step{PhaseInput, "input", &log})
	r.Register(step{PhaseOutput, "output-a", &log})
	r.Register(step{PhaseOutput, "output-b", &log})
	assert.Equal(t, 4, r.Len())

	r.Tick(time.Millisecond)
	assert.Equal(t, []string{"input", "output-a", "output-b", "cleanup"}, log)
	assert.Equal(t, uint64(1), r.Ticks())

	log = nil
	r.TickPhase(PhaseOutput, time.Millisecond)
	assert.Equal(t, []string{"output-a", "output-b"}, log)
	assert.Equal(t, uint64(1), r.Ticks())
}

func TestRunnerRecoversPanics(t *testing.T) {
	var log []string
	r := NewRunner(nil)
	r.Register(step{PhaseInput, "input", &log})
	r.Register(panicker{})
	r.Register(step{PhaseCleanup, "cleanup", &log})

	assert.NotPanics(t, func() { r.Tick(time.Millisecond) })
	assert.Equal(t, []string{"input", "cleanup"}, log)
}
