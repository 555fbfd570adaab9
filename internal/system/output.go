package system

import (
	"time"

	"github.com/l1jgo/propsrv/internal/core/event"
	coresys "github.com/l1jgo/propsrv/internal/core/system"
	"github.com/l1jgo/propsrv/internal/net"
	"github.com/l1jgo/propsrv/internal/replication"
	"github.com/l1jgo/propsrv/internal/world"
)

// OutputSystem encodes this tick's replicated changes, announces spawned
// and destroyed entities, and flushes every peer. Phase 4 (Output).
type OutputSystem struct {
	state         *world.State
	store         *net.SessionStore
	withProtected bool
	lifecycle     [][]byte // spawn/destroy frames collected from events
}

func NewOutputSystem(state *world.State, store *net.SessionStore, withProtected bool) *OutputSystem {
	s := &OutputSystem{
		state:         state,
		store:         store,
		withProtected: withProtected,
	}
	event.Subscribe(state.Bus(), s.onCreated)
	event.Subscribe(state.Bus(), s.onDestroyed)
	return s
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) onCreated(ev event.EntityCreated) {
	if e := s.state.Get(ev.ID); e != nil {
		s.lifecycle = append(s.lifecycle, replication.EncodeSnapshot(e.Handle(), e.Props, s.withProtected))
	}
}

func (s *OutputSystem) onDestroyed(ev event.EntityDestroyed) {
	s.lifecycle = append(s.lifecycle, replication.EncodeDestroy(uint64(ev.ID)))
}

func (s *OutputSystem) Update(_ time.Duration) {
	frames := s.lifecycle
	s.lifecycle = nil

	for _, c := range s.state.DrainChanges() {
		e := s.state.Get(c.ID)
		if e == nil {
			continue
		}
		if c.Property.Access().IsProtected() && !s.withProtected {
			continue
		}
		frames = append(frames, replication.EncodeDelta(e.Handle(), e.Props, c.Property))
	}

	s.store.ForEach(func(sess *net.Session) {
		for _, f := range frames {
			sess.Send(f)
		}
		sess.FlushOutput()
	})
}
