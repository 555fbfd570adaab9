package system

import (
	"time"

	"go.uber.org/zap"

	coresys "github.com/l1jgo/propsrv/internal/core/system"
	"github.com/l1jgo/propsrv/internal/net"
	"github.com/l1jgo/propsrv/internal/replication"
	"github.com/l1jgo/propsrv/internal/world"
)

// InputSystem accepts replication peers, sends each newcomer a snapshot of
// every entity, and applies the deltas peers send back. Phase 0 (Input).
type InputSystem struct {
	netServer     *net.Server
	store         *net.SessionStore
	receiver      *replication.Receiver
	state         *world.State
	maxPerTick    int
	withProtected bool
	log           *zap.Logger
}

func NewInputSystem(
	netServer *net.Server,
	store *net.SessionStore,
	receiver *replication.Receiver,
	state *world.State,
	maxPerTick int,
	withProtected bool,
	log *zap.Logger,
) *InputSystem {
	return &InputSystem{
		netServer:     netServer,
		store:         store,
		receiver:      receiver,
		state:         state,
		maxPerTick:    maxPerTick,
		withProtected: withProtected,
		log:           log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	if s.netServer != nil {
		s.acceptSessions()
	}

	s.store.ForEach(func(sess *net.Session) {
		s.drain(sess)
		if sess.IsClosed() {
			if s.netServer != nil {
				s.netServer.NotifyDead(sess.ID)
			}
			s.store.Remove(sess.ID)
			s.log.Info("同步端離線", zap.Uint64("session", sess.ID))
			return
		}
		// Snapshots queued above reach the writer before later phases run.
		sess.FlushOutput()
	})
}

func (s *InputSystem) acceptSessions() {
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
			s.sendWorld(sess)
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			return
		}
	}
}

// sendWorld queues a snapshot of every live entity.
func (s *InputSystem) sendWorld(sess *net.Session) {
	n := 0
	s.state.Each(func(e *world.Entity) {
		sess.Send(replication.EncodeSnapshot(e.Handle(), e.Props, s.withProtected))
		n++
	})
	s.log.Debug("已送出世界快照", zap.Uint64("session", sess.ID), zap.Int("entities", n))
}

func (s *InputSystem) drain(sess *net.Session) {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.receiver.Apply(sess.ID, data); err != nil {
				s.log.Debug("封包分派錯誤",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return
		}
	}
}
