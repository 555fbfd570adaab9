package net

import (
	"net"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Server accepts replication peers. Accepted sessions reach the tick loop
// through NewSessions; the tick loop reports closed ones with NotifyDead.
type Server struct {
	listener net.Listener
	opts     SessionOptions
	maxPeers int32 // 0 = unlimited
	log      *zap.Logger

	nextID   atomic.Uint64
	active   atomic.Int32
	newConns chan *Session
	deadCh   chan uint64

	closeCh   chan struct{}
	closeOnce sync.Once
}

func NewServer(bindAddr string, opts SessionOptions, maxPeers int, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener: ln,
		opts:     opts,
		maxPeers: int32(maxPeers),
		log:      log,
		newConns: make(chan *Session, 16),
		deadCh:   make(chan uint64, 16),
		closeCh:  make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}
		if s.maxPeers > 0 && s.active.Load() >= s.maxPeers {
			s.log.Warn("同步端已達上限，拒絕連線",
				zap.String("ip", conn.RemoteAddr().String()),
				zap.Int32("max_peers", s.maxPeers),
			)
			conn.Close()
			continue
		}

		sess := NewSession(conn, s.nextID.Add(1), s.opts, s.log)
		sess.Start()
		s.active.Add(1)
		select {
		case s.newConns <- sess:
			s.log.Info("同步端連線", zap.Uint64("session", sess.ID), zap.String("ip", sess.IP))
		default:
			s.log.Warn("連線佇列已滿，拒絕新連線")
			s.active.Add(-1)
			sess.Close()
		}
	}
}

func (s *Server) NewSessions() <-chan *Session { return s.newConns }

func (s *Server) DeadSessions() <-chan uint64 { return s.deadCh }

// NotifyDead releases the peer slot of a closed session.
func (s *Server) NotifyDead(sessionID uint64) {
	s.active.Add(-1)
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// Peers returns the number of sessions holding a slot.
func (s *Server) Peers() int { return int(s.active.Load()) }

// Shutdown stops accepting peers. Safe to call more than once.
func (s *Server) Shutdown() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.listener.Close()
	})
}

func (s *Server) Addr() net.Addr { return s.listener.Addr() }
