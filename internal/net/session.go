package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// SessionOptions are the per-connection limits.
type SessionOptions struct {
	InSize       int
	OutSize      int
	PktPerSec    int // 0 = unlimited
	MaxFrameSize int
}

// Session is one replication peer. Network I/O runs in dedicated
// goroutines; entity state is touched only from the tick loop.
type Session struct {
	ID   uint64
	conn net.Conn

	InQueue  chan []byte // tick loop reads frames from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	outBuf [][]byte // buffered frames, flushed by the output system (tick loop only)

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// readLoop goroutine only
	pktPerSec    int
	pktCount     int
	pktResetAt   int64
	maxFrameSize int

	log *zap.Logger
}

func NewSession(conn net.Conn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	return &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InSize),
		OutQueue:     make(chan []byte, opts.OutSize),
		IP:           conn.RemoteAddr().String(),
		closeCh:      make(chan struct{}),
		pktPerSec:    opts.PktPerSec,
		maxFrameSize: opts.MaxFrameSize,
		log:          log.With(zap.Uint64("session", id)),
	}
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a frame. Nothing reaches TCP until FlushOutput.
// Tick loop only.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writer. A full
// OutQueue disconnects the peer.
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	s.outBuf = s.outBuf[:0]
}

// Pending returns the number of buffered, unflushed frames.
func (s *Session) Pending() int { return len(s.outBuf) }

func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

func (s *Session) readLoop() {
	defer s.Close()

	for {
		payload, err := ReadFrame(s.conn, s.maxFrameSize)
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if s.pktPerSec > 0 {
			now := time.Now().Unix()
			if now != s.pktResetAt {
				s.pktCount = 0
				s.pktResetAt = now
			}
			s.pktCount++
			if s.pktCount > s.pktPerSec {
				s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
				return
			}
		}

		// Blocks only this peer; dropping a delta would desync it.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOne(data) {
				return
			}
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeOne(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.Uint8("op", data[0]),
			zap.Int("len", len(data)),
		)
	}
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := WriteFrame(s.conn, data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}
