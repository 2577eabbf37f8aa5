package net

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/netsync/internal/net/packet"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// SessionOptions sizes a session's queues and limits.
type SessionOptions struct {
	InQueueSize  int
	OutQueueSize int
	ReadTimeout  time.Duration // 0 = no read deadline
	WriteTimeout time.Duration
	RateLimit    rate.Limit // packets per second, 0 = unlimited
	Burst        int
}

// Session represents a single client connection. Network I/O runs in
// dedicated goroutines; game state is accessed only from the game loop.
type Session struct {
	ID   uint64
	conn frameConn
	opts SessionOptions

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP string

	outBuf [][]byte // buffered packets, flushed by OutputSystem (game loop only)

	limiter *rate.Limiter // readLoop goroutine only

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	log *zap.Logger
}

func newSession(conn frameConn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	s := &Session{
		ID:       id,
		conn:     conn,
		opts:     opts,
		InQueue:  make(chan []byte, opts.InQueueSize),
		OutQueue: make(chan []byte, opts.OutQueueSize),
		IP:       conn.RemoteAddr(),
		closeCh:  make(chan struct{}),
		log:      log.With(zap.Uint64("session", id)),
	}
	if opts.RateLimit > 0 {
		s.limiter = rate.NewLimiter(opts.RateLimit, opts.Burst)
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send buffers a packet for sending. The packet is not written until
// FlushOutput is called by OutputSystem.
// Called only from the game loop goroutine, no lock needed on outBuf.
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput drains the output buffer to OutQueue for the writeLoop goroutine.
// Non-blocking: if OutQueue is full, the session is disconnected (backpressure).
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

// Close shuts down the session. Packets already in OutQueue are written
// before the socket closes, so a final S_REJECT still reaches the client.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// readLoop runs in its own goroutine. It reads frames from the connection
// and pushes them onto InQueue for the game loop to consume.
func (s *Session) readLoop() {
	defer s.Close()

	for {
		select {
		case <-s.closeCh:
			return
		default:
		}

		if s.opts.ReadTimeout > 0 {
			s.conn.SetReadDeadline(time.Now().Add(s.opts.ReadTimeout))
		}
		payload, err := s.conn.ReadFrame()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if s.limiter != nil && !s.limiter.Allow() {
			s.log.Warn("封包速率超限，斷開連線", zap.Float64("limit", float64(s.limiter.Limit())))
			return
		}

		// Block until InQueue has space or session closes. Dropping a
		// predicted spawn request would desynchronize the id queue.
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

// writeLoop runs in its own goroutine. It reads packets from OutQueue and
// writes them to the connection. On close it drains what is already queued.
func (s *Session) writeLoop() {
	defer s.conn.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if !s.writeOnePacket(data) {
				s.Close()
				return
			}
		case <-s.closeCh:
			for {
				select {
				case data := <-s.OutQueue:
					if !s.writeOnePacket(data) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) writeOnePacket(data []byte) bool {
	if len(data) > 0 {
		s.log.Debug("TX",
			zap.String("op", fmt.Sprintf("0x%02X(%d)", data[0], data[0])),
			zap.Int("len", len(data)),
		)
	}
	if s.opts.WriteTimeout > 0 {
		s.conn.SetWriteDeadline(time.Now().Add(s.opts.WriteTimeout))
	}
	if err := s.conn.WriteFrame(data); err != nil {
		if !s.closed.Load() {
			s.log.Debug("寫入錯誤", zap.Error(err))
		}
		return false
	}
	return true
}

// SessionID returns the session's id.
func (s *Session) SessionID() uint64 { return s.ID }

// RemoteAddr returns the peer address.
func (s *Session) RemoteAddr() string { return s.IP }
