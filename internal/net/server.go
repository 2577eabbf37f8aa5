package net

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(_ *http.Request) bool { return true },
}

// Server accepts TCP (and optionally WebSocket) connections and creates
// Sessions. New sessions are handed to the game loop over a channel; the
// loop notices closed sessions itself.
type Server struct {
	listener net.Listener
	http     *http.Server
	nextID   atomic.Uint64
	newConns chan *Session
	opts     SessionOptions
	log      *zap.Logger
	closeCh  chan struct{}
}

func NewServer(bindAddr string, opts SessionOptions, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	s := &Server{
		listener: ln,
		newConns: make(chan *Session, 64),
		opts:     opts,
		log:      log,
		closeCh:  make(chan struct{}),
	}
	return s, nil
}

// AcceptLoop runs in its own goroutine. It accepts connections, creates
// sessions and pushes them onto the newConns channel.
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
		s.register(tcpConn{c: conn}, "tcp")
	}
}

// ServeWebSocket listens for WebSocket upgrades on addr/path. Blocks until
// Shutdown; run it in its own goroutine.
func (s *Server) ServeWebSocket(addr, path string) error {
	mux := http.NewServeMux()
	mux.HandleFunc(path, func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			s.log.Debug("websocket 升級失敗", zap.Error(err))
			return
		}
		conn.SetReadLimit(maxPayload)
		s.register(wsConn{c: conn}, "ws")
	})
	s.http = &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 10 * time.Second}
	if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("websocket listener %s: %w", addr, err)
	}
	return nil
}

func (s *Server) register(fc frameConn, transport string) {
	id := s.nextID.Add(1)
	sess := newSession(fc, id, s.opts, s.log)
	sess.Start()

	s.log.Info(fmt.Sprintf("客戶端連線  session=%d  ip=%s  transport=%s", id, sess.IP, transport))

	select {
	case s.newConns <- sess:
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
	if s.http != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		s.http.Shutdown(ctx)
	}
}

// Addr returns the listener's address.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}
