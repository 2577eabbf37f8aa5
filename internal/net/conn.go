package net

import (
	"fmt"
	"net"
	"time"

	"github.com/gorilla/websocket"
)

// frameConn carries whole payloads. TCP frames them with a length header;
// WebSocket sends one payload per binary message.
type frameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() string
	Close() error
}

type tcpConn struct {
	c net.Conn
}

func (t tcpConn) ReadFrame() ([]byte, error)         { return ReadFrame(t.c) }
func (t tcpConn) WriteFrame(data []byte) error       { return WriteFrame(t.c, data) }
func (t tcpConn) SetReadDeadline(d time.Time) error  { return t.c.SetReadDeadline(d) }
func (t tcpConn) SetWriteDeadline(d time.Time) error { return t.c.SetWriteDeadline(d) }
func (t tcpConn) RemoteAddr() string                 { return t.c.RemoteAddr().String() }
func (t tcpConn) Close() error                       { return t.c.Close() }

type wsConn struct {
	c *websocket.Conn
}

func (w wsConn) ReadFrame() ([]byte, error) {
	for {
		mt, payload, err := w.c.ReadMessage()
		if err != nil {
			return nil, err
		}
		if mt != websocket.BinaryMessage {
			continue
		}
		if len(payload) == 0 || len(payload) > maxPayload {
			return nil, fmt.Errorf("invalid message length: %d", len(payload))
		}
		return payload, nil
	}
}

func (w wsConn) WriteFrame(data []byte) error {
	return w.c.WriteMessage(websocket.BinaryMessage, data)
}

func (w wsConn) SetReadDeadline(d time.Time) error  { return w.c.SetReadDeadline(d) }
func (w wsConn) SetWriteDeadline(d time.Time) error { return w.c.SetWriteDeadline(d) }
func (w wsConn) RemoteAddr() string                 { return w.c.RemoteAddr().String() }
func (w wsConn) Close() error                       { return w.c.Close() }
