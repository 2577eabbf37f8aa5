package handler

import "github.com/l1jgo/netsync/internal/world"

// LocalClient is the in-process client of a host-mode server. It never
// touches the network: messages addressed to it are recorded in order.
type LocalClient struct {
	received [][]byte
	closed   bool
}

func NewLocalClient() *LocalClient {
	return &LocalClient{}
}

func (l *LocalClient) Send(data []byte) {
	if l.closed {
		return
	}
	msg := make([]byte, len(data))
	copy(msg, data)
	l.received = append(l.received, msg)
}

func (l *LocalClient) Close() { l.closed = true }

// Received returns every message delivered so far.
func (l *LocalClient) Received() [][]byte { return l.received }

// Opcodes returns the opcode of every delivered message, in order.
func (l *LocalClient) Opcodes() []byte {
	out := make([]byte, 0, len(l.received))
	for _, m := range l.received {
		if len(m) > 0 {
			out = append(out, m[0])
		}
	}
	return out
}

// Reset forgets recorded messages.
func (l *LocalClient) Reset() { l.received = nil }

// NewLocalConnection registers the host client as a ready connection.
func NewLocalConnection(st *world.State, client *LocalClient) *world.Connection {
	c := world.NewConnection(world.LocalConnID, "local", client)
	c.IsLocal = true
	c.Ready = true
	st.AddConnection(c)
	return c
}
