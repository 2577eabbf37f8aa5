package world

import "sort"

// Sender is the outbound side of a transport session.
type Sender interface {
	Send(data []byte)
	Close()
}

// Connection is one remote peer (or the in-process host client).
// Game loop goroutine only.
type Connection struct {
	ID      uint64
	Addr    string
	Sender  Sender
	IsLocal bool
	Ready   bool // handshake completed

	// Focus is the object whose position drives range-based observation.
	Focus *NetworkObject

	predicted []ObjectID // FIFO of ids pre-issued for predicted spawns
	owned     map[*NetworkObject]struct{}
	observing map[*NetworkObject]struct{}
	kicked    bool
}

func NewConnection(id uint64, addr string, sender Sender) *Connection {
	return &Connection{
		ID:        id,
		Addr:      addr,
		Sender:    sender,
		owned:     make(map[*NetworkObject]struct{}),
		observing: make(map[*NetworkObject]struct{}),
	}
}

// Send queues data on the connection's transport.
func (c *Connection) Send(data []byte) {
	if c.Sender == nil || c.kicked {
		return
	}
	c.Sender.Send(data)
}

// Kick closes the transport. Later sends are dropped.
func (c *Connection) Kick() {
	if c.kicked {
		return
	}
	c.kicked = true
	if c.Sender != nil {
		c.Sender.Close()
	}
}

func (c *Connection) Kicked() bool { return c.kicked }

// PushPredicted appends a pre-issued id to the queue tail.
func (c *Connection) PushPredicted(id ObjectID) {
	c.predicted = append(c.predicted, id)
}

// PeekPredicted returns the queue head.
func (c *Connection) PeekPredicted() (ObjectID, bool) {
	if len(c.predicted) == 0 {
		return UnsetID, false
	}
	return c.predicted[0], true
}

// ConsumePredicted pops the head if it equals id.
func (c *Connection) ConsumePredicted(id ObjectID) bool {
	head, ok := c.PeekPredicted()
	if !ok || head != id {
		return false
	}
	c.predicted = c.predicted[1:]
	return true
}

// PredictedIDs returns a copy of the queue, head first.
func (c *Connection) PredictedIDs() []ObjectID {
	out := make([]ObjectID, len(c.predicted))
	copy(out, c.predicted)
	return out
}

// DrainPredicted empties the queue and returns its contents.
func (c *Connection) DrainPredicted() []ObjectID {
	out := c.predicted
	c.predicted = nil
	return out
}

// Owns reports whether c owns o.
func (c *Connection) Owns(o *NetworkObject) bool {
	_, ok := c.owned[o]
	return ok
}

// Owned returns owned objects ordered by spawn sequence.
func (c *Connection) Owned() []*NetworkObject {
	out := make([]*NetworkObject, 0, len(c.owned))
	for o := range c.owned {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].spawnSeq < out[j].spawnSeq })
	return out
}

// Observing returns the objects c currently observes, ordered by spawn
// sequence.
func (c *Connection) Observing() []*NetworkObject {
	out := make([]*NetworkObject, 0, len(c.observing))
	for o := range c.observing {
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].spawnSeq < out[j].spawnSeq })
	return out
}

func (c *Connection) ObservingCount() int { return len(c.observing) }
