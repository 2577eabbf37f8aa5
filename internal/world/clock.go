package world

// Clock is the simulation tick counter. Advanced once per full tick by the
// game loop; input polling between ticks does not advance it.
type Clock struct {
	tick uint32
}

func (c *Clock) Tick() uint32 { return c.tick }

// Advance moves the clock one tick forward and returns the new tick.
func (c *Clock) Advance() uint32 {
	c.tick++
	return c.tick
}

// Set jumps the clock to t. Used by tests and replay tooling.
func (c *Clock) Set(t uint32) { c.tick = t }
