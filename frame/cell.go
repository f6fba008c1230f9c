/*
DESCRIPTION
  cell.go provides Cell, a single slot holding the latest frame.

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package frame

import "sync/atomic"

// Cell holds at most one Frame. Storing replaces the held frame, which is
// dropped if it was never loaded. Cell never queues, and is safe for one
// writer and any number of readers.
type Cell struct {
	slot    atomic.Pointer[entry]
	stored  atomic.Uint64
	dropped atomic.Uint64
}

type entry struct {
	f    Frame
	read atomic.Bool
}

// Store replaces the held frame with f. It reports whether an unread frame
// was dropped.
func (c *Cell) Store(f Frame) (dropped bool) {
	old := c.slot.Swap(&entry{f: f})
	c.stored.Add(1)
	if old != nil && !old.read.Load() {
		c.dropped.Add(1)
		return true
	}
	return false
}

// Load returns the held frame, and false if the cell is empty.
func (c *Cell) Load() (Frame, bool) {
	e := c.slot.Load()
	if e == nil {
		return Frame{}, false
	}
	e.read.Store(true)
	return e.f, true
}

// Reset empties the cell.
func (c *Cell) Reset() { c.slot.Store(nil) }

// Stats returns the number of frames stored and the number dropped unread.
func (c *Cell) Stats() (stored, dropped uint64) {
	return c.stored.Load(), c.dropped.Load()
}
