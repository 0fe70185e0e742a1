// Zaparoo Bridge
// Copyright (c) 2026 The Zaparoo Project Contributors.
// SPDX-License-Identifier: GPL-3.0-or-later
//
// This file is part of Zaparoo Bridge.
//
// Zaparoo Bridge is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Zaparoo Bridge is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with Zaparoo Bridge.  If not, see <http://www.gnu.org/licenses/>.

package bridge

import "fmt"

// fragmentSlot holds one client's partially received message. Only the
// command byte and the payload after it are kept.
type fragmentSlot struct {
	buf  []byte
	id   ClientID
	cmd  byte
	used bool
}

func (s *fragmentSlot) begin(cmd byte) {
	s.cmd = cmd
	s.buf = s.buf[:0]
}

// append adds p to the slot, refusing to grow past the slot's capacity.
func (s *fragmentSlot) append(p []byte) bool {
	if len(s.buf)+len(p) > cap(s.buf) {
		return false
	}
	s.buf = append(s.buf, p...)
	return true
}

// FragmentCache has one reassembly slot per admissible client. Buffers are
// allocated once and reused.
type FragmentCache struct {
	slots []fragmentSlot
}

func NewFragmentCache(slots, limit int) *FragmentCache {
	c := &FragmentCache{slots: make([]fragmentSlot, slots)}
	for i := range c.slots {
		c.slots[i].buf = make([]byte, 0, limit)
	}
	return c
}

func (c *FragmentCache) lookup(id ClientID) *fragmentSlot {
	for i := range c.slots {
		if c.slots[i].used && c.slots[i].id == id {
			return &c.slots[i]
		}
	}
	return nil
}

// acquire returns the slot for id, claiming a free one if needed. Slots whose
// owner is no longer live are reclaimed first. Running out of slots means the
// cache was sized below the client limit, which is a programming error.
func (c *FragmentCache) acquire(id ClientID, live func(ClientID) bool) *fragmentSlot {
	if s := c.lookup(id); s != nil {
		return s
	}
	c.gc(live)
	for i := range c.slots {
		if !c.slots[i].used {
			s := &c.slots[i]
			s.used = true
			s.id = id
			s.begin(0)
			return s
		}
	}
	panic(fmt.Sprintf("fragment cache exhausted: %d slots in use", len(c.slots)))
}

// release frees the slot for id, if any.
func (c *FragmentCache) release(id ClientID) {
	if s := c.lookup(id); s != nil {
		s.used = false
		s.cmd = 0
		s.buf = s.buf[:0]
	}
}

func (c *FragmentCache) gc(live func(ClientID) bool) {
	for i := range c.slots {
		if c.slots[i].used && !live(c.slots[i].id) {
			c.release(c.slots[i].id)
		}
	}
}

// InUse returns the number of occupied slots.
func (c *FragmentCache) InUse() int {
	n := 0
	for i := range c.slots {
		if c.slots[i].used {
			n++
		}
	}
	return n
}
