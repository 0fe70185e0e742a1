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

package uart

import "github.com/ZaparooProject/zaparoo-bridge/pkg/helpers/syncutil"

// ring is a fixed-size byte FIFO shared between the port reader goroutine
// and the engine.
type ring struct {
	buf  []byte
	head int
	size int
	mu   syncutil.Mutex
}

func newRing(capacity int) *ring {
	return &ring{buf: make([]byte, capacity)}
}

func (r *ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

func (r *ring) Free() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.buf) - r.size
}

// Write copies as much of p as fits and returns the number of bytes taken.
func (r *ring) Write(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(p), len(r.buf)-r.size)
	tail := (r.head + r.size) % len(r.buf)
	first := copy(r.buf[tail:], p[:n])
	copy(r.buf, p[first:n])
	r.size += n
	return n
}

func (r *ring) Read(p []byte) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	n := min(len(p), r.size)
	end := min(r.head+n, len(r.buf))
	first := copy(p, r.buf[r.head:end])
	copy(p[first:n], r.buf)
	r.head = (r.head + n) % len(r.buf)
	r.size -= n
	if r.size == 0 {
		r.head = 0
	}
	return n
}

func (r *ring) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.head = 0
	r.size = 0
}
