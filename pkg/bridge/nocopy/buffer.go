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

// Package nocopy implements the single-recipient send buffer used when the
// bridge has exactly one client. The buffer is framed straight out of the
// slice the serial data was read into, one window-sized frame at a time,
// and never sends a new frame while the previous one is unacknowledged.
package nocopy

import (
	"errors"
	"fmt"
)

// ErrReleased is returned by any operation on a released buffer.
var ErrReleased = errors.New("nocopy: buffer released")

// FrameWriter is the per-connection sink a Buffer frames into.
type FrameWriter interface {
	// Window is the largest payload that may be sent as one frame.
	Window() int
	// WriteFrame writes one WebSocket frame. first selects the binary
	// opcode over a continuation, final sets the FIN bit.
	WriteFrame(data []byte, first, final bool) (int, error)
}

// Buffer tracks how much of its slice has been framed and how many wire
// bytes the peer has acknowledged.
type Buffer struct {
	data  []byte
	sent  int
	ack   int
	acked int
	freed bool
}

// New wraps data without copying it. The caller must not touch data again.
func New(data []byte) *Buffer {
	return &Buffer{data: data}
}

// WireSize returns the number of bytes a frame with a payload of n bytes
// occupies on the wire.
func WireSize(n int, masked bool) int {
	size := n + 2
	switch {
	case n > 0xffff:
		size += 8
	case n >= 126:
		size += 2
	}
	if masked {
		size += 4
	}
	return size
}

// Send frames the next window of the buffer. It returns the payload size of
// the frame written, or 0 when there is nothing to send yet because an
// earlier frame is still unacknowledged.
func (b *Buffer) Send(w FrameWriter) (int, error) {
	if b.freed {
		return 0, ErrReleased
	}
	if b.acked < b.ack || b.sent >= len(b.data) {
		return 0, nil
	}

	n := min(len(b.data)-b.sent, w.Window())
	if n <= 0 {
		return 0, nil
	}

	first := b.sent == 0
	final := b.sent+n == len(b.data)
	written, err := w.WriteFrame(b.data[b.sent:b.sent+n], first, final)
	if err != nil {
		return 0, fmt.Errorf("write frame at offset %d: %w", b.sent, err)
	}
	if written != n {
		return 0, fmt.Errorf("short frame write at offset %d: %d of %d bytes", b.sent, written, n)
	}

	b.sent += n
	b.ack += WireSize(n, false)
	return n, nil
}

// Ack records n wire bytes as acknowledged by the peer.
func (b *Buffer) Ack(n int) error {
	if b.freed {
		return ErrReleased
	}
	b.acked = min(b.acked+n, b.ack)
	return nil
}

// Waiting reports whether the buffer is blocked on an acknowledgement.
func (b *Buffer) Waiting() bool {
	return !b.freed && b.acked < b.ack
}

// Done reports whether every byte was sent and acknowledged.
func (b *Buffer) Done() bool {
	return !b.freed && b.sent == len(b.data) && b.acked == b.ack
}

// Len returns the payload length of the buffer.
func (b *Buffer) Len() int {
	return len(b.data)
}

// Bytes returns the underlying payload. It is nil once released.
func (b *Buffer) Bytes() []byte {
	return b.data
}

// Release drops the underlying slice.
func (b *Buffer) Release() {
	b.data = nil
	b.freed = true
}
