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

package nocopy

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

type frame struct {
	data  []byte
	first bool
	final bool
}

type recordingWriter struct {
	err    error
	frames []frame
	window int
	short  bool
}

func (w *recordingWriter) Window() int { return w.window }

func (w *recordingWriter) WriteFrame(data []byte, first, final bool) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.short {
		return len(data) / 2, nil
	}
	w.frames = append(w.frames, frame{data: bytes.Clone(data), first: first, final: final})
	return len(data), nil
}

func TestWireSize(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		n      int
		masked bool
		want   int
	}{
		{name: "small", n: 10, want: 12},
		{name: "small masked", n: 10, masked: true, want: 16},
		{name: "boundary 125", n: 125, want: 127},
		{name: "boundary 126", n: 126, want: 130},
		{name: "frame size", n: 1536, want: 1540},
		{name: "large", n: 70000, want: 70010},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, WireSize(tt.n, tt.masked))
		})
	}
}

func TestSendWaitsForAck(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{window: 4}
	b := New([]byte("0abcdefghi"))

	n, err := b.Send(w)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	assert.True(t, b.Waiting())

	n, err = b.Send(w)
	require.NoError(t, err)
	assert.Zero(t, n, "no frame while the first is unacknowledged")
	assert.Len(t, w.frames, 1)

	require.NoError(t, b.Ack(WireSize(4, false)))
	assert.False(t, b.Waiting())

	n, err = b.Send(w)
	require.NoError(t, err)
	assert.Equal(t, 4, n)
	require.NoError(t, b.Ack(WireSize(4, false)))

	n, err = b.Send(w)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.False(t, b.Done())
	require.NoError(t, b.Ack(WireSize(2, false)))
	assert.True(t, b.Done())

	require.Len(t, w.frames, 3)
	assert.True(t, w.frames[0].first)
	assert.False(t, w.frames[0].final)
	assert.False(t, w.frames[1].first)
	assert.False(t, w.frames[1].final)
	assert.True(t, w.frames[2].final)
}

func TestSendRollsBackOnFailure(t *testing.T) {
	t.Parallel()

	w := &recordingWriter{window: 8, short: true}
	b := New([]byte("0123456789"))

	_, err := b.Send(w)
	require.Error(t, err)
	assert.False(t, b.Waiting())

	w.short = false
	w.err = errors.New("broken pipe")
	_, err = b.Send(w)
	require.Error(t, err)

	w.err = nil
	n, err := b.Send(w)
	require.NoError(t, err)
	assert.Equal(t, 8, n)
	require.Len(t, w.frames, 1)
	assert.True(t, w.frames[0].first)
}

func TestReleased(t *testing.T) {
	t.Parallel()

	b := New([]byte("0x"))
	b.Release()

	_, err := b.Send(&recordingWriter{window: 10})
	require.ErrorIs(t, err, ErrReleased)
	require.ErrorIs(t, b.Ack(1), ErrReleased)
	assert.False(t, b.Done())
	assert.Nil(t, b.Bytes())
}

func TestSendReassemblesProperty(t *testing.T) {
	t.Parallel()

	rapid.Check(t, func(t *rapid.T) {
		payload := rapid.SliceOfN(rapid.Byte(), 1, 4096).Draw(t, "payload")
		window := rapid.IntRange(1, 2048).Draw(t, "window")

		w := &recordingWriter{window: window}
		b := New(bytes.Clone(payload))

		for !b.Done() {
			n, err := b.Send(w)
			if err != nil {
				t.Fatalf("send: %v", err)
			}
			if n == 0 {
				t.Fatalf("stalled with %d frames sent", len(w.frames))
			}
			if err := b.Ack(WireSize(n, false)); err != nil {
				t.Fatalf("ack: %v", err)
			}
		}

		var got []byte
		for i, f := range w.frames {
			if f.first != (i == 0) {
				t.Fatalf("frame %d first=%v", i, f.first)
			}
			if f.final != (i == len(w.frames)-1) {
				t.Fatalf("frame %d final=%v", i, f.final)
			}
			if len(f.data) > window {
				t.Fatalf("frame %d exceeds window", i)
			}
			got = append(got, f.data...)
		}
		if !bytes.Equal(got, payload) {
			t.Fatalf("reassembled payload differs")
		}
	})
}
